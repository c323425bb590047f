// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/crossmod/crossmod/internal/config"
	"github.com/crossmod/crossmod/internal/loader"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// App carries the state shared by all commands of one invocation.
type App struct {
	Config  config.Provider
	cfgFile string
	verbose bool
	aliases *aliasValue
}

// NewApp creates an App. A nil provider selects the file provider.
func NewApp(provider config.Provider) *App {
	if provider == nil {
		provider = config.NewProvider()
	}
	return &App{Config: provider, aliases: newAliasValue()}
}

// newRootCommand builds the command tree for app.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "crossmod",
		Short: "Load guest platform packages on a host platform",
		Long: TitleStyle.Render("crossmod") + SubtitleStyle.Render(" - load guest platform packages on a host platform") + `

crossmod reads the package jars of a mods directory, resolves a consistent
load set against the packages the host provides, and rewrites every accepted
jar from guest names to host names.

` + SubtitleStyle.Render("Examples:") + `
  crossmod load                  Resolve and translate the mods directory
  crossmod resolve               Show the load order without translating
  crossmod remap a.jar b.jar     Translate jars without resolution
  crossmod config init           Create a default configuration file`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&app.cfgFile, "config", "", "config file (default is <user config dir>/crossmod/config.cue)")
	root.PersistentFlags().Var(app.aliases, "alias", "extra package alias as id=alias[,alias] (repeatable)")

	root.AddCommand(newLoadCommand(app))
	root.AddCommand(newResolveCommand(app))
	root.AddCommand(newRemapCommand(app))
	root.AddCommand(newConfigCommand(app))
	root.AddCommand(newSchemaCommand())
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the resulting status.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(NewApp(nil)),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitFailure)
	}
}

// loadConfig loads the configuration selected by --config.
func (app *App) loadConfig(ctx context.Context) (*config.Loaded, error) {
	loaded, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: app.cfgFile})
	if err != nil {
		return nil, err
	}
	if loaded.UI.Verbose {
		app.verbose = true
	}
	return loaded, nil
}

// logger returns the run logger writing to w.
func (app *App) logger(w io.Writer) *log.Logger {
	level := log.InfoLevel
	if app.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{Prefix: "crossmod", Level: level})
}

// runContext loads configuration and everything a run needs.
func (app *App) runContext(cmd *cobra.Command) (*loader.RunContext, *config.Loaded, error) {
	loaded, err := app.loadConfig(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	rc, err := loader.NewRunContext(loaded.Config, app.aliases.Table(), app.logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, loaded, err
	}
	return rc, loaded, nil
}
