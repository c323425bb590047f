// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/crossmod/crossmod/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `crossmod config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage crossmod configuration",
		Long: `Manage crossmod configuration.

Configuration is read from, in order of precedence:
  - CROSSMOD_* environment variables (CROSSMOD_WORK_DIR, CROSSMOD_UI_VERBOSE)
  - the file given with --config
  - <user config dir>/crossmod/config.cue
  - ./config.cue`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := app.loadConfig(cmd.Context())
			if err != nil {
				return fail(cmd, app, nil, err)
			}
			showConfig(cmd, loaded)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := app.loadConfig(cmd.Context())
			if err != nil {
				return fail(cmd, app, nil, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(loaded.Config))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return fail(cmd, app, nil, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Configuration at %s\n", SuccessStyle.Render(successIcon), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the default configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return fail(cmd, app, nil, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the CUE schema of the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(config.Schema())
			return err
		},
	})

	return cfgCmd
}

func showConfig(cmd *cobra.Command, loaded *config.Loaded) {
	w := cmd.OutOrStdout()
	key := func(k string) string { return IDStyle.Render(k) }
	val := func(v any) string { return SuccessStyle.Render(fmt.Sprint(v)) }

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if loaded.Path != "" {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), loaded.Path)
	} else {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	cfg := loaded.Config
	for _, kv := range []struct {
		k string
		v any
	}{
		{"mods_dir", cfg.ModsDir},
		{"work_dir", cfg.WorkDir},
		{"mapping_file", cfg.MappingFile},
		{"host_packages_file", cfg.HostPackagesFile},
		{"overrides_file", cfg.OverridesFile},
		{"libraries", strings.Join(cfg.Libraries, ", ")},
		{"hidden_packages", strings.Join(cfg.HiddenPackages, ", ")},
		{"enable_weaving_safeguard", cfg.EnableWeavingSafeguard},
		{"environment", cfg.Environment},
		{"host_namespace", cfg.HostNamespace},
		{"platform_version", cfg.PlatformVersion},
		{"runtime_version", cfg.RuntimeVersion},
		{"loader_version", cfg.LoaderVersion},
		{"transform_timeout", cfg.TransformTimeout},
		{"ui.color_scheme", cfg.UI.ColorScheme},
		{"ui.verbose", cfg.UI.Verbose},
	} {
		fmt.Fprintf(w, "%s: %s\n", key(kv.k), val(kv.v))
	}

	fmt.Fprintf(w, "%s:\n", key("global_aliases"))
	if len(cfg.GlobalAliases) == 0 {
		fmt.Fprintf(w, "  %s\n", SubtitleStyle.Render("(none configured)"))
		return
	}
	fmt.Fprintf(w, "  %s\n", val(aliasSummary(cfg.GlobalAliases)))
}

func aliasSummary(aliases map[string][]string) string {
	v := newAliasValue()
	for id, list := range aliases {
		_ = v.Set(id + "=" + strings.Join(list, ","))
	}
	return v.String()
}
