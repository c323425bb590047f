// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/crossmod/crossmod/internal/issue"
	"github.com/crossmod/crossmod/pkg/cueutil"
	"github.com/crossmod/crossmod/pkg/fspath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "crossmod"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment variable overrides (CROSSMOD_WORK_DIR).
	EnvPrefix = "CROSSMOD"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the crossmod configuration directory under the
// platform user configuration directory.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// Schema returns the embedded CUE schema.
func Schema() []byte { return slices.Clone(configSchema) }

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath, err := resolveConfigPath(opts)
	if err != nil {
		return nil, "", err
	}
	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithIssue(issue.ConfigLoadFailedId).
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'crossmod config schema' to print the schema").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	// Weak typing lets a single alias id stand for a one-element list.
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithIssue(issue.ConfigLoadFailedId).
			WithResource(resolvedPath).
			WithSuggestion("Set \"version\" to 1").
			WithSuggestion("Make sure mods_dir, work_dir and mapping_file are set").
			Wrap(errors.Join(errs...)).
			BuildError()
	}
	return &cfg, resolvedPath, nil
}

// resolveConfigPath returns the file to load: the explicit path, then the
// config directory, then the working directory. An empty result means defaults
// only.
func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithIssue(issue.ConfigLoadFailedId).
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'crossmod config init' to create one").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{
		filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
		ConfigFileName + "." + ConfigFileExt,
	} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("version", defaults.Version)
	v.SetDefault("mods_dir", defaults.ModsDir)
	v.SetDefault("work_dir", defaults.WorkDir)
	v.SetDefault("mapping_file", defaults.MappingFile)
	v.SetDefault("host_packages_file", defaults.HostPackagesFile)
	v.SetDefault("overrides_file", defaults.OverridesFile)
	v.SetDefault("libraries", defaults.Libraries)
	v.SetDefault("hidden_packages", defaults.HiddenPackages)
	v.SetDefault("global_aliases", defaults.GlobalAliases)
	v.SetDefault("enable_weaving_safeguard", defaults.EnableWeavingSafeguard)
	v.SetDefault("environment", string(defaults.Environment))
	v.SetDefault("host_namespace", defaults.HostNamespace)
	v.SetDefault("platform_version", defaults.PlatformVersion)
	v.SetDefault("runtime_version", defaults.RuntimeVersion)
	v.SetDefault("loader_version", defaults.LoaderVersion)
	v.SetDefault("transform_timeout", defaults.TransformTimeout.String())
	v.SetDefault("ui.color_scheme", string(defaults.UI.ColorScheme))
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// Viper. Fields are optional, so values need not be concrete.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	unified, err := cueutil.Compile(configSchema, data, "#Config",
		cueutil.WithFilename(path), cueutil.WithConcrete(false))
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to the config
// directory unless a file already exists there. It returns the file path.
func CreateDefaultConfig() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(cfgPath) {
		return cfgPath, nil
	}
	return cfgPath, Save(DefaultConfig(), cfgPath)
}

// Save writes cfg as CUE to path.
func Save(cfg *Config, path string) error {
	if err := fspath.WriteFileAtomic(path, []byte(GenerateCUE(cfg))); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// crossmod configuration\n\n")
	fmt.Fprintf(&sb, "version: %d\n\n", cfg.Version)

	fmt.Fprintf(&sb, "mods_dir:     %q\n", cfg.ModsDir)
	fmt.Fprintf(&sb, "work_dir:     %q\n", cfg.WorkDir)
	fmt.Fprintf(&sb, "mapping_file: %q\n", cfg.MappingFile)
	if cfg.HostPackagesFile != "" {
		fmt.Fprintf(&sb, "host_packages_file: %q\n", cfg.HostPackagesFile)
	}
	if cfg.OverridesFile != "" {
		fmt.Fprintf(&sb, "overrides_file: %q\n", cfg.OverridesFile)
	}
	if len(cfg.Libraries) > 0 {
		fmt.Fprintf(&sb, "libraries: [%s]\n", quoteList(cfg.Libraries))
	}

	fmt.Fprintf(&sb, "\nhidden_packages: [%s]\n", quoteList(cfg.HiddenPackages))
	if len(cfg.GlobalAliases) == 0 {
		sb.WriteString("global_aliases: {}\n")
	} else {
		sb.WriteString("global_aliases: {\n")
		ids := make([]string, 0, len(cfg.GlobalAliases))
		for id := range cfg.GlobalAliases {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			aliases := cfg.GlobalAliases[id]
			if len(aliases) == 1 {
				fmt.Fprintf(&sb, "\t%q: %q\n", id, aliases[0])
			} else {
				fmt.Fprintf(&sb, "\t%q: [%s]\n", id, quoteList(aliases))
			}
		}
		sb.WriteString("}\n")
	}
	fmt.Fprintf(&sb, "enable_weaving_safeguard: %v\n", cfg.EnableWeavingSafeguard)
	fmt.Fprintf(&sb, "environment: %q\n", string(cfg.Environment))

	fmt.Fprintf(&sb, "\nhost_namespace:   %q\n", cfg.HostNamespace)
	fmt.Fprintf(&sb, "platform_version: %q\n", cfg.PlatformVersion)
	fmt.Fprintf(&sb, "runtime_version:  %q\n", cfg.RuntimeVersion)
	if cfg.LoaderVersion != "" {
		fmt.Fprintf(&sb, "loader_version:   %q\n", cfg.LoaderVersion)
	}
	fmt.Fprintf(&sb, "\ntransform_timeout: %q\n", cfg.TransformTimeout.String())

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", string(cfg.UI.ColorScheme))
	fmt.Fprintf(&sb, "\tverbose:      %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return strings.Join(quoted, ", ")
}
