// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crossmod/crossmod/internal/alias"
	"github.com/crossmod/crossmod/pkg/descriptor"
)

const (
	// CurrentVersion is the only supported configuration version.
	CurrentVersion = 1

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrUnsupportedVersion is returned for configuration versions other than CurrentVersion.
	ErrUnsupportedVersion = errors.New("unsupported config version")
	// ErrInvalidTimeout is returned for a non-positive transform timeout.
	ErrInvalidTimeout = errors.New("invalid transform timeout")
	// ErrMissingPath is returned when a required path is empty.
	ErrMissingPath = errors.New("missing path")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// the field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Version must be CurrentVersion.
		Version int `json:"version" mapstructure:"version"`

		// ModsDir holds the guest package jars.
		ModsDir string `json:"mods_dir" mapstructure:"mods_dir"`
		// WorkDir receives translated jars, the cache index and reports.
		WorkDir string `json:"work_dir" mapstructure:"work_dir"`
		// MappingFile is the YAML guest-to-host mapping table.
		MappingFile string `json:"mapping_file" mapstructure:"mapping_file"`
		// HostPackagesFile is the CUE manifest of host-native packages.
		HostPackagesFile string `json:"host_packages_file" mapstructure:"host_packages_file"`
		// OverridesFile is the TOML dependency overrides file.
		OverridesFile string `json:"overrides_file" mapstructure:"overrides_file"`
		// Libraries are host jars consulted for class hierarchy lookups.
		Libraries []string `json:"libraries" mapstructure:"libraries"`

		HiddenPackages []string            `json:"hidden_packages" mapstructure:"hidden_packages"`
		GlobalAliases  map[string][]string `json:"global_aliases" mapstructure:"global_aliases"`

		// EnableWeavingSafeguard reports packages whose weaving directives were
		// left partly untranslated.
		EnableWeavingSafeguard bool                   `json:"enable_weaving_safeguard" mapstructure:"enable_weaving_safeguard"`
		Environment            descriptor.Environment `json:"environment" mapstructure:"environment"`

		HostNamespace   string `json:"host_namespace" mapstructure:"host_namespace"`
		PlatformVersion string `json:"platform_version" mapstructure:"platform_version"`
		RuntimeVersion  string `json:"runtime_version" mapstructure:"runtime_version"`
		LoaderVersion   string `json:"loader_version" mapstructure:"loader_version"`

		TransformTimeout time.Duration `json:"transform_timeout" mapstructure:"transform_timeout"`

		// UI configures the user interface
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables debug logging
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// Aliases returns the configured alias table.
func (c Config) Aliases() alias.Table {
	return alias.Table(c.GlobalAliases)
}

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if c.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("%w: %d (want %d)", ErrUnsupportedVersion, c.Version, CurrentVersion))
	}
	for _, p := range []struct{ name, value string }{
		{"mods_dir", c.ModsDir},
		{"work_dir", c.WorkDir},
		{"mapping_file", c.MappingFile},
	} {
		if strings.TrimSpace(p.value) == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingPath, p.name))
		}
	}
	if err := c.Environment.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.TransformTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTimeout, c.TransformTimeout))
	}
	if valid, fieldErrs := c.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns ErrInvalidColorScheme for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined schemes.
// The zero value is treated as auto.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case "", ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version:                CurrentVersion,
		ModsDir:                "mods",
		WorkDir:                ".crossmod",
		MappingFile:            "mappings.yaml",
		Libraries:              []string{},
		HiddenPackages:         []string{},
		GlobalAliases:          map[string][]string{},
		EnableWeavingSafeguard: true,
		Environment:            descriptor.EnvClient,
		HostNamespace:          "srg",
		PlatformVersion:        "1.20.1",
		RuntimeVersion:         "17",
		TransformTimeout:       time.Hour,
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}
