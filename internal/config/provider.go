// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions selects where configuration is read from.
	LoadOptions struct {
		// ConfigFilePath forces a specific file. Missing files are an error.
		ConfigFilePath string
		// ConfigDirPath replaces the user config directory in the lookup.
		ConfigDirPath string
	}

	// Loaded is a validated configuration and the file it came from. Path is
	// empty when only defaults and environment overrides applied.
	Loaded struct {
		*Config
		Path string
	}

	// Provider loads configuration.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Loaded, error)
	}

	fileProvider struct{}
)

// NewProvider returns a Provider reading CUE files, CROSSMOD_* environment
// variables and built-in defaults, in decreasing precedence of environment,
// file and defaults.
func NewProvider() Provider {
	return fileProvider{}
}

// Load implements Provider.
func (fileProvider) Load(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	cfg, path, err := loadWithOptions(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, Path: path}, nil
}
