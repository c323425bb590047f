// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/crossmod/crossmod/internal/alias"
	"github.com/crossmod/crossmod/internal/config"
	"github.com/crossmod/crossmod/internal/hostpkg"
	"github.com/crossmod/crossmod/internal/issue"
	"github.com/crossmod/crossmod/internal/mapping"
	"github.com/crossmod/crossmod/internal/resolver"
	"github.com/crossmod/crossmod/internal/transform"
	"github.com/crossmod/crossmod/pkg/descriptor"

	"github.com/charmbracelet/log"
	"github.com/zeebo/blake3"
)

// RunContext is the shared, read-only state of one run.
type RunContext struct {
	Config *config.Config
	// Mapping is the guest-to-host table. It is never modified after load.
	Mapping *mapping.Index
	// MappingFingerprint identifies the mapping table content.
	MappingFingerprint string
	Aliases            *alias.Registry
	HostPackages       []*descriptor.Descriptor
	Overrides          resolver.Overrides
	Clock              transform.Clock
	Logger             *log.Logger
}

// NewRunContext loads the mapping table, host package manifest and overrides
// named by cfg and registers the configured aliases plus extra.
func NewRunContext(cfg *config.Config, extra alias.Table, logger *log.Logger) (*RunContext, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	data, err := os.ReadFile(cfg.MappingFile)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load mapping table").
			WithIssue(issue.MappingLoadFailedId).
			WithResource(cfg.MappingFile).
			WithSuggestion("Set mapping_file in the configuration to an existing YAML table").
			Wrap(err).
			BuildError()
	}
	index, err := mapping.Parse(data, cfg.MappingFile)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load mapping table").
			WithIssue(issue.MappingLoadFailedId).
			WithResource(cfg.MappingFile).
			WithSuggestion("Check the classes, fields and methods sections of the table").
			Wrap(err).
			BuildError()
	}
	sum := blake3.Sum256(data)

	hostPackages, err := hostpkg.Load(cfg.HostPackagesFile)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load host packages").
			WithIssue(issue.HostPackagesInvalidId).
			WithResource(cfg.HostPackagesFile).
			Wrap(err).
			BuildError()
	}

	var overrides resolver.Overrides
	if cfg.OverridesFile != "" {
		if overrides, err = resolver.LoadOverrides(cfg.OverridesFile); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load dependency overrides").
				WithResource(cfg.OverridesFile).
				Wrap(err).
				BuildError()
		}
	}

	aliases := &alias.Registry{}
	aliases.Register(cfg.Aliases().Merge(extra))

	classes, fields, methods := index.Size()
	logger.Debug("run context ready", "mapping", cfg.MappingFile, "classes", classes, "fields", fields,
		"methods", methods, "host_packages", len(hostPackages), "overrides", len(overrides))

	return &RunContext{
		Config:             cfg,
		Mapping:            index,
		MappingFingerprint: hex.EncodeToString(sum[:]),
		Aliases:            aliases,
		HostPackages:       hostPackages,
		Overrides:          overrides,
		Logger:             logger,
	}, nil
}

// cacheSalt ties cached outputs to the mapping content and output naming.
func (rc *RunContext) cacheSalt() string {
	return fmt.Sprintf("%s|%s|%s", rc.MappingFingerprint, rc.Config.HostNamespace, rc.Config.PlatformVersion)
}
