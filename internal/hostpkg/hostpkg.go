// SPDX-License-Identifier: MPL-2.0

// Package hostpkg reads the manifest of packages the host platform provides
// natively.
package hostpkg

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/crossmod/crossmod/pkg/cueutil"
	"github.com/crossmod/crossmod/pkg/descriptor"
)

//go:embed hostpkg_schema.cue
var schema []byte

var (
	// ErrInvalidManifest is returned for manifests that fail validation.
	ErrInvalidManifest = errors.New("invalid host package manifest")
	// ErrDuplicatePackage is returned when a manifest lists an id twice.
	ErrDuplicatePackage = errors.New("duplicate host package")
)

type (
	// Manifest is the decoded host package manifest.
	Manifest struct {
		Version  int     `json:"version"`
		Packages []Entry `json:"packages"`
	}

	// Entry is one host package.
	Entry struct {
		ID       string   `json:"id"`
		Version  string   `json:"version"`
		Name     string   `json:"name"`
		Provides []string `json:"provides"`
	}
)

// Load reads the manifest at path. An empty path yields no packages.
func Load(path string) ([]*descriptor.Descriptor, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading host packages: %w", err)
	}
	return Parse(data, path)
}

// Parse validates data against #HostPackages and returns one descriptor per
// entry, in manifest order.
func Parse(data []byte, filename string) ([]*descriptor.Descriptor, error) {
	res, err := cueutil.ParseAndDecode[Manifest](schema, data, "#HostPackages", cueutil.WithFilename(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	seen := make(map[string]bool, len(res.Value.Packages))
	out := make([]*descriptor.Descriptor, 0, len(res.Value.Packages))
	for _, e := range res.Value.Packages {
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: %s: %w: %s", ErrInvalidManifest, filename, ErrDuplicatePackage, e.ID)
		}
		seen[e.ID] = true

		name := e.Name
		if name == "" {
			name = e.ID
		}
		d, err := descriptor.Builtin(e.ID, e.Version, name, e.Provides...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, filename, err)
		}
		out = append(out, d)
	}
	return out, nil
}
