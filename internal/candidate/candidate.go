// SPDX-License-Identifier: MPL-2.0

package candidate

import (
	"fmt"
	"strings"

	"github.com/crossmod/crossmod/pkg/descriptor"
)

const (
	// OriginGuest is a package read from a guest archive.
	OriginGuest Origin = "guest"
	// OriginHost is a package supplied natively by the host platform.
	OriginHost Origin = "host"
	// OriginBuiltin is a synthetic package standing for the platform itself.
	OriginBuiltin Origin = "builtin"

	// RuntimeID is the identity of the runtime platform builtin.
	RuntimeID = "java"
	// LoaderShimID is the identity of the guest-loader compatibility shim builtin.
	LoaderShimID = "fabricloader"
	// UnknownLoaderVersion is used for the loader shim when no version is known.
	UnknownLoaderVersion = "0.0NONE"
)

type (
	// Origin tells where a candidate comes from.
	Origin string

	// Package is a located guest package: its descriptor and the archive it was read from.
	Package struct {
		Descriptor *descriptor.Descriptor
		Path       string
	}

	// Embeddings maps a parent identity to the packages it embeds.
	Embeddings map[descriptor.Identity][]Package

	// Candidate is one node of the candidate graph.
	Candidate struct {
		Descriptor *descriptor.Descriptor
		// Paths are the archives exposed for this candidate; nil when the package
		// is only reachable through a parent.
		Paths    []string
		Children []*Candidate
		Origin   Origin
	}

	// Platform describes the versions of the builtin candidates.
	Platform struct {
		// RuntimeVersion is the runtime specification version ("1.8", "21").
		RuntimeVersion string
		// RuntimeName is the display name of the runtime.
		RuntimeName string
		// LoaderVersion is the bundled guest loader version; empty when unknown.
		LoaderVersion string
	}
)

// Identity returns the identity of the candidate's descriptor.
func (c *Candidate) Identity() descriptor.Identity {
	return c.Descriptor.Identity()
}

// ID returns the package id.
func (c *Candidate) ID() string { return c.Descriptor.ID }

// Standalone reports whether the candidate exposes its own archive.
func (c *Candidate) Standalone() bool { return c.Paths != nil }

// String returns a human-readable representation of the candidate.
func (c *Candidate) String() string {
	return fmt.Sprintf("%s (%s)", c.Identity(), c.Origin)
}

// Walk visits c and its descendants depth-first, children before parents.
// Shared children are visited once.
func (c *Candidate) Walk(fn func(*Candidate)) {
	c.walk(fn, make(map[*Candidate]struct{}))
}

func (c *Candidate) walk(fn func(*Candidate), seen map[*Candidate]struct{}) {
	if _, ok := seen[c]; ok {
		return
	}
	seen[c] = struct{}{}
	for _, child := range c.Children {
		child.walk(fn, seen)
	}
	fn(c)
}

// Builtins returns the runtime and loader shim candidates for the platform.
func (p Platform) Builtins() ([]*Candidate, error) {
	runtimeName := p.RuntimeName
	if runtimeName == "" {
		runtimeName = "Java"
	}
	runtime, err := descriptor.Builtin(RuntimeID, strings.TrimPrefix(p.RuntimeVersion, "1."), runtimeName)
	if err != nil {
		return nil, err
	}
	loader, err := descriptor.Builtin(LoaderShimID, LoaderShimVersion(p.LoaderVersion), "Fabric Loader")
	if err != nil {
		return nil, err
	}
	return []*Candidate{
		{Descriptor: runtime, Paths: []string{}, Origin: OriginBuiltin},
		{Descriptor: loader, Paths: []string{}, Origin: OriginBuiltin},
	}, nil
}

// LoaderShimVersion widens a loader version to "major.minor.*" so that guest
// packages asking for a newer patch release still accept the shim.
func LoaderShimVersion(version string) string {
	if version == "" {
		return UnknownLoaderVersion
	}
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1] + ".*"
}
