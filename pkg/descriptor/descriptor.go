// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"slices"

	"github.com/crossmod/crossmod/pkg/semver"
)

const (
	// FileName is the name of the descriptor file at the root of a guest package.
	FileName = "fabric.mod.json"

	// EnvClient marks packages that only load on the client.
	EnvClient Environment = "client"
	// EnvServer marks packages that only load on a dedicated server.
	EnvServer Environment = "server"
	// EnvAny marks packages that load everywhere.
	EnvAny Environment = "*"

	// KindRequires is a hard dependency.
	KindRequires DependencyKind = "requires"
	// KindConflicts is a hard incompatibility.
	KindConflicts DependencyKind = "conflicts"
	// KindRecommends is a soft dependency; unmet recommendations only warn.
	KindRecommends DependencyKind = "recommends"
)

var (
	// ErrInvalidEnvironment is the sentinel error wrapped by InvalidEnvironmentError.
	ErrInvalidEnvironment = errors.New("invalid environment")
	// ErrInvalidDependencyKind is returned when a DependencyKind value is not recognized.
	ErrInvalidDependencyKind = errors.New("invalid dependency kind")
)

type (
	// Environment is the execution context a package applies to.
	Environment string

	// InvalidEnvironmentError is returned when an Environment value is not recognized.
	InvalidEnvironmentError struct {
		Value Environment
	}

	// DependencyKind classifies a declared dependency constraint.
	DependencyKind string

	// Identity uniquely identifies a package within a resolution run.
	Identity struct {
		ID      string
		Version string
	}

	// Dependency is a declared constraint against another package.
	Dependency struct {
		Kind   DependencyKind
		Target string
		Range  semver.Range
	}

	// NestedJar references a package embedded inside this one.
	NestedJar struct {
		// File is the archive path of the embedded package.
		File string
	}

	// MixinEntry references a weaving configuration file.
	MixinEntry struct {
		Config      string
		Environment Environment
	}

	// Descriptor is an immutable, validated package descriptor.
	Descriptor struct {
		ID            string
		Version       *semver.Version
		Name          string
		Provides      []string
		Dependencies  []Dependency
		Jars          []NestedJar
		Mixins        []MixinEntry
		Environment   Environment
		AccessWidener string
		Custom        map[string]any
	}
)

// Error implements the error interface.
func (e *InvalidEnvironmentError) Error() string {
	return fmt.Sprintf("invalid environment %q (valid: client, server, *)", e.Value)
}

// Unwrap returns ErrInvalidEnvironment so callers can use errors.Is for programmatic detection.
func (e *InvalidEnvironmentError) Unwrap() error { return ErrInvalidEnvironment }

// Validate returns an error if the environment is not recognized.
// The zero value is treated as EnvAny.
func (e Environment) Validate() error {
	switch e {
	case "", EnvClient, EnvServer, EnvAny:
		return nil
	default:
		return &InvalidEnvironmentError{Value: e}
	}
}

// Matches reports whether a package declared for e applies in the target environment.
func (e Environment) Matches(target Environment) bool {
	if e == "" || e == EnvAny || target == "" || target == EnvAny {
		return true
	}
	return e == target
}

// String returns the string representation of the Environment.
func (e Environment) String() string { return string(e) }

// Validate returns an error if the kind is not recognized.
func (k DependencyKind) Validate() error {
	switch k {
	case KindRequires, KindConflicts, KindRecommends:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDependencyKind, string(k))
	}
}

// KindFromKey maps a metadata dependency key to its kind. The guest format's
// "depends", "suggests" and "breaks" keys are folded into the three kinds.
func KindFromKey(key string) (DependencyKind, bool) {
	switch key {
	case "depends", "requires":
		return KindRequires, true
	case "recommends", "suggests":
		return KindRecommends, true
	case "conflicts", "breaks":
		return KindConflicts, true
	default:
		return "", false
	}
}

// String returns the string representation of the DependencyKind.
func (k DependencyKind) String() string { return string(k) }

// String renders the identity as "id@version".
func (i Identity) String() string {
	return i.ID + "@" + i.Version
}

// String returns a human-readable representation of the dependency.
func (d Dependency) String() string {
	return fmt.Sprintf("%s %s %s", d.Kind, d.Target, d.Range)
}

// Identity returns the deduplication key of the descriptor.
func (d *Descriptor) Identity() Identity {
	return Identity{ID: d.ID, Version: d.Version.String()}
}

// DisplayName returns the human-readable name, falling back to the ID.
func (d *Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// LoadsIn reports whether the package applies to the given environment.
func (d *Descriptor) LoadsIn(env Environment) bool {
	return d.Environment.Matches(env)
}

// ProvidesID reports whether the descriptor is, or provides, the given ID.
func (d *Descriptor) ProvidesID(id string) bool {
	return d.ID == id || slices.Contains(d.Provides, id)
}

// MixinConfigs returns the weaving configuration paths that apply in env.
func (d *Descriptor) MixinConfigs(env Environment) []string {
	var out []string
	for _, m := range d.Mixins {
		if m.Environment.Matches(env) {
			out = append(out, m.Config)
		}
	}
	return out
}

// CustomBool returns a boolean custom value and whether it was present as a boolean.
func (d *Descriptor) CustomBool(key string) (value, ok bool) {
	v, present := d.Custom[key]
	if !present {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// DependenciesOf returns the declared dependencies of the given kind.
func (d *Descriptor) DependenciesOf(kind DependencyKind) []Dependency {
	var out []Dependency
	for _, dep := range d.Dependencies {
		if dep.Kind == kind {
			out = append(out, dep)
		}
	}
	return out
}

// WithDependencies returns a copy of the descriptor with its dependency list replaced.
func (d *Descriptor) WithDependencies(deps []Dependency) *Descriptor {
	cp := *d
	cp.Dependencies = slices.Clone(deps)
	return &cp
}

// Builtin creates a descriptor for a package supplied by the host rather than read
// from a guest archive.
func Builtin(id, version, name string, provides ...string) (*Descriptor, error) {
	v, err := semver.ParseVersion(version)
	if err != nil {
		return nil, fmt.Errorf("builtin package %s: %w", id, err)
	}
	return &Descriptor{
		ID:          id,
		Version:     v,
		Name:        name,
		Provides:    provides,
		Environment: EnvAny,
	}, nil
}
