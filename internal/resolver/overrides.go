// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/crossmod/crossmod/pkg/descriptor"
	"github.com/crossmod/crossmod/pkg/semver"

	"github.com/pelletier/go-toml/v2"
)

// OverridesVersion is the only supported overrides file version.
const OverridesVersion = 1

// ErrInvalidOverrides is returned for malformed overrides files.
var ErrInvalidOverrides = errors.New("invalid dependency overrides")

type (
	// Overrides replaces, adds or removes declared dependencies per package id.
	// The zero value applies no changes.
	Overrides map[string]PackageOverride

	// PackageOverride lists the changes for one package. In the TOML file a
	// dependency key without prefix replaces, "+key" adds and "-key" removes:
	//
	//	version = 1
	//	[packages.examplemod]
	//	"+requires" = { fabric-api = "*" }
	//	"-recommends" = ["modmenu"]
	//	conflicts = {}
	PackageOverride struct {
		// Replace swaps all dependencies of a kind for the given list.
		Replace map[descriptor.DependencyKind][]descriptor.Dependency
		// Add inserts dependencies, replacing existing ones of the same kind and target.
		Add []descriptor.Dependency
		// Remove drops dependencies of a kind by target id.
		Remove map[descriptor.DependencyKind][]string
	}

)

// LoadOverrides reads an overrides file. A missing file yields empty overrides.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Overrides{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dependency overrides: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes TOML overrides.
func ParseOverrides(data []byte) (Overrides, error) {
	var raw struct {
		Version  int                       `toml:"version"`
		Packages map[string]map[string]any `toml:"packages"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOverrides, err)
	}
	if raw.Version != OverridesVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (expected %d)", ErrInvalidOverrides, raw.Version, OverridesVersion)
	}

	out := make(Overrides, len(raw.Packages))
	for id, entries := range raw.Packages {
		var po PackageOverride
		for key, value := range entries {
			if err := po.addEntry(key, value); err != nil {
				return nil, fmt.Errorf("%w: package %s: %w", ErrInvalidOverrides, id, err)
			}
		}
		out[id] = po
	}
	return out, nil
}

func (po *PackageOverride) addEntry(key string, value any) error {
	op := byte(0)
	if strings.HasPrefix(key, "+") || strings.HasPrefix(key, "-") {
		op, key = key[0], key[1:]
	}
	kind, ok := descriptor.KindFromKey(key)
	if !ok {
		return fmt.Errorf("unknown dependency key %q", key)
	}

	if op == '-' {
		targets, err := removalTargets(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if po.Remove == nil {
			po.Remove = make(map[descriptor.DependencyKind][]string)
		}
		po.Remove[kind] = append(po.Remove[kind], targets...)
		return nil
	}

	deps, err := dependencies(kind, value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if op == '+' {
		po.Add = append(po.Add, deps...)
		return nil
	}
	if po.Replace == nil {
		po.Replace = make(map[descriptor.DependencyKind][]descriptor.Dependency)
	}
	po.Replace[kind] = append(po.Replace[kind], deps...)
	return nil
}

func removalTargets(value any) ([]string, error) {
	switch v := value.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("expected a list of package ids")
			}
			out = append(out, s)
		}
		return out, nil
	case map[string]any:
		out := make([]string, 0, len(v))
		for id := range v {
			out = append(out, id)
		}
		slices.Sort(out)
		return out, nil
	default:
		return nil, errors.New("expected a list or table of package ids")
	}
}

func dependencies(kind descriptor.DependencyKind, value any) ([]descriptor.Dependency, error) {
	table, ok := value.(map[string]any)
	if !ok {
		return nil, errors.New("expected a table of package ids to version ranges")
	}
	targets := make([]string, 0, len(table))
	for id := range table {
		targets = append(targets, id)
	}
	slices.Sort(targets)

	out := make([]descriptor.Dependency, 0, len(targets))
	for _, id := range targets {
		var ranges []string
		switch v := table[id].(type) {
		case string:
			ranges = []string{v}
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%s: ranges must be strings", id)
				}
				ranges = append(ranges, s)
			}
		default:
			return nil, fmt.Errorf("%s: expected a range string or list", id)
		}
		rng, err := semver.ParseRanges(ranges)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		out = append(out, descriptor.Dependency{Kind: kind, Target: id, Range: rng})
	}
	return out, nil
}

// Apply returns d with the overrides for its id applied.
func (o Overrides) Apply(d *descriptor.Descriptor) *descriptor.Descriptor {
	po, ok := o[d.ID]
	if !ok {
		return d
	}

	deps := slices.Clone(d.Dependencies)
	for kind, replacement := range po.Replace {
		deps = slices.DeleteFunc(deps, func(dep descriptor.Dependency) bool { return dep.Kind == kind })
		deps = append(deps, replacement...)
	}
	for _, add := range po.Add {
		deps = slices.DeleteFunc(deps, func(dep descriptor.Dependency) bool {
			return dep.Kind == add.Kind && dep.Target == add.Target
		})
		deps = append(deps, add)
	}
	for kind, targets := range po.Remove {
		deps = slices.DeleteFunc(deps, func(dep descriptor.Dependency) bool {
			return dep.Kind == kind && slices.Contains(targets, dep.Target)
		})
	}
	return d.WithDependencies(deps)
}
