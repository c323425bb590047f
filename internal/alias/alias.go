// SPDX-License-Identifier: MPL-2.0

package alias

import (
	"sync"

	"github.com/crossmod/crossmod/pkg/descriptor"
	"github.com/crossmod/crossmod/pkg/semver"

	"golang.org/x/exp/slices"
)

type (
	// Table maps a package id to the alias ids it also answers to.
	Table map[string][]string

	// Registry is the run-wide set of registered aliases. The zero value is empty
	// and ready to use.
	Registry struct {
		mu sync.RWMutex
		// providers maps an alias id to the ids that answer to it.
		providers map[string][]string
		table     Table
	}
)

// Merge returns a new table holding the entries of t and other. Alias lists of
// ids present in both are concatenated without duplicates.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	for _, src := range []Table{t, other} {
		for id, aliases := range src {
			for _, a := range aliases {
				if !slices.Contains(out[id], a) {
					out[id] = append(out[id], a)
				}
			}
			if _, ok := out[id]; !ok {
				out[id] = nil
			}
		}
	}
	return out
}

// Contains reports whether id appears on either side of the table.
func (t Table) Contains(id string) bool {
	if _, ok := t[id]; ok {
		return true
	}
	for _, aliases := range t {
		if slices.Contains(aliases, id) {
			return true
		}
	}
	return false
}

// IDs returns every id appearing on either side of the table, sorted.
func (t Table) IDs() []string {
	set := make(map[string]struct{})
	for id, aliases := range t {
		set[id] = struct{}{}
		for _, a := range aliases {
			set[a] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Normalize relaxes the constraints of d that target an aliased id: conflicts are
// dropped and every other kind accepts any version. d itself is not modified; it
// is returned as-is when nothing changes.
func Normalize(d *descriptor.Descriptor, t Table) *descriptor.Descriptor {
	if len(t) == 0 {
		return d
	}

	changed := false
	deps := make([]descriptor.Dependency, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if !t.Contains(dep.Target) {
			deps = append(deps, dep)
			continue
		}
		changed = true
		if dep.Kind == descriptor.KindConflicts {
			continue
		}
		dep.Range = semver.Any()
		deps = append(deps, dep)
	}

	if !changed {
		return d
	}
	return d.WithDependencies(deps)
}

// Register adds every entry of t to the registry.
func (r *Registry) Register(t Table) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.providers == nil {
		r.providers = make(map[string][]string)
		r.table = make(Table)
	}
	r.table = r.table.Merge(t)
	for id, aliases := range t {
		for _, a := range aliases {
			if !slices.Contains(r.providers[a], id) {
				r.providers[a] = append(r.providers[a], id)
			}
		}
	}
}

// Providers returns the ids that answer to the alias id, in registration order.
func (r *Registry) Providers(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.providers[id])
}

// Aliased reports whether id appears on either side of a registered alias.
func (r *Registry) Aliased(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Contains(id)
}

// Table returns a copy of the registered table.
func (r *Registry) Table() Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Merge(nil)
}
