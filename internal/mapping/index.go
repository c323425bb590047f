// SPDX-License-Identifier: MPL-2.0

package mapping

import (
	"maps"
	"slices"
	"strings"
)

type (
	// Index is an owner-qualified symbol table in one direction.
	Index struct {
		namespaces Namespaces
		classes    map[string]string
		// fields are keyed by "owner.name".
		fields map[string]string
		// methods are keyed by "owner.name" + desc.
		methods map[string]string
		// owners is the set of classes with at least one member entry.
		owners map[string]struct{}
		flat   *FlatIndex
	}

	// FlatIndex is the name-only view of an Index.
	FlatIndex struct {
		classes   map[string]string
		fields    map[string]string
		methods   map[string]string
		ambiguous []string
	}
)

// New indexes a table in the guest-to-host direction.
func New(t *Table, source string) (*Index, error) {
	if err := t.Validate(source); err != nil {
		return nil, err
	}

	ix := &Index{
		namespaces: t.Namespaces,
		classes:    make(map[string]string, len(t.Classes)),
		fields:     make(map[string]string, len(t.Fields)),
		methods:    make(map[string]string, len(t.Methods)),
		owners:     make(map[string]struct{}),
	}
	maps.Copy(ix.classes, t.Classes)
	for _, f := range t.Fields {
		ix.fields[fieldKey(f.Owner, f.Name)] = f.Target
		ix.owners[f.Owner] = struct{}{}
	}
	for _, m := range t.Methods {
		ix.methods[methodKey(m.Owner, m.Name, m.Desc)] = m.Target
		ix.owners[m.Owner] = struct{}{}
	}
	ix.flat = newFlatIndex(ix.classes, t.Fields, t.Methods)
	return ix, nil
}

// Reverse derives the host-to-guest index. Member keys are translated into host
// names so that host class files can be read back in guest terms.
func (ix *Index) Reverse() *Index {
	t := &Table{
		Namespaces: Namespaces{Guest: ix.namespaces.Host, Host: ix.namespaces.Guest},
		Classes:    make(map[string]string, len(ix.classes)),
	}
	for guest, host := range ix.classes {
		t.Classes[host] = guest
	}
	for _, key := range slices.Sorted(maps.Keys(ix.fields)) {
		owner, name := splitFieldKey(key)
		t.Fields = append(t.Fields, Member{
			Owner:  ix.MapClass(owner),
			Name:   ix.fields[key],
			Target: name,
		})
	}
	for _, key := range slices.Sorted(maps.Keys(ix.methods)) {
		owner, name, desc := splitMethodKey(key)
		t.Methods = append(t.Methods, Member{
			Owner:  ix.MapClass(owner),
			Name:   ix.methods[key],
			Desc:   ix.MapDesc(desc),
			Target: name,
		})
	}
	// The forward table was validated already; a reverse derived from it is valid too.
	rev, _ := New(t, "reverse")
	return rev
}

// Namespaces returns the namespace names of the index direction.
func (ix *Index) Namespaces() Namespaces { return ix.namespaces }

// Flat returns the name-only view.
func (ix *Index) Flat() *FlatIndex { return ix.flat }

// Class returns the mapped internal class name, if the table has one. Nested
// classes without an entry of their own follow their outer class.
func (ix *Index) Class(name string) (string, bool) {
	return lookupClass(ix.classes, name)
}

// MapClass returns the mapped internal class name, or name when unmapped.
func (ix *Index) MapClass(name string) string {
	if mapped, ok := ix.Class(name); ok {
		return mapped
	}
	return name
}

// Field returns the mapped name of owner.name.
func (ix *Index) Field(owner, name string) (string, bool) {
	v, ok := ix.fields[fieldKey(owner, name)]
	return v, ok
}

// Method returns the mapped name of owner.name with the given guest descriptor.
func (ix *Index) Method(owner, name, desc string) (string, bool) {
	v, ok := ix.methods[methodKey(owner, name, desc)]
	return v, ok
}

// DeclaresMembers reports whether any member entry is owned by the class.
func (ix *Index) DeclaresMembers(owner string) bool {
	_, ok := ix.owners[owner]
	return ok
}

// MapDesc maps every class reference of a field or method descriptor.
func (ix *Index) MapDesc(desc string) string {
	return MapDescriptor(desc, ix.MapClass)
}

// Size returns the number of class, field and method entries.
func (ix *Index) Size() (classes, fields, methods int) {
	return len(ix.classes), len(ix.fields), len(ix.methods)
}

func newFlatIndex(classes map[string]string, fields, methods []Member) *FlatIndex {
	f := &FlatIndex{classes: classes}
	var ambiguousFields, ambiguousMethods []string
	f.fields, ambiguousFields = flatten(fields)
	f.methods, ambiguousMethods = flatten(methods)
	f.ambiguous = append(ambiguousFields, ambiguousMethods...)
	slices.Sort(f.ambiguous)
	return f
}

// flatten keeps a name only if every entry carrying it agrees on the target.
func flatten(members []Member) (flat map[string]string, ambiguous []string) {
	flat = make(map[string]string, len(members))
	conflicted := make(map[string]struct{})
	for _, m := range members {
		if _, bad := conflicted[m.Name]; bad {
			continue
		}
		if prev, ok := flat[m.Name]; ok && prev != m.Target {
			delete(flat, m.Name)
			conflicted[m.Name] = struct{}{}
			ambiguous = append(ambiguous, m.Name)
			continue
		}
		flat[m.Name] = m.Target
	}
	return flat, ambiguous
}

// Class returns the mapped class name.
func (f *FlatIndex) Class(name string) (string, bool) {
	return lookupClass(f.classes, name)
}

// Field returns the mapped field name regardless of owner.
func (f *FlatIndex) Field(name string) (string, bool) {
	v, ok := f.fields[name]
	return v, ok
}

// Method returns the mapped method name regardless of owner and descriptor.
func (f *FlatIndex) Method(name string) (string, bool) {
	v, ok := f.methods[name]
	return v, ok
}

// Ambiguous returns the member names left out of the flat view because owners
// disagree on their target.
func (f *FlatIndex) Ambiguous() []string {
	return slices.Clone(f.ambiguous)
}

func lookupClass(classes map[string]string, name string) (string, bool) {
	if mapped, ok := classes[name]; ok {
		return mapped, true
	}
	i := strings.LastIndexByte(name, '$')
	if i <= 0 {
		return "", false
	}
	outer, ok := lookupClass(classes, name[:i])
	if !ok {
		return "", false
	}
	return outer + name[i:], true
}

func fieldKey(owner, name string) string { return owner + "." + name }

func methodKey(owner, name, desc string) string { return owner + "." + name + desc }

func splitFieldKey(key string) (owner, name string) {
	i := strings.LastIndexByte(key, '.')
	return key[:i], key[i+1:]
}

func splitMethodKey(key string) (owner, name, desc string) {
	p := strings.IndexByte(key, '(')
	owner, name = splitFieldKey(key[:p])
	return owner, name, key[p:]
}
