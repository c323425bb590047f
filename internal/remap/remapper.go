// SPDX-License-Identifier: MPL-2.0

package remap

import (
	"strings"
	"unicode"

	"github.com/crossmod/crossmod/internal/mapping"
)

const (
	constructorName       = "<init>"
	staticInitializerName = "<clinit>"
	lambdaPrefix          = "lambda$"
)

// Remapper maps guest names and descriptors to host names. It is safe for
// concurrent use.
type Remapper struct {
	index *mapping.Index
	flat  *mapping.FlatIndex
	infos *InfoProvider
}

// NewRemapper creates a Remapper. infos may be nil, in which case no hierarchy
// facts are available and member lookups only consult the owner itself.
func NewRemapper(index *mapping.Index, infos *InfoProvider) *Remapper {
	return &Remapper{index: index, flat: index.Flat(), infos: infos}
}

func (r *Remapper) info(name string) *ClassInfo {
	if r.infos == nil {
		return nil
	}
	return r.infos.Lookup(name)
}

// Class maps an internal class name. Array descriptors used as class names are
// mapped element-wise.
func (r *Remapper) Class(name string) string {
	if strings.HasPrefix(name, "[") {
		return r.Desc(name)
	}
	if mapped, ok := r.flat.Class(name); ok {
		return mapped
	}
	return name
}

// Desc maps a field or method descriptor.
func (r *Remapper) Desc(desc string) string {
	return mapping.MapDescriptor(desc, r.Class)
}

// Package returns name unchanged. Packages are not part of the translation.
func (r *Remapper) Package(name string) string { return name }

// Field maps a field name. The flat index wins; for a carrier of synthetic
// ancestors each target is tried in order and the first result that differs
// from name is taken; otherwise the owner's hierarchy is searched.
func (r *Remapper) Field(owner, name, desc string) string {
	if mapped, ok := r.flat.Field(name); ok {
		return mapped
	}
	if info := r.info(owner); info != nil && info.Carrier() {
		for _, target := range info.Ancestry.Synthetic() {
			if mapped := r.hierarchyField(target, name); mapped != name {
				return mapped
			}
		}
	}
	return r.hierarchyField(owner, name)
}

// Method maps a method name. Owners without class info go straight to the
// hierarchy search. For a carrier of synthetic ancestors, a name with a single
// '$' that is not a lambda is treated as "prefix$name" and only the suffix is
// mapped. Otherwise the flat index wins before the hierarchy search.
func (r *Remapper) Method(owner, name, desc string) string {
	if name == constructorName || name == staticInitializerName {
		return name
	}
	info := r.info(owner)
	if info == nil {
		return r.hierarchyMethod(owner, name, desc)
	}
	if info.Carrier() && !strings.HasPrefix(name, lambdaPrefix) {
		if i := strings.IndexByte(name, '$'); i >= 0 && strings.LastIndexByte(name, '$') == i {
			suffix := name[i+1:]
			mapped, ok := r.flat.Method(suffix)
			if !ok {
				mapped = r.Method(owner, suffix, desc)
			}
			return name[:i+1] + mapped
		}
	}
	if mapped, ok := r.flat.Method(name); ok {
		return mapped
	}
	return r.hierarchyMethod(owner, name, desc)
}

// LambdaName maps the name of a LambdaMetafactory call site: the implemented
// method of the functional interface returned by factoryDesc, with samDesc as
// its erased descriptor.
func (r *Remapper) LambdaName(name, factoryDesc, samDesc string) string {
	ret := returnType(factoryDesc)
	owner := internalName(ret)
	if owner == "" || strings.HasPrefix(owner, "[") {
		return name
	}
	return r.Method(owner, name, samDesc)
}

// InnerName maps the simple name of an inner class entry, following the
// mapped full name when it still has a '$' separator.
func (r *Remapper) InnerName(inner, simple string) string {
	mapped := r.Class(inner)
	i := strings.LastIndexByte(mapped, '$')
	if i < 0 || mapped == inner {
		return simple
	}
	j := i + 1
	for j < len(mapped) && unicode.IsDigit(rune(mapped[j])) {
		j++
	}
	return mapped[j:]
}

func (r *Remapper) hierarchyField(owner, name string) string {
	if mapped, ok := r.walk(owner, func(cls string) (string, bool) { return r.index.Field(cls, name) }); ok {
		return mapped
	}
	return name
}

func (r *Remapper) hierarchyMethod(owner, name, desc string) string {
	if mapped, ok := r.walk(owner, func(cls string) (string, bool) { return r.index.Method(cls, name, desc) }); ok {
		return mapped
	}
	return name
}

// walk visits owner and its ancestors breadth first, superclass before
// interfaces, and returns the first hit of fn.
func (r *Remapper) walk(owner string, fn func(cls string) (string, bool)) (string, bool) {
	queue := []string{owner}
	seen := make(map[string]struct{})
	for len(queue) > 0 {
		cls := queue[0]
		queue = queue[1:]
		if _, ok := seen[cls]; ok {
			continue
		}
		seen[cls] = struct{}{}
		if v, ok := fn(cls); ok {
			return v, true
		}
		info := r.info(cls)
		if info == nil {
			continue
		}
		if info.Super != "" {
			queue = append(queue, info.Super)
		}
		queue = append(queue, info.Interfaces()...)
	}
	return "", false
}

func returnType(methodDesc string) string {
	i := strings.LastIndexByte(methodDesc, ')')
	if i < 0 {
		return ""
	}
	return methodDesc[i+1:]
}
