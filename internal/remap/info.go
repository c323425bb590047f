// SPDX-License-Identifier: MPL-2.0

package remap

import (
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/crossmod/crossmod/internal/classfile"
	"github.com/crossmod/crossmod/internal/classpath"
	"github.com/crossmod/crossmod/internal/mapping"

	"github.com/charmbracelet/log"
)

// Ancestry kinds.
const (
	// AncestryAuthored means the interface list is exactly what the class declares.
	AncestryAuthored AncestryKind = iota
	// AncestryAugmented means the declared interfaces are followed by synthetic
	// targets named by a weaving directive.
	AncestryAugmented
)

type (
	// AncestryKind tags an Ancestry.
	AncestryKind uint8

	// Ancestry is the interface list of a class, either as authored or
	// augmented with synthetic targets.
	Ancestry struct {
		kind      AncestryKind
		authored  []string
		synthetic []string
	}

	// ClassInfo is the hierarchy view of a class in guest names.
	ClassInfo struct {
		Name     string
		Access   uint16
		Super    string
		Ancestry Ancestry
	}

	// InfoProvider derives ClassInfo for guest names from a classpath holding
	// host and guest classes. Results are memoized for the life of the provider;
	// concurrent lookups of the same name keep the first stored result.
	InfoProvider struct {
		forward  *mapping.Index
		reverse  *mapping.Index
		classes  classpath.Provider
		memo     sync.Map // string -> infoEntry
		logger   *log.Logger
		computed atomic.Int64
	}

	infoEntry struct {
		info *ClassInfo
	}
)

// NewAncestry builds an Ancestry. The result is authored unless synthetic
// holds at least one target.
func NewAncestry(authored, synthetic []string) Ancestry {
	if len(synthetic) == 0 {
		return Ancestry{kind: AncestryAuthored, authored: authored}
	}
	return Ancestry{kind: AncestryAugmented, authored: authored, synthetic: synthetic}
}

// Kind reports whether synthetic targets are present.
func (a Ancestry) Kind() AncestryKind { return a.kind }

// Authored returns the declared interfaces.
func (a Ancestry) Authored() []string { return slices.Clone(a.authored) }

// Synthetic returns the synthetic targets in declaration order.
func (a Ancestry) Synthetic() []string { return slices.Clone(a.synthetic) }

// Interfaces returns the reported interface list: authored interfaces followed
// by synthetic targets.
func (a Ancestry) Interfaces() []string {
	return append(slices.Clone(a.authored), a.synthetic...)
}

// Interfaces returns the reported interface list.
func (c *ClassInfo) Interfaces() []string { return c.Ancestry.Interfaces() }

// Carrier reports whether the class carries synthetic ancestors.
func (c *ClassInfo) Carrier() bool { return c.Ancestry.Kind() == AncestryAugmented }

// NewInfoProvider creates a provider. forward maps guest to host names; classes
// serves host classes under host names and guest classes under guest names.
func NewInfoProvider(forward *mapping.Index, classes classpath.Provider, logger *log.Logger) *InfoProvider {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &InfoProvider{forward: forward, reverse: forward.Reverse(), classes: classes, logger: logger}
}

// Lookup returns the class info of a guest class name, or nil when the class
// is not on the classpath or cannot be parsed.
func (p *InfoProvider) Lookup(name string) *ClassInfo {
	if v, ok := p.memo.Load(name); ok {
		return v.(infoEntry).info
	}
	v, _ := p.memo.LoadOrStore(name, infoEntry{info: p.compute(name)})
	return v.(infoEntry).info
}

// Computed returns how many class infos were derived, memo hits excluded.
func (p *InfoProvider) Computed() int64 { return p.computed.Load() }

func (p *InfoProvider) compute(name string) *ClassInfo {
	if p.classes == nil || strings.HasPrefix(name, "[") {
		return nil
	}
	p.computed.Add(1)

	data, ok, err := p.classes.ClassBytes(p.forward.MapClass(name))
	if err == nil && !ok {
		data, ok, err = p.classes.ClassBytes(name)
	}
	if err != nil {
		p.logger.Debug("class lookup failed", "class", name, "err", err)
		return nil
	}
	if !ok {
		return nil
	}

	cf, err := classfile.Parse(data)
	if err != nil {
		p.logger.Debug("unreadable class on classpath", "class", name, "err", err)
		return nil
	}
	info, err := p.derive(name, cf)
	if err != nil {
		p.logger.Debug("unreadable class on classpath", "class", name, "err", err)
		return nil
	}
	return info
}

// derive reads the hierarchy of cf back into guest names.
func (p *InfoProvider) derive(name string, cf *classfile.ClassFile) (*ClassInfo, error) {
	super, err := cf.SuperName()
	if err != nil {
		return nil, err
	}
	ifaces, err := cf.InterfaceNames()
	if err != nil {
		return nil, err
	}
	for i, iface := range ifaces {
		ifaces[i] = p.reverse.MapClass(iface)
	}
	targets, err := SyntheticTargets(cf, name)
	if err != nil {
		return nil, err
	}

	info := &ClassInfo{Name: name, Access: cf.Access, Ancestry: NewAncestry(ifaces, targets)}
	if super != "" {
		info.Super = p.reverse.MapClass(super)
	}
	return info, nil
}

// SyntheticTargets scans the type level annotations of cf and returns the class
// literals listed in array elements named "value", in declaration order and
// without self.
func SyntheticTargets(cf *classfile.ClassFile, self string) ([]string, error) {
	var targets []string
	for _, attrName := range []string{classfile.AttrRuntimeVisibleAnnotations, classfile.AttrRuntimeInvisibleAnnotations} {
		attr := cf.FindAttribute(cf.Attributes, attrName)
		if attr == nil {
			continue
		}
		anns, err := classfile.ParseAnnotations(attr.Data)
		if err != nil {
			return nil, err
		}
		for _, ann := range anns {
			v := ann.Element(cf.Pool, "value")
			if v == nil || v.Tag != '[' {
				continue
			}
			for _, item := range v.Values {
				if item.Tag != 'c' {
					continue
				}
				desc, err := cf.Pool.Utf8(item.Class)
				if err != nil {
					return nil, err
				}
				target := internalName(desc)
				if target == "" || target == self || slices.Contains(targets, target) {
					continue
				}
				targets = append(targets, target)
			}
		}
	}
	return targets, nil
}

// internalName returns the internal name of an object type descriptor, the
// descriptor itself for arrays, and "" for primitives.
func internalName(desc string) string {
	switch {
	case len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';':
		return desc[1 : len(desc)-1]
	case strings.HasPrefix(desc, "["):
		return desc
	default:
		return ""
	}
}
