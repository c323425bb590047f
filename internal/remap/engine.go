// SPDX-License-Identifier: MPL-2.0

package remap

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/crossmod/crossmod/internal/classfile"
	"github.com/crossmod/crossmod/internal/classpath"
	"github.com/crossmod/crossmod/internal/mapping"

	"github.com/charmbracelet/log"
)

const (
	lambdaMetafactoryOwner = "java/lang/invoke/LambdaMetafactory"
	remapElement           = "remap"
)

// ErrRewrite is the sentinel error wrapped by UnitError.
var ErrRewrite = errors.New("class rewrite failed")

type (
	// Unit is one class file queued for rewriting together with the synthetic
	// ancestors its weaving directives name.
	Unit struct {
		Name      string
		Data      []byte
		Synthetic []string

		class *classfile.ClassFile
	}

	// Rewritten is the host form of a Unit.
	Rewritten struct {
		// Name is the host internal name.
		Name      string
		Data      []byte
		Synthetic []string
		Stats     Stats
	}

	// Stats counts what a rewrite changed.
	Stats struct {
		Classes  int `yaml:"classes"`
		Members  int `yaml:"members"`
		Strings  int `yaml:"strings"`
		Literals int `yaml:"literals"`
		// Warnings lists literals left unchanged because they could not be read.
		Warnings []string `yaml:"warnings,omitempty"`
	}

	// UnitError reports a class that could not be rewritten.
	UnitError struct {
		Class string
		Err   error
	}

	// Engine rewrites guest classes into host names. It is safe for concurrent use.
	Engine struct {
		remapper *Remapper
		values   *ValueRewriter
		infos    *InfoProvider
		logger   *log.Logger
	}

	// rewrite holds the state of one class rewrite.
	rewrite struct {
		e     *Engine
		cf    *classfile.ClassFile
		orig  *classfile.Pool
		self  string
		stats Stats
	}
)

// Error implements the error interface.
func (e *UnitError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("rewrite class: %v", e.Err)
	}
	return fmt.Sprintf("rewrite class %s: %v", e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnitError) Unwrap() error { return e.Err }

// Is reports ErrRewrite so callers can match any rewrite failure.
func (e *UnitError) Is(target error) bool { return target == ErrRewrite }

// Add folds o into s.
func (s *Stats) Add(o Stats) {
	s.Classes += o.Classes
	s.Members += o.Members
	s.Strings += o.Strings
	s.Literals += o.Literals
	s.Warnings = append(s.Warnings, o.Warnings...)
}

// NewEngine creates an engine for one run. classes must serve host classes
// under host names and the guest classes of the batch under guest names; it
// feeds the hierarchy lookups.
func NewEngine(index *mapping.Index, classes classpath.Provider, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	infos := NewInfoProvider(index, classes, logger)
	r := NewRemapper(index, infos)
	return &Engine{remapper: r, values: NewValueRewriter(r), infos: infos, logger: logger}
}

// Remapper returns the name remapper of the engine.
func (e *Engine) Remapper() *Remapper { return e.remapper }

// Values returns the literal value rewriter of the engine.
func (e *Engine) Values() *ValueRewriter { return e.values }

// Infos returns the class info provider of the engine.
func (e *Engine) Infos() *InfoProvider { return e.infos }

// NewUnit parses a guest class and detects its synthetic ancestors.
func (e *Engine) NewUnit(data []byte) (*Unit, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, &UnitError{Err: err}
	}
	name, err := cf.Name()
	if err != nil {
		return nil, &UnitError{Err: err}
	}
	targets, err := SyntheticTargets(cf, name)
	if err != nil {
		return nil, &UnitError{Class: name, Err: err}
	}
	return &Unit{Name: name, Data: data, Synthetic: targets, class: cf}, nil
}

// Rewrite maps a unit into host names.
func (e *Engine) Rewrite(u *Unit) (*Rewritten, error) {
	cf := u.class
	if cf == nil {
		parsed, err := classfile.Parse(u.Data)
		if err != nil {
			return nil, &UnitError{Class: u.Name, Err: err}
		}
		cf = parsed
	}
	// The parsed form is consumed by the rewrite.
	u.class = nil

	rw := &rewrite{e: e, cf: cf, orig: cf.Pool.Clone(), self: u.Name}
	if err := rw.run(); err != nil {
		return nil, &UnitError{Class: u.Name, Err: err}
	}

	out := &Rewritten{
		Name:  e.remapper.Class(u.Name),
		Data:  cf.Bytes(),
		Stats: rw.stats,
	}
	for _, target := range u.Synthetic {
		out.Synthetic = append(out.Synthetic, e.remapper.Class(target))
	}
	for _, w := range rw.stats.Warnings {
		e.logger.Warn("left literal unchanged", "class", u.Name, "detail", w)
	}
	e.logger.Debug("rewrote class", "class", u.Name, "host", out.Name,
		"members", rw.stats.Members, "strings", rw.stats.Strings, "literals", rw.stats.Literals)
	return out, nil
}

func (rw *rewrite) run() error {
	if err := rw.pool(); err != nil {
		return err
	}
	if err := rw.stringConstants(); err != nil {
		return err
	}
	for _, f := range rw.cf.Fields {
		if err := rw.field(f); err != nil {
			return err
		}
	}
	for _, m := range rw.cf.Methods {
		if err := rw.method(m); err != nil {
			return err
		}
	}
	attrs, err := rw.attributes(rw.cf.Attributes, attrContext{})
	if err != nil {
		return err
	}
	rw.cf.Attributes = attrs
	return nil
}

func (rw *rewrite) utf8(s string) (uint16, error) { return rw.cf.Pool.AddUtf8(s) }

// pool rewrites the structural constants in place. Entries keep their index
// and tag; changed names and descriptors point at new Utf8 and NameAndType
// entries, since the old ones may be shared with other users.
func (rw *rewrite) pool() error {
	r := rw.e.remapper
	p := rw.cf.Pool
	return rw.orig.Each(func(i uint16, c classfile.Constant) error {
		switch c.Tag {
		case classfile.TagClass:
			name, err := rw.orig.Utf8(c.A)
			if err != nil {
				return err
			}
			if mapped := r.Class(name); mapped != name {
				if c.A, err = rw.utf8(mapped); err != nil {
					return err
				}
				rw.stats.Classes++
				return p.Set(i, c)
			}

		case classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref:
			owner, name, desc, err := rw.orig.MemberRef(i)
			if err != nil {
				return err
			}
			mappedName := name
			if !strings.HasPrefix(owner, "[") {
				if c.Tag == classfile.TagFieldref {
					mappedName = r.Field(owner, name, desc)
				} else {
					mappedName = r.Method(owner, name, desc)
				}
			}
			mappedDesc := r.Desc(desc)
			if mappedName != name || mappedDesc != desc {
				if c.B, err = p.AddNameAndType(mappedName, mappedDesc); err != nil {
					return err
				}
				if mappedName != name {
					rw.stats.Members++
				}
				return p.Set(i, c)
			}

		case classfile.TagInvokeDynamic:
			name, desc, err := rw.orig.NameAndType(c.B)
			if err != nil {
				return err
			}
			mappedName := name
			if samDesc, ok := rw.lambdaSAM(c.A); ok {
				mappedName = r.LambdaName(name, desc, samDesc)
			}
			mappedDesc := r.Desc(desc)
			if mappedName != name || mappedDesc != desc {
				if c.B, err = p.AddNameAndType(mappedName, mappedDesc); err != nil {
					return err
				}
				return p.Set(i, c)
			}

		case classfile.TagDynamic:
			name, desc, err := rw.orig.NameAndType(c.B)
			if err != nil {
				return err
			}
			if mapped := r.Desc(desc); mapped != desc {
				if c.B, err = p.AddNameAndType(name, mapped); err != nil {
					return err
				}
				return p.Set(i, c)
			}

		case classfile.TagMethodType:
			desc, err := rw.orig.Utf8(c.A)
			if err != nil {
				return err
			}
			if mapped := r.Desc(desc); mapped != desc {
				if c.A, err = rw.utf8(mapped); err != nil {
					return err
				}
				return p.Set(i, c)
			}
		}
		return nil
	})
}

// lambdaSAM returns the erased functional descriptor of a call site when its
// bootstrap method is LambdaMetafactory.
func (rw *rewrite) lambdaSAM(bsmIndex uint16) (string, bool) {
	attr := rw.cf.FindAttribute(rw.cf.Attributes, classfile.AttrBootstrapMethods)
	if attr == nil {
		return "", false
	}
	bsms, err := classfile.ParseBootstrapMethods(attr.Data)
	if err != nil || int(bsmIndex) >= len(bsms) {
		return "", false
	}
	bsm := bsms[bsmIndex]
	handle, err := rw.orig.Get(bsm.Handle)
	if err != nil || handle.Tag != classfile.TagMethodHandle {
		return "", false
	}
	owner, _, _, err := rw.orig.MemberRef(handle.A)
	if err != nil || owner != lambdaMetafactoryOwner || len(bsm.Arguments) == 0 {
		return "", false
	}
	samType, err := rw.orig.Get(bsm.Arguments[0])
	if err != nil || samType.Tag != classfile.TagMethodType {
		return "", false
	}
	desc, err := rw.orig.Utf8(samType.A)
	if err != nil {
		return "", false
	}
	return desc, true
}

// stringConstants sends every string constant through the value function. String
// constants are only reachable from ldc, ConstantValue and bootstrap arguments.
func (rw *rewrite) stringConstants() error {
	p := rw.cf.Pool
	return rw.orig.Each(func(i uint16, c classfile.Constant) error {
		if c.Tag != classfile.TagString {
			return nil
		}
		s, err := rw.orig.Utf8(c.A)
		if err != nil {
			return err
		}
		mapped, mapErr := rw.e.values.Map(s)
		if mapErr != nil {
			rw.warn(attrContext{}, fmt.Sprintf("string constant %q: %v", s, mapErr))
			return nil
		}
		if mapped == s {
			return nil
		}
		if c.A, err = rw.utf8(mapped); err != nil {
			return err
		}
		rw.stats.Strings++
		return p.Set(i, c)
	})
}

func (rw *rewrite) field(f *classfile.Member) error {
	name, desc, err := rw.memberName(f)
	if err != nil {
		return err
	}
	if err := rw.renameMember(f, name, desc, rw.e.remapper.Field(rw.self, name, desc)); err != nil {
		return err
	}
	f.Attributes, err = rw.attributes(f.Attributes, attrContext{})
	return err
}

func (rw *rewrite) method(m *classfile.Member) error {
	name, desc, err := rw.memberName(m)
	if err != nil {
		return err
	}
	if err := rw.renameMember(m, name, desc, rw.e.remapper.Method(rw.self, name, desc)); err != nil {
		return err
	}
	literals, err := rw.directiveMode(m)
	if err != nil {
		return err
	}
	m.Attributes, err = rw.attributes(m.Attributes, attrContext{literals: literals, member: name + desc})
	return err
}

func (rw *rewrite) memberName(m *classfile.Member) (name, desc string, err error) {
	if name, err = rw.orig.Utf8(m.Name); err != nil {
		return "", "", err
	}
	desc, err = rw.orig.Utf8(m.Desc)
	return name, desc, err
}

func (rw *rewrite) renameMember(m *classfile.Member, name, desc, mappedName string) error {
	var err error
	if mappedName != name {
		if m.Name, err = rw.utf8(mappedName); err != nil {
			return err
		}
		rw.stats.Members++
	}
	if mappedDesc := rw.e.remapper.Desc(desc); mappedDesc != desc {
		if m.Desc, err = rw.utf8(mappedDesc); err != nil {
			return err
		}
	}
	return nil
}

// directiveMode reports whether a visible annotation of the method sets
// remap = false, in which case the literals of all its visible annotations are
// rewritten by hand.
func (rw *rewrite) directiveMode(m *classfile.Member) (bool, error) {
	attr := rw.cf.FindAttribute(m.Attributes, classfile.AttrRuntimeVisibleAnnotations)
	if attr == nil {
		return false, nil
	}
	anns, err := classfile.ParseAnnotations(attr.Data)
	if err != nil {
		return false, err
	}
	for _, ann := range anns {
		if remap, ok := ann.Element(rw.orig, remapElement).Bool(rw.orig); ok && !remap {
			return true, nil
		}
	}
	return false, nil
}
