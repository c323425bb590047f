// SPDX-License-Identifier: MPL-2.0

package classfile

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"math"
)

// Constant pool tags.
const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

// Method handle reference kinds.
const (
	RefGetField         uint8 = 1
	RefGetStatic        uint8 = 2
	RefPutField         uint8 = 3
	RefPutStatic        uint8 = 4
	RefInvokeVirtual    uint8 = 5
	RefInvokeStatic     uint8 = 6
	RefInvokeSpecial    uint8 = 7
	RefNewInvokeSpecial uint8 = 8
	RefInvokeInterface  uint8 = 9
)

// ErrPoolOverflow is returned when adding an entry would exceed the pool limit.
var ErrPoolOverflow = errors.New("constant pool overflow")

type (
	// Tag identifies the kind of a constant pool entry.
	Tag uint8

	// Constant is one constant pool entry. The meaning of the index fields
	// depends on Tag:
	//
	//	Class, String, MethodType, Module, Package: A is the Utf8 index
	//	Fieldref, Methodref, InterfaceMethodref:   A is the Class, B the NameAndType
	//	NameAndType:                               A is the name, B the descriptor
	//	MethodHandle:                              Kind is the reference kind, A the member ref
	//	Dynamic, InvokeDynamic:                    A is the bootstrap method, B the NameAndType
	Constant struct {
		Tag   Tag
		Value string
		// Bits holds Integer and Float (low 32 bits), Long and Double values.
		Bits uint64
		A, B uint16
		Kind uint8
	}

	// Pool is a constant pool. Index 0 is unused and Long and Double entries
	// occupy two slots, as in the class file.
	Pool struct {
		entries []Constant
		utf8    map[string]uint16
		natIdx  map[[2]uint16]uint16
		// verbatim holds the original bytes of Utf8 entries whose encoding is
		// not the one encodeMUTF8 produces, such as overlong forms.
		verbatim map[uint16]rawUtf8
	}

	rawUtf8 struct {
		value string
		bytes []byte
	}
)

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{entries: make([]Constant, 1)}
}

// Count returns the constant_pool_count value: the number of slots plus one.
func (p *Pool) Count() int { return len(p.entries) }

// Get returns the entry at index i.
func (p *Pool) Get(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return Constant{}, &FormatError{Reason: fmt.Sprintf("invalid constant pool index %d", i)}
	}
	return p.entries[i], nil
}

// Set replaces the entry at index i. The tag must not change.
func (p *Pool) Set(i uint16, c Constant) error {
	old, err := p.Get(i)
	if err != nil {
		return err
	}
	if old.Tag != c.Tag {
		return fmt.Errorf("cannot change constant %d from tag %d to %d", i, old.Tag, c.Tag)
	}
	p.entries[i] = c
	if c.Tag == TagUtf8 || c.Tag == TagNameAndType {
		p.utf8, p.natIdx = nil, nil
	}
	return nil
}

// Each calls fn for every used slot in index order.
func (p *Pool) Each(fn func(i uint16, c Constant) error) error {
	for i := 1; i < len(p.entries); i++ {
		if p.entries[i].Tag == 0 {
			continue
		}
		if err := fn(uint16(i), p.entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// Utf8 returns the string of a Utf8 entry.
func (p *Pool) Utf8(i uint16) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	if c.Tag != TagUtf8 {
		return "", &FormatError{Reason: fmt.Sprintf("constant %d is not Utf8 (tag %d)", i, c.Tag)}
	}
	return c.Value, nil
}

// ClassName returns the internal name referenced by a Class entry.
func (p *Pool) ClassName(i uint16) (string, error) {
	return p.indirect(i, TagClass)
}

// StringValue returns the value of a String entry.
func (p *Pool) StringValue(i uint16) (string, error) {
	return p.indirect(i, TagString)
}

func (p *Pool) indirect(i uint16, tag Tag) (string, error) {
	c, err := p.Get(i)
	if err != nil {
		return "", err
	}
	if c.Tag != tag {
		return "", &FormatError{Reason: fmt.Sprintf("constant %d has tag %d, want %d", i, c.Tag, tag)}
	}
	return p.Utf8(c.A)
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p *Pool) NameAndType(i uint16) (name, desc string, err error) {
	c, err := p.Get(i)
	if err != nil {
		return "", "", err
	}
	if c.Tag != TagNameAndType {
		return "", "", &FormatError{Reason: fmt.Sprintf("constant %d is not NameAndType", i)}
	}
	if name, err = p.Utf8(c.A); err != nil {
		return "", "", err
	}
	desc, err = p.Utf8(c.B)
	return name, desc, err
}

// MemberRef returns owner, name and descriptor of a field or method reference.
func (p *Pool) MemberRef(i uint16) (owner, name, desc string, err error) {
	c, err := p.Get(i)
	if err != nil {
		return "", "", "", err
	}
	switch c.Tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
	default:
		return "", "", "", &FormatError{Reason: fmt.Sprintf("constant %d is not a member reference", i)}
	}
	if owner, err = p.ClassName(c.A); err != nil {
		return "", "", "", err
	}
	name, desc, err = p.NameAndType(c.B)
	return owner, name, desc, err
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	c := &Pool{entries: append([]Constant(nil), p.entries...)}
	if len(p.verbatim) > 0 {
		c.verbatim = make(map[uint16]rawUtf8, len(p.verbatim))
		maps.Copy(c.verbatim, p.verbatim)
	}
	return c
}

func (p *Pool) add(c Constant) (uint16, error) {
	slots := 1
	if c.Tag == TagLong || c.Tag == TagDouble {
		slots = 2
	}
	if len(p.entries)+slots > math.MaxUint16 {
		return 0, ErrPoolOverflow
	}
	i := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if slots == 2 {
		p.entries = append(p.entries, Constant{})
	}
	return i, nil
}

func (p *Pool) buildIndex() {
	if p.utf8 != nil {
		return
	}
	p.utf8 = make(map[string]uint16)
	p.natIdx = make(map[[2]uint16]uint16)
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		switch c.Tag {
		case TagUtf8:
			if _, ok := p.utf8[c.Value]; !ok {
				p.utf8[c.Value] = uint16(i)
			}
		case TagNameAndType:
			key := [2]uint16{c.A, c.B}
			if _, ok := p.natIdx[key]; !ok {
				p.natIdx[key] = uint16(i)
			}
		}
	}
}

// AddUtf8 returns the index of a Utf8 entry holding s, adding one if needed.
func (p *Pool) AddUtf8(s string) (uint16, error) {
	p.buildIndex()
	if i, ok := p.utf8[s]; ok {
		return i, nil
	}
	if len(encodeMUTF8(s)) > math.MaxUint16 {
		return 0, fmt.Errorf("string constant of %d bytes is too long", len(s))
	}
	i, err := p.add(Constant{Tag: TagUtf8, Value: s})
	if err != nil {
		return 0, err
	}
	p.utf8[s] = i
	return i, nil
}

// AddNameAndType returns the index of a NameAndType entry, adding one if needed.
func (p *Pool) AddNameAndType(name, desc string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.AddUtf8(desc)
	if err != nil {
		return 0, err
	}
	key := [2]uint16{n, d}
	if i, ok := p.natIdx[key]; ok {
		if c := p.entries[i]; c.Tag == TagNameAndType && c.A == n && c.B == d {
			return i, nil
		}
	}
	i, err := p.add(Constant{Tag: TagNameAndType, A: n, B: d})
	if err != nil {
		return 0, err
	}
	p.natIdx[key] = i
	return i, nil
}

// AddClass appends a Class entry for the internal name.
func (p *Pool) AddClass(name string) (uint16, error) {
	return p.addIndirect(TagClass, name)
}

// AddString appends a String entry.
func (p *Pool) AddString(s string) (uint16, error) {
	return p.addIndirect(TagString, s)
}

// AddMethodType appends a MethodType entry.
func (p *Pool) AddMethodType(desc string) (uint16, error) {
	return p.addIndirect(TagMethodType, desc)
}

func (p *Pool) addIndirect(tag Tag, s string) (uint16, error) {
	u, err := p.AddUtf8(s)
	if err != nil {
		return 0, err
	}
	return p.add(Constant{Tag: tag, A: u})
}

// AddInteger appends an Integer entry.
func (p *Pool) AddInteger(v int32) (uint16, error) {
	return p.add(Constant{Tag: TagInteger, Bits: uint64(uint32(v))})
}

// AddMemberRef appends a Fieldref, Methodref or InterfaceMethodref entry.
func (p *Pool) AddMemberRef(tag Tag, owner, name, desc string) (uint16, error) {
	cls, err := p.AddClass(owner)
	if err != nil {
		return 0, err
	}
	nat, err := p.AddNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.add(Constant{Tag: tag, A: cls, B: nat})
}

// AddMethodHandle appends a MethodHandle entry.
func (p *Pool) AddMethodHandle(kind uint8, ref uint16) (uint16, error) {
	return p.add(Constant{Tag: TagMethodHandle, Kind: kind, A: ref})
}

// AddInvokeDynamic appends an InvokeDynamic entry.
func (p *Pool) AddInvokeDynamic(bootstrap uint16, name, desc string) (uint16, error) {
	nat, err := p.AddNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.add(Constant{Tag: TagInvokeDynamic, A: bootstrap, B: nat})
}

func readPool(r *reader) (*Pool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		r.fail("constant pool count is zero")
		return nil, r.err
	}
	p := &Pool{entries: make([]Constant, count)}
	for i := 1; i < count; i++ {
		c := Constant{Tag: Tag(r.u1())}
		switch c.Tag {
		case TagUtf8:
			n := int(r.u2())
			raw := r.bytes(n)
			if r.err != nil {
				return nil, r.err
			}
			s, err := decodeMUTF8(raw)
			if err != nil {
				r.fail(err.Error())
				return nil, r.err
			}
			c.Value = s
			if !bytes.Equal(encodeMUTF8(s), raw) {
				if p.verbatim == nil {
					p.verbatim = make(map[uint16]rawUtf8)
				}
				p.verbatim[uint16(i)] = rawUtf8{value: s, bytes: bytes.Clone(raw)}
			}
		case TagInteger, TagFloat:
			c.Bits = uint64(r.u4())
		case TagLong, TagDouble:
			c.Bits = uint64(r.u4())<<32 | uint64(r.u4())
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.A = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.A, c.B = r.u2(), r.u2()
		case TagMethodHandle:
			c.Kind, c.A = r.u1(), r.u2()
		default:
			r.fail(fmt.Sprintf("unknown constant pool tag %d at index %d", c.Tag, i))
		}
		if r.err != nil {
			return nil, r.err
		}
		p.entries[i] = c
		if c.Tag == TagLong || c.Tag == TagDouble {
			i++
			if i >= count {
				r.fail("wide constant at the end of the pool")
				return nil, r.err
			}
		}
	}
	return p, nil
}

func (p *Pool) write(w *writer) {
	w.u2(uint16(len(p.entries)))
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c.Tag == 0 {
			continue
		}
		w.u1(uint8(c.Tag))
		switch c.Tag {
		case TagUtf8:
			b := encodeMUTF8(c.Value)
			if v, ok := p.verbatim[uint16(i)]; ok && v.value == c.Value {
				b = v.bytes
			}
			w.u2(uint16(len(b)))
			w.bytes(b)
		case TagInteger, TagFloat:
			w.u4(uint32(c.Bits))
		case TagLong, TagDouble:
			w.u4(uint32(c.Bits >> 32))
			w.u4(uint32(c.Bits))
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u2(c.A)
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			w.u2(c.A)
			w.u2(c.B)
		case TagMethodHandle:
			w.u1(c.Kind)
			w.u2(c.A)
		}
	}
}
