// SPDX-License-Identifier: MPL-2.0

package classfile

import (
	"fmt"
)

// Magic is the class file signature.
const Magic = 0xCAFEBABE

// Access flags used by callers.
const (
	AccPublic     uint16 = 0x0001
	AccPrivate    uint16 = 0x0002
	AccStatic     uint16 = 0x0008
	AccFinal      uint16 = 0x0010
	AccSuper      uint16 = 0x0020
	AccInterface  uint16 = 0x0200
	AccAbstract   uint16 = 0x0400
	AccSynthetic  uint16 = 0x1000
	AccAnnotation uint16 = 0x2000
	AccEnum       uint16 = 0x4000
)

// Attribute names with dedicated codecs.
const (
	AttrCode                                 = "Code"
	AttrConstantValue                        = "ConstantValue"
	AttrSignature                            = "Signature"
	AttrExceptions                           = "Exceptions"
	AttrInnerClasses                         = "InnerClasses"
	AttrEnclosingMethod                      = "EnclosingMethod"
	AttrRecord                               = "Record"
	AttrBootstrapMethods                     = "BootstrapMethods"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	AttrRuntimeVisibleTypeAnnotations        = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations      = "RuntimeInvisibleTypeAnnotations"
	AttrAnnotationDefault                    = "AnnotationDefault"
)

type (
	// ClassFile is a decoded class file.
	ClassFile struct {
		Minor, Major uint16
		Pool         *Pool
		Access       uint16
		This, Super  uint16
		Interfaces   []uint16
		Fields       []*Member
		Methods      []*Member
		Attributes   []*Attribute
	}

	// Member is a field or a method.
	Member struct {
		Access     uint16
		Name, Desc uint16
		Attributes []*Attribute
	}

	// Attribute is a raw attribute; Name is a Utf8 index.
	Attribute struct {
		Name uint16
		Data []byte
	}
)

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := newReader(data)
	if magic := r.u4(); r.err == nil && magic != Magic {
		r.pos = 0
		r.fail(fmt.Sprintf("bad magic 0x%08X", magic))
	}
	cf := &ClassFile{}
	cf.Minor, cf.Major = r.u2(), r.u2()
	if r.err != nil {
		return nil, r.err
	}

	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	cf.Pool = pool

	cf.Access, cf.This, cf.Super = r.u2(), r.u2(), r.u2()
	n := int(r.u2())
	for range n {
		cf.Interfaces = append(cf.Interfaces, r.u2())
	}
	cf.Fields = readMembers(r)
	cf.Methods = readMembers(r)
	cf.Attributes = readAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if !r.done() {
		r.fail("trailing data after class file")
		return nil, r.err
	}
	if _, err := cf.Name(); err != nil {
		return nil, err
	}
	return cf, nil
}

func readMembers(r *reader) []*Member {
	n := int(r.u2())
	if r.err != nil {
		return nil
	}
	out := make([]*Member, 0, n)
	for range n {
		m := &Member{Access: r.u2(), Name: r.u2(), Desc: r.u2()}
		m.Attributes = readAttributes(r)
		if r.err != nil {
			return nil
		}
		out = append(out, m)
	}
	return out
}

func readAttributes(r *reader) []*Attribute {
	n := int(r.u2())
	if r.err != nil {
		return nil
	}
	out := make([]*Attribute, 0, n)
	for range n {
		a := &Attribute{Name: r.u2()}
		a.Data = r.bytes(int(r.u4()))
		if r.err != nil {
			return nil
		}
		out = append(out, a)
	}
	return out
}

// Bytes encodes the class file.
func (cf *ClassFile) Bytes() []byte {
	w := &writer{buf: make([]byte, 0, 4096)}
	w.u4(Magic)
	w.u2(cf.Minor)
	w.u2(cf.Major)
	cf.Pool.write(w)
	w.u2(cf.Access)
	w.u2(cf.This)
	w.u2(cf.Super)
	w.u2(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		w.u2(i)
	}
	writeMembers(w, cf.Fields)
	writeMembers(w, cf.Methods)
	writeAttributes(w, cf.Attributes)
	return w.buf
}

func writeMembers(w *writer, members []*Member) {
	w.u2(uint16(len(members)))
	for _, m := range members {
		w.u2(m.Access)
		w.u2(m.Name)
		w.u2(m.Desc)
		writeAttributes(w, m.Attributes)
	}
}

func writeAttributes(w *writer, attrs []*Attribute) {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		w.u2(a.Name)
		w.u4(uint32(len(a.Data)))
		w.bytes(a.Data)
	}
}

// Name returns the internal name of the class.
func (cf *ClassFile) Name() (string, error) {
	return cf.Pool.ClassName(cf.This)
}

// SuperName returns the internal name of the superclass, or "" for java/lang/Object.
func (cf *ClassFile) SuperName() (string, error) {
	if cf.Super == 0 {
		return "", nil
	}
	return cf.Pool.ClassName(cf.Super)
}

// InterfaceNames returns the internal names of the directly implemented interfaces.
func (cf *ClassFile) InterfaceNames() ([]string, error) {
	out := make([]string, 0, len(cf.Interfaces))
	for _, i := range cf.Interfaces {
		name, err := cf.Pool.ClassName(i)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// MemberName returns the name and descriptor of a field or method.
func (cf *ClassFile) MemberName(m *Member) (name, desc string, err error) {
	if name, err = cf.Pool.Utf8(m.Name); err != nil {
		return "", "", err
	}
	desc, err = cf.Pool.Utf8(m.Desc)
	return name, desc, err
}

// AttributeName returns the name of an attribute, or "" if it cannot be read.
func (cf *ClassFile) AttributeName(a *Attribute) string {
	name, err := cf.Pool.Utf8(a.Name)
	if err != nil {
		return ""
	}
	return name
}

// FindAttribute returns the first attribute with the given name.
func (cf *ClassFile) FindAttribute(attrs []*Attribute, name string) *Attribute {
	for _, a := range attrs {
		if cf.AttributeName(a) == name {
			return a
		}
	}
	return nil
}

// NewAttribute creates an attribute, interning its name.
func (cf *ClassFile) NewAttribute(name string, data []byte) (*Attribute, error) {
	idx, err := cf.Pool.AddUtf8(name)
	if err != nil {
		return nil, err
	}
	return &Attribute{Name: idx, Data: data}, nil
}
