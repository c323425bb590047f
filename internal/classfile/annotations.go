// SPDX-License-Identifier: MPL-2.0

package classfile

import "fmt"

type (
	// Annotation is a decoded annotation. Type is a Utf8 index of a field descriptor.
	Annotation struct {
		Type     uint16
		Elements []ElementPair
	}

	// ElementPair is a named annotation element.
	ElementPair struct {
		Name  uint16
		Value *ElementValue
	}

	// ElementValue is an annotation element value. Which fields are used
	// depends on Tag:
	//
	//	B C D F I J S Z s: Const is a pool index (Utf8 for 's')
	//	e:                 EnumType and EnumName are Utf8 indexes
	//	c:                 Class is a Utf8 index of a return descriptor
	//	@:                 Annotation
	//	[:                 Values
	ElementValue struct {
		Tag        byte
		Const      uint16
		EnumType   uint16
		EnumName   uint16
		Class      uint16
		Annotation *Annotation
		Values     []*ElementValue
	}

	// TypeAnnotation is an entry of a type annotations attribute. Target and
	// Path are the raw target_info (including target_type) and type_path bytes.
	TypeAnnotation struct {
		Target     []byte
		Path       []byte
		Annotation *Annotation
	}
)

// Element returns the value of the named element.
func (a *Annotation) Element(pool *Pool, name string) *ElementValue {
	for _, e := range a.Elements {
		if n, err := pool.Utf8(e.Name); err == nil && n == name {
			return e.Value
		}
	}
	return nil
}

// TypeDesc returns the annotation type descriptor.
func (a *Annotation) TypeDesc(pool *Pool) (string, error) {
	return pool.Utf8(a.Type)
}

// Bool returns the value of a boolean element.
func (v *ElementValue) Bool(pool *Pool) (value, ok bool) {
	if v == nil || v.Tag != 'Z' {
		return false, false
	}
	c, err := pool.Get(v.Const)
	if err != nil || c.Tag != TagInteger {
		return false, false
	}
	return c.Bits != 0, true
}

// ParseAnnotations decodes a RuntimeVisibleAnnotations or
// RuntimeInvisibleAnnotations body.
func ParseAnnotations(data []byte) ([]*Annotation, error) {
	r := newReader(data)
	anns := readAnnotationList(r)
	return anns, finish(r, "annotations")
}

// AnnotationsBytes encodes an annotations body.
func AnnotationsBytes(anns []*Annotation) []byte {
	w := &writer{}
	writeAnnotationList(w, anns)
	return w.buf
}

// ParseParameterAnnotations decodes a parameter annotations body.
func ParseParameterAnnotations(data []byte) ([][]*Annotation, error) {
	r := newReader(data)
	n := int(r.u1())
	out := make([][]*Annotation, 0, n)
	for range n {
		out = append(out, readAnnotationList(r))
	}
	return out, finish(r, "parameter annotations")
}

// ParameterAnnotationsBytes encodes a parameter annotations body.
func ParameterAnnotationsBytes(params [][]*Annotation) []byte {
	w := &writer{}
	w.u1(uint8(len(params)))
	for _, anns := range params {
		writeAnnotationList(w, anns)
	}
	return w.buf
}

// ParseElementValue decodes an AnnotationDefault body.
func ParseElementValue(data []byte) (*ElementValue, error) {
	r := newReader(data)
	v := readElementValue(r, 0)
	return v, finish(r, "annotation default")
}

// ElementValueBytes encodes an AnnotationDefault body.
func ElementValueBytes(v *ElementValue) []byte {
	w := &writer{}
	writeElementValue(w, v)
	return w.buf
}

// ParseTypeAnnotations decodes a type annotations body.
func ParseTypeAnnotations(data []byte) ([]*TypeAnnotation, error) {
	r := newReader(data)
	n := int(r.u2())
	out := make([]*TypeAnnotation, 0, n)
	for range n {
		start := r.pos
		skipTargetInfo(r)
		target := r.data[start:min(r.pos, len(r.data))]
		start = r.pos
		r.bytes(int(r.u1()) * 2)
		path := r.data[start:min(r.pos, len(r.data))]
		ann := readAnnotation(r, 0)
		if r.err != nil {
			break
		}
		out = append(out, &TypeAnnotation{Target: target, Path: path, Annotation: ann})
	}
	return out, finish(r, "type annotations")
}

// TypeAnnotationsBytes encodes a type annotations body.
func TypeAnnotationsBytes(anns []*TypeAnnotation) []byte {
	w := &writer{}
	w.u2(uint16(len(anns)))
	for _, ta := range anns {
		w.bytes(ta.Target)
		w.bytes(ta.Path)
		writeAnnotation(w, ta.Annotation)
	}
	return w.buf
}

func skipTargetInfo(r *reader) {
	switch t := r.u1(); t {
	case 0x00, 0x01, 0x16:
		r.bytes(1)
	case 0x10, 0x17, 0x42, 0x43, 0x44, 0x45, 0x46:
		r.bytes(2)
	case 0x11, 0x12:
		r.bytes(2)
	case 0x13, 0x14, 0x15:
	case 0x40, 0x41:
		r.bytes(int(r.u2()) * 6)
	case 0x47, 0x48, 0x49, 0x4A, 0x4B:
		r.bytes(3)
	default:
		r.fail(fmt.Sprintf("unknown type annotation target 0x%02X", t))
	}
}

// maxAnnotationDepth bounds nesting so hostile input cannot exhaust the stack.
const maxAnnotationDepth = 64

func readAnnotationList(r *reader) []*Annotation {
	n := int(r.u2())
	out := make([]*Annotation, 0, n)
	for range n {
		a := readAnnotation(r, 0)
		if r.err != nil {
			return nil
		}
		out = append(out, a)
	}
	return out
}

func readAnnotation(r *reader, depth int) *Annotation {
	if depth > maxAnnotationDepth {
		r.fail("annotation nesting too deep")
		return nil
	}
	a := &Annotation{Type: r.u2()}
	n := int(r.u2())
	for range n {
		name := r.u2()
		v := readElementValue(r, depth+1)
		if r.err != nil {
			return nil
		}
		a.Elements = append(a.Elements, ElementPair{Name: name, Value: v})
	}
	return a
}

func readElementValue(r *reader, depth int) *ElementValue {
	if depth > maxAnnotationDepth {
		r.fail("annotation nesting too deep")
		return nil
	}
	v := &ElementValue{Tag: r.u1()}
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		v.Const = r.u2()
	case 'e':
		v.EnumType, v.EnumName = r.u2(), r.u2()
	case 'c':
		v.Class = r.u2()
	case '@':
		v.Annotation = readAnnotation(r, depth+1)
	case '[':
		n := int(r.u2())
		for range n {
			item := readElementValue(r, depth+1)
			if r.err != nil {
				return nil
			}
			v.Values = append(v.Values, item)
		}
	default:
		r.fail(fmt.Sprintf("unknown element value tag %q", v.Tag))
	}
	return v
}

func writeAnnotationList(w *writer, anns []*Annotation) {
	w.u2(uint16(len(anns)))
	for _, a := range anns {
		writeAnnotation(w, a)
	}
}

func writeAnnotation(w *writer, a *Annotation) {
	w.u2(a.Type)
	w.u2(uint16(len(a.Elements)))
	for _, e := range a.Elements {
		w.u2(e.Name)
		writeElementValue(w, e.Value)
	}
}

func writeElementValue(w *writer, v *ElementValue) {
	w.u1(v.Tag)
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		w.u2(v.Const)
	case 'e':
		w.u2(v.EnumType)
		w.u2(v.EnumName)
	case 'c':
		w.u2(v.Class)
	case '@':
		writeAnnotation(w, v.Annotation)
	case '[':
		w.u2(uint16(len(v.Values)))
		for _, item := range v.Values {
			writeElementValue(w, item)
		}
	}
}

// Walk calls fn for v and every value nested inside it, including the element
// values of nested annotations.
func (v *ElementValue) Walk(fn func(*ElementValue)) {
	if v == nil {
		return
	}
	fn(v)
	switch v.Tag {
	case '@':
		v.Annotation.Walk(fn)
	case '[':
		for _, item := range v.Values {
			item.Walk(fn)
		}
	}
}

// Walk calls fn for every element value of the annotation, recursively.
func (a *Annotation) Walk(fn func(*ElementValue)) {
	if a == nil {
		return
	}
	for _, e := range a.Elements {
		e.Value.Walk(fn)
	}
}
