// SPDX-License-Identifier: MPL-2.0

package classfile

import "fmt"

type (
	// Code is a decoded Code attribute. Instructions and the exception table are
	// kept raw; their pool references stay valid across rewrites.
	Code struct {
		MaxStack, MaxLocals uint16
		Instructions        []byte
		ExceptionTable      []byte
		Attributes          []*Attribute
	}

	// LocalVariable is an entry of LocalVariableTable or LocalVariableTypeTable.
	// Desc holds the descriptor or the signature, respectively.
	LocalVariable struct {
		StartPC, Length uint16
		Name, Desc      uint16
		Index           uint16
	}

	// InnerClass is an entry of the InnerClasses attribute.
	InnerClass struct {
		Inner, Outer, Name uint16
		Access             uint16
	}

	// EnclosingMethod is the EnclosingMethod attribute. Method is a NameAndType
	// index and may be zero.
	EnclosingMethod struct {
		Class, Method uint16
	}

	// RecordComponent is an entry of the Record attribute.
	RecordComponent struct {
		Name, Desc uint16
		Attributes []*Attribute
	}

	// BootstrapMethod is an entry of the BootstrapMethods attribute.
	BootstrapMethod struct {
		Handle    uint16
		Arguments []uint16
	}
)

// ParseU2 decodes attributes holding a single pool index (Signature,
// ConstantValue, SourceFile, NestHost).
func ParseU2(data []byte) (uint16, error) {
	r := newReader(data)
	v := r.u2()
	if r.err == nil && !r.done() {
		r.fail("unexpected attribute length")
	}
	return v, r.err
}

// U2 encodes a single pool index attribute body.
func U2(v uint16) []byte {
	w := &writer{}
	w.u2(v)
	return w.buf
}

// ParseCode decodes a Code attribute body.
func ParseCode(data []byte) (*Code, error) {
	r := newReader(data)
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	c.Instructions = r.bytes(int(r.u4()))
	c.ExceptionTable = r.bytes(int(r.u2()) * 8)
	c.Attributes = readAttributes(r)
	if r.err == nil && !r.done() {
		r.fail("trailing data in Code attribute")
	}
	if r.err != nil {
		return nil, fmt.Errorf("code attribute: %w", r.err)
	}
	return c, nil
}

// Bytes encodes the Code attribute body.
func (c *Code) Bytes() []byte {
	w := &writer{}
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Instructions)))
	w.bytes(c.Instructions)
	w.u2(uint16(len(c.ExceptionTable) / 8))
	w.bytes(c.ExceptionTable)
	writeAttributes(w, c.Attributes)
	return w.buf
}

// ParseLocalVariables decodes LocalVariableTable and LocalVariableTypeTable bodies.
func ParseLocalVariables(data []byte) ([]LocalVariable, error) {
	r := newReader(data)
	n := int(r.u2())
	out := make([]LocalVariable, 0, n)
	for range n {
		out = append(out, LocalVariable{StartPC: r.u2(), Length: r.u2(), Name: r.u2(), Desc: r.u2(), Index: r.u2()})
	}
	return out, finish(r, "local variable table")
}

// LocalVariablesBytes encodes a local variable table body.
func LocalVariablesBytes(vars []LocalVariable) []byte {
	w := &writer{}
	w.u2(uint16(len(vars)))
	for _, v := range vars {
		w.u2(v.StartPC)
		w.u2(v.Length)
		w.u2(v.Name)
		w.u2(v.Desc)
		w.u2(v.Index)
	}
	return w.buf
}

// ParseInnerClasses decodes an InnerClasses body.
func ParseInnerClasses(data []byte) ([]InnerClass, error) {
	r := newReader(data)
	n := int(r.u2())
	out := make([]InnerClass, 0, n)
	for range n {
		out = append(out, InnerClass{Inner: r.u2(), Outer: r.u2(), Name: r.u2(), Access: r.u2()})
	}
	return out, finish(r, "inner classes")
}

// InnerClassesBytes encodes an InnerClasses body.
func InnerClassesBytes(classes []InnerClass) []byte {
	w := &writer{}
	w.u2(uint16(len(classes)))
	for _, c := range classes {
		w.u2(c.Inner)
		w.u2(c.Outer)
		w.u2(c.Name)
		w.u2(c.Access)
	}
	return w.buf
}

// ParseEnclosingMethod decodes an EnclosingMethod body.
func ParseEnclosingMethod(data []byte) (EnclosingMethod, error) {
	r := newReader(data)
	em := EnclosingMethod{Class: r.u2(), Method: r.u2()}
	return em, finish(r, "enclosing method")
}

// Bytes encodes the EnclosingMethod body.
func (em EnclosingMethod) Bytes() []byte {
	w := &writer{}
	w.u2(em.Class)
	w.u2(em.Method)
	return w.buf
}

// ParseRecord decodes a Record body.
func ParseRecord(data []byte) ([]RecordComponent, error) {
	r := newReader(data)
	n := int(r.u2())
	out := make([]RecordComponent, 0, n)
	for range n {
		rc := RecordComponent{Name: r.u2(), Desc: r.u2()}
		rc.Attributes = readAttributes(r)
		out = append(out, rc)
	}
	return out, finish(r, "record")
}

// RecordBytes encodes a Record body.
func RecordBytes(components []RecordComponent) []byte {
	w := &writer{}
	w.u2(uint16(len(components)))
	for _, rc := range components {
		w.u2(rc.Name)
		w.u2(rc.Desc)
		writeAttributes(w, rc.Attributes)
	}
	return w.buf
}

// ParseBootstrapMethods decodes a BootstrapMethods body.
func ParseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	r := newReader(data)
	n := int(r.u2())
	out := make([]BootstrapMethod, 0, n)
	for range n {
		bm := BootstrapMethod{Handle: r.u2()}
		args := int(r.u2())
		for range args {
			bm.Arguments = append(bm.Arguments, r.u2())
		}
		out = append(out, bm)
	}
	return out, finish(r, "bootstrap methods")
}

// BootstrapMethodsBytes encodes a BootstrapMethods body.
func BootstrapMethodsBytes(methods []BootstrapMethod) []byte {
	w := &writer{}
	w.u2(uint16(len(methods)))
	for _, bm := range methods {
		w.u2(bm.Handle)
		w.u2(uint16(len(bm.Arguments)))
		for _, a := range bm.Arguments {
			w.u2(a)
		}
	}
	return w.buf
}

func finish(r *reader, what string) error {
	if r.err == nil && !r.done() {
		r.fail("trailing data in " + what)
	}
	if r.err != nil {
		return fmt.Errorf("%s: %w", what, r.err)
	}
	return nil
}
