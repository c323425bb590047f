// SPDX-License-Identifier: MPL-2.0

package classfile

import "math"

// Opcodes emitted by Builder instructions.
const (
	OpAconstNull      byte = 0x01
	OpLdcW            byte = 0x13
	OpAload0          byte = 0x2A
	OpPop             byte = 0x57
	OpAreturn         byte = 0xB0
	OpReturn          byte = 0xB1
	OpGetStatic       byte = 0xB2
	OpPutStatic       byte = 0xB3
	OpGetField        byte = 0xB4
	OpPutField        byte = 0xB5
	OpInvokeVirtual   byte = 0xB6
	OpInvokeSpecial   byte = 0xB7
	OpInvokeStatic    byte = 0xB8
	OpInvokeInterface byte = 0xB9
	OpInvokeDynamic   byte = 0xBA
	OpNew             byte = 0xBB
	OpCheckcast       byte = 0xC0
)

// Java version 17 class files.
const defaultMajor = 61

const (
	lambdaMetafactoryOwner = "java/lang/invoke/LambdaMetafactory"
	lambdaMetafactoryName  = "metafactory"
	lambdaMetafactoryDesc  = "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;" +
		"Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;"
)

type (
	// Builder assembles class files. Errors are sticky and reported by Build.
	Builder struct {
		cf         *ClassFile
		err        error
		bootstraps []BootstrapMethod
		visible    []*Annotation
		invisible  []*Annotation
		inner      []InnerClass
	}

	// MemberBuilder adds attributes to a field or method created by a Builder.
	MemberBuilder struct {
		b         *Builder
		m         *Member
		visible   []*Annotation
		invisible []*Annotation
		code      *Code
		locals    []LocalVariable
	}

	// Instruction emits bytecode, adding the constants it needs to the pool.
	Instruction func(b *Builder) []byte
)

// NewBuilder starts a public class with the given internal name and superclass.
func NewBuilder(name, super string, interfaces ...string) *Builder {
	b := &Builder{cf: &ClassFile{Major: defaultMajor, Pool: NewPool(), Access: AccPublic | AccSuper}}
	b.cf.This = b.class(name)
	if super != "" {
		b.cf.Super = b.class(super)
	}
	for _, i := range interfaces {
		b.cf.Interfaces = append(b.cf.Interfaces, b.class(i))
	}
	return b
}

func (b *Builder) keep(i uint16, err error) uint16 {
	if err != nil && b.err == nil {
		b.err = err
	}
	return i
}

func (b *Builder) utf8(s string) uint16  { return b.keep(b.cf.Pool.AddUtf8(s)) }
func (b *Builder) class(s string) uint16 { return b.keep(b.cf.Pool.AddClass(s)) }

// Access replaces the class access flags.
func (b *Builder) Access(flags uint16) *Builder {
	b.cf.Access = flags
	return b
}

// Pool exposes the pool being built.
func (b *Builder) Pool() *Pool { return b.cf.Pool }

// Field declares a field.
func (b *Builder) Field(access uint16, name, desc string) *MemberBuilder {
	m := &Member{Access: access, Name: b.utf8(name), Desc: b.utf8(desc)}
	b.cf.Fields = append(b.cf.Fields, m)
	return &MemberBuilder{b: b, m: m}
}

// Method declares a method.
func (b *Builder) Method(access uint16, name, desc string) *MemberBuilder {
	m := &Member{Access: access, Name: b.utf8(name), Desc: b.utf8(desc)}
	b.cf.Methods = append(b.cf.Methods, m)
	return &MemberBuilder{b: b, m: m}
}

// Annotate adds class level annotations.
func (b *Builder) Annotate(visible bool, anns ...*Annotation) *Builder {
	if visible {
		b.visible = append(b.visible, anns...)
	} else {
		b.invisible = append(b.invisible, anns...)
	}
	return b
}

// InnerClass records an InnerClasses entry. An empty outer or simple name is
// encoded as zero.
func (b *Builder) InnerClass(inner, outer, simpleName string, access uint16) *Builder {
	ic := InnerClass{Inner: b.class(inner), Access: access}
	if outer != "" {
		ic.Outer = b.class(outer)
	}
	if simpleName != "" {
		ic.Name = b.utf8(simpleName)
	}
	b.inner = append(b.inner, ic)
	return b
}

// Signature adds a class Signature attribute.
func (b *Builder) Signature(sig string) *Builder {
	b.attr(&b.cf.Attributes, AttrSignature, U2(b.utf8(sig)))
	return b
}

func (b *Builder) attr(dst *[]*Attribute, name string, data []byte) {
	a, err := b.cf.NewAttribute(name, data)
	if err != nil {
		b.keep(0, err)
		return
	}
	*dst = append(*dst, a)
}

// Annotation creates an annotation of the given type descriptor.
func (b *Builder) Annotation(desc string, elems ...ElementPair) *Annotation {
	return &Annotation{Type: b.utf8(desc), Elements: elems}
}

// Element names an element value.
func (b *Builder) Element(name string, v *ElementValue) ElementPair {
	return ElementPair{Name: b.utf8(name), Value: v}
}

// StringValue creates a string element value.
func (b *Builder) StringValue(s string) *ElementValue {
	return &ElementValue{Tag: 's', Const: b.utf8(s)}
}

// BoolValue creates a boolean element value.
func (b *Builder) BoolValue(v bool) *ElementValue {
	var n int32
	if v {
		n = 1
	}
	return &ElementValue{Tag: 'Z', Const: b.keep(b.cf.Pool.AddInteger(n))}
}

// ClassValue creates a class literal element value from a descriptor.
func (b *Builder) ClassValue(desc string) *ElementValue {
	return &ElementValue{Tag: 'c', Class: b.utf8(desc)}
}

// EnumValue creates an enum constant element value.
func (b *Builder) EnumValue(typeDesc, name string) *ElementValue {
	return &ElementValue{Tag: 'e', EnumType: b.utf8(typeDesc), EnumName: b.utf8(name)}
}

// ArrayValue creates an array element value.
func (b *Builder) ArrayValue(values ...*ElementValue) *ElementValue {
	return &ElementValue{Tag: '[', Values: values}
}

// AnnotationValue wraps a nested annotation.
func (b *Builder) AnnotationValue(a *Annotation) *ElementValue {
	return &ElementValue{Tag: '@', Annotation: a}
}

// Build encodes the class file.
func (b *Builder) Build() ([]byte, error) {
	cf, err := b.ClassFile()
	if err != nil {
		return nil, err
	}
	return cf.Bytes(), nil
}

// ClassFile finishes the class and returns it decoded.
func (b *Builder) ClassFile() (*ClassFile, error) {
	if len(b.inner) > 0 {
		b.attr(&b.cf.Attributes, AttrInnerClasses, InnerClassesBytes(b.inner))
		b.inner = nil
	}
	b.flushAnnotations(&b.cf.Attributes, &b.visible, &b.invisible)
	if len(b.bootstraps) > 0 {
		b.attr(&b.cf.Attributes, AttrBootstrapMethods, BootstrapMethodsBytes(b.bootstraps))
		b.bootstraps = nil
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.cf, nil
}

func (b *Builder) flushAnnotations(dst *[]*Attribute, visible, invisible *[]*Annotation) {
	if len(*visible) > 0 {
		b.attr(dst, AttrRuntimeVisibleAnnotations, AnnotationsBytes(*visible))
		*visible = nil
	}
	if len(*invisible) > 0 {
		b.attr(dst, AttrRuntimeInvisibleAnnotations, AnnotationsBytes(*invisible))
		*invisible = nil
	}
}

// Annotate adds annotations to the member.
func (mb *MemberBuilder) Annotate(visible bool, anns ...*Annotation) *MemberBuilder {
	if visible {
		mb.visible = append(mb.visible, anns...)
	} else {
		mb.invisible = append(mb.invisible, anns...)
	}
	mb.flush()
	return mb
}

// Signature adds a Signature attribute.
func (mb *MemberBuilder) Signature(sig string) *MemberBuilder {
	mb.b.attr(&mb.m.Attributes, AttrSignature, U2(mb.b.utf8(sig)))
	return mb
}

// ConstantString adds a ConstantValue attribute holding a string.
func (mb *MemberBuilder) ConstantString(s string) *MemberBuilder {
	mb.b.attr(&mb.m.Attributes, AttrConstantValue, U2(mb.b.keep(mb.b.cf.Pool.AddString(s))))
	return mb
}

// Code sets the method body.
func (mb *MemberBuilder) Code(maxStack, maxLocals uint16, ins ...Instruction) *MemberBuilder {
	mb.code = &Code{MaxStack: maxStack, MaxLocals: maxLocals}
	for _, in := range ins {
		mb.code.Instructions = append(mb.code.Instructions, in(mb.b)...)
	}
	mb.flush()
	return mb
}

// LocalVariable adds a LocalVariableTable entry spanning the whole body.
func (mb *MemberBuilder) LocalVariable(name, desc string, index uint16) *MemberBuilder {
	mb.locals = append(mb.locals, LocalVariable{Name: mb.b.utf8(name), Desc: mb.b.utf8(desc), Index: index})
	mb.flush()
	return mb
}

// flush re-encodes the member attributes owned by the builder.
func (mb *MemberBuilder) flush() {
	kept := mb.m.Attributes[:0:0]
	for _, a := range mb.m.Attributes {
		switch mb.b.cf.AttributeName(a) {
		case AttrCode, AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations:
		default:
			kept = append(kept, a)
		}
	}
	mb.m.Attributes = kept
	if mb.code != nil {
		code := *mb.code
		if len(mb.locals) > 0 {
			locals := make([]LocalVariable, len(mb.locals))
			for i, lv := range mb.locals {
				lv.Length = uint16(min(len(code.Instructions), math.MaxUint16))
				locals[i] = lv
			}
			a, err := mb.b.cf.NewAttribute(AttrLocalVariableTable, LocalVariablesBytes(locals))
			mb.b.keep(0, err)
			if a != nil {
				code.Attributes = []*Attribute{a}
			}
		}
		mb.b.attr(&mb.m.Attributes, AttrCode, code.Bytes())
	}
	if len(mb.visible) > 0 {
		mb.b.attr(&mb.m.Attributes, AttrRuntimeVisibleAnnotations, AnnotationsBytes(mb.visible))
	}
	if len(mb.invisible) > 0 {
		mb.b.attr(&mb.m.Attributes, AttrRuntimeInvisibleAnnotations, AnnotationsBytes(mb.invisible))
	}
}

// Op emits a single byte instruction.
func Op(op byte) Instruction {
	return func(*Builder) []byte { return []byte{op} }
}

func withIndex(op byte, i uint16) []byte {
	return []byte{op, byte(i >> 8), byte(i)}
}

// LdcString loads a string constant.
func LdcString(s string) Instruction {
	return func(b *Builder) []byte {
		return withIndex(OpLdcW, b.keep(b.cf.Pool.AddString(s)))
	}
}

// LdcClass loads a class literal.
func LdcClass(name string) Instruction {
	return func(b *Builder) []byte { return withIndex(OpLdcW, b.class(name)) }
}

// TypeInsn emits new or checkcast.
func TypeInsn(op byte, name string) Instruction {
	return func(b *Builder) []byte { return withIndex(op, b.class(name)) }
}

// FieldInsn emits a field access.
func FieldInsn(op byte, owner, name, desc string) Instruction {
	return func(b *Builder) []byte {
		return withIndex(op, b.keep(b.cf.Pool.AddMemberRef(TagFieldref, owner, name, desc)))
	}
}

// Invoke emits a method invocation. Interface calls use InterfaceMethodref.
func Invoke(op byte, owner, name, desc string) Instruction {
	return func(b *Builder) []byte {
		tag := TagMethodref
		if op == OpInvokeInterface {
			tag = TagInterfaceMethodref
		}
		out := withIndex(op, b.keep(b.cf.Pool.AddMemberRef(tag, owner, name, desc)))
		if op == OpInvokeInterface {
			out = append(out, byte(argSlots(desc)+1), 0)
		}
		return out
	}
}

// InvokeLambda emits an invokedynamic bootstrapped by LambdaMetafactory.
// name and factoryDesc describe the call site; samDesc is the erased
// functional method descriptor; impl is the implementation method.
func InvokeLambda(name, factoryDesc, samDesc string, implKind uint8, implOwner, implName, implDesc, instantiated string) Instruction {
	return func(b *Builder) []byte {
		p := b.cf.Pool
		mf := b.keep(p.AddMemberRef(TagMethodref, lambdaMetafactoryOwner, lambdaMetafactoryName, lambdaMetafactoryDesc))
		bsm := b.keep(p.AddMethodHandle(RefInvokeStatic, mf))
		tag := TagMethodref
		if implKind == RefInvokeInterface {
			tag = TagInterfaceMethodref
		}
		impl := b.keep(p.AddMemberRef(tag, implOwner, implName, implDesc))
		args := []uint16{
			b.keep(p.AddMethodType(samDesc)),
			b.keep(p.AddMethodHandle(implKind, impl)),
			b.keep(p.AddMethodType(instantiated)),
		}
		b.bootstraps = append(b.bootstraps, BootstrapMethod{Handle: bsm, Arguments: args})
		idx := b.keep(p.AddInvokeDynamic(uint16(len(b.bootstraps)-1), name, factoryDesc))
		return append(withIndex(OpInvokeDynamic, idx), 0, 0)
	}
}

// argSlots counts the local slots taken by the parameters of a method descriptor.
func argSlots(desc string) int {
	n := 0
	for i := 1; i < len(desc) && desc[i] != ')'; i++ {
		switch desc[i] {
		case 'J', 'D':
			n += 2
		case 'L':
			for i < len(desc) && desc[i] != ';' {
				i++
			}
			n++
		case '[':
			for i < len(desc) && desc[i] == '[' {
				i++
			}
			if i < len(desc) && desc[i] == 'L' {
				for i < len(desc) && desc[i] != ';' {
					i++
				}
			}
			n++
		default:
			n++
		}
	}
	return n
}
