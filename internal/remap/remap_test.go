// SPDX-License-Identifier: MPL-2.0

package remap

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/crossmod/crossmod/internal/classfile"
	"github.com/crossmod/crossmod/internal/classpath"
	"github.com/crossmod/crossmod/internal/mapping"
)

const testTable = `
namespaces: {guest: intermediary, host: srg}
classes:
  net/minecraft/class_1297: net/minecraft/world/entity/Entity
  net/minecraft/class_1937: net/minecraft/world/level/Level
  net/minecraft/class_2338: net/minecraft/core/BlockPos
fields:
  - {owner: net/minecraft/class_1297, name: field_6002, target: level}
  - {owner: net/minecraft/class_1297, name: field_7777, target: health}
  - {owner: net/minecraft/class_1937, name: field_7777, target: time}
methods:
  - {owner: net/minecraft/class_1297, name: method_5773, desc: ()V, target: tick}
  - {owner: net/minecraft/class_1937, name: method_8320, desc: (Lnet/minecraft/class_2338;)V, target: getBlockState}
  - {owner: net/minecraft/class_2338, name: method_10069, desc: (III)Lnet/minecraft/class_2338;, target: offset}
  - {owner: net/minecraft/class_1937, name: method_10069, desc: (III)V, target: scheduleTick}
`

const (
	mixinName  = "net/example/mixin/EntityMixin"
	levelName  = "net/example/MyLevel"
	otherName  = "com/example/Other"
	entityDesc = "Lnet/minecraft/class_1297;"
)

func testIndex(t *testing.T) *mapping.Index {
	t.Helper()
	ix, err := mapping.Parse([]byte(testTable), "test.yaml")
	if err != nil {
		t.Fatalf("mapping.Parse() error = %v", err)
	}
	return ix
}

func mixinClass(t *testing.T) []byte {
	t.Helper()
	b := classfile.NewBuilder(mixinName, "java/lang/Object")
	b.Annotate(false, b.Annotation("Lorg/spongepowered/asm/mixin/Mixin;",
		b.Element("value", b.ArrayValue(b.ClassValue(entityDesc), b.ClassValue("L"+mixinName+";"))),
	))
	b.Field(classfile.AccPrivate, "shadowLevel", "Lnet/minecraft/class_1937;")
	b.Field(classfile.AccPublic|classfile.AccStatic|classfile.AccFinal, "POS", "Ljava/lang/String;").
		ConstantString("Lnet/minecraft/class_2338;")
	b.Method(classfile.AccPublic, "entity$method_5773", "()V").Code(1, 1, classfile.Op(classfile.OpReturn))
	b.Method(classfile.AccPrivate, "onTick", "(Lnet/minecraft/class_1297;)V").
		Annotate(true, b.Annotation("Lorg/spongepowered/asm/mixin/injection/Inject;",
			b.Element("method", b.ArrayValue(b.StringValue("method_5773()V"), b.StringValue("method_5773(Lbroken)V"))),
			b.Element("at", b.AnnotationValue(b.Annotation("Lorg/spongepowered/asm/mixin/injection/At;",
				b.Element("value", b.StringValue("INVOKE")),
				b.Element("target", b.StringValue("Lnet/minecraft/class_1937;method_8320(Lnet/minecraft/class_2338;)V")),
			))),
			b.Element("remap", b.BoolValue(false)),
		)).
		Code(4, 2,
			classfile.Op(classfile.OpAload0),
			classfile.FieldInsn(classfile.OpGetField, mixinName, "field_7777", "I"),
			classfile.FieldInsn(classfile.OpGetField, "net/minecraft/class_1297", "field_6002", "Lnet/minecraft/class_1937;"),
			classfile.Invoke(classfile.OpInvokeVirtual, "net/minecraft/class_1937", "method_8320", "(Lnet/minecraft/class_2338;)V"),
			classfile.Invoke(classfile.OpInvokeVirtual, levelName, "method_10069", "(III)V"),
			classfile.Invoke(classfile.OpInvokeVirtual, otherName, "method_5773", "()V"),
			classfile.LdcString("net.minecraft.class_1297"),
			classfile.LdcString("hello world"),
			classfile.LdcClass("net/minecraft/class_1297"),
			classfile.InvokeLambda("method_5773", "()"+entityDesc, "()V",
				classfile.RefInvokeStatic, mixinName, "lambda$onTick$0", "()V", "()V"),
			classfile.Op(classfile.OpReturn),
		).
		LocalVariable("entity", entityDesc, 1)
	b.Method(classfile.AccPrivate, "plain", "()V").
		Annotate(true, b.Annotation("Lorg/spongepowered/asm/mixin/injection/Inject;",
			b.Element("method", b.ArrayValue(b.StringValue("method_5773()V"))),
		)).
		Code(1, 1, classfile.Op(classfile.OpReturn))

	return build(t, b)
}

func levelClass(t *testing.T) []byte {
	t.Helper()
	return build(t, classfile.NewBuilder(levelName, "net/minecraft/class_1937"))
}

func build(t *testing.T, b *classfile.Builder) []byte {
	t.Helper()
	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return data
}

func testEngine(t *testing.T, classes ...[]byte) *Engine {
	t.Helper()
	var mem classpath.Memory
	for _, data := range classes {
		cf, err := classfile.Parse(data)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		name, err := cf.Name()
		if err != nil {
			t.Fatalf("Name() error = %v", err)
		}
		mem.Put(name, data)
	}
	return NewEngine(testIndex(t), &mem, nil)
}

type parsedClass struct {
	cf      *classfile.ClassFile
	refs    []string
	strings []string
	classes []string
	indys   []string
}

func parse(t *testing.T, data []byte) *parsedClass {
	t.Helper()
	cf, err := classfile.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	pc := &parsedClass{cf: cf}
	err = cf.Pool.Each(func(i uint16, c classfile.Constant) error {
		switch c.Tag {
		case classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref:
			owner, name, desc, err := cf.Pool.MemberRef(i)
			if err != nil {
				return err
			}
			pc.refs = append(pc.refs, owner+"."+name+":"+desc)
		case classfile.TagString:
			s, err := cf.Pool.StringValue(i)
			if err != nil {
				return err
			}
			pc.strings = append(pc.strings, s)
		case classfile.TagClass:
			s, err := cf.Pool.ClassName(i)
			if err != nil {
				return err
			}
			pc.classes = append(pc.classes, s)
		case classfile.TagInvokeDynamic:
			name, desc, err := cf.Pool.NameAndType(c.B)
			if err != nil {
				return err
			}
			pc.indys = append(pc.indys, name+":"+desc)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reading constant pool: %v", err)
	}
	return pc
}

func (pc *parsedClass) method(t *testing.T, name string) *classfile.Member {
	t.Helper()
	for _, m := range pc.cf.Methods {
		n, _, err := pc.cf.MemberName(m)
		if err != nil {
			t.Fatalf("MemberName() error = %v", err)
		}
		if n == name {
			return m
		}
	}
	t.Fatalf("method %s not found", name)
	return nil
}

func (pc *parsedClass) annotationStrings(t *testing.T, m *classfile.Member) []string {
	t.Helper()
	attr := pc.cf.FindAttribute(m.Attributes, classfile.AttrRuntimeVisibleAnnotations)
	if attr == nil {
		t.Fatal("no visible annotations")
	}
	anns, err := classfile.ParseAnnotations(attr.Data)
	if err != nil {
		t.Fatalf("ParseAnnotations() error = %v", err)
	}
	var out []string
	for _, ann := range anns {
		ann.Walk(func(v *classfile.ElementValue) {
			if v.Tag == 's' {
				s, err := pc.cf.Pool.Utf8(v.Const)
				if err != nil {
					t.Errorf("Utf8(%d) error = %v", v.Const, err)
					return
				}
				out = append(out, s)
			}
		})
	}
	return out
}

func requireAll(t *testing.T, what string, got, want []string) {
	t.Helper()
	for _, w := range want {
		if !slices.Contains(got, w) {
			t.Errorf("%s = %v, missing %q", what, got, w)
		}
	}
}

func TestValueRewriter(t *testing.T) {
	t.Parallel()

	v := NewValueRewriter(NewRemapper(testIndex(t), nil))
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: entityDesc, want: "Lnet/minecraft/world/entity/Entity;"},
		{in: "Lcom/example/Unknown;", want: "Lcom/example/Unknown;"},
		{in: "net.minecraft.class_1297", want: "net.minecraft.world.entity.Entity"},
		{in: "net.minecraft.class_1297$class_5", want: "net.minecraft.world.entity.Entity$class_5"},
		{in: "com.example.Unknown", want: "com.example.Unknown"},
		{in: "Lnet/minecraft/class_1297;method_5773()V", want: "Lnet/minecraft/world/entity/Entity;tick()V"},
		{in: "method_8320(Lnet/minecraft/class_2338;)V", want: "getBlockState(Lnet/minecraft/core/BlockPos;)V"},
		{in: "net/minecraft/class_1937.method_8320(Lnet/minecraft/class_2338;)V", want: "net/minecraft/world/level/Level.getBlockState(Lnet/minecraft/core/BlockPos;)V"},
		{in: "method_10069(III)V", want: "method_10069(III)V"},
		{in: "method_5773", want: "tick"},
		{in: "field_6002", want: "level"},
		{in: "HEAD", want: "HEAD"},
		{in: "see method_5773() for details", want: "see method_5773() for details"},
		{in: "method_5773(Lbroken)V", want: "method_5773(Lbroken)V", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := v.Map(tt.in)
			if got != tt.want {
				t.Errorf("Map(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if tt.wantErr != errors.Is(err, ErrUnparseableLiteral) {
				t.Errorf("Map(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Map(%q) unexpected error = %v", tt.in, err)
			}
		})
	}
}

func TestSignature(t *testing.T) {
	t.Parallel()

	r := NewRemapper(testIndex(t), nil)
	tests := []struct {
		in, want string
	}{
		{"Ljava/util/List<Lnet/minecraft/class_1297;>;", "Ljava/util/List<Lnet/minecraft/world/entity/Entity;>;"},
		{
			"<T:Lnet/minecraft/class_1297;>(TT;[Lnet/minecraft/class_2338;)Ljava/util/Map<Ljava/lang/String;+Lnet/minecraft/class_2338;>;^Ljava/io/IOException;",
			"<T:Lnet/minecraft/world/entity/Entity;>(TT;[Lnet/minecraft/core/BlockPos;)Ljava/util/Map<Ljava/lang/String;+Lnet/minecraft/core/BlockPos;>;^Ljava/io/IOException;",
		},
		{"Lnet/minecraft/class_1297$class_1298<TT;>.class_1299<*>;", "Lnet/minecraft/world/entity/Entity$class_1298<TT;>.class_1299<*>;"},
		{"<LOL:Ljava/lang/Object;>Ljava/lang/Object;Ljava/lang/Comparable<TLOL;>;", "<LOL:Ljava/lang/Object;>Ljava/lang/Object;Ljava/lang/Comparable<TLOL;>;"},
		{"<E::Ljava/lang/Runnable;>()V", "<E::Ljava/lang/Runnable;>()V"},
		{"I", "I"},
	}
	for _, tt := range tests {
		got, err := r.Signature(tt.in)
		if err != nil {
			t.Errorf("Signature(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Signature(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	got, err := r.Signature("Lnet/minecraft/class_1297")
	if err == nil {
		t.Error("Signature() of an unterminated type succeeded")
	}
	if got != "Lnet/minecraft/class_1297" {
		t.Errorf("Signature() of an unterminated type = %q, want input unchanged", got)
	}
}

func TestRemapperPolicies(t *testing.T) {
	t.Parallel()

	e := testEngine(t, mixinClass(t), levelClass(t))
	r := e.Remapper()

	tests := []struct {
		name string
		got  string
		want string
	}{
		// Ambiguous in the flat view, resolved through the owner's hierarchy.
		{"hierarchy picks overload", r.Method(levelName, "method_10069", "(III)V"), "scheduleTick"},
		{"owner entry", r.Method("net/minecraft/class_2338", "method_10069", "(III)Lnet/minecraft/class_2338;"), "offset"},
		// Without class info the flat view is not consulted for methods.
		{"unknown owner", r.Method(otherName, "method_5773", "()V"), "method_5773"},
		{"flat view with class info", r.Method(levelName, "method_5773", "()V"), "tick"},
		// Carrier prefix split, lambdas excluded, two separators left alone.
		{"carrier prefix", r.Method(mixinName, "entity$method_5773", "()V"), "entity$tick"},
		{"lambda", r.Method(mixinName, "lambda$method_5773", "()V"), "lambda$method_5773"},
		{"two separators", r.Method(mixinName, "a$b$method_5773", "()V"), "a$b$method_5773"},
		{"constructor", r.Method(mixinName, "<init>", "()V"), "<init>"},
		// Fields: flat first, then synthetic targets, then the hierarchy.
		{"flat field", r.Field(otherName, "field_6002", "Lnet/minecraft/class_1937;"), "level"},
		{"synthetic target field", r.Field(mixinName, "field_7777", "I"), "health"},
		{"hierarchy field", r.Field(levelName, "field_7777", "J"), "time"},
		{"unknown field", r.Field(otherName, "field_7777", "I"), "field_7777"},
		{"package", r.Package("net/minecraft"), "net/minecraft"},
		{"array class", r.Class("[Lnet/minecraft/class_1297;"), "[Lnet/minecraft/world/entity/Entity;"},
		{"inner name", r.InnerName("net/minecraft/class_1297$class_1298", "class_1298"), "class_1298"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestInfoProvider(t *testing.T) {
	t.Parallel()

	host := build(t, classfile.NewBuilder("net/minecraft/world/entity/Entity", "net/minecraft/world/level/Level",
		"net/minecraft/core/BlockPos"))

	e := testEngine(t, mixinClass(t), host)
	infos := e.Infos()

	entity := infos.Lookup("net/minecraft/class_1297")
	if entity == nil {
		t.Fatal("Lookup(class_1297) = nil")
	}
	if entity.Super != "net/minecraft/class_1937" {
		t.Errorf("Super = %q, want net/minecraft/class_1937", entity.Super)
	}
	if got := entity.Interfaces(); !slices.Equal(got, []string{"net/minecraft/class_2338"}) {
		t.Errorf("Interfaces() = %v", got)
	}
	if entity.Ancestry.Kind() != AncestryAuthored {
		t.Errorf("Kind() = %v, want AncestryAuthored", entity.Ancestry.Kind())
	}
	if entity.Carrier() {
		t.Error("host class reported as a carrier")
	}

	mixin := infos.Lookup(mixinName)
	if mixin == nil {
		t.Fatalf("Lookup(%s) = nil", mixinName)
	}
	if !mixin.Carrier() || mixin.Ancestry.Kind() != AncestryAugmented {
		t.Errorf("carrier = %v, kind = %v", mixin.Carrier(), mixin.Ancestry.Kind())
	}
	// The carrier's own name is pruned from its synthetic targets.
	if got := mixin.Ancestry.Synthetic(); !slices.Equal(got, []string{"net/minecraft/class_1297"}) {
		t.Errorf("Synthetic() = %v", got)
	}
	if got := mixin.Ancestry.Authored(); len(got) != 0 {
		t.Errorf("Authored() = %v, want none", got)
	}
	if got := mixin.Interfaces(); !slices.Equal(got, []string{"net/minecraft/class_1297"}) {
		t.Errorf("Interfaces() = %v", got)
	}

	if infos.Lookup("com/example/Missing") != nil {
		t.Error("Lookup of a missing class returned info")
	}
	computed := infos.Computed()
	if infos.Lookup(mixinName) != mixin {
		t.Error("second Lookup returned a different ClassInfo")
	}
	infos.Lookup("com/example/Missing")
	if infos.Computed() != computed {
		t.Errorf("Computed() = %d after repeat lookups, want %d", infos.Computed(), computed)
	}
}

func TestEngineRewrite(t *testing.T) {
	t.Parallel()

	data := mixinClass(t)
	e := testEngine(t, data, levelClass(t))

	unit, err := e.NewUnit(data)
	if err != nil {
		t.Fatalf("NewUnit() error = %v", err)
	}
	if unit.Name != mixinName {
		t.Errorf("unit Name = %q", unit.Name)
	}
	if !slices.Equal(unit.Synthetic, []string{"net/minecraft/class_1297"}) {
		t.Errorf("unit Synthetic = %v", unit.Synthetic)
	}

	out, err := e.Rewrite(unit)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if out.Name != mixinName {
		t.Errorf("Name = %q", out.Name)
	}
	if !slices.Equal(out.Synthetic, []string{"net/minecraft/world/entity/Entity"}) {
		t.Errorf("Synthetic = %v", out.Synthetic)
	}

	pc := parse(t, out.Data)
	requireAll(t, "refs", pc.refs, []string{
		mixinName + ".health:I",
		"net/minecraft/world/entity/Entity.level:Lnet/minecraft/world/level/Level;",
		"net/minecraft/world/level/Level.getBlockState:(Lnet/minecraft/core/BlockPos;)V",
		levelName + ".scheduleTick:(III)V",
		otherName + ".method_5773:()V",
		mixinName + ".lambda$onTick$0:()V",
	})
	requireAll(t, "strings", pc.strings, []string{"net.minecraft.world.entity.Entity", "hello world", "Lnet/minecraft/core/BlockPos;"})
	if slices.Contains(pc.strings, "net.minecraft.class_1297") {
		t.Error("guest class name left in string constants")
	}
	requireAll(t, "classes", pc.classes, []string{"net/minecraft/world/entity/Entity"})
	if slices.Contains(pc.classes, "net/minecraft/class_1297") {
		t.Error("guest class name left in class constants")
	}
	if want := []string{"tick:()Lnet/minecraft/world/entity/Entity;"}; !slices.Equal(pc.indys, want) {
		t.Errorf("indys = %v, want %v", pc.indys, want)
	}

	var fieldDescs []string
	for _, f := range pc.cf.Fields {
		_, desc, err := pc.cf.MemberName(f)
		if err != nil {
			t.Fatalf("MemberName() error = %v", err)
		}
		fieldDescs = append(fieldDescs, desc)
	}
	requireAll(t, "field descriptors", fieldDescs, []string{"Lnet/minecraft/world/level/Level;"})

	pc.method(t, "entity$tick")
	onTick := pc.method(t, "onTick")
	_, desc, err := pc.cf.MemberName(onTick)
	if err != nil {
		t.Fatalf("MemberName() error = %v", err)
	}
	if desc != "(Lnet/minecraft/world/entity/Entity;)V" {
		t.Errorf("onTick desc = %q", desc)
	}

	wantLiterals := []string{
		"tick()V",
		"method_5773(Lbroken)V",
		"INVOKE",
		"Lnet/minecraft/world/level/Level;getBlockState(Lnet/minecraft/core/BlockPos;)V",
	}
	if got := pc.annotationStrings(t, onTick); !slices.Equal(got, wantLiterals) {
		t.Errorf("onTick literals = %v, want %v", got, wantLiterals)
	}
	// Literals are only rewritten when remapping is disabled.
	if got := pc.annotationStrings(t, pc.method(t, "plain")); !slices.Equal(got, []string{"method_5773()V"}) {
		t.Errorf("plain literals = %v", got)
	}

	code, err := classfile.ParseCode(pc.cf.FindAttribute(onTick.Attributes, classfile.AttrCode).Data)
	if err != nil {
		t.Fatalf("ParseCode() error = %v", err)
	}
	lvt, err := classfile.ParseLocalVariables(pc.cf.FindAttribute(code.Attributes, classfile.AttrLocalVariableTable).Data)
	if err != nil {
		t.Fatalf("ParseLocalVariables() error = %v", err)
	}
	lvDesc, err := pc.cf.Pool.Utf8(lvt[0].Desc)
	if err != nil {
		t.Fatal(err)
	}
	if lvDesc != "Lnet/minecraft/world/entity/Entity;" {
		t.Errorf("local variable desc = %q", lvDesc)
	}

	classAnns, err := classfile.ParseAnnotations(pc.cf.FindAttribute(pc.cf.Attributes, classfile.AttrRuntimeInvisibleAnnotations).Data)
	if err != nil {
		t.Fatalf("ParseAnnotations() error = %v", err)
	}
	target, err := pc.cf.Pool.Utf8(classAnns[0].Element(pc.cf.Pool, "value").Values[0].Class)
	if err != nil {
		t.Fatal(err)
	}
	if target != "Lnet/minecraft/world/entity/Entity;" {
		t.Errorf("@Mixin target = %q", target)
	}

	if out.Stats.Literals != 2 {
		t.Errorf("Stats.Literals = %d, want 2", out.Stats.Literals)
	}
	if len(out.Stats.Warnings) != 1 || !strings.Contains(out.Stats.Warnings[0], "method_5773(Lbroken)V") {
		t.Errorf("Stats.Warnings = %v", out.Stats.Warnings)
	}
	if out.Stats.Members <= 0 {
		t.Errorf("Stats.Members = %d, want > 0", out.Stats.Members)
	}
	if out.Stats.Strings != 2 {
		t.Errorf("Stats.Strings = %d, want 2", out.Stats.Strings)
	}
}

func TestEngineRewrite_UnparseableStringConstant(t *testing.T) {
	t.Parallel()

	b := classfile.NewBuilder("com/example/Holder", "java/lang/Object")
	b.Method(classfile.AccPublic, "run", "()V").Code(1, 1,
		classfile.LdcString("method_5773(Lbroken)V"),
		classfile.LdcString("Lnet/minecraft/class_1297;"),
		classfile.Op(classfile.OpReturn),
	)
	e := testEngine(t)
	unit, err := e.NewUnit(build(t, b))
	if err != nil {
		t.Fatalf("NewUnit() error = %v", err)
	}
	out, err := e.Rewrite(unit)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	if len(out.Stats.Warnings) != 1 {
		t.Fatalf("Stats.Warnings = %v, want one warning", out.Stats.Warnings)
	}
	if w := out.Stats.Warnings[0]; !strings.Contains(w, "method_5773(Lbroken)V") || !strings.Contains(w, ErrUnparseableLiteral.Error()) {
		t.Errorf("warning = %q", w)
	}
	if out.Stats.Strings != 1 {
		t.Errorf("Stats.Strings = %d, want 1", out.Stats.Strings)
	}
	requireAll(t, "strings", parse(t, out.Data).strings, []string{"method_5773(Lbroken)V", "Lnet/minecraft/world/entity/Entity;"})
}

func TestEngineRewrite_PreservesLoneSurrogates(t *testing.T) {
	t.Parallel()

	// A lone high surrogate followed by 'x', as javac emits it for "\uD800x".
	const lone = "\xed\xa0\x80x"
	b := classfile.NewBuilder("com/example/Surrogates", "java/lang/Object")
	b.Method(classfile.AccPublic, "run", "()V").Code(1, 1,
		classfile.LdcString(lone),
		classfile.LdcString("net.minecraft.class_1297"),
		classfile.Op(classfile.OpReturn),
	)
	e := testEngine(t)
	unit, err := e.NewUnit(build(t, b))
	if err != nil {
		t.Fatalf("NewUnit() error = %v", err)
	}
	out, err := e.Rewrite(unit)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if !bytes.Contains(out.Data, []byte{0x00, 0x04, 0xED, 0xA0, 0x80, 'x'}) {
		t.Error("rewritten pool lost the lone surrogate bytes")
	}
	requireAll(t, "strings", parse(t, out.Data).strings, []string{lone, "net.minecraft.world.entity.Entity"})
}

func TestEngineRewrite_Idempotent(t *testing.T) {
	t.Parallel()

	data := mixinClass(t)
	e := testEngine(t, data, levelClass(t))

	first, err := e.NewUnit(data)
	if err != nil {
		t.Fatal(err)
	}
	a, err := e.Rewrite(first)
	if err != nil {
		t.Fatal(err)
	}

	second, err := e.NewUnit(slices.Clone(data))
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Rewrite(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Error("rewriting the same class twice produced different bytes")
	}
}

func TestEngineRewrite_Unknown(t *testing.T) {
	t.Parallel()

	b := classfile.NewBuilder("com/example/Plain", "java/lang/Object")
	b.Method(classfile.AccPublic, "run", "()V").Code(1, 1,
		classfile.LdcString("com.example.Unknown"),
		classfile.Invoke(classfile.OpInvokeStatic, "com/example/Util", "helper", "(Lcom/example/Plain;)V"),
		classfile.Op(classfile.OpReturn),
	)

	e := testEngine(t)
	unit, err := e.NewUnit(build(t, b))
	if err != nil {
		t.Fatal(err)
	}
	if len(unit.Synthetic) != 0 {
		t.Errorf("Synthetic = %v, want none", unit.Synthetic)
	}
	out, err := e.Rewrite(unit)
	if err != nil {
		t.Fatal(err)
	}

	pc := parse(t, out.Data)
	requireAll(t, "strings", pc.strings, []string{"com.example.Unknown"})
	requireAll(t, "refs", pc.refs, []string{"com/example/Util.helper:(Lcom/example/Plain;)V"})
	if out.Stats.Members != 0 || out.Stats.Strings != 0 {
		t.Errorf("Stats = %+v, want nothing rewritten", out.Stats)
	}
}

func TestEngineRewrite_Malformed(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	_, err := e.NewUnit([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00})
	if !errors.Is(err, ErrRewrite) || !errors.Is(err, classfile.ErrMalformed) {
		t.Errorf("NewUnit() error = %v, want ErrRewrite and ErrMalformed", err)
	}

	_, err = e.Rewrite(&Unit{Name: "broken/Class", Data: []byte("not a class")})
	var ue *UnitError
	if !errors.As(err, &ue) {
		t.Fatalf("Rewrite() error = %v, want *UnitError", err)
	}
	if ue.Class != "broken/Class" {
		t.Errorf("UnitError.Class = %q", ue.Class)
	}
}

func TestRewriteRefmap(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	in := []byte(`{
  // generated
  "mappings": {
    "net/example/mixin/EntityMixin": {
      "method_5773": "Lnet/minecraft/class_1297;method_5773()V",
      "unknown": "Lcom/example/Unknown;run()V"
    }
  },
  "data": {
    "named:intermediary": {
      "net/example/mixin/EntityMixin": {"field_6002": "field_6002"}
    }
  }
}`)
	out, changed, err := e.RewriteRefmap(in)
	if err != nil {
		t.Fatalf("RewriteRefmap() error = %v", err)
	}
	if changed != 2 {
		t.Errorf("changed = %d, want 2", changed)
	}
	for _, want := range []string{
		`"method_5773": "Lnet/minecraft/world/entity/Entity;tick()V"`,
		`"unknown": "Lcom/example/Unknown;run()V"`,
		`"field_6002": "level"`,
	} {
		if !strings.Contains(string(out), want) {
			t.Errorf("RewriteRefmap() output missing %s:\n%s", want, out)
		}
	}

	if _, _, err := e.RewriteRefmap([]byte("{")); err == nil {
		t.Error("RewriteRefmap() of truncated JSON succeeded")
	}
}

func TestRewriteAccessWidener(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	in := []byte("accessWidener v2 intermediary\n" +
		"# comment\n" +
		"accessible class net/minecraft/class_1297\n" +
		"accessible method net/minecraft/class_1937 method_8320 (Lnet/minecraft/class_2338;)V\n" +
		"transitive-mutable field net/minecraft/class_1297 field_6002 Lnet/minecraft/class_1937; # keep\n")
	out, err := e.RewriteAccessWidener(in)
	if err != nil {
		t.Fatalf("RewriteAccessWidener() error = %v", err)
	}
	want := "accessWidener\tv2\tsrg\n" +
		"# comment\n" +
		"accessible\tclass\tnet/minecraft/world/entity/Entity\n" +
		"accessible\tmethod\tnet/minecraft/world/level/Level\tgetBlockState\t(Lnet/minecraft/core/BlockPos;)V\n" +
		"transitive-mutable\tfield\tnet/minecraft/world/entity/Entity\tlevel\tLnet/minecraft/world/level/Level;\t# keep\n"
	if string(out) != want {
		t.Errorf("RewriteAccessWidener() =\n%s\nwant\n%s", out, want)
	}

	for _, bad := range []string{
		"accessWidener v2 intermediary\nbogus line\n",
		"accessible class a/B\n",
	} {
		if _, err := e.RewriteAccessWidener([]byte(bad)); !errors.Is(err, ErrAccessWidener) {
			t.Errorf("RewriteAccessWidener(%q) error = %v, want ErrAccessWidener", bad, err)
		}
	}
}
