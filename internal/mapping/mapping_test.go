// SPDX-License-Identifier: MPL-2.0

package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

const sampleTable = `
namespaces: {guest: intermediary, host: srg}
classes:
  net/minecraft/class_1297: net/minecraft/world/entity/Entity
  net/minecraft/class_1937: net/minecraft/world/level/Level
  net/minecraft/class_2338: net/minecraft/core/BlockPos
fields:
  - {owner: net/minecraft/class_1297, name: field_6002, target: level}
  - {owner: net/minecraft/class_1297, name: field_5960, target: noPhysics}
  - {owner: net/minecraft/class_2338, name: field_10980, target: ZERO}
  - {owner: net/minecraft/class_1937, name: field_9236, target: isClientSide}
methods:
  - {owner: net/minecraft/class_1297, name: method_5773, desc: ()V, target: tick}
  - {owner: net/minecraft/class_1297, name: method_5770, desc: ()Lnet/minecraft/class_1937;, target: level}
  - {owner: net/minecraft/class_1937, name: method_8320, desc: (Lnet/minecraft/class_2338;)V, target: getBlockState}
  - {owner: net/minecraft/class_2338, name: method_10069, desc: (III)Lnet/minecraft/class_2338;, target: offset}
  - {owner: net/minecraft/class_1937, name: method_10069, desc: (III)V, target: scheduleTick}
`

func mustParse(t *testing.T) *Index {
	t.Helper()
	ix, err := Parse([]byte(sampleTable), "sample.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return ix
}

func TestIndexLookups(t *testing.T) {
	t.Parallel()

	ix := mustParse(t)

	if got := ix.MapClass("net/minecraft/class_1297"); got != "net/minecraft/world/entity/Entity" {
		t.Errorf("MapClass() = %q", got)
	}
	if got := ix.MapClass("net/minecraft/class_1297$class_1298"); got != "net/minecraft/world/entity/Entity$class_1298" {
		t.Errorf("MapClass(nested) = %q", got)
	}
	if got := ix.MapClass("com/example/Unknown"); got != "com/example/Unknown" {
		t.Errorf("MapClass(unknown) = %q", got)
	}
	if got, ok := ix.Field("net/minecraft/class_1297", "field_6002"); !ok || got != "level" {
		t.Errorf("Field() = %q, %v", got, ok)
	}
	if got, ok := ix.Method("net/minecraft/class_1297", "method_5770", "()Lnet/minecraft/class_1937;"); !ok || got != "level" {
		t.Errorf("Method() = %q, %v", got, ok)
	}
	if _, ok := ix.Method("net/minecraft/class_1297", "method_5770", "()V"); ok {
		t.Error("Method() with a different descriptor should not match")
	}
	if !ix.DeclaresMembers("net/minecraft/class_2338") || ix.DeclaresMembers("com/example/Unknown") {
		t.Error("DeclaresMembers() returned unexpected results")
	}
	if got := ix.MapDesc("(Lnet/minecraft/class_2338;[Lnet/minecraft/class_1297;I)Ljava/lang/String;"); got !=
		"(Lnet/minecraft/core/BlockPos;[Lnet/minecraft/world/entity/Entity;I)Ljava/lang/String;" {
		t.Errorf("MapDesc() = %q", got)
	}

	classes, fields, methods := ix.Size()
	if classes != 3 || fields != 4 || methods != 5 {
		t.Errorf("Size() = %d, %d, %d", classes, fields, methods)
	}
}

func TestIndexReverse(t *testing.T) {
	t.Parallel()

	rev := mustParse(t).Reverse()

	if ns := rev.Namespaces(); ns.Guest != "srg" || ns.Host != "intermediary" {
		t.Errorf("Namespaces() = %+v", ns)
	}
	if got := rev.MapClass("net/minecraft/world/level/Level"); got != "net/minecraft/class_1937" {
		t.Errorf("MapClass() = %q", got)
	}
	if got, ok := rev.Field("net/minecraft/world/entity/Entity", "level"); !ok || got != "field_6002" {
		t.Errorf("Field() = %q, %v", got, ok)
	}
	got, ok := rev.Method("net/minecraft/world/level/Level", "getBlockState", "(Lnet/minecraft/core/BlockPos;)V")
	if !ok || got != "method_8320" {
		t.Errorf("Method() = %q, %v", got, ok)
	}
}

func TestFlatIndex(t *testing.T) {
	t.Parallel()

	flat := mustParse(t).Flat()

	if got, ok := flat.Field("field_10980"); !ok || got != "ZERO" {
		t.Errorf("Field() = %q, %v", got, ok)
	}
	if got, ok := flat.Method("method_5773"); !ok || got != "tick" {
		t.Errorf("Method() = %q, %v", got, ok)
	}
	if got, ok := flat.Class("net/minecraft/class_2338"); !ok || got != "net/minecraft/core/BlockPos" {
		t.Errorf("Class() = %q, %v", got, ok)
	}
	// method_10069 maps to two different targets depending on the owner.
	if _, ok := flat.Method("method_10069"); ok {
		t.Error("ambiguous method name should not be in the flat view")
	}
	if !slices.Equal(flat.Ambiguous(), []string{"method_10069"}) {
		t.Errorf("Ambiguous() = %v", flat.Ambiguous())
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "classes: [\n"},
		{"empty class target", "classes: {a/B: ''}"},
		{"field without owner", "fields: [{name: f, target: g}]"},
		{"method without desc", "methods: [{owner: a/B, name: m, target: n}]"},
		{"method with field desc", "methods: [{owner: a/B, name: m, desc: I, target: n}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Parse([]byte(tt.data), "bad.yaml"); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("Parse() error = %v, want ErrInvalidTable", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mappings.yaml")
	if err := os.WriteFile(path, []byte(sampleTable), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestMapDescriptor(t *testing.T) {
	t.Parallel()

	upper := func(s string) string { return s + "X" }
	tests := []struct {
		in, want string
	}{
		{"I", "I"},
		{"La/B;", "La/BX;"},
		{"(La/B;[[Lc/D;J)V", "(La/BX;[[Lc/DX;J)V"},
		{"La/B", "La/B"},
	}
	for _, tt := range tests {
		if got := MapDescriptor(tt.in, upper); got != tt.want {
			t.Errorf("MapDescriptor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if !IsMethodDescriptor("()V") || IsMethodDescriptor("I") {
		t.Error("IsMethodDescriptor() returned unexpected results")
	}
}
