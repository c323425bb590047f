// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/crossmod/crossmod/pkg/descriptor"
)

func TestParseOverrides(t *testing.T) {
	t.Parallel()

	o, err := ParseOverrides([]byte(`
version = 1

[packages.examplemod]
"+requires" = { fabric-api = "*", cloth-config = [">=11", "<13"] }
"-recommends" = ["modmenu"]
breaks = {}
`))
	if err != nil {
		t.Fatalf("ParseOverrides() error = %v", err)
	}
	po, ok := o["examplemod"]
	if !ok {
		t.Fatal("missing override for examplemod")
	}
	if len(po.Add) != 2 || po.Add[0].Target != "cloth-config" || po.Add[1].Target != "fabric-api" {
		t.Errorf("Add = %v", po.Add)
	}
	if got := po.Remove[descriptor.KindRecommends]; len(got) != 1 || got[0] != "modmenu" {
		t.Errorf("Remove = %v", po.Remove)
	}
	if got, ok := po.Replace[descriptor.KindConflicts]; !ok || len(got) != 0 {
		t.Errorf("Replace = %v", po.Replace)
	}
}

func TestOverridesApply(t *testing.T) {
	t.Parallel()

	o, err := ParseOverrides([]byte(`
version = 1
[packages.examplemod]
"+requires" = { fabric-api = ">=0.90" }
"-recommends" = ["modmenu"]
conflicts = { optifabric = "*" }
`))
	if err != nil {
		t.Fatal(err)
	}

	d := desc(t, "examplemod", "1.0.0",
		requires("fabric-api", ">=0.80"),
		requires("minecraft", "1.20.x"),
		recommends("modmenu", "*"),
		conflicts("sodium", "*"),
	)
	got := o.Apply(d)

	var lines []string
	for _, dep := range got.Dependencies {
		lines = append(lines, dep.String())
	}
	want := map[string]bool{
		"requires minecraft 1.20.x":  true,
		"requires fabric-api >=0.90": true,
		"conflicts optifabric *":     true,
	}
	if len(lines) != len(want) {
		t.Fatalf("dependencies = %v", lines)
	}
	for _, l := range lines {
		if !want[l] {
			t.Errorf("unexpected dependency %q in %v", l, lines)
		}
	}

	other := desc(t, "othermod", "1.0.0", requires("fabric-api", "*"))
	if o.Apply(other) != other {
		t.Error("Apply() should return packages without overrides unchanged")
	}
}

func TestParseOverrides_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"bad toml", "version = "},
		{"wrong version", "version = 2"},
		{"unknown key", "version = 1\n[packages.a]\nprovides = {}"},
		{"bad range", "version = 1\n[packages.a]\nrequires = { b = \">=banana\" }"},
		{"bad removal", "version = 1\n[packages.a]\n\"-requires\" = 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseOverrides([]byte(tt.data)); !errors.Is(err, ErrInvalidOverrides) {
				t.Errorf("ParseOverrides() error = %v, want ErrInvalidOverrides", err)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	o, err := LoadOverrides(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil || len(o) != 0 {
		t.Fatalf("LoadOverrides(missing) = %v, %v", o, err)
	}

	path := filepath.Join(t.TempDir(), "overrides.toml")
	if err := os.WriteFile(path, []byte("version = 1\n[packages.a]\n\"+requires\" = { b = \"*\" }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	o, err = LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}
	if len(o["a"].Add) != 1 {
		t.Errorf("LoadOverrides() = %v", o)
	}
}
