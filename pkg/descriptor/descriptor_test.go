// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/crossmod/crossmod/pkg/semver"
)

const sampleDescriptor = `{
	// comments are tolerated
	"schemaVersion": 1,
	"id": "example-mod",
	"version": "1.4.2+mc1.20.1",
	"name": "Example Mod",
	"environment": "client",
	"provides": ["example"],
	"depends": {
		"fabricloader": ">=0.14",
		"minecraft": ["1.20.x", "1.21.x"]
	},
	"suggests": { "modmenu": "*" },
	"breaks": { "optifabric": "*" },
	"jars": [ { "file": "META-INF/jars/lib.jar" } ],
	"mixins": [
		"example.mixins.json",
		{ "config": "example.client.mixins.json", "environment": "client" },
	],
	"custom": { "fabric-loom:generated": true }
}`

func TestParse(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte(sampleDescriptor), "example.jar!/fabric.mod.json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if d.ID != "example-mod" {
		t.Errorf("ID = %q, want %q", d.ID, "example-mod")
	}
	if got := d.Version.String(); got != "1.4.2+mc1.20.1" {
		t.Errorf("Version = %q", got)
	}
	if d.Environment != EnvClient {
		t.Errorf("Environment = %q, want client", d.Environment)
	}
	if !d.ProvidesID("example") || !d.ProvidesID("example-mod") || d.ProvidesID("other") {
		t.Error("ProvidesID() returned unexpected results")
	}
	if len(d.Jars) != 1 || d.Jars[0].File != "META-INF/jars/lib.jar" {
		t.Errorf("Jars = %+v", d.Jars)
	}

	requires := d.DependenciesOf(KindRequires)
	if len(requires) != 2 {
		t.Fatalf("requires = %v, want 2 entries", requires)
	}
	// Sorted by target.
	if requires[0].Target != "fabricloader" || requires[1].Target != "minecraft" {
		t.Errorf("requires order = %v", requires)
	}
	if !requires[1].Range.Matches(semver.MustParseVersion("1.21.4")) {
		t.Error("minecraft range should accept 1.21.4")
	}
	if requires[1].Range.Matches(semver.MustParseVersion("1.19.2")) {
		t.Error("minecraft range should reject 1.19.2")
	}
	if got := d.DependenciesOf(KindRecommends); len(got) != 1 || got[0].Target != "modmenu" {
		t.Errorf("recommends = %v", got)
	}
	if got := d.DependenciesOf(KindConflicts); len(got) != 1 || got[0].Target != "optifabric" {
		t.Errorf("conflicts = %v", got)
	}

	if got := d.MixinConfigs(EnvServer); len(got) != 1 || got[0] != "example.mixins.json" {
		t.Errorf("MixinConfigs(server) = %v", got)
	}
	if got := d.MixinConfigs(EnvClient); len(got) != 2 {
		t.Errorf("MixinConfigs(client) = %v", got)
	}
	if v, ok := d.CustomBool("fabric-loom:generated"); !v || !ok {
		t.Errorf("CustomBool() = %v, %v", v, ok)
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte(`{"id": "tiny", "version": "snapshot-7"}`), "tiny.jar")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if d.Environment != EnvAny {
		t.Errorf("Environment = %q, want *", d.Environment)
	}
	if d.Version.IsSemantic() {
		t.Error("snapshot-7 should parse as an opaque version")
	}
	if d.DisplayName() != "tiny" {
		t.Errorf("DisplayName() = %q", d.DisplayName())
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"id": `},
		{"missing id", `{"version": "1.0.0"}`},
		{"missing version", `{"id": "example"}`},
		{"bad id", `{"id": "Bad Id", "version": "1.0.0"}`},
		{"bad environment", `{"id": "example", "version": "1.0.0", "environment": "both"}`},
		{"bad schema version", `{"schemaVersion": 2, "id": "example", "version": "1.0.0"}`},
		{"bad range", `{"id": "example", "version": "1.0.0", "depends": {"other": ">=banana"}}`},
		{"bad depends type", `{"id": "example", "version": "1.0.0", "depends": {"other": 3}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.data), "broken.jar")
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("errors.Is(err, ErrInvalidDescriptor) = false for %v", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) || pe.Source != "broken.jar" {
				t.Errorf("expected *ParseError with source, got %T", err)
			}
		})
	}
}

func TestEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env, target Environment
		want        bool
	}{
		{EnvClient, EnvClient, true},
		{EnvClient, EnvServer, false},
		{EnvAny, EnvServer, true},
		{"", EnvClient, true},
		{EnvServer, EnvAny, true},
	}
	for _, tt := range tests {
		if got := tt.env.Matches(tt.target); got != tt.want {
			t.Errorf("%q.Matches(%q) = %v, want %v", tt.env, tt.target, got, tt.want)
		}
	}

	if err := Environment("both").Validate(); !errors.Is(err, ErrInvalidEnvironment) {
		t.Errorf("Validate() = %v, want ErrInvalidEnvironment", err)
	}
	if err := DependencyKind("breaks").Validate(); !errors.Is(err, ErrInvalidDependencyKind) {
		t.Errorf("Validate() = %v, want ErrInvalidDependencyKind", err)
	}
}

func TestWithDependencies(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte(sampleDescriptor), "example.jar")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	before := len(d.Dependencies)

	cp := d.WithDependencies(nil)
	if len(cp.Dependencies) != 0 {
		t.Errorf("copy has %d dependencies", len(cp.Dependencies))
	}
	if len(d.Dependencies) != before {
		t.Error("original descriptor was modified")
	}
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	d, err := Builtin("java", "21", "Java")
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	if d.Identity().String() != "java@21" {
		t.Errorf("Identity() = %s", d.Identity())
	}
	if _, err := Builtin("java", "", "Java"); err == nil {
		t.Error("Builtin() with empty version should fail")
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	out, err := Schema()
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if !strings.Contains(string(out), `"depends"`) {
		t.Error("schema does not describe the depends field")
	}
}

func TestKindFromKey(t *testing.T) {
	t.Parallel()

	tests := map[string]DependencyKind{
		"depends":    KindRequires,
		"requires":   KindRequires,
		"suggests":   KindRecommends,
		"recommends": KindRecommends,
		"breaks":     KindConflicts,
		"conflicts":  KindConflicts,
	}
	for key, want := range tests {
		if got, ok := KindFromKey(key); !ok || got != want {
			t.Errorf("KindFromKey(%q) = %q, %v", key, got, ok)
		}
	}
	if _, ok := KindFromKey("provides"); ok {
		t.Error("KindFromKey(provides) should not be recognized")
	}
}
