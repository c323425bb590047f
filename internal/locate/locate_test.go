// SPDX-License-Identifier: MPL-2.0

package locate

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/crossmod/crossmod/internal/alias"
	"github.com/crossmod/crossmod/pkg/descriptor"

	"github.com/klauspost/compress/zip"
)

type entry struct {
	name string
	data string
}

func jarBytes(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("Create(%s) error = %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.data)); err != nil {
			t.Fatalf("Write(%s) error = %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

func writeJar(t *testing.T, path string, entries ...entry) {
	t.Helper()
	if err := os.WriteFile(path, jarBytes(t, entries...), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func newLocator(t *testing.T, aliases alias.Table) *Locator {
	t.Helper()
	return NewLocator(Options{Environment: descriptor.EnvClient, Aliases: aliases, ExtractDir: t.TempDir()}, nil)
}

func TestScan(t *testing.T) {
	t.Parallel()

	mods := t.TempDir()
	child := jarBytes(t,
		entry{descriptor.FileName, `{"id": "child", "version": "2.0.0"}`},
	)
	library := jarBytes(t, entry{"lib/Util.class", "x"})
	writeJar(t, filepath.Join(mods, "b-parent.jar"),
		entry{descriptor.FileName, `{
			// comments are tolerated
			"schemaVersion": 1,
			"id": "parent",
			"version": "1.0.0",
			"depends": {"child": ">=2", "cloth-config": ">=11"},
			"jars": [{"file": "META-INF/jars/child.jar"}, {"file": "META-INF/jars/lib.jar"}],
			"mixins": ["parent.mixins.json", {"config": "parent.server.mixins.json", "environment": "server"}],
			"accessWidener": "parent.accesswidener"
		}`},
		entry{"META-INF/MANIFEST.MF", "Manifest-Version: 1.0\r\n\r\n"},
		entry{"META-INF/jars/child.jar", string(child)},
		entry{"META-INF/jars/lib.jar", string(library)},
		entry{"parent.mixins.json", `{"package": "net.example.mixin", "refmap": "parent-refmap.json"}`},
		entry{"parent.server.mixins.json", `{"package": "net.example.server"}`},
		entry{"mixins.extra.json", `{"package": "net.example.extra", "refmap": "parent-refmap.json"}`},
		entry{"assets/parent/nested.mixins.json", `{"package": "net.example.nested"}`},
		entry{"assets/parent/mixins.ignored.json", `{}`},
	)
	writeJar(t, filepath.Join(mods, "a-plain.jar"), entry{"lib/A.class", "x"})
	if err := os.WriteFile(filepath.Join(mods, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := newLocator(t, alias.Table{"cloth-config": {"cloth-config2"}}).Scan(context.Background(), mods)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(res.Packages) != 1 {
		t.Fatalf("Scan() packages = %d, want 1", len(res.Packages))
	}
	if want := []string{filepath.Join(mods, "a-plain.jar")}; !slices.Equal(res.Skipped, want) {
		t.Errorf("Skipped = %v, want %v", res.Skipped, want)
	}

	parent := res.Packages[0]
	if parent.Descriptor.ID != "parent" {
		t.Errorf("ID = %q, want parent", parent.Descriptor.ID)
	}
	wantConfigs := []string{"parent.mixins.json", "mixins.extra.json", "assets/parent/nested.mixins.json"}
	if !slices.Equal(parent.MixinConfigs, wantConfigs) {
		t.Errorf("MixinConfigs = %v, want %v", parent.MixinConfigs, wantConfigs)
	}
	if want := []string{"parent-refmap.json"}; !slices.Equal(parent.Refmaps, want) {
		t.Errorf("Refmaps = %v, want %v", parent.Refmaps, want)
	}
	wantPackages := []string{"net/example/mixin/", "net/example/extra/", "net/example/nested/"}
	if !slices.Equal(parent.MixinPackages, wantPackages) {
		t.Errorf("MixinPackages = %v, want %v", parent.MixinPackages, wantPackages)
	}
	if parent.AccessWidener != "parent.accesswidener" {
		t.Errorf("AccessWidener = %q", parent.AccessWidener)
	}
	if parent.Generated {
		t.Error("Generated = true, want false")
	}
	if got := parent.Manifest["Manifest-Version"]; got != "1.0" {
		t.Errorf("Manifest-Version = %q, want 1.0", got)
	}

	for _, dep := range parent.Descriptor.Dependencies {
		if dep.Target == "cloth-config" && dep.Range.String() != "*" {
			t.Errorf("aliased dependency range = %q, want *", dep.Range.String())
		}
	}

	nested := res.Embeddings[parent.Descriptor.Identity()]
	if len(nested) != 1 {
		t.Fatalf("nested = %d, want 1", len(nested))
	}
	if nested[0].Descriptor.ID != "child" {
		t.Errorf("nested ID = %q, want child", nested[0].Descriptor.ID)
	}
	childPkg, ok := res.Lookup(nested[0].Path)
	if !ok {
		t.Fatalf("Lookup(%s) found nothing", nested[0].Path)
	}
	if childPkg.Parent != parent.Path {
		t.Errorf("child Parent = %q, want %q", childPkg.Parent, parent.Path)
	}
	if n := len(res.All()); n != 2 {
		t.Errorf("All() = %d, want 2", n)
	}
	if n := len(res.ToLoad()); n != 1 {
		t.Errorf("ToLoad() = %d, want 1", n)
	}
}

func TestIsMixinConfigName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"example.mixins.json", true},
		{"assets/example/example.mixins.json", true},
		{"mixins.example.json", true},
		{"assets/example/mixins.example.json", false},
		{"example.json", false},
		{"example.mixins.json.bak", false},
	}
	for _, tt := range tests {
		if got := isMixinConfigName(tt.name); got != tt.want {
			t.Errorf("isMixinConfigName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScan_SharedNestedExtractedOnce(t *testing.T) {
	t.Parallel()

	mods := t.TempDir()
	child := jarBytes(t, entry{descriptor.FileName, `{"id": "shared", "version": "1.0.0"}`})
	for _, id := range []string{"one", "two"} {
		writeJar(t, filepath.Join(mods, id+".jar"),
			entry{descriptor.FileName, `{"id": "` + id + `", "version": "1.0.0", "jars": [{"file": "META-INF/jars/shared.jar"}]}`},
			entry{"META-INF/jars/shared.jar", string(child)},
		)
	}

	res, err := newLocator(t, nil).Scan(context.Background(), mods)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(res.Packages) != 2 {
		t.Fatalf("Scan() packages = %d, want 2", len(res.Packages))
	}
	one := res.Embeddings[res.Packages[0].Descriptor.Identity()]
	two := res.Embeddings[res.Packages[1].Descriptor.Identity()]
	if len(one) != 1 || len(two) != 1 {
		t.Fatalf("nested = %d and %d, want 1 each", len(one), len(two))
	}
	if one[0].Path != two[0].Path {
		t.Errorf("shared archive extracted twice: %s and %s", one[0].Path, two[0].Path)
	}
	if n := len(res.All()); n != 3 {
		t.Errorf("All() = %d, want 3", n)
	}
}

func TestScan_InvalidDescriptor(t *testing.T) {
	t.Parallel()

	mods := t.TempDir()
	writeJar(t, filepath.Join(mods, "broken.jar"), entry{descriptor.FileName, `{"id": "Broken Id"}`})

	_, err := newLocator(t, nil).Scan(context.Background(), mods)
	if !errors.Is(err, descriptor.ErrInvalidDescriptor) {
		t.Fatalf("Scan() error = %v, want ErrInvalidDescriptor", err)
	}
	var perr *descriptor.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Scan() error %T is not a *descriptor.ParseError", err)
	}
	if !strings.Contains(perr.Source, "broken.jar!/fabric.mod.json") {
		t.Errorf("Source = %q", perr.Source)
	}
}

func TestScan_InvalidMixinConfig(t *testing.T) {
	t.Parallel()

	mods := t.TempDir()
	writeJar(t, filepath.Join(mods, "m.jar"),
		entry{descriptor.FileName, `{"id": "m", "version": "1.0.0"}`},
		entry{"m.mixins.json", `{"package": `},
	)
	if _, err := newLocator(t, nil).Scan(context.Background(), mods); !errors.Is(err, ErrMixinConfig) {
		t.Errorf("Scan() error = %v, want ErrMixinConfig", err)
	}
}

func TestScan_Canceled(t *testing.T) {
	t.Parallel()

	mods := t.TempDir()
	writeJar(t, filepath.Join(mods, "m.jar"), entry{descriptor.FileName, `{"id": "m", "version": "1.0.0"}`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newLocator(t, nil).Scan(ctx, mods); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}

func TestGenerated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		custom   string
		manifest string
		want     bool
	}{
		{"not generated", `{}`, "", false},
		{"generated without attribute", `{"fabric-loom:generated": true}`, "Manifest-Version: 1.0\n", true},
		{"generated and remapped at runtime", `{"fabric-loom:generated": true}`, "Fabric-Loom-Remap: true\n", false},
		{"generated with other attribute value", `{"fabric-loom:generated": true}`, "Fabric-Loom-Remap: false\n", true},
		{"non boolean marker", `{"fabric-loom:generated": "yes"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "g.jar")
			entries := []entry{{descriptor.FileName, `{"id": "g", "version": "1.0.0", "custom": ` + tt.custom + `}`}}
			if tt.manifest != "" {
				entries = append(entries, entry{"META-INF/MANIFEST.MF", tt.manifest})
			}
			writeJar(t, path, entries...)

			p, _, err := newLocator(t, nil).Read(path)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if p.Generated != tt.want {
				t.Errorf("Generated = %v, want %v", p.Generated, tt.want)
			}
		})
	}
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	got := ParseManifest([]byte("Manifest-Version: 1.0\r\nImplementation-Title: a very long\r\n  title\r\n\r\nName: a/B.class\r\nX: y\r\n"))
	want := map[string]string{
		"Manifest-Version":     "1.0",
		"Implementation-Title": "a very long title",
	}
	if !maps.Equal(got, want) {
		t.Errorf("ParseManifest() = %v, want %v", got, want)
	}
}
