// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/crossmod/crossmod/internal/alias"
	"github.com/crossmod/crossmod/internal/candidate"
	"github.com/crossmod/crossmod/pkg/descriptor"
	"github.com/crossmod/crossmod/pkg/semver"
)

var testPlatform = candidate.Platform{RuntimeVersion: "21", LoaderVersion: "0.15.11"}

func desc(t *testing.T, id, version string, deps ...descriptor.Dependency) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.Builtin(id, version, "")
	if err != nil {
		t.Fatal(err)
	}
	return d.WithDependencies(deps)
}

func requires(target, rng string) descriptor.Dependency {
	return descriptor.Dependency{Kind: descriptor.KindRequires, Target: target, Range: semver.MustParseRange(rng)}
}

func conflicts(target, rng string) descriptor.Dependency {
	return descriptor.Dependency{Kind: descriptor.KindConflicts, Target: target, Range: semver.MustParseRange(rng)}
}

func recommends(target, rng string) descriptor.Dependency {
	return descriptor.Dependency{Kind: descriptor.KindRecommends, Target: target, Range: semver.MustParseRange(rng)}
}

func graph(t *testing.T, pkgs []*descriptor.Descriptor, emb map[string][]*descriptor.Descriptor) []*candidate.Candidate {
	t.Helper()
	var toLoad []candidate.Package
	for _, d := range pkgs {
		toLoad = append(toLoad, candidate.Package{Descriptor: d, Path: "/mods/" + d.ID + ".jar"})
	}
	embeddings := candidate.Embeddings{}
	for _, d := range pkgs {
		for _, child := range emb[d.ID] {
			embeddings[d.Identity()] = append(embeddings[d.Identity()], candidate.Package{Descriptor: child, Path: "/nested/" + child.ID + ".jar"})
		}
	}
	g := candidate.NewBuilder(nil).Build(toLoad, embeddings)
	if err := g.WithHostPackages(nil, testPlatform); err != nil {
		t.Fatal(err)
	}
	return g.All()
}

func TestResolve_UnconstrainedPackagesAreAccepted(t *testing.T) {
	t.Parallel()

	pkgs := []*descriptor.Descriptor{
		desc(t, "alpha", "1.0.0"),
		desc(t, "beta", "0.1"),
		desc(t, "gamma", "snapshot"),
	}
	res, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvClient, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	ids := res.IDs()
	for _, want := range []string{"alpha", "beta", "gamma", candidate.RuntimeID, candidate.LoaderShimID} {
		if !slices.Contains(ids, want) {
			t.Errorf("accepted set %v is missing %s", ids, want)
		}
	}
	if len(res.Guest()) != 3 {
		t.Errorf("Guest() = %d, want 3", len(res.Guest()))
	}
}

func TestResolve_WrongVersionMentionsBothPackages(t *testing.T) {
	t.Parallel()

	pkgs := []*descriptor.Descriptor{
		desc(t, "alpha", "1.0.0", requires("beta", ">=2.0")),
		desc(t, "beta", "1.0"),
		desc(t, "gamma", "3.0.0"),
	}
	_, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil)
	if !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("Resolve() error = %v, want ErrUnsatisfiable", err)
	}

	msg := Explain(err)
	for _, want := range []string{"alpha@1.0.0", "beta@1.0", ">=2.0"} {
		if !strings.Contains(msg, want) {
			t.Errorf("explanation %q does not mention %q", msg, want)
		}
	}
	if strings.Contains(msg, "\t") {
		t.Error("explanation still contains tabs")
	}

	var f *Failure
	if !errors.As(err, &f) || len(f.Packages) != 2 {
		t.Errorf("failure packages = %v", f)
	}
}

func TestResolve_AliasedRequirementIsWidened(t *testing.T) {
	t.Parallel()

	table := alias.Table{"beta": {"beta-legacy"}}
	var registry alias.Registry
	registry.Register(table)

	pkgs := []*descriptor.Descriptor{
		alias.Normalize(desc(t, "alpha", "1.0.0", requires("beta", ">=2.0")), table),
		alias.Normalize(desc(t, "beta", "1.0"), table),
		alias.Normalize(desc(t, "gamma", "3.0.0"), table),
	}
	res, err := NewBacktracking(&registry, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	ids := res.IDs()
	if !slices.Contains(ids, "alpha") || !slices.Contains(ids, "beta") {
		t.Errorf("accepted = %v", ids)
	}
	// beta loads before alpha.
	if slices.Index(ids, "beta") > slices.Index(ids, "alpha") {
		t.Errorf("load order = %v", ids)
	}
}

func TestResolve_AliasProvidesIdentity(t *testing.T) {
	t.Parallel()

	var registry alias.Registry
	registry.Register(alias.Table{"forgeconfigapiport": {"fabric-config-api"}})

	pkgs := []*descriptor.Descriptor{
		desc(t, "consumer", "1.0.0", requires("fabric-config-api", "*")),
		desc(t, "forgeconfigapiport", "8.0.0"),
	}
	if _, err := NewBacktracking(&registry, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil); err == nil {
		t.Fatal("Resolve() without the alias registry should fail")
	}
}

func TestResolve_ProvidesAndBuiltins(t *testing.T) {
	t.Parallel()

	provider := desc(t, "sodium", "0.5.8")
	provider.Provides = []string{"rubidium"}
	pkgs := []*descriptor.Descriptor{
		desc(t, "addon", "1.0.0",
			requires("rubidium", ">=0.5"),
			requires(candidate.RuntimeID, ">=17"),
			requires(candidate.LoaderShimID, ">=0.15.7")),
		provider,
	}
	res, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ids := res.IDs(); ids[len(ids)-1] != "addon" {
		t.Errorf("addon should load last, got %v", ids)
	}
}

func TestResolve_Conflict(t *testing.T) {
	t.Parallel()

	pkgs := []*descriptor.Descriptor{
		desc(t, "alpha", "1.0.0", conflicts("beta", "<2.0")),
		desc(t, "beta", "1.5.0"),
	}
	_, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil)
	if err == nil || !strings.Contains(err.Error(), "conflicts with beta@1.5.0") {
		t.Fatalf("Resolve() error = %v", err)
	}
}

func TestResolve_MissingDependency(t *testing.T) {
	t.Parallel()

	pkgs := []*descriptor.Descriptor{desc(t, "alpha", "1.0.0", requires("fabric-api", "*"))}
	_, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil)
	if err == nil || !strings.Contains(err.Error(), "requires fabric-api *, which is missing") {
		t.Fatalf("Resolve() error = %v", err)
	}
}

func TestResolve_DuplicateStandalone(t *testing.T) {
	t.Parallel()

	pkgs := []*descriptor.Descriptor{desc(t, "alpha", "1.0.0"), desc(t, "alpha", "2.0.0")}
	_, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil)
	if err == nil || !strings.Contains(err.Error(), "alpha@1.0.0") || !strings.Contains(err.Error(), "alpha@2.0.0") {
		t.Fatalf("Resolve() error = %v", err)
	}
}

func TestResolve_NestedVersionBacktracking(t *testing.T) {
	t.Parallel()

	libNew := desc(t, "lib", "2.0.0")
	libOld := desc(t, "lib", "1.4.0")
	pkgs := []*descriptor.Descriptor{
		desc(t, "first", "1.0.0"),
		desc(t, "second", "1.0.0", requires("lib", "<2")),
	}
	emb := map[string][]*descriptor.Descriptor{
		"first":  {libNew},
		"second": {libOld},
	}
	res, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, emb), descriptor.EnvAny, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for _, c := range res.Accepted {
		if c.ID() == "lib" && c.Descriptor.Version.String() != "1.4.0" {
			t.Errorf("selected lib %s, want 1.4.0", c.Descriptor.Version)
		}
	}
}

func TestResolve_EnvironmentFiltering(t *testing.T) {
	t.Parallel()

	clientOnly := desc(t, "hud", "1.0.0")
	clientOnly.Environment = descriptor.EnvClient
	pkgs := []*descriptor.Descriptor{clientOnly, desc(t, "core", "1.0.0")}

	res, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvServer, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if slices.Contains(res.IDs(), "hud") {
		t.Error("client-only package accepted on the server")
	}
	if len(res.Disabled) != 1 || res.Disabled[0].ID() != "hud" {
		t.Errorf("Disabled = %v", res.Disabled)
	}

	dependent := []*descriptor.Descriptor{clientOnly, desc(t, "core", "1.0.0", requires("hud", "*"))}
	_, err = NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, dependent, nil), descriptor.EnvServer, nil)
	if err == nil || !strings.Contains(err.Error(), "not available in this environment") {
		t.Fatalf("Resolve() error = %v", err)
	}
}

func TestResolve_RecommendationsWarn(t *testing.T) {
	t.Parallel()

	pkgs := []*descriptor.Descriptor{desc(t, "alpha", "1.0.0", recommends("modmenu", "*"))}
	res, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "modmenu") {
		t.Errorf("Warnings = %v", res.Warnings)
	}
}

func TestResolve_Overrides(t *testing.T) {
	t.Parallel()

	overrides, err := ParseOverrides([]byte(`
version = 1
[packages.alpha]
"-requires" = ["beta"]
`))
	if err != nil {
		t.Fatalf("ParseOverrides() error = %v", err)
	}
	pkgs := []*descriptor.Descriptor{
		desc(t, "alpha", "1.0.0", requires("beta", ">=2.0")),
		desc(t, "beta", "1.0"),
	}
	if _, err := NewBacktracking(nil, nil).Resolve(context.Background(), graph(t, pkgs, nil), descriptor.EnvAny, overrides); err != nil {
		t.Fatalf("Resolve() with overrides error = %v", err)
	}
}

func TestResolve_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pkgs := []*descriptor.Descriptor{desc(t, "alpha", "1.0.0")}
	if _, err := NewBacktracking(nil, nil).Resolve(ctx, graph(t, pkgs, nil), descriptor.EnvAny, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Resolve() error = %v, want context.Canceled", err)
	}
}

func TestExplain(t *testing.T) {
	t.Parallel()

	if got := Explain(&Failure{Explanation: "a\n\t- b\n\t\t- c"}); got != "a\n  - b\n    - c" {
		t.Errorf("Explain() = %q", got)
	}
	if got := Explain(errors.New("x\ty")); got != "x  y" {
		t.Errorf("Explain() = %q", got)
	}
}
