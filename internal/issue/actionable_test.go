// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  &ActionableError{Operation: "resolve packages"},
			want: "failed to resolve packages",
		},
		{
			name: "resource",
			err:  &ActionableError{Operation: "load mapping table", Resource: "mappings.yaml"},
			want: "failed to load mapping table: mappings.yaml",
		},
		{
			name: "package and cause",
			err: &ActionableError{
				Operation: "read package descriptor",
				Package:   "alpha",
				Cause:     errors.New("missing id"),
			},
			want: "failed to read package descriptor for alpha: missing id",
		},
		{
			name: "everything",
			err: &ActionableError{
				Operation: "rewrite jar",
				Package:   "beta",
				Resource:  "mods/beta.jar",
				Cause:     errors.New("truncated class"),
			},
			want: "failed to rewrite jar for beta: mods/beta.jar: truncated class",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	err := NewErrorContext().
		WithOperation("read host packages").
		Wrap(fmt.Errorf("open host.cue: %w", fs.ErrNotExist)).
		BuildError()

	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("errors.Is(%v, fs.ErrNotExist) = false", err)
	}
	var ae *ActionableError
	if !errors.As(err, &ae) || ae.Operation != "read host packages" {
		t.Errorf("errors.As() = %v", ae)
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	ae := &ActionableError{
		Operation:   "load configuration",
		Resource:    "config.cue",
		Suggestions: []string{"Check the CUE syntax", "Run 'crossmod config schema'"},
		Cause:       fmt.Errorf("decode: %w", errors.New("unexpected token")),
	}

	short := ae.Format(false)
	want := "failed to load configuration: config.cue: decode: unexpected token\n\n" +
		"  • Check the CUE syntax\n" +
		"  • Run 'crossmod config schema'"
	if short != want {
		t.Errorf("Format(false) =\n%s\nwant\n%s", short, want)
	}

	verbose := ae.Format(true)
	if !strings.HasPrefix(verbose, short) {
		t.Errorf("Format(true) should extend Format(false):\n%s", verbose)
	}
	for _, line := range []string{"Error chain:", "  1. decode: unexpected token", "  2. unexpected token"} {
		if !strings.Contains(verbose, line) {
			t.Errorf("Format(true) missing %q:\n%s", line, verbose)
		}
	}

	bare := (&ActionableError{Operation: "scan mods"}).Format(true)
	if bare != "failed to scan mods" {
		t.Errorf("Format(true) without cause = %q", bare)
	}
}

func TestErrorContext_BuildError(t *testing.T) {
	t.Parallel()

	if err := NewErrorContext().WithResource("x").Wrap(errors.New("y")).BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v, want nil", err)
	}

	ctx := NewErrorContext().
		WithOperation("locate packages").
		WithResource("mods").
		WithPackage("alpha").
		WithIssue(ModsDirNotFoundId).
		WithSuggestion("Create the directory")
	first := ctx.BuildError()
	ctx.WithSuggestion("Set mods_dir")
	second := ctx.BuildError()

	var a, b *ActionableError
	if !errors.As(first, &a) || !errors.As(second, &b) {
		t.Fatal("BuildError() did not return an *ActionableError")
	}
	if len(a.Suggestions) != 1 || len(b.Suggestions) != 2 {
		t.Errorf("suggestions = %v / %v, built errors must not share state", a.Suggestions, b.Suggestions)
	}
	if a.Package != "alpha" || a.Resource != "mods" || a.Issue != ModsDirNotFoundId {
		t.Errorf("fields = %+v", a)
	}
}

func TestIssueOf(t *testing.T) {
	t.Parallel()

	inner := NewErrorContext().
		WithOperation("load mapping table").
		WithIssue(MappingLoadFailedId).
		Wrap(errors.New("bad yaml")).
		BuildError()
	outer := NewErrorContext().
		WithOperation("prepare run").
		Wrap(fmt.Errorf("context: %w", inner)).
		BuildError()

	tests := []struct {
		name string
		err  error
		want Id
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 0},
		{"direct", inner, MappingLoadFailedId},
		{"wrapped", fmt.Errorf("run: %w", inner), MappingLoadFailedId},
		{"nested under an error without issue", outer, MappingLoadFailedId},
		{"no issue attached", NewErrorContext().WithOperation("x").BuildError(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IssueOf(tt.err); got != tt.want {
				t.Errorf("IssueOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
