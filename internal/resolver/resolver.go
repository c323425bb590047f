// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/crossmod/crossmod/internal/candidate"
	"github.com/crossmod/crossmod/pkg/descriptor"
)

// ErrUnsatisfiable is the sentinel error wrapped by Failure.
var ErrUnsatisfiable = errors.New("unsatisfiable package constraints")

type (
	// ConstraintResolver selects a consistent, ordered load set from a candidate list.
	ConstraintResolver interface {
		// Resolve returns the accepted candidates in load order, or a *Failure.
		Resolve(ctx context.Context, candidates []*candidate.Candidate, env descriptor.Environment, overrides Overrides) (*Result, error)
	}

	// Result is a successful resolution.
	Result struct {
		// Accepted holds the selected candidates, dependencies before dependents.
		Accepted []*candidate.Candidate
		// Disabled holds candidates left out because they do not apply to the environment.
		Disabled []*candidate.Candidate
		// Warnings are non-fatal findings such as unmet recommendations.
		Warnings []string
	}

	// Failure is a resolution that cannot be satisfied. Explanation describes the
	// first unsatisfiable constraint chain and may contain tab indentation.
	Failure struct {
		Explanation string
		// Packages are the identities involved in the failing chain.
		Packages []descriptor.Identity
	}
)

// Error implements the error interface.
func (f *Failure) Error() string { return f.Explanation }

// Unwrap returns ErrUnsatisfiable so callers can use errors.Is for programmatic detection.
func (f *Failure) Unwrap() error { return ErrUnsatisfiable }

// Explain returns the human-readable explanation of a resolution error with
// embedded tabs normalized to two spaces.
func Explain(err error) string {
	var f *Failure
	msg := err.Error()
	if errors.As(err, &f) {
		msg = f.Explanation
	}
	return strings.ReplaceAll(msg, "\t", "  ")
}

// Guest returns the accepted candidates that come from guest archives.
func (r *Result) Guest() []*candidate.Candidate {
	var out []*candidate.Candidate
	for _, c := range r.Accepted {
		if c.Origin == candidate.OriginGuest {
			out = append(out, c)
		}
	}
	return out
}

// IDs returns the ids of the accepted candidates in order.
func (r *Result) IDs() []string {
	out := make([]string, 0, len(r.Accepted))
	for _, c := range r.Accepted {
		out = append(out, c.ID())
	}
	return out
}
