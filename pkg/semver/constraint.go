// SPDX-License-Identifier: MPL-2.0

package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Wildcard is the range string that matches every version.
const Wildcard = "*"

// ErrInvalidConstraint is the sentinel error wrapped by InvalidConstraintError.
var ErrInvalidConstraint = errors.New("invalid version constraint")

type (
	// Constraint is a single comparison against a version.
	Constraint struct {
		// Op is the comparison operator (=, ^, ~, >, >=, <, <=, *).
		Op string
		// Version is the version to compare against. Nil for the "*" operator.
		Version *Version
		// Prefix is the number of leading components that must match exactly
		// when the constraint was written with placeholder components ("1.20.x").
		// Zero means no placeholder was used.
		Prefix int
		// Original is the original constraint string.
		Original string
	}

	// Range is a disjunction of conjunctive constraint sets.
	// An empty Range matches nothing; use Any for the wildcard range.
	Range struct {
		Sets [][]Constraint
	}

	// InvalidConstraintError is returned when a constraint string cannot be parsed.
	InvalidConstraintError struct {
		Value  string
		Reason string
	}
)

// constraintRegex splits a constraint into operator and version body.
var constraintRegex = regexp.MustCompile(`^(>=|<=|>|<|=|\^|~)?\s*(.+)$`)

// Error implements the error interface.
func (e *InvalidConstraintError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid version constraint %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid version constraint %q", e.Value)
}

// Unwrap returns ErrInvalidConstraint so callers can use errors.Is for programmatic detection.
func (e *InvalidConstraintError) Unwrap() error { return ErrInvalidConstraint }

// Any returns the wildcard range.
func Any() Range {
	return Range{Sets: [][]Constraint{{{Op: Wildcard, Original: Wildcard}}}}
}

// ParseConstraint parses a single constraint such as ">=1.2", "~0.14.x" or "*".
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == Wildcard || s == "x" || s == "X" {
		return Constraint{Op: Wildcard, Original: Wildcard}, nil
	}

	matches := constraintRegex.FindStringSubmatch(s)
	if matches == nil {
		return Constraint{}, &InvalidConstraintError{Value: s}
	}

	op := matches[1]
	if op == "" {
		op = "="
	}
	body := matches[2]
	if len(body) > 1 && body[0] == 'v' && body[1] >= '0' && body[1] <= '9' {
		body = body[1:]
	}

	prefix := 0
	parts := strings.Split(body, ".")
	for i, part := range parts {
		if part == "x" || part == "X" || part == "*" {
			if i == 0 {
				return Constraint{Op: Wildcard, Original: s}, nil
			}
			prefix = i
			parts = parts[:i]
			break
		}
	}
	if prefix > 0 {
		for _, part := range parts {
			if _, err := strconv.Atoi(part); err != nil {
				return Constraint{}, &InvalidConstraintError{Value: s, Reason: "placeholder after non-numeric component"}
			}
		}
		body = strings.Join(parts, ".")
	}

	version, err := ParseVersion(body)
	if err != nil {
		return Constraint{}, &InvalidConstraintError{Value: s, Reason: err.Error()}
	}
	if !version.IsSemantic() && op != "=" {
		return Constraint{}, &InvalidConstraintError{Value: s, Reason: "operator " + op + " requires a numeric version"}
	}

	return Constraint{Op: op, Version: version, Prefix: prefix, Original: s}, nil
}

// Matches checks if a version satisfies the constraint.
func (c Constraint) Matches(v *Version) bool {
	if c.Op == Wildcard {
		return true
	}
	if v == nil {
		return false
	}
	if !c.Version.IsSemantic() || !v.IsSemantic() {
		return c.Op == "=" && c.Version.Original == v.Original
	}

	if c.Prefix > 0 {
		if !c.prefixMatches(v) {
			// A placeholder constraint only admits versions sharing the prefix,
			// except for ordering operators which treat placeholders as zero.
			switch c.Op {
			case "=", "^", "~":
				return false
			}
		} else if c.Op == "=" {
			return true
		}
	}

	switch c.Op {
	case "=":
		return v.Compare(c.Version) == 0

	case "^":
		// Caret: allows changes that do not modify the left-most non-zero digit
		// ^1.2.3 := >=1.2.3 <2.0.0
		// ^0.2.3 := >=0.2.3 <0.3.0
		if v.Compare(c.Version) < 0 {
			return false
		}
		if c.Version.Major() != 0 {
			return v.Major() == c.Version.Major()
		}
		if c.Version.Minor() != 0 {
			return v.Major() == 0 && v.Minor() == c.Version.Minor()
		}
		return v.Major() == 0 && v.Minor() == 0 && v.Patch() == c.Version.Patch()

	case "~":
		// Tilde: allows patch-level changes
		// ~1.2.3 := >=1.2.3 <1.3.0
		if v.Compare(c.Version) < 0 {
			return false
		}
		return v.Major() == c.Version.Major() && v.Minor() == c.Version.Minor()

	case ">":
		return v.Compare(c.Version) > 0

	case ">=":
		return v.Compare(c.Version) >= 0

	case "<":
		return v.Compare(c.Version) < 0

	case "<=":
		return v.Compare(c.Version) <= 0

	default:
		return false
	}
}

func (c Constraint) prefixMatches(v *Version) bool {
	for i := range c.Prefix {
		if v.Component(i) != c.Version.Component(i) {
			return false
		}
	}
	return true
}

// String returns the original constraint string.
func (c Constraint) String() string { return c.Original }

// ParseRange parses a range string. Alternatives are separated by "||" and each
// alternative is a space-separated conjunction of constraints.
func ParseRange(s string) (Range, error) {
	return ParseRanges([]string{s})
}

// ParseRanges parses a list of range strings as alternatives. This is the form
// descriptors use when a dependency lists several acceptable versions.
func ParseRanges(ss []string) (Range, error) {
	if len(ss) == 0 {
		return Any(), nil
	}

	var r Range
	for _, s := range ss {
		for alt := range strings.SplitSeq(s, "||") {
			set, err := parseConjunction(alt)
			if err != nil {
				return Range{}, err
			}
			r.Sets = append(r.Sets, set)
		}
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func parseConjunction(s string) ([]Constraint, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return []Constraint{{Op: Wildcard, Original: Wildcard}}, nil
	}

	// Re-attach operators written with a space before the version (">= 1.0").
	var tokens []string
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		switch tok {
		case ">=", "<=", ">", "<", "=", "^", "~":
			if i+1 < len(fields) {
				tok += fields[i+1]
				i++
			}
		}
		tokens = append(tokens, tok)
	}

	set := make([]Constraint, 0, len(tokens))
	for _, tok := range tokens {
		c, err := ParseConstraint(tok)
		if err != nil {
			return nil, err
		}
		set = append(set, c)
	}
	return set, nil
}

// Matches reports whether v satisfies at least one alternative of the range.
func (r Range) Matches(v *Version) bool {
	for _, set := range r.Sets {
		ok := true
		for _, c := range set {
			if !c.Matches(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// IsAny reports whether the range is the wildcard range.
func (r Range) IsAny() bool {
	for _, set := range r.Sets {
		if len(set) == 1 && set[0].Op == Wildcard {
			return true
		}
	}
	return false
}

// Strings returns the range as a list of alternatives, the inverse of ParseRanges.
func (r Range) Strings() []string {
	out := make([]string, 0, len(r.Sets))
	for _, set := range r.Sets {
		parts := make([]string, 0, len(set))
		for _, c := range set {
			parts = append(parts, c.Original)
		}
		out = append(out, strings.Join(parts, " "))
	}
	return out
}

// String returns a human-readable representation of the range.
func (r Range) String() string {
	if len(r.Sets) == 0 {
		return "<none>"
	}
	return strings.Join(r.Strings(), " || ")
}

// Highest returns the highest version among candidates that satisfies the
// range, or nil if none does.
func (r Range) Highest(candidates []*Version) *Version {
	var best *Version
	for _, v := range candidates {
		if !r.Matches(v) {
			continue
		}
		if best == nil || v.Compare(best) > 0 {
			best = v
		}
	}
	return best
}
