// SPDX-License-Identifier: MPL-2.0

package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
var ErrInvalidVersion = errors.New("invalid version")

type (
	// Version represents a parsed package version.
	// Components holds the numeric components in order; a Version with no
	// components is opaque and is compared by its original string only.
	// A Wildcard version ("0.15.*") equals any version sharing its components.
	Version struct {
		Components []int
		Prerelease string
		Build      string
		Original   string
		Wildcard   bool
	}

	// InvalidVersionError is returned when a version string is empty.
	InvalidVersionError struct {
		Value string
	}
)

// versionRegex matches dotted numeric versions with optional pre-release and build parts.
var versionRegex = regexp.MustCompile(`^v?(\d+(?:\.\d+)*)(?:-([0-9A-Za-z\-.]+))?(?:\+([0-9A-Za-z\-.]+))?$`)

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Value)
}

// Unwrap returns ErrInvalidVersion so callers can use errors.Is for programmatic detection.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// ParseVersion parses a version string. Non-numeric versions are accepted as
// opaque versions; only the empty string is rejected.
func ParseVersion(s string) (*Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &InvalidVersionError{Value: s}
	}

	body, wildcard := strings.CutSuffix(s, ".*")
	if !wildcard {
		body, wildcard = strings.CutSuffix(s, ".x")
	}
	if wildcard {
		if v, err := ParseVersion(body); err == nil && v.IsSemantic() && v.Prerelease == "" && v.Build == "" {
			v.Original, v.Wildcard = s, true
			return v, nil
		}
	}

	matches := versionRegex.FindStringSubmatch(s)
	if matches == nil {
		return &Version{Original: s}, nil
	}

	v := &Version{Original: s, Prerelease: matches[2], Build: matches[3]}
	for part := range strings.SplitSeq(matches[1], ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid version component %q: %w", part, err)
		}
		v.Components = append(v.Components, n)
	}

	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error. Intended for
// built-in versions known at compile time and for tests.
func MustParseVersion(s string) *Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsSemantic reports whether the version has numeric components.
func (v *Version) IsSemantic() bool {
	return len(v.Components) > 0
}

// Component returns the i-th numeric component, or 0 when absent.
func (v *Version) Component(i int) int {
	if i < len(v.Components) {
		return v.Components[i]
	}
	return 0
}

// Major returns the first component.
func (v *Version) Major() int { return v.Component(0) }

// Minor returns the second component.
func (v *Version) Minor() int { return v.Component(1) }

// Patch returns the third component.
func (v *Version) Patch() int { return v.Component(2) }

// String returns the version as originally written.
func (v *Version) String() string {
	return v.Original
}

// Compare compares two versions.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
// Opaque versions compare lexically against each other and sort below
// semantic versions. Build metadata never affects ordering.
func (v *Version) Compare(other *Version) int {
	if !v.IsSemantic() || !other.IsSemantic() {
		switch {
		case v.IsSemantic():
			return 1
		case other.IsSemantic():
			return -1
		default:
			return strings.Compare(v.Original, other.Original)
		}
	}

	n := max(len(v.Components), len(other.Components))
	switch {
	case v.Wildcard && other.Wildcard:
		n = min(len(v.Components), len(other.Components))
	case v.Wildcard:
		n = len(v.Components)
	case other.Wildcard:
		n = len(other.Components)
	}
	for i := range n {
		a, b := v.Component(i), other.Component(i)
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	if v.Wildcard || other.Wildcard {
		return 0
	}

	// Prerelease versions have lower precedence
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

// comparePrerelease orders dot-separated pre-release identifiers, numeric
// identifiers numerically and all others lexically.
func comparePrerelease(a, b string) int {
	if a == b {
		return 0
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aErr := strconv.Atoi(as[i])
		bn, bErr := strconv.Atoi(bs[i])
		switch {
		case aErr == nil && bErr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
