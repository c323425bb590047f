// SPDX-License-Identifier: MPL-2.0

package remap

import (
	"errors"
	"regexp"
	"strings"

	"github.com/crossmod/crossmod/internal/mapping"
)

// ErrUnparseableLiteral reports a literal shaped like a member reference that
// could not be read as one.
var ErrUnparseableLiteral = errors.New("unparseable member reference literal")

var (
	classDescPattern = regexp.MustCompile(`^L[a-zA-Z0-9/$_]+;$`)
	fqnPattern       = regexp.MustCompile(`^([a-zA-Z0-9$_]+\.)*[a-zA-Z0-9$_]+$`)

	// qualifierPattern matches "[Lowner;]name(desc)ret", where the owner may
	// also be written "owner." in internal or dotted form.
	qualifierPattern = regexp.MustCompile(
		`^(L[a-zA-Z0-9/_$]+;|[a-zA-Z0-9/_$.]+\.)?([a-zA-Z0-9_$<>]+|\*)?` +
			`(\((?:\[*[VZCBSIFJD]|\[*L[a-zA-Z0-9/_$]+;)*\)(?:\[*[VZCBSIFJD]|\[*L[a-zA-Z0-9/_$]+;)?)$`)
)

// ValueRewriter maps string literals that encode symbol references: class
// descriptors, dotted class names and member qualifiers. Everything else goes
// through a whole-string flat lookup.
type ValueRewriter struct {
	remapper *Remapper
	flat     *mapping.FlatIndex
}

// NewValueRewriter creates a ValueRewriter over r.
func NewValueRewriter(r *Remapper) *ValueRewriter {
	return &ValueRewriter{remapper: r, flat: r.flat}
}

// Map rewrites s. Unknown symbols are returned unchanged. The error is
// ErrUnparseableLiteral when s contains a parameter list but is not a member
// qualifier; s is then returned unchanged.
func (v *ValueRewriter) Map(s string) (string, error) {
	if classDescPattern.MatchString(s) {
		if mapped, ok := v.flat.Class(s[1 : len(s)-1]); ok {
			return "L" + mapped + ";", nil
		}
	} else if fqnPattern.MatchString(s) {
		if mapped, ok := v.flat.Class(strings.ReplaceAll(s, ".", "/")); ok {
			return strings.ReplaceAll(mapped, "/", "."), nil
		}
	}

	if strings.IndexByte(s, '(') >= 0 {
		if mapped, ok := v.qualifier(s); ok {
			return mapped, nil
		}
		if v.looksLikeMember(s) {
			return s, ErrUnparseableLiteral
		}
	}

	if mapped, ok := v.flatName(s); ok {
		return mapped, nil
	}
	return s, nil
}

// looksLikeMember reports whether s resembles a member qualifier closely enough
// that failing to parse it is worth reporting.
func (v *ValueRewriter) looksLikeMember(s string) bool {
	open := strings.IndexByte(s, '(')
	return open >= 0 && strings.IndexByte(s[open:], ')') > 0 && !strings.ContainsAny(s, " \t\n,")
}

func (v *ValueRewriter) qualifier(s string) (string, bool) {
	m := qualifierPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	owner, name, desc := m[1], m[2], m[3]

	var b strings.Builder
	switch {
	case owner == "":
	case strings.HasPrefix(owner, "L") && strings.HasSuffix(owner, ";"):
		b.WriteString(v.remapper.Desc(owner))
	default:
		internal := strings.TrimSuffix(owner, ".")
		dotted := strings.Contains(internal, ".")
		if dotted {
			internal = strings.ReplaceAll(internal, ".", "/")
		}
		mapped := v.remapper.Class(internal)
		if dotted {
			mapped = strings.ReplaceAll(mapped, "/", ".")
		}
		b.WriteString(mapped)
		b.WriteByte('.')
	}
	if name != "" {
		if mapped, ok := v.flatName(name); ok {
			name = mapped
		}
		b.WriteString(name)
	}
	b.WriteString(v.remapper.Desc(desc))
	return b.String(), true
}

// flatName is the ownerless lookup over classes, methods and fields, in that order.
func (v *ValueRewriter) flatName(s string) (string, bool) {
	if mapped, ok := v.flat.Class(s); ok {
		return mapped, true
	}
	if mapped, ok := v.flat.Method(s); ok {
		return mapped, true
	}
	return v.flat.Field(s)
}
