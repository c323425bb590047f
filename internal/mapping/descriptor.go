// SPDX-License-Identifier: MPL-2.0

package mapping

import "strings"

// MapDescriptor rewrites every class reference ("Lname;") in a field or method
// descriptor with fn. Malformed input is returned as far as it could be read.
func MapDescriptor(desc string, fn func(string) string) string {
	if strings.IndexByte(desc, 'L') < 0 {
		return desc
	}
	var b strings.Builder
	b.Grow(len(desc))
	for i := 0; i < len(desc); i++ {
		c := desc[i]
		b.WriteByte(c)
		if c != 'L' {
			continue
		}
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			b.WriteString(desc[i+1:])
			return b.String()
		}
		b.WriteString(fn(desc[i+1 : i+end]))
		b.WriteByte(';')
		i += end
	}
	return b.String()
}

// IsMethodDescriptor reports whether s looks like "(args)ret".
func IsMethodDescriptor(s string) bool {
	return len(s) >= 3 && s[0] == '(' && strings.IndexByte(s, ')') > 0
}
