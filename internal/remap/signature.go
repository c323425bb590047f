// SPDX-License-Identifier: MPL-2.0

package remap

import (
	"errors"
	"fmt"
	"strings"
)

var errSignature = errors.New("malformed generic signature")

type sigParser struct {
	s   string
	i   int
	out strings.Builder
	r   *Remapper
	err error
}

// Signature maps the class names of a generic class, method or field
// signature. A malformed signature is returned unchanged with an error.
func (r *Remapper) Signature(sig string) (string, error) {
	if !strings.ContainsRune(sig, 'L') {
		return sig, nil
	}
	p := &sigParser{s: sig, r: r}
	p.out.Grow(len(sig))
	p.signature()
	if p.err != nil {
		return sig, fmt.Errorf("%w %q at %d: %v", errSignature, sig, p.i, p.err)
	}
	return p.out.String(), nil
}

func (p *sigParser) peek() byte {
	if p.i >= len(p.s) {
		return 0
	}
	return p.s[p.i]
}

func (p *sigParser) emit() {
	p.out.WriteByte(p.s[p.i])
	p.i++
}

func (p *sigParser) fail(reason string) {
	if p.err == nil {
		p.err = errors.New(reason)
	}
}

func (p *sigParser) signature() {
	if p.peek() == '<' {
		p.typeParams()
	}
	if p.peek() == '(' {
		p.emit()
		for p.err == nil && p.peek() != ')' {
			p.typeSig()
		}
		if p.err != nil {
			return
		}
		p.emit()
		p.typeSig()
		for p.err == nil && p.peek() == '^' {
			p.emit()
			p.typeSig()
		}
	} else {
		for p.err == nil && p.i < len(p.s) {
			p.typeSig()
		}
	}
	if p.err == nil && p.i != len(p.s) {
		p.fail("trailing characters")
	}
}

func (p *sigParser) typeParams() {
	p.emit()
	for p.err == nil && p.peek() != '>' {
		p.identifier(":")
		if p.peek() != ':' {
			p.fail("expected ':' after type parameter")
			return
		}
		p.emit()
		if c := p.peek(); c != ':' && c != '>' {
			p.typeSig()
		}
		for p.err == nil && p.peek() == ':' {
			p.emit()
			p.typeSig()
		}
	}
	if p.err == nil {
		p.emit()
	}
}

// identifier copies characters up to one of stop.
func (p *sigParser) identifier(stop string) string {
	start := p.i
	for p.i < len(p.s) && !strings.ContainsRune(stop, rune(p.s[p.i])) {
		p.i++
	}
	if p.i >= len(p.s) || p.i == start {
		p.fail("unterminated identifier")
		return ""
	}
	id := p.s[start:p.i]
	p.out.WriteString(id)
	return id
}

func (p *sigParser) typeSig() {
	switch c := p.peek(); c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'V':
		p.emit()
	case 'T':
		p.emit()
		p.identifier(";")
		if p.err == nil {
			p.emit()
		}
	case '[':
		p.emit()
		p.typeSig()
	case 'L':
		p.classType()
	case 0:
		p.fail("unexpected end")
	default:
		p.fail(fmt.Sprintf("unexpected %q", c))
	}
}

func (p *sigParser) classType() {
	p.out.WriteByte('L')
	p.i++
	start := p.i
	for p.i < len(p.s) && !strings.ContainsRune("<.;", rune(p.s[p.i])) {
		p.i++
	}
	if p.i >= len(p.s) || p.i == start {
		p.fail("unterminated class type")
		return
	}
	guest := p.s[start:p.i]
	mapped := p.r.Class(guest)
	p.out.WriteString(mapped)

	for p.err == nil {
		switch p.peek() {
		case '<':
			p.typeArgs()
		case '.':
			p.i++
			begin := p.i
			for p.i < len(p.s) && !strings.ContainsRune("<.;", rune(p.s[p.i])) {
				p.i++
			}
			if p.i >= len(p.s) || p.i == begin {
				p.fail("unterminated inner class type")
				return
			}
			simple := p.s[begin:p.i]
			guest += "$" + simple
			p.out.WriteByte('.')
			p.out.WriteString(p.r.InnerName(guest, simple))
		case ';':
			p.emit()
			return
		default:
			p.fail("unterminated class type")
			return
		}
	}
}

func (p *sigParser) typeArgs() {
	p.emit()
	for p.err == nil && p.peek() != '>' {
		switch p.peek() {
		case '*':
			p.emit()
		case '+', '-':
			p.emit()
			p.typeSig()
		default:
			p.typeSig()
		}
	}
	if p.err == nil {
		p.emit()
	}
}
