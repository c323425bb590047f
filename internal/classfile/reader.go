// SPDX-License-Identifier: MPL-2.0

package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is the sentinel error wrapped by FormatError.
var ErrMalformed = errors.New("malformed class file")

// FormatError reports where a class file stopped making sense.
type FormatError struct {
	Offset int
	Reason string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed class file at offset %d: %s", e.Offset, e.Reason)
}

// Unwrap returns ErrMalformed so callers can use errors.Is for programmatic detection.
func (e *FormatError) Unwrap() error { return ErrMalformed }

// reader is a bounds-checked big-endian cursor. The first failure sticks; later
// reads return zero values so callers can check err once per structure.
type reader struct {
	data []byte
	pos  int
	err  error
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) fail(reason string) {
	if r.err == nil {
		r.err = &FormatError{Offset: r.pos, Reason: reason}
	}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.fail(fmt.Sprintf("unexpected end of data (need %d bytes, have %d)", n, len(r.data)-r.pos))
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return v
}

func (r *reader) done() bool { return r.pos >= len(r.data) }

// writer is a growable big-endian buffer.
type writer struct {
	buf []byte
}

func (w *writer) u1(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) u2(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *writer) u4(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }
