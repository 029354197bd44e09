////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zkcrypto

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// errShortBuffer is returned when decoding runs past the end of the input.
var errShortBuffer = errors.New("bcs: unexpected end of input")

// bcsWriter appends values in Binary Canonical Serialization: ULEB128
// lengths, little-endian integers.
type bcsWriter struct {
	buf []byte
}

func (w *bcsWriter) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *bcsWriter) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *bcsWriter) length(n int) {
	w.buf = binary.AppendUvarint(w.buf, uint64(n))
}

func (w *bcsWriter) bytes(b []byte) {
	w.length(len(b))
	w.buf = append(w.buf, b...)
}

func (w *bcsWriter) string(s string) {
	w.bytes([]byte(s))
}

func (w *bcsWriter) strings(ss []string) {
	w.length(len(ss))
	for _, s := range ss {
		w.string(s)
	}
}

type bcsReader struct {
	buf []byte
	err error
}

func (r *bcsReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf) {
		r.err = errShortBuffer
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *bcsReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *bcsReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *bcsReader) length() int {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 || v > uint64(len(r.buf)) {
		r.err = errShortBuffer
		return 0
	}
	r.buf = r.buf[n:]
	return int(v)
}

func (r *bcsReader) bytes() []byte {
	return append([]byte(nil), r.take(r.length())...)
}

func (r *bcsReader) string() string {
	return string(r.take(r.length()))
}

func (r *bcsReader) strings() []string {
	n := r.length()
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.string())
	}
	return out
}
