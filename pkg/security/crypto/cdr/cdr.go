/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cdr implements the subset of OMG CDR needed by the crypto plugin's
// wire records: big-endian primitives, padding inserted only by explicit
// Align calls relative to the start of the stream, with explicit
// little-endian reads for endian-flagged submessage fields.
package cdr

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"
)

// ErrShortBuffer reports a read past the end of the input.
var ErrShortBuffer = errors.New("cdr: short buffer")

// Encoder builds a big-endian CDR stream. Alignment is relative to the first
// byte written.
type Encoder struct {
	b *cryptobyte.Builder
	n int
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{b: cryptobyte.NewBuilder(nil)}
}

// Octet appends a single byte.
func (e *Encoder) Octet(v byte) {
	e.b.AddUint8(v)
	e.n++
}

// Octets appends raw bytes without alignment.
func (e *Encoder) Octets(p []byte) {
	e.b.AddBytes(p)
	e.n += len(p)
}

// Uint16 appends a big-endian 16-bit value.
func (e *Encoder) Uint16(v uint16) {
	e.b.AddUint16(v)
	e.n += 2
}

// Uint32 appends a big-endian 32-bit value.
func (e *Encoder) Uint32(v uint32) {
	e.b.AddUint32(v)
	e.n += 4
}

// Align pads with zero bytes until the stream length is a multiple of
// boundary.
func (e *Encoder) Align(boundary int) {
	for e.n%boundary != 0 {
		e.Octet(0)
	}
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return e.n
}

// Bytes returns the encoded stream.
func (e *Encoder) Bytes() ([]byte, error) {
	return e.b.Bytes()
}

// Decoder consumes a CDR stream. Multi-byte primitives are read big-endian
// unless the decoder is switched to little-endian for endian-flagged fields;
// alignment is relative to the first byte of the input.
type Decoder struct {
	s      cryptobyte.String
	total  int
	little bool
}

// NewDecoder returns a Decoder over p. The decoder does not copy p.
func NewDecoder(p []byte) *Decoder {
	return &Decoder{s: cryptobyte.String(p), total: len(p)}
}

// SetLittleEndian switches the byte order used by Uint16 and Uint32.
func (d *Decoder) SetLittleEndian(v bool) {
	d.little = v
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.total - len(d.s)
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.s)
}

// Octet reads a single byte.
func (d *Decoder) Octet() (byte, error) {
	var v uint8
	if !d.s.ReadUint8(&v) {
		return 0, ErrShortBuffer
	}

	return v, nil
}

// Octets reads n raw bytes.
func (d *Decoder) Octets(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrShortBuffer
	}

	var out []byte
	if !d.s.ReadBytes(&out, n) {
		return nil, ErrShortBuffer
	}

	return out, nil
}

// Uint16 reads a 16-bit value in the decoder's byte order.
func (d *Decoder) Uint16() (uint16, error) {
	if d.little {
		b, err := d.Octets(2)
		if err != nil {
			return 0, err
		}

		return uint16(b[0]) | uint16(b[1])<<8, nil
	}

	var v uint16
	if !d.s.ReadUint16(&v) {
		return 0, ErrShortBuffer
	}

	return v, nil
}

// Uint32 reads a 32-bit value in the decoder's byte order.
func (d *Decoder) Uint32() (uint32, error) {
	if d.little {
		b, err := d.Octets(4)
		if err != nil {
			return 0, err
		}

		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
	}

	var v uint32
	if !d.s.ReadUint32(&v) {
		return 0, ErrShortBuffer
	}

	return v, nil
}

// Skip discards n bytes.
func (d *Decoder) Skip(n int) error {
	if n < 0 || !d.s.Skip(n) {
		return ErrShortBuffer
	}

	return nil
}

// Align discards padding until the consumed length is a multiple of boundary.
func (d *Decoder) Align(boundary int) error {
	pad := (boundary - d.Offset()%boundary) % boundary

	return d.Skip(pad)
}
