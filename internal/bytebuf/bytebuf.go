// Package bytebuf is a growable byte sequence with a single read/write cursor.
//
// Multi-byte integers default to big-endian. The LE variants write and read the
// reversed order some frame fields use; which order a field needs is a property
// of the packet type, never of the buffer.
package bytebuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortBuffer = errors.New("bytebuf: insufficient data in buffer")
	ErrSeekRange   = errors.New("bytebuf: position out of range")
)

// Buffer holds the bytes and the cursor. The zero value is an empty buffer
// ready for writing.
type Buffer struct {
	data    []byte
	pos     int
	scratch [8]byte
}

func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Wrap starts a buffer over a copy of b with the cursor at zero.
func Wrap(b []byte) *Buffer {
	data := make([]byte, len(b))
	copy(data, b)
	return &Buffer{data: data}
}

func (b *Buffer) Len() int       { return len(b.data) }
func (b *Buffer) Position() int  { return b.pos }
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

// Seek moves the cursor. pos must stay within [0, Len()].
func (b *Buffer) Seek(pos int) error {
	if pos < 0 || pos > len(b.data) {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrSeekRange, pos, len(b.data))
	}
	b.pos = pos
	return nil
}

func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.pos = 0
}

// Bytes returns a copy of the full contents regardless of cursor position.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// write copies p at the cursor, overwriting or extending, and advances.
func (b *Buffer) write(p []byte) {
	end := b.pos + len(p)
	if end > len(b.data) {
		if end > cap(b.data) {
			grown := make([]byte, len(b.data), 2*cap(b.data)+len(p))
			copy(grown, b.data)
			b.data = grown
		}
		b.data = b.data[:end]
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
}

// need reserves n readable bytes and returns their offset.
func (b *Buffer) need(n int) (int, error) {
	if n < 0 || b.pos+n > len(b.data) {
		return 0, fmt.Errorf("%w: need %d have %d", ErrShortBuffer, n, b.Remaining())
	}
	off := b.pos
	b.pos += n
	return off, nil
}

func (b *Buffer) PutUint8(v uint8) {
	b.scratch[0] = v
	b.write(b.scratch[:1])
}

func (b *Buffer) PutBool(v bool) {
	if v {
		b.PutUint8(1)
		return
	}
	b.PutUint8(0)
}

func (b *Buffer) PutUint16(v uint16) {
	binary.BigEndian.PutUint16(b.scratch[:2], v)
	b.write(b.scratch[:2])
}

func (b *Buffer) PutUint32(v uint32) {
	binary.BigEndian.PutUint32(b.scratch[:4], v)
	b.write(b.scratch[:4])
}

func (b *Buffer) PutUint64(v uint64) {
	binary.BigEndian.PutUint64(b.scratch[:8], v)
	b.write(b.scratch[:8])
}

func (b *Buffer) PutUint16LE(v uint16) {
	binary.LittleEndian.PutUint16(b.scratch[:2], v)
	b.write(b.scratch[:2])
}

func (b *Buffer) PutUint32LE(v uint32) {
	binary.LittleEndian.PutUint32(b.scratch[:4], v)
	b.write(b.scratch[:4])
}

func (b *Buffer) PutUint64LE(v uint64) {
	binary.LittleEndian.PutUint64(b.scratch[:8], v)
	b.write(b.scratch[:8])
}

func (b *Buffer) PutBytes(p []byte) {
	b.write(p)
}

// at runs fn with the cursor at pos and restores the cursor afterwards.
func (b *Buffer) at(pos int, fn func()) error {
	saved := b.pos
	if err := b.Seek(pos); err != nil {
		return err
	}
	fn()
	b.pos = saved
	return nil
}

func (b *Buffer) PutUint8At(pos int, v uint8) error {
	return b.at(pos, func() { b.PutUint8(v) })
}

func (b *Buffer) PutUint16At(pos int, v uint16) error {
	return b.at(pos, func() { b.PutUint16(v) })
}

func (b *Buffer) PutUint32At(pos int, v uint32) error {
	return b.at(pos, func() { b.PutUint32(v) })
}

func (b *Buffer) PutUint16LEAt(pos int, v uint16) error {
	return b.at(pos, func() { b.PutUint16LE(v) })
}

func (b *Buffer) PutBytesAt(pos int, p []byte) error {
	return b.at(pos, func() { b.PutBytes(p) })
}

func (b *Buffer) Uint8() (uint8, error) {
	off, err := b.need(1)
	if err != nil {
		return 0, err
	}
	return b.data[off], nil
}

func (b *Buffer) Bool() (bool, error) {
	v, err := b.Uint8()
	return v != 0, err
}

func (b *Buffer) Uint16() (uint16, error) {
	off, err := b.need(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b.data[off:]), nil
}

func (b *Buffer) Uint32() (uint32, error) {
	off, err := b.need(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b.data[off:]), nil
}

func (b *Buffer) Uint64() (uint64, error) {
	off, err := b.need(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b.data[off:]), nil
}

func (b *Buffer) Uint16LE() (uint16, error) {
	off, err := b.need(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[off:]), nil
}

func (b *Buffer) Uint32LE() (uint32, error) {
	off, err := b.need(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[off:]), nil
}

func (b *Buffer) Uint64LE() (uint64, error) {
	off, err := b.need(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b.data[off:]), nil
}

// Next returns a copy of the next n bytes.
func (b *Buffer) Next(n int) ([]byte, error) {
	off, err := b.need(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[off:off+n])
	return out, nil
}

// Uint8At reads one byte at pos without moving the cursor.
func (b *Buffer) Uint8At(pos int) (uint8, error) {
	if pos < 0 || pos >= len(b.data) {
		return 0, fmt.Errorf("%w: offset %d len %d", ErrShortBuffer, pos, len(b.data))
	}
	return b.data[pos], nil
}
