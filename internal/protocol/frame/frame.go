package frame

import (
	"fmt"

	"github.com/danmuck/hipotlink/internal/bytebuf"
	"github.com/danmuck/hipotlink/internal/protocol"
)

const (
	HeadShort byte = 0x7B
	TailShort byte = 0x7D
	HeadZH    byte = 0x4F
	HeadCLT   byte = 0x7B

	// MaxLen is the largest frame a one-byte length field can describe.
	MaxLen = 0xFF
)

// Layout describes one frame family on the wire:
//
//	[head][length][control: ControlLen bytes][data...][checksum][tail?]
//
// length counts every byte of the frame, head and tail included. The checksum
// covers everything after the head up to the checksum byte.
type Layout struct {
	Name       string
	Head       byte
	Tail       byte
	HasTail    bool
	ControlLen int
	MinLen     int
	Checksum   protocol.Checksum
}

// Short is the XOR-checked request frame: control = address, command.
var Short = Layout{
	Name:       "short",
	Head:       HeadShort,
	Tail:       TailShort,
	HasTail:    true,
	ControlLen: 2,
	MinLen:     6,
	Checksum:   protocol.XOR,
}

// ZH is the long additive frame with the 0x4F head: control = target,
// source, control code.
var ZH = Layout{
	Name:       "zh1104",
	Head:       HeadZH,
	ControlLen: 3,
	MinLen:     6,
	Checksum:   protocol.Sum8,
}

// CLT is the CLT1.1-compatible inbound variant of the long frame.
var CLT = Layout{
	Name:       "clt1.1",
	Head:       HeadCLT,
	ControlLen: 3,
	MinLen:     6,
	Checksum:   protocol.Sum8,
}

// Frame is one decoded frame.
type Frame struct {
	Control       []byte
	Data          []byte
	Length        int
	Checksum      byte
	ChecksumValid bool
	// Offset is where the head byte was found in the input.
	Offset int
	// Padding counts trailing zero bytes excluded from the checksum range.
	Padding int
}

// Options tunes decoding.
type Options struct {
	Policy protocol.ChecksumPolicy
	// HeadScan is how many leading bytes may be skipped looking for the head.
	// Zero requires the head at offset 0. Capped at MaxLen.
	HeadScan int
	// ZeroPadded discounts trailing zero bytes inside the declared length
	// before locating the checksum byte. Only meaningful for tail-less layouts.
	ZeroPadded bool
}

func DefaultOptions() Options {
	return Options{Policy: protocol.ChecksumStrict}
}

func (l Layout) overhead() int {
	n := 2 + l.ControlLen + 1
	if l.HasTail {
		n++
	}
	return n
}

// Encode builds one frame. control must be exactly ControlLen bytes.
func (l Layout) Encode(control, data []byte) ([]byte, error) {
	if len(control) != l.ControlLen {
		return nil, fmt.Errorf("frame: %s control segment is %d bytes, want %d", l.Name, len(control), l.ControlLen)
	}
	total := l.overhead() + len(data)
	if total > MaxLen {
		return nil, fmt.Errorf("%w: %s frame of %d bytes", protocol.ErrPayloadTooLarge, l.Name, total)
	}

	buf := bytebuf.New(total)
	buf.PutUint8(l.Head)
	buf.PutUint8(0)
	buf.PutBytes(control)
	buf.PutBytes(data)
	if err := buf.PutUint8At(1, uint8(total)); err != nil {
		return nil, err
	}
	buf.PutUint8(l.Checksum(buf.Bytes()[1:]))
	if l.HasTail {
		buf.PutUint8(l.Tail)
	}
	return buf.Bytes(), nil
}

// FindHead returns the index of the first head byte within the first
// window+1 bytes of b, or -1.
func FindHead(b []byte, head byte, window int) int {
	if window < 0 {
		window = 0
	}
	if window > MaxLen {
		window = MaxLen
	}
	for i := 0; i < len(b) && i <= window; i++ {
		if b[i] == head {
			return i
		}
	}
	return -1
}

// Decode validates and slices one frame out of b. Structural failures return
// a zero Frame and a protocol sentinel error. A checksum mismatch under the
// strict policy returns the decoded frame together with ErrChecksumMismatch;
// under the lenient policy it returns the frame with ChecksumValid false.
func (l Layout) Decode(b []byte, opts Options) (Frame, error) {
	if len(b) < l.MinLen {
		return Frame{}, fmt.Errorf("%w: %s got %d bytes", protocol.ErrFrameTooShort, l.Name, len(b))
	}
	off := FindHead(b, l.Head, opts.HeadScan)
	if off < 0 {
		return Frame{}, fmt.Errorf("%w: %s want %#02x got %#02x", protocol.ErrHeadMismatch, l.Name, l.Head, b[0])
	}
	b = b[off:]
	if len(b) < l.MinLen {
		return Frame{}, fmt.Errorf("%w: %s got %d bytes after head", protocol.ErrFrameTooShort, l.Name, len(b))
	}

	length := int(b[1])
	if length < l.MinLen {
		return Frame{}, fmt.Errorf("%w: %s length %d below minimum %d", protocol.ErrInvalidLength, l.Name, length, l.MinLen)
	}
	if length > len(b) {
		return Frame{}, fmt.Errorf("%w: %s length %d available %d", protocol.ErrTruncated, l.Name, length, len(b))
	}
	raw := b[:length]

	chk := length - 1
	if l.HasTail {
		if raw[chk] != l.Tail {
			return Frame{}, fmt.Errorf("%w: %s want %#02x got %#02x", protocol.ErrTailMismatch, l.Name, l.Tail, raw[chk])
		}
		chk--
	}
	padding := 0
	if opts.ZeroPadded && !l.HasTail {
		padding = trailingZeros(raw, length-l.MinLen)
		chk -= padding
	}

	dataStart := 2 + l.ControlLen
	f := Frame{
		Control:  clone(raw[2:dataStart]),
		Data:     clone(raw[dataStart:chk]),
		Length:   length,
		Checksum: raw[chk],
		Offset:   off,
		Padding:  padding,
	}
	f.ChecksumValid = l.Checksum(raw[1:chk]) == raw[chk]
	if !f.ChecksumValid && opts.Policy != protocol.ChecksumLenient {
		return f, fmt.Errorf("%w: %s got %#02x want %#02x", protocol.ErrChecksumMismatch, l.Name, raw[chk], l.Checksum(raw[1:chk]))
	}
	return f, nil
}

// trailingZeros counts zero bytes at the end of b, at most limit.
func trailingZeros(b []byte, limit int) int {
	n := 0
	for i := len(b) - 1; i >= 0 && n < limit && b[i] == 0; i-- {
		n++
	}
	return n
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
