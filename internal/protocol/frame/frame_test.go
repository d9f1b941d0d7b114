package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/testutil/testlog"
)

func TestShortEncodeGateCloseXOR(t *testing.T) {
	testlog.Start(t)
	b, err := Short.Encode([]byte{0x13, 0x01}, []byte{0x01, 0x01, 0x01})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := byte(0x09 ^ 0x13 ^ 0x01 ^ 0x01 ^ 0x01 ^ 0x01)
	expected := []byte{0x7B, 0x09, 0x13, 0x01, 0x01, 0x01, 0x01, want, 0x7D}
	if !bytes.Equal(b, expected) {
		t.Fatalf("got=% X want=% X", b, expected)
	}
	if b[7] != protocol.XOR(b[1:7]) {
		t.Fatalf("checksum is not xor of offsets 1..6")
	}
}

func TestShortRoundTrip(t *testing.T) {
	testlog.Start(t)
	b, err := Short.Encode([]byte{0x21, 0x05}, []byte{0xAA, 0x00, 0x55})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Short.Decode(b, DefaultOptions())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(f.Control, []byte{0x21, 0x05}) || !bytes.Equal(f.Data, []byte{0xAA, 0x00, 0x55}) {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if f.Length != len(b) || !f.ChecksumValid {
		t.Fatalf("unexpected length/checksum: %+v", f)
	}
}

func TestLongRoundTripUsesAdditiveChecksum(t *testing.T) {
	testlog.Start(t)
	b, err := ZH.Encode([]byte{0x01, 0x02, 0x30}, []byte{0xF0, 0x20})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if b[0] != HeadZH || int(b[1]) != len(b) || len(b) != 8 {
		t.Fatalf("unexpected header: % X", b)
	}
	if b[len(b)-1] != protocol.Sum8(b[1:len(b)-1]) {
		t.Fatalf("trailing byte is not the additive checksum: % X", b)
	}
	f, err := ZH.Decode(b, DefaultOptions())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(f.Data, []byte{0xF0, 0x20}) {
		t.Fatalf("unexpected data: % X", f.Data)
	}
}

func TestDecodeWrongHeadRejected(t *testing.T) {
	testlog.Start(t)
	b, _ := Short.Encode([]byte{0x13, 0x01}, nil)
	b[0] = 0x4F
	if _, err := Short.Decode(b, DefaultOptions()); !errors.Is(err, protocol.ErrHeadMismatch) {
		t.Fatalf("expected ErrHeadMismatch, got %v", err)
	}
}

func TestDecodeHeadScanIsBounded(t *testing.T) {
	testlog.Start(t)
	frameBytes, _ := CLT.Encode([]byte{0x01, 0x02, 0x03}, []byte{0x10})
	in := append([]byte{0xFF, 0xEE, 0x00}, frameBytes...)

	if _, err := CLT.Decode(in, Options{HeadScan: 2}); !errors.Is(err, protocol.ErrHeadMismatch) {
		t.Fatalf("window 2 must not reach offset 3, got %v", err)
	}
	f, err := CLT.Decode(in, Options{HeadScan: 3})
	if err != nil {
		t.Fatalf("decode with window 3: %v", err)
	}
	if f.Offset != 3 || !bytes.Equal(f.Data, []byte{0x10}) {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if FindHead(in, HeadCLT, 10_000) != 3 {
		t.Fatalf("oversized window should clamp, not fail")
	}
}

func TestDecodeLengthGuards(t *testing.T) {
	testlog.Start(t)
	if _, err := Short.Decode([]byte{0x7B, 0x06, 0x01}, DefaultOptions()); !errors.Is(err, protocol.ErrFrameTooShort) {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}

	// declares 12 bytes, carries 7
	truncated := []byte{0x7B, 0x0C, 0x13, 0x01, 0x01, 0x00, 0x7D}
	if _, err := Short.Decode(truncated, DefaultOptions()); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}

	below := []byte{0x7B, 0x04, 0x13, 0x01, 0x01, 0x00, 0x7D}
	if _, err := Short.Decode(below, DefaultOptions()); !errors.Is(err, protocol.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestDecodeTailMismatch(t *testing.T) {
	testlog.Start(t)
	b, _ := Short.Encode([]byte{0x13, 0x01}, []byte{0x02})
	b[len(b)-1] = 0x00
	if _, err := Short.Decode(b, DefaultOptions()); !errors.Is(err, protocol.ErrTailMismatch) {
		t.Fatalf("expected ErrTailMismatch, got %v", err)
	}
}

func TestDecodeChecksumPolicy(t *testing.T) {
	testlog.Start(t)
	b, _ := CLT.Encode([]byte{0x01, 0x02, 0x03}, []byte{0x40, 0x41})
	b[len(b)-1] ^= 0xFF

	f, err := CLT.Decode(b, Options{Policy: protocol.ChecksumStrict})
	if !errors.Is(err, protocol.ErrChecksumMismatch) {
		t.Fatalf("strict: expected ErrChecksumMismatch, got %v", err)
	}
	if f.ChecksumValid || !bytes.Equal(f.Data, []byte{0x40, 0x41}) {
		t.Fatalf("strict: frame should still be populated: %+v", f)
	}

	f, err = CLT.Decode(b, Options{Policy: protocol.ChecksumLenient})
	if err != nil {
		t.Fatalf("lenient: unexpected error %v", err)
	}
	if f.ChecksumValid {
		t.Fatalf("lenient: mismatch must still be reported on the frame")
	}
}

func TestDecodeZeroPaddedFrame(t *testing.T) {
	testlog.Start(t)
	// device pads an 8 byte frame to a 10 byte slot and declares the slot size
	raw := []byte{0x7B, 0x0A, 0x01, 0x02, 0x30, 0x11, 0x22, 0x00, 0x00, 0x00}
	raw[7] = protocol.Sum8(raw[1:7])

	if _, err := CLT.Decode(raw, DefaultOptions()); !errors.Is(err, protocol.ErrChecksumMismatch) {
		t.Fatalf("without padding support the frame must fail, got %v", err)
	}
	f, err := CLT.Decode(raw, Options{ZeroPadded: true})
	if err != nil {
		t.Fatalf("decode padded: %v", err)
	}
	if f.Padding != 2 || f.Checksum != 0x70 || !bytes.Equal(f.Data, []byte{0x11, 0x22}) {
		t.Fatalf("unexpected padded frame: %+v", f)
	}
}

func TestDecodeZeroPaddingMistakesZeroChecksum(t *testing.T) {
	testlog.Start(t)
	// unpadded frame whose genuine checksum is 0x00
	raw := []byte{0x7B, 0x07, 0xF8, 0x00, 0x00, 0x01, 0x00}
	if protocol.Sum8(raw[1:6]) != 0x00 {
		t.Fatalf("fixture checksum is not zero")
	}
	if _, err := CLT.Decode(raw, DefaultOptions()); err != nil {
		t.Fatalf("plain decode: %v", err)
	}
	f, err := CLT.Decode(raw, Options{ZeroPadded: true})
	if !errors.Is(err, protocol.ErrChecksumMismatch) {
		t.Fatalf("padding scan should swallow the zero checksum, got %v", err)
	}
	if f.Padding != 1 {
		t.Fatalf("expected one byte of padding, got %d", f.Padding)
	}

	// padding never eats into the minimum frame
	allZero := []byte{0x7B, 0x06, 0x00, 0x00, 0x00, 0x06}
	f, err = CLT.Decode(allZero, Options{ZeroPadded: true})
	if err != nil || f.Padding != 0 {
		t.Fatalf("minimum frame: padding=%d err=%v", f.Padding, err)
	}
}

func TestEncodeRejectsBadControlAndOversize(t *testing.T) {
	testlog.Start(t)
	if _, err := Short.Encode([]byte{0x01}, nil); err == nil {
		t.Fatalf("expected control length error")
	}
	if _, err := ZH.Encode([]byte{1, 2, 3}, make([]byte, MaxLen)); !errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
