package protocol

import (
	"errors"
	"testing"

	"github.com/danmuck/hipotlink/internal/testutil/testlog"
)

func TestXORMatchesGateCloseExample(t *testing.T) {
	testlog.Start(t)

	frame := []byte{0x7B, 0x09, 0x13, 0x01, 0x01, 0x01, 0x01, 0x00, 0x7D}
	var want byte
	for _, b := range frame[1:7] {
		want ^= b
	}
	if got := XOR(frame[1:7]); got != want || got != 0x1A {
		t.Fatalf("xor: got=%#02x want=%#02x", got, want)
	}
	if XOR(nil) != 0 {
		t.Fatalf("xor of nothing should be zero")
	}
}

func TestSum8Wraps(t *testing.T) {
	testlog.Start(t)

	if got := Sum8([]byte{0xF0, 0x20, 0x01}); got != 0x11 {
		t.Fatalf("sum8: got=%#02x want=0x11", got)
	}
	if got := Sum8([]byte{0xFF, 0x01}); got != 0x00 {
		t.Fatalf("sum8 wrap: got=%#02x want=0x00", got)
	}
}

func TestGetAndReplaceBit(t *testing.T) {
	testlog.Start(t)

	b := byte(0b0000_0101)
	for i, want := range []bool{true, false, true, false, false, false, false, false} {
		if got := GetBit(b, uint(i)); got != want {
			t.Fatalf("bit %d: got=%v want=%v", i, got, want)
		}
	}
	if GetBit(0xFF, 8) {
		t.Fatalf("index 8 should read false")
	}

	if got := ReplaceBit(b, 1, true); got != 0b0000_0111 {
		t.Fatalf("set: got=%08b", got)
	}
	if got := ReplaceBit(b, 0, false); got != 0b0000_0100 {
		t.Fatalf("clear: got=%08b", got)
	}
	if got := ReplaceBit(b, 2, true); got != b {
		t.Fatalf("set already set: got=%08b", got)
	}
	if got := ReplaceBit(b, 9, true); got != b {
		t.Fatalf("out of range index changed byte: got=%08b", got)
	}
	if b != 0b0000_0101 {
		t.Fatalf("input mutated")
	}
}

func TestParseChecksumPolicy(t *testing.T) {
	testlog.Start(t)

	cases := map[string]ChecksumPolicy{
		"":          ChecksumStrict,
		"strict":    ChecksumStrict,
		" Lenient ": ChecksumLenient,
	}
	for in, want := range cases {
		got, err := ParseChecksumPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseChecksumPolicy(%q): got=%q err=%v want=%q", in, got, err, want)
		}
	}
	if _, err := ParseChecksumPolicy("off"); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("bad policy: got=%v want=%v", err, ErrInvalidPolicy)
	}
}

func TestValuesAccessors(t *testing.T) {
	testlog.Start(t)

	v := Values{"u8": uint8(7), "u32": uint32(70000), "neg": -1, "flag": true, "name": "x"}
	if n, ok := v.Uint("u8"); !ok || n != 7 {
		t.Fatalf("u8: got=%d ok=%v", n, ok)
	}
	if n, ok := v.Uint("u32"); !ok || n != 70000 {
		t.Fatalf("u32: got=%d ok=%v", n, ok)
	}
	if _, ok := v.Uint("neg"); ok {
		t.Fatalf("negative int should not convert")
	}
	if _, ok := v.Uint("name"); ok {
		t.Fatalf("string should not convert")
	}
	if b, ok := v.Bool("flag"); !ok || !b {
		t.Fatalf("flag: got=%v ok=%v", b, ok)
	}
	if _, ok := v.Bool("missing"); ok {
		t.Fatalf("missing key reported present")
	}
}

func TestStateString(t *testing.T) {
	testlog.Start(t)

	if StateOK.String() != "ok" || StateChecksumError.String() != "checksum_error" || State(99).String() != "unknown" {
		t.Fatalf("state names: %s %s %s", StateOK, StateChecksumError, State(99))
	}
}
