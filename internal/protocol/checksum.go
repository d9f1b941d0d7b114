package protocol

import (
	"fmt"
	"strings"
)

// Checksum folds a byte range into one check byte.
type Checksum func(b []byte) byte

// XOR starts at zero and xors every byte in b.
func XOR(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum ^= v
	}
	return sum
}

// Sum8 adds every byte in b with 8-bit wraparound.
func Sum8(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// ChecksumPolicy decides what a decoder does with a checksum mismatch.
type ChecksumPolicy string

const (
	// ChecksumStrict rejects the frame.
	ChecksumStrict ChecksumPolicy = "strict"
	// ChecksumLenient logs the mismatch and decodes anyway.
	ChecksumLenient ChecksumPolicy = "lenient"
)

func ParseChecksumPolicy(raw string) (ChecksumPolicy, error) {
	switch ChecksumPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ChecksumStrict:
		return ChecksumStrict, nil
	case ChecksumLenient:
		return ChecksumLenient, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, raw)
	}
}
