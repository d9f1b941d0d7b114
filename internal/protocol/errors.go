package protocol

import "errors"

var (
	ErrEmptyPayload     = errors.New("protocol: empty payload")
	ErrFrameTooShort    = errors.New("protocol: frame shorter than minimum")
	ErrHeadMismatch     = errors.New("protocol: head byte mismatch")
	ErrInvalidLength    = errors.New("protocol: invalid length field")
	ErrTruncated        = errors.New("protocol: declared length exceeds available bytes")
	ErrTailMismatch     = errors.New("protocol: tail byte mismatch")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("protocol: payload too large")
	ErrInvalidPolicy    = errors.New("protocol: invalid checksum policy")
)
