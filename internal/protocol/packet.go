package protocol

import "time"

// State is the outcome of one RecvPacket.Parse call.
type State uint8

const (
	StateUnknown State = iota
	StateOK
	StateChecksumError
	StateRejected
	StateMismatch
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateChecksumError:
		return "checksum_error"
	case StateRejected:
		return "rejected"
	case StateMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// SendPacket produces one request frame.
type SendPacket interface {
	// Encode returns the exact bytes to transmit. An empty result means there
	// is nothing to send.
	Encode() ([]byte, error)
	ExpectsReply() bool
	// SettleTime is how long the device needs before its reply can be polled.
	SettleTime() time.Duration
}

// RecvPacket validates and decodes one reply frame. Parse never panics on
// malformed input; it reports false and leaves State at StateUnknown (or a more
// specific failure state).
type RecvPacket interface {
	Parse(b []byte) bool
	State() State
	Summary() string
}

// Values is the decoded field set exposed by a successful parse.
type Values map[string]any

func (v Values) Uint(key string) (uint64, bool) {
	switch n := v[key].(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func (v Values) Bool(key string) (bool, bool) {
	b, ok := v[key].(bool)
	return b, ok
}
