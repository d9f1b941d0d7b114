// Package recorder stores the one frame record every exchange produces.
package recorder

import (
	"encoding/hex"
	"strings"
	"time"
)

// Outcome summaries for exchanges that never reached a decoder.
const (
	OutcomeNoReplyExpected = "no reply expected"
	OutcomeNoReplyReceived = "no reply received"
	OutcomeEmptyPayload    = "empty payload"
)

// Hex renders as space separated upper-case hex in text encodings.
type Hex []byte

func (h Hex) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hex) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(strings.ReplaceAll(string(text), " ", ""))
	if err != nil {
		return err
	}
	*h = b
	return nil
}

func (h Hex) String() string {
	if len(h) == 0 {
		return ""
	}
	enc := strings.ToUpper(hex.EncodeToString(h))
	var sb strings.Builder
	sb.Grow(len(enc) + len(h))
	for i := 0; i < len(enc); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(enc[i : i+2])
	}
	return sb.String()
}

// FrameRecord is one exchange as seen on the channel.
type FrameRecord struct {
	Channel    string    `json:"channel" yaml:"channel"`
	SentAt     time.Time `json:"sent_at" yaml:"sent_at"`
	Sent       Hex       `json:"sent" yaml:"sent"`
	ReceivedAt time.Time `json:"received_at" yaml:"received_at"`
	Received   Hex       `json:"received" yaml:"received"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	OK         bool      `json:"ok" yaml:"ok"`
}

// Recorder accepts frame records. Implementations must tolerate calls from
// several channels at once; callers ignore failures.
type Recorder interface {
	Record(rec FrameRecord)
}

// Multi fans a record out to every recorder in order.
type Multi []Recorder

func (m Multi) Record(rec FrameRecord) {
	for _, r := range m {
		if r != nil {
			r.Record(rec)
		}
	}
}

// Nop drops records.
type Nop struct{}

func (Nop) Record(FrameRecord) {}
