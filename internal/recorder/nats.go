package recorder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// DefaultSubjectPrefix is the subject root frame records are published under.
const DefaultSubjectPrefix = "hipotlink.frames"

// Publisher is the part of *nats.Conn the recorder uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each record as JSON on <prefix>.<channel> and <prefix>.all.
type NATS struct {
	pub    Publisher
	prefix string
}

func NewNATS(pub Publisher, prefix string) *NATS {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{pub: pub, prefix: prefix}
}

// DialNATS connects to url and returns the recorder with its connection.
func DialNATS(url, prefix string) (*NATS, *nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("hipotlink"))
	if err != nil {
		return nil, nil, fmt.Errorf("recorder: nats connect %s: %w", url, err)
	}
	return NewNATS(conn, prefix), conn, nil
}

func (n *NATS) Record(rec FrameRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Msg("recorder.NATS.Record marshal failed")
		return
	}
	for _, subject := range []string{n.Subject(rec.Channel), n.prefix + ".all"} {
		if err := n.pub.Publish(subject, data); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("recorder.NATS.Record publish failed")
		}
	}
}

// Subject maps a channel label to a single NATS token.
func (n *NATS) Subject(channel string) string {
	return n.prefix + "." + SubjectToken(channel)
}

// SubjectToken strips characters NATS treats as separators or wildcards.
func SubjectToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
