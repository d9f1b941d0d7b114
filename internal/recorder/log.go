package recorder

import "github.com/rs/zerolog"

// Log writes each record as one structured log line.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Record(rec FrameRecord) {
	event := l.logger.Info()
	if !rec.OK {
		event = l.logger.Warn()
	}
	event.
		Str("channel", rec.Channel).
		Time("sent_at", rec.SentAt).
		Str("sent", rec.Sent.String()).
		Time("received_at", rec.ReceivedAt).
		Str("received", rec.Received.String()).
		Bool("ok", rec.OK).
		Str("outcome", rec.Outcome).
		Msg("frame")
}
