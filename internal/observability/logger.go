package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ChannelLogger returns the global logger tagged with a channel label.
func ChannelLogger(channel string) zerolog.Logger {
	return log.Logger.With().Str("channel", channel).Logger()
}
