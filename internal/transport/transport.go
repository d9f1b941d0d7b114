// Package transport bridges a logical serial channel on a serial-to-IP
// gateway onto UDP.
//
// Each channel owns a port pair on the gateway: the data port carries frames,
// the settings port carries line configuration commands. Every exchange uses
// its own short-lived socket; response boundaries are found by silence, not
// by length, because the gateway may split or merge datagrams.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTransportClosed = errors.New("transport: closed")
	ErrNoReply         = errors.New("transport: no reply")
	ErrInvalidChannel  = errors.New("transport: invalid channel")
	ErrInvalidPort     = errors.New("transport: invalid port")
	ErrInvalidRemote   = errors.New("transport: invalid remote ip")
	ErrInvalidSettings = errors.New("transport: invalid line settings")
)

// Transport is one logical channel.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
	// SendAndMaybeWait transmits req and, when expectReply is set, waits
	// settle before collecting the reply. A nil error with expectReply false
	// always comes with an empty response.
	SendAndMaybeWait(ctx context.Context, req []byte, expectReply bool, settle time.Duration) ([]byte, error)
	// ReconfigureLine pushes "baud,parity,databits,stopbits" to the gateway.
	ReconfigureLine(ctx context.Context, setting string) error
	Label() string
}

// Config holds the channel inputs and the reply timing.
type Config struct {
	RemoteIP string
	Channel  int
	BasePort int
	// MaxWait bounds the wait for the first reply chunk after settling.
	MaxWait time.Duration
	// WaitPerByte is the silence that ends a reply.
	WaitPerByte time.Duration
	// ExchangeTimeout caps one whole exchange, settle included.
	ExchangeTimeout time.Duration
	// ReconfigurePause separates the reset and init commands.
	ReconfigurePause time.Duration
	ReadBufferSize   int
}

func DefaultConfig() Config {
	return Config{
		RemoteIP:         "127.0.0.1",
		Channel:          1,
		BasePort:         20000,
		MaxWait:          time.Second,
		WaitPerByte:      50 * time.Millisecond,
		ExchangeTimeout:  3 * time.Second,
		ReconfigurePause: 100 * time.Millisecond,
		ReadBufferSize:   2048,
	}
}

// WithDefaults fills zero timing fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.WaitPerByte <= 0 {
		c.WaitPerByte = d.WaitPerByte
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = d.ExchangeTimeout
	}
	if c.ReconfigurePause <= 0 {
		c.ReconfigurePause = d.ReconfigurePause
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	return c
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
