// Package link serializes request/response exchanges on one channel.
//
// A Connection owns two lock scopes: the packet scope covers a whole
// exchange (encode, transmit, decode, record) and the send scope covers the
// transport call alone. Use one Connection per channel; exchanges on
// different channels run in parallel.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/hipotlink/internal/observability"
	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/recorder"
	"github.com/danmuck/hipotlink/internal/transport"
	"github.com/rs/zerolog"
)

var (
	ErrNoReply    = errors.New("link: no reply received")
	ErrBadReply   = errors.New("link: reply rejected")
	ErrSendFailed = errors.New("link: send failed")
)

// Named is implemented by packets that carry a name for metrics.
type Named interface {
	PacketName() string
}

type Connection struct {
	transport transport.Transport
	recorder  recorder.Recorder
	logger    zerolog.Logger
	now       func() time.Time

	packetMu sync.Mutex
	sendMu   sync.Mutex
}

// New binds a connection to t. A nil recorder drops frame records.
func New(t transport.Transport, rec recorder.Recorder) *Connection {
	if rec == nil {
		rec = recorder.Nop{}
	}
	return &Connection{
		transport: t,
		recorder:  rec,
		logger:    observability.ChannelLogger(t.Label()),
		now:       time.Now,
	}
}

func (c *Connection) Transport() transport.Transport {
	return c.transport
}

// Send runs one exchange and reports whether it succeeded. When rp is nil
// any reply is accepted as long as one arrives.
func (c *Connection) Send(ctx context.Context, sp protocol.SendPacket, rp protocol.RecvPacket, label string) bool {
	_, err := c.Exchange(ctx, sp, rp, label)
	return err == nil
}

// Exchange runs one exchange and returns the frame record it produced.
// Exactly one record reaches the recorder per call.
func (c *Connection) Exchange(ctx context.Context, sp protocol.SendPacket, rp protocol.RecvPacket, label string) (recorder.FrameRecord, error) {
	start := c.now()
	c.packetMu.Lock()
	defer c.packetMu.Unlock()

	if label == "" {
		label = c.transport.Label()
	}
	rec := recorder.FrameRecord{Channel: label}
	outcome := observability.OutcomeOK
	defer func() {
		c.recorder.Record(rec)
		observability.RecordExchange(label, packetName(sp), outcome, len(rec.Received), c.now().Sub(start))
	}()

	req, err := sp.Encode()
	if err != nil || len(req) == 0 {
		rec.SentAt = c.now()
		rec.Outcome = recorder.OutcomeEmptyPayload
		outcome = observability.OutcomeEncode
		if err == nil {
			err = protocol.ErrEmptyPayload
		} else {
			rec.Outcome = "encode failed: " + err.Error()
		}
		c.logger.Warn().Err(err).Msg("link.Connection.Exchange nothing to send")
		return rec, err
	}
	rec.Sent = req

	resp, sentAt, err := c.transmit(ctx, req, sp.ExpectsReply(), sp.SettleTime())
	rec.SentAt = sentAt
	rec.ReceivedAt = c.now()
	rec.Received = resp

	switch {
	case err == nil && !sp.ExpectsReply():
		rec.OK = true
		rec.Outcome = recorder.OutcomeNoReplyExpected
		outcome = observability.OutcomeSent
		return rec, nil
	case errors.Is(err, transport.ErrNoReply), err == nil && len(resp) == 0:
		rec.Outcome = recorder.OutcomeNoReplyReceived
		outcome = observability.OutcomeNoReply
		return rec, ErrNoReply
	case err != nil:
		rec.Outcome = "send failed: " + err.Error()
		outcome = observability.OutcomeSendError
		c.logger.Warn().Err(err).Msg("link.Connection.Exchange transport error")
		return rec, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	if rp == nil {
		rec.OK = true
		rec.Outcome = fmt.Sprintf("%d bytes, not decoded", len(resp))
		return rec, nil
	}
	ok := rp.Parse(resp)
	rec.OK = ok
	rec.Outcome = rp.Summary()
	if !ok {
		outcome = observability.OutcomeBadReply
		return rec, fmt.Errorf("%w: state=%s", ErrBadReply, rp.State())
	}
	return rec, nil
}

func (c *Connection) transmit(ctx context.Context, req []byte, expectReply bool, settle time.Duration) ([]byte, time.Time, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	sentAt := c.now()
	resp, err := c.transport.SendAndMaybeWait(ctx, req, expectReply, settle)
	return resp, sentAt, err
}

// ReconfigureLine pushes line settings under the send scope so it cannot
// interleave with a frame on the same channel.
func (c *Connection) ReconfigureLine(ctx context.Context, setting string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.transport.ReconfigureLine(ctx, setting)
}

func packetName(sp protocol.SendPacket) string {
	if n, ok := sp.(Named); ok && n.PacketName() != "" {
		return n.PacketName()
	}
	return "packet"
}
