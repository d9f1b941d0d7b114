package transport

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// errIdle is returned by a chunkReader when nothing arrived in time.
var errIdle = errors.New("transport: idle")

type chunkReader interface {
	// ReadChunk waits at most timeout for the next chunk.
	ReadChunk(timeout time.Duration) ([]byte, error)
}

// collector assembles one reply out of chunks separated by less than idle.
type collector struct {
	maxWait time.Duration
	idle    time.Duration
	now     func() time.Time
}

// collect waits up to maxWait for the first chunk, then keeps appending while
// each following chunk arrives within idle of the previous one. deadline caps
// the whole collection; hitting it ends the reply with what has arrived, while
// cancellation discards it.
func (c collector) collect(ctx context.Context, r chunkReader, deadline time.Time) ([]byte, error) {
	first := c.bounded(c.maxWait, deadline)
	if first <= 0 {
		return nil, ErrNoReply
	}
	chunk, err := r.ReadChunk(first)
	if err != nil {
		if errors.Is(err, errIdle) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, ErrNoReply
		}
		return nil, err
	}
	out := append([]byte(nil), chunk...)

	for {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		wait := c.bounded(c.idle, deadline)
		if wait <= 0 {
			log.Warn().Int("bytes", len(out)).Msg("transport.collector.collect exchange deadline cut reply")
			return out, nil
		}
		chunk, err := r.ReadChunk(wait)
		if err != nil {
			if errors.Is(err, errIdle) {
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil, ctx.Err()
				}
				return out, nil
			}
			return nil, err
		}
		out = append(out, chunk...)
	}
}

func (c collector) bounded(d time.Duration, deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return d
	}
	if left := deadline.Sub(c.now()); left < d {
		return left
	}
	return d
}
