package link

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/recorder"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// RetryPolicy bounds caller-side retries around Connection.Exchange.
type RetryPolicy struct {
	Attempts int
	Backoff  BackoffConfig
	// RetryBadReply also retries replies that arrived but failed to decode.
	RetryBadReply bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       false,
		},
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// ExchangeWithRetry repeats an exchange until it succeeds, the policy runs
// out, or ctx ends. newReply supplies a fresh RecvPacket per attempt. Every
// attempt produces its own frame record.
func ExchangeWithRetry(ctx context.Context, c *Connection, sp protocol.SendPacket, newReply func() protocol.RecvPacket, label string, policy RetryPolicy) (recorder.FrameRecord, int, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var (
		rec recorder.FrameRecord
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		var rp protocol.RecvPacket
		if newReply != nil {
			rp = newReply()
		}
		rec, err = c.Exchange(ctx, sp, rp, label)
		if err == nil || !retryable(err, policy) || attempt == attempts {
			return rec, attempt, err
		}
		delay := NextBackoffDelay(policy.Backoff, attempt, nil)
		c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("link.ExchangeWithRetry retrying")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return rec, attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return rec, attempts, err
}

func retryable(err error, policy RetryPolicy) bool {
	switch {
	case errors.Is(err, ErrNoReply), errors.Is(err, ErrSendFailed):
		return !errors.Is(err, context.Canceled)
	case errors.Is(err, ErrBadReply):
		return policy.RetryBadReply
	default:
		return false
	}
}
