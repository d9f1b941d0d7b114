package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/hipotlink/internal/instrument"
	"github.com/danmuck/hipotlink/internal/link"
	"github.com/danmuck/hipotlink/internal/observability"
	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type pollState struct {
	mu       sync.Mutex
	channel  string
	polls    int
	failures int
	last     protocol.Values
	lastAt   time.Time
}

func (p *pollState) observe(at time.Time, values protocol.Values, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if err != nil {
		p.failures++
		return
	}
	p.last = values
	p.lastAt = at
}

func (p *pollState) status() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]any{
		"channel":  p.channel,
		"polls":    p.polls,
		"failures": p.failures,
	}
	if p.last != nil {
		out["last_measurement"] = p.last
		out["last_measurement_at"] = p.lastAt
	}
	return out
}

func (c *cli) pollCmd() *cobra.Command {
	var (
		count       int
		zh          bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "poll <address> [step]",
		Short: "Read measurements periodically and serve metrics and recent frames over HTTP",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseByte("address", args[0])
			if err != nil {
				return err
			}
			var step byte
			if len(args) == 2 {
				if step, err = parseByte("step", args[1]); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = c.cfg.MetricsAddr
			}

			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			state := &pollState{channel: s.udp.Label()}
			serveErr := make(chan error, 1)
			if metricsAddr != "" {
				handler := observability.Router("hipotctl", s.memory, state.status)
				go func() { serveErr <- observability.Serve(ctx, metricsAddr, handler) }()
			} else {
				serveErr <- nil
			}

			pkt := instrument.ReadMeasurement(addr, step)
			newReply := c.measurementReply(zh)
			err = c.pollLoop(ctx, cmd, s, pkt, newReply, state, count)
			cancel()
			if serr := <-serveErr; serr != nil && err == nil {
				err = serr
			}
			return err
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many polls (0 = until interrupted)")
	cmd.Flags().BoolVar(&zh, "zh", false, "expect the 0x4F headed long frame")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP listen address for /metrics /health /frames; empty disables (default from config)")
	return cmd
}

func (c *cli) pollLoop(ctx context.Context, cmd *cobra.Command, s *session, pkt instrument.Command, newReply func() protocol.RecvPacket, state *pollState, count int) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for i := 1; ; i++ {
		var reply protocol.RecvPacket
		rec, _, err := link.ExchangeWithRetry(ctx, s.conn, pkt, func() protocol.RecvPacket {
			reply = newReply()
			return reply
		}, "", c.retryPolicy())
		if ctx.Err() != nil {
			return nil
		}

		var values protocol.Values
		if v, ok := reply.(valued); ok && err == nil {
			values = v.Values()
		}
		state.observe(rec.ReceivedAt, values, err)
		if err != nil {
			log.Warn().Err(err).Int("poll", i).Msg("hipotctl.poll exchange failed")
		}
		if _, werr := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", rec.ReceivedAt.Format("15:04:05.000"), rec.Outcome); werr != nil {
			return werr
		}

		if count > 0 && i >= count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
