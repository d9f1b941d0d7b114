package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/hipotlink/internal/config"
	"github.com/danmuck/hipotlink/internal/link"
	"github.com/danmuck/hipotlink/internal/output"
	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/recorder"
	"github.com/danmuck/hipotlink/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const skipConfig = "hipotctl/skip-config"

type cli struct {
	cfgFile  string
	format   string
	remoteIP string
	channel  int
	basePort int
	policy   string
	retries  int

	cfg       config.Config
	formatter output.Formatter
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "hipotctl",
		Short: "Talk to a withstand-voltage tester behind a serial-to-IP gateway",
		Long: `hipotctl drives one gateway channel: it frames instrument commands, sends
them over UDP, collects the reply by silence detection and decodes it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "TOML config file")
	flags.StringVarP(&c.format, "output", "o", "table", "output format: table, json, yaml")
	flags.StringVar(&c.remoteIP, "remote", "", "gateway IPv4 address (overrides config)")
	flags.IntVar(&c.channel, "channel", 0, "logical channel number, 1-based (overrides config)")
	flags.IntVar(&c.basePort, "base-port", 0, "gateway base port (overrides config)")
	flags.StringVar(&c.policy, "checksum-policy", "", "strict or lenient (overrides config)")
	flags.IntVar(&c.retries, "retries", 1, "attempts per exchange")

	root.AddCommand(
		c.portsCmd(),
		c.sendCmd(),
		c.gateCmd("gate-close", "Close an output gate", true),
		c.gateCmd("gate-open", "Open an output gate", false),
		c.linkCmd(),
		c.stopCmd(),
		c.measureCmd(),
		c.reconfigureCmd(),
		c.pollCmd(),
		c.simulateCmd(),
		c.configCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	f, err := output.NewFormatter(c.format)
	if err != nil {
		return err
	}
	c.formatter = f
	for p := cmd; p != nil; p = p.Parent() {
		if p.Annotations[skipConfig] == "true" {
			return nil
		}
	}

	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("remote") {
		cfg.RemoteIP = c.remoteIP
	}
	if flags.Changed("channel") {
		cfg.Channel = c.channel
	}
	if flags.Changed("base-port") {
		cfg.BasePort = c.basePort
	}
	if flags.Changed("checksum-policy") {
		p, err := protocol.ParseChecksumPolicy(c.policy)
		if err != nil {
			return err
		}
		cfg.ChecksumPolicy = p
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

// session is one open channel with its recorders.
type session struct {
	udp     *transport.UDP
	conn    *link.Connection
	memory  *recorder.Memory
	closers []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (c *cli) open(ctx context.Context) (*session, error) {
	udp, err := transport.NewUDP(c.cfg.Transport())
	if err != nil {
		return nil, err
	}
	if err := udp.Open(ctx); err != nil {
		return nil, err
	}
	s := &session{udp: udp, memory: recorder.NewMemory(c.cfg.Recorder.MemorySize)}
	s.closers = append(s.closers, func() { _ = udp.Close() })

	sinks := recorder.Multi{recorder.NewLog(log.Logger), s.memory}
	if url := c.cfg.Recorder.NATSURL; url != "" {
		nr, nc, err := recorder.DialNATS(url, c.cfg.Recorder.NATSSubject)
		if err != nil {
			s.Close()
			return nil, err
		}
		sinks = append(sinks, nr)
		s.closers = append(s.closers, func() { _ = nc.Drain() })
	}
	if addr := c.cfg.Recorder.RedisAddr; addr != "" {
		rr, rc, err := recorder.DialRedis(ctx, addr, c.cfg.Recorder.RedisKey, c.cfg.Recorder.RedisMaxEntries)
		if err != nil {
			s.Close()
			return nil, err
		}
		sinks = append(sinks, rr)
		s.closers = append(s.closers, func() { _ = rc.Close() })
	}
	s.conn = link.New(udp, sinks)
	return s, nil
}

func (c *cli) print(cmd *cobra.Command, data any) error {
	out, err := c.formatter.Format(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func (c *cli) retryPolicy() link.RetryPolicy {
	p := link.DefaultRetryPolicy()
	p.Attempts = c.retries
	return p
}

func parseByte(name, raw string) (byte, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%s must be 0..255: %q", name, raw)
	}
	return byte(n), nil
}
