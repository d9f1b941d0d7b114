// Package config loads the channel configuration for hipotctl.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/protocol/frame"
	"github.com/danmuck/hipotlink/internal/recorder"
	"github.com/danmuck/hipotlink/internal/transport"
)

const (
	EnvRemoteIP = "HIPOTLINK_REMOTE_IP"
	EnvChannel  = "HIPOTLINK_CHANNEL"
	EnvBasePort = "HIPOTLINK_BASE_PORT"
)

var ErrInvalidConfig = errors.New("config: invalid")

type RecorderConfig struct {
	NATSURL         string
	NATSSubject     string
	RedisAddr       string
	RedisKey        string
	RedisMaxEntries int64
	MemorySize      int
}

type Config struct {
	RemoteIP         string
	Channel          int
	BasePort         int
	LineSettings     string
	MaxWait          time.Duration
	WaitPerByte      time.Duration
	ExchangeTimeout  time.Duration
	ReconfigurePause time.Duration
	ChecksumPolicy   protocol.ChecksumPolicy
	HeadScanWindow   int
	MetricsAddr      string
	PollInterval     time.Duration
	Recorder         RecorderConfig
}

func DefaultConfig() Config {
	t := transport.DefaultConfig()
	return Config{
		RemoteIP:         t.RemoteIP,
		Channel:          t.Channel,
		BasePort:         t.BasePort,
		LineSettings:     "1200,e,8,1",
		MaxWait:          t.MaxWait,
		WaitPerByte:      t.WaitPerByte,
		ExchangeTimeout:  t.ExchangeTimeout,
		ReconfigurePause: t.ReconfigurePause,
		ChecksumPolicy:   protocol.ChecksumStrict,
		HeadScanWindow:   0,
		MetricsAddr:      ":9108",
		PollInterval:     time.Second,
		Recorder: RecorderConfig{
			NATSSubject:     recorder.DefaultSubjectPrefix,
			RedisKey:        recorder.DefaultRedisKeyPrefix,
			RedisMaxEntries: recorder.DefaultRedisMaxEntries,
			MemorySize:      256,
		},
	}
}

type fileRecorder struct {
	NATSURL         string `toml:"nats_url"`
	NATSSubject     string `toml:"nats_subject"`
	RedisAddr       string `toml:"redis_addr"`
	RedisKey        string `toml:"redis_key"`
	RedisMaxEntries int64  `toml:"redis_max_entries"`
	MemorySize      int    `toml:"memory_size"`
}

type fileConfig struct {
	RemoteIP         string       `toml:"remote_ip"`
	Channel          int          `toml:"channel"`
	BasePort         int          `toml:"base_port"`
	LineSettings     string       `toml:"line_settings"`
	MaxWait          string       `toml:"max_wait"`
	WaitPerByte      string       `toml:"wait_per_byte"`
	ExchangeTimeout  string       `toml:"exchange_timeout"`
	ReconfigurePause string       `toml:"reconfigure_pause"`
	ChecksumPolicy   string       `toml:"checksum_policy"`
	HeadScanWindow   int          `toml:"head_scan_window"`
	MetricsAddr      string       `toml:"metrics_addr"`
	PollInterval     string       `toml:"poll_interval"`
	Recorder         fileRecorder `toml:"recorder"`
}

// Load reads path over DefaultConfig, applies env overrides and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		var err error
		cfg, err = decodeFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
	}
	cfg, err := ApplyEnv(cfg, os.Getenv)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	if meta.IsDefined("remote_ip") {
		cfg.RemoteIP = strings.TrimSpace(raw.RemoteIP)
	}
	if meta.IsDefined("channel") {
		cfg.Channel = raw.Channel
	}
	if meta.IsDefined("base_port") {
		cfg.BasePort = raw.BasePort
	}
	if meta.IsDefined("line_settings") {
		cfg.LineSettings = strings.TrimSpace(raw.LineSettings)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"max_wait", raw.MaxWait, &cfg.MaxWait},
		{"wait_per_byte", raw.WaitPerByte, &cfg.WaitPerByte},
		{"exchange_timeout", raw.ExchangeTimeout, &cfg.ExchangeTimeout},
		{"reconfigure_pause", raw.ReconfigurePause, &cfg.ReconfigurePause},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("checksum_policy") {
		p, err := protocol.ParseChecksumPolicy(raw.ChecksumPolicy)
		if err != nil {
			return Config{}, fmt.Errorf("parse checksum_policy: %w", err)
		}
		cfg.ChecksumPolicy = p
	}
	if meta.IsDefined("head_scan_window") {
		cfg.HeadScanWindow = raw.HeadScanWindow
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("recorder", "nats_url") {
		cfg.Recorder.NATSURL = strings.TrimSpace(raw.Recorder.NATSURL)
	}
	if meta.IsDefined("recorder", "nats_subject") {
		cfg.Recorder.NATSSubject = strings.TrimSpace(raw.Recorder.NATSSubject)
	}
	if meta.IsDefined("recorder", "redis_addr") {
		cfg.Recorder.RedisAddr = strings.TrimSpace(raw.Recorder.RedisAddr)
	}
	if meta.IsDefined("recorder", "redis_key") {
		cfg.Recorder.RedisKey = strings.TrimSpace(raw.Recorder.RedisKey)
	}
	if meta.IsDefined("recorder", "redis_max_entries") {
		cfg.Recorder.RedisMaxEntries = raw.Recorder.RedisMaxEntries
	}
	if meta.IsDefined("recorder", "memory_size") {
		cfg.Recorder.MemorySize = raw.Recorder.MemorySize
	}
	return cfg, nil
}

// ApplyEnv overlays the HIPOTLINK_* variables found through getenv.
func ApplyEnv(cfg Config, getenv func(string) string) (Config, error) {
	if v := strings.TrimSpace(getenv(EnvRemoteIP)); v != "" {
		cfg.RemoteIP = v
	}
	for _, e := range []struct {
		key string
		dst *int
	}{
		{EnvChannel, &cfg.Channel},
		{EnvBasePort, &cfg.BasePort},
	} {
		v := strings.TrimSpace(getenv(e.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, e.key, v)
		}
		*e.dst = n
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if net.ParseIP(strings.TrimSpace(cfg.RemoteIP)).To4() == nil {
		return fmt.Errorf("%w: remote_ip %q is not an IPv4 address", ErrInvalidConfig, cfg.RemoteIP)
	}
	if cfg.BasePort < 1 {
		return fmt.Errorf("%w: base_port must be >= 1", ErrInvalidConfig)
	}
	if _, err := transport.MapPorts(cfg.Channel, cfg.BasePort); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := transport.ParseLineSettings(cfg.LineSettings); err != nil {
		return fmt.Errorf("%w: line_settings: %w", ErrInvalidConfig, err)
	}
	for name, d := range map[string]time.Duration{
		"max_wait":          cfg.MaxWait,
		"wait_per_byte":     cfg.WaitPerByte,
		"exchange_timeout":  cfg.ExchangeTimeout,
		"reconfigure_pause": cfg.ReconfigurePause,
		"poll_interval":     cfg.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be > 0", ErrInvalidConfig, name)
		}
	}
	if _, err := protocol.ParseChecksumPolicy(string(cfg.ChecksumPolicy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.HeadScanWindow < 0 || cfg.HeadScanWindow > frame.MaxLen {
		return fmt.Errorf("%w: head_scan_window must be within 0..%d", ErrInvalidConfig, frame.MaxLen)
	}
	if cfg.Recorder.MemorySize < 1 {
		return fmt.Errorf("%w: recorder.memory_size must be >= 1", ErrInvalidConfig)
	}
	if cfg.Recorder.RedisMaxEntries < 0 {
		return fmt.Errorf("%w: recorder.redis_max_entries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Transport converts the channel settings for transport.NewUDP.
func (c Config) Transport() transport.Config {
	t := transport.DefaultConfig()
	t.RemoteIP = c.RemoteIP
	t.Channel = c.Channel
	t.BasePort = c.BasePort
	t.MaxWait = c.MaxWait
	t.WaitPerByte = c.WaitPerByte
	t.ExchangeTimeout = c.ExchangeTimeout
	t.ReconfigurePause = c.ReconfigurePause
	return t
}

// FrameOptions converts the decode settings for reply packets.
func (c Config) FrameOptions() frame.Options {
	opts := frame.DefaultOptions()
	opts.Policy = c.ChecksumPolicy
	opts.HeadScan = c.HeadScanWindow
	return opts
}
