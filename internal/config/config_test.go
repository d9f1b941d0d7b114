package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hipotlink.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv(string) string { return "" }

func TestLoadOverlaysDefinedKeysOnly(t *testing.T) {
	testlog.Start(t)

	path := writeFile(t, `
remote_ip = "10.1.1.50"
channel = 3
wait_per_byte = "80ms"
checksum_policy = "lenient"
head_scan_window = 16

[recorder]
redis_addr = "localhost:6379"
memory_size = 32
`)
	cfg, err := decodeFile(path, DefaultConfig())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d := DefaultConfig()
	if cfg.RemoteIP != "10.1.1.50" || cfg.Channel != 3 || cfg.BasePort != d.BasePort {
		t.Fatalf("channel fields: got=%+v", cfg)
	}
	if cfg.WaitPerByte != 80*time.Millisecond || cfg.MaxWait != d.MaxWait {
		t.Fatalf("durations: wait_per_byte=%v max_wait=%v", cfg.WaitPerByte, cfg.MaxWait)
	}
	if cfg.ChecksumPolicy != protocol.ChecksumLenient || cfg.HeadScanWindow != 16 {
		t.Fatalf("decode options: policy=%s scan=%d", cfg.ChecksumPolicy, cfg.HeadScanWindow)
	}
	if cfg.Recorder.RedisAddr != "localhost:6379" || cfg.Recorder.MemorySize != 32 || cfg.Recorder.RedisKey != d.Recorder.RedisKey {
		t.Fatalf("recorder: got=%+v", cfg.Recorder)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}

	opts := cfg.FrameOptions()
	if opts.Policy != protocol.ChecksumLenient || opts.HeadScan != 16 {
		t.Fatalf("frame options: got=%+v", opts)
	}
	tc := cfg.Transport()
	if tc.Channel != 3 || tc.WaitPerByte != 80*time.Millisecond || tc.ReadBufferSize == 0 {
		t.Fatalf("transport config: got=%+v", tc)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"bad duration": `max_wait = "soon"`,
		"bad policy":   `checksum_policy = "sometimes"`,
		"unknown key":  `baud = 9600`,
		"invalid toml": `channel = `,
	}
	for name, body := range cases {
		if _, err := decodeFile(writeFile(t, body), DefaultConfig()); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("missing file: expected error")
	}
}

func TestApplyEnv(t *testing.T) {
	testlog.Start(t)

	env := map[string]string{
		EnvRemoteIP: " 10.9.9.9 ",
		EnvChannel:  "4",
		EnvBasePort: "30000",
	}
	cfg, err := ApplyEnv(DefaultConfig(), func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.RemoteIP != "10.9.9.9" || cfg.Channel != 4 || cfg.BasePort != 30000 {
		t.Fatalf("env overlay: got ip=%s ch=%d base=%d", cfg.RemoteIP, cfg.Channel, cfg.BasePort)
	}

	env[EnvChannel] = "two"
	if _, err := ApplyEnv(DefaultConfig(), func(k string) string { return env[k] }); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("bad int: got=%v want=%v", err, ErrInvalidConfig)
	}

	same, err := ApplyEnv(DefaultConfig(), noEnv)
	if err != nil || same.RemoteIP != DefaultConfig().RemoteIP {
		t.Fatalf("empty env changed config: %+v err=%v", same, err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	testlog.Start(t)

	t.Setenv(EnvChannel, "2")
	cfg, err := Load(writeFile(t, "channel = 5\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channel != 2 {
		t.Fatalf("channel: got=%d want=2", cfg.Channel)
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)

	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cases := map[string]func(*Config){
		"bad ip":           func(c *Config) { c.RemoteIP = "gateway" },
		"ipv6":             func(c *Config) { c.RemoteIP = "::1" },
		"channel zero":     func(c *Config) { c.Channel = 0 },
		"base port zero":   func(c *Config) { c.BasePort = 0 },
		"port overflow":    func(c *Config) { c.BasePort = 65535 },
		"line settings":    func(c *Config) { c.LineSettings = "1200,x,8,1" },
		"zero wait":        func(c *Config) { c.WaitPerByte = 0 },
		"policy":           func(c *Config) { c.ChecksumPolicy = "loose" },
		"scan window":      func(c *Config) { c.HeadScanWindow = 256 },
		"memory size":      func(c *Config) { c.Recorder.MemorySize = 0 },
		"negative entries": func(c *Config) { c.Recorder.RedisMaxEntries = -1 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: got=%v want=%v", name, err, ErrInvalidConfig)
		}
	}
}

func TestWriteTemplateLoadsCleanly(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "hipotlink.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	cfg, err := decodeFile(path, DefaultConfig())
	if err != nil {
		t.Fatalf("decode template: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("template invalid: %v", err)
	}
	if cfg.RemoteIP != "192.168.1.200" {
		t.Fatalf("template remote ip: got=%q", cfg.RemoteIP)
	}
}
