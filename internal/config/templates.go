package config

import (
	"fmt"
	"os"
)

func Template() string {
	return channelTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(channelTemplate), 0o600)
}

const channelTemplate = `# gateway address and channel; data port = base_port + 2*(channel-1)
remote_ip = "192.168.1.200"
channel = 1
base_port = 20000
line_settings = "1200,e,8,1"

# reply timing
max_wait = "1s"
wait_per_byte = "50ms"
exchange_timeout = "3s"
reconfigure_pause = "100ms"

# strict rejects replies with a bad checksum; lenient logs and accepts them
checksum_policy = "strict"
head_scan_window = 0

# poll mode
metrics_addr = ":9108"
poll_interval = "1s"

[recorder]
memory_size = 256
# nats_url = "nats://localhost:4222"
nats_subject = "hipotlink.frames"
# redis_addr = "localhost:6379"
redis_key = "hipotlink:frames"
redis_max_entries = 500
`
