package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// Gateway settings-port commands.
const (
	CommandReset = "reset"
	CommandInit  = "init"
)

// LineSettings is a parsed "baud,parity,databits,stopbits" string.
type LineSettings struct {
	Baud     int
	Parity   string
	DataBits int
	StopBits string
}

func ParseLineSettings(raw string) (LineSettings, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 4 {
		return LineSettings{}, fmt.Errorf("%w: %q has %d fields, want 4", ErrInvalidSettings, raw, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	baud, err := strconv.Atoi(parts[0])
	if err != nil || baud <= 0 {
		return LineSettings{}, fmt.Errorf("%w: baud %q", ErrInvalidSettings, parts[0])
	}
	parity := strings.ToLower(parts[1])
	switch parity {
	case "n", "e", "o", "m", "s":
	default:
		return LineSettings{}, fmt.Errorf("%w: parity %q", ErrInvalidSettings, parts[1])
	}
	dataBits, err := strconv.Atoi(parts[2])
	if err != nil || dataBits < 5 || dataBits > 8 {
		return LineSettings{}, fmt.Errorf("%w: data bits %q", ErrInvalidSettings, parts[2])
	}
	switch parts[3] {
	case "1", "1.5", "2":
	default:
		return LineSettings{}, fmt.Errorf("%w: stop bits %q", ErrInvalidSettings, parts[3])
	}
	return LineSettings{Baud: baud, Parity: parity, DataBits: dataBits, StopBits: parts[3]}, nil
}

func (s LineSettings) String() string {
	return fmt.Sprintf("%d,%s,%d,%s", s.Baud, s.Parity, s.DataBits, s.StopBits)
}

// InitCommand is the init line sent to the settings port: the setting string
// with commas turned into spaces.
func InitCommand(setting string) string {
	return CommandInit + " " + strings.ReplaceAll(strings.TrimSpace(setting), ",", " ")
}
