// Package instrument holds the hipot tester's request and reply packets.
// Requests travel in the short XOR frame; replies come back either as short
// acknowledgements or as long additive measurement frames.
package instrument

import (
	"time"

	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/protocol/frame"
)

// Command codes carried in the first control byte of a short frame.
const (
	CmdLink    byte = 0x0A
	CmdGate    byte = 0x13
	CmdStop    byte = 0x15
	CmdMeasure byte = 0x21
)

const (
	DefaultSettle     = 50 * time.Millisecond
	MeasurementSettle = 200 * time.Millisecond
)

// Command is one short-frame request. Control bytes are command, address.
type Command struct {
	Name    string
	Code    byte
	Address byte
	Data    []byte
	Reply   bool
	Settle  time.Duration
}

var _ protocol.SendPacket = Command{}

func (c Command) Encode() ([]byte, error) {
	return frame.Short.Encode([]byte{c.Code, c.Address}, c.Data)
}

func (c Command) ExpectsReply() bool {
	return c.Reply
}

func (c Command) SettleTime() time.Duration {
	return c.Settle
}

func (c Command) PacketName() string {
	return c.Name
}

// GateClose closes output gate n on the instrument at addr.
func GateClose(addr, gate byte) Command {
	return Command{
		Name:    "gate-close",
		Code:    CmdGate,
		Address: addr,
		Data:    []byte{gate, 0x01, 0x01},
		Reply:   true,
		Settle:  DefaultSettle,
	}
}

// GateOpen releases output gate n.
func GateOpen(addr, gate byte) Command {
	return Command{
		Name:    "gate-open",
		Code:    CmdGate,
		Address: addr,
		Data:    []byte{gate, 0x00, 0x01},
		Reply:   true,
		Settle:  DefaultSettle,
	}
}

// Link puts the instrument under remote control.
func Link(addr byte) Command {
	return Command{
		Name:    "link",
		Code:    CmdLink,
		Address: addr,
		Data:    []byte{0x01},
		Reply:   true,
		Settle:  100 * time.Millisecond,
	}
}

// Unlink hands control back to the front panel.
func Unlink(addr byte) Command {
	return Command{
		Name:    "unlink",
		Code:    CmdLink,
		Address: addr,
		Data:    []byte{0x00},
		Reply:   true,
		Settle:  100 * time.Millisecond,
	}
}

// ReadMeasurement asks for the live reading of test step.
func ReadMeasurement(addr, step byte) Command {
	return Command{
		Name:    "measure",
		Code:    CmdMeasure,
		Address: addr,
		Data:    []byte{step},
		Reply:   true,
		Settle:  MeasurementSettle,
	}
}

// Stop aborts a running test. The instrument does not answer it.
func Stop(addr byte) Command {
	return Command{
		Name:    "stop",
		Code:    CmdStop,
		Address: addr,
		Reply:   false,
	}
}
