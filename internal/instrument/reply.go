package instrument

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/hipotlink/internal/bytebuf"
	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Status byte bits of a measurement reply.
const (
	StatusRunning   uint = 0
	StatusPass      uint = 1
	StatusFail      uint = 2
	StatusArc       uint = 3
	StatusBreakdown uint = 4
)

// AckStatusOK is the only accepting status byte.
const AckStatusOK byte = 0x00

// MeasurementDataLen is status, step, voltage(2), current(4), elapsed(2).
const MeasurementDataLen = 10

// reply carries the state shared by every decoder.
type reply struct {
	opts    frame.Options
	state   protocol.State
	values  protocol.Values
	summary string
}

func (r *reply) State() protocol.State   { return r.state }
func (r *reply) Summary() string         { return r.summary }
func (r *reply) Values() protocol.Values { return r.values }

func (r *reply) reset() {
	r.state = protocol.StateUnknown
	r.values = nil
	r.summary = ""
}

// decode runs the frame decoder and maps failures onto result states. It
// returns false when the caller must stop.
func (r *reply) decode(name string, layout frame.Layout, b []byte) (frame.Frame, bool) {
	f, err := layout.Decode(b, r.opts)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrChecksumMismatch):
		r.state = protocol.StateChecksumError
		r.summary = fmt.Sprintf("%s: %v", name, err)
		return f, false
	default:
		r.state = protocol.StateUnknown
		r.summary = fmt.Sprintf("%s unknown: %v", name, err)
		return f, false
	}
	if !f.ChecksumValid {
		log.Warn().
			Str("layout", layout.Name).
			Str("checksum", fmt.Sprintf("%#02x", f.Checksum)).
			Msg("instrument.reply.decode checksum mismatch accepted by lenient policy")
	}
	return f, true
}

// Ack decodes the short acknowledgement a command produces. The reply echoes
// the command code and address; the first data byte is a status.
type Ack struct {
	reply
	Code    byte
	Address byte
}

var _ protocol.RecvPacket = (*Ack)(nil)

// NewAck expects the echo of cmd.
func NewAck(cmd Command, opts frame.Options) *Ack {
	return &Ack{reply: reply{opts: opts}, Code: cmd.Code, Address: cmd.Address}
}

func (a *Ack) Parse(b []byte) bool {
	a.reset()
	f, ok := a.decode("ack", frame.Short, b)
	if !ok {
		return false
	}
	code, addr := f.Control[0], f.Control[1]
	status := AckStatusOK
	if len(f.Data) > 0 {
		status = f.Data[0]
	}
	a.values = protocol.Values{
		"code":    code,
		"address": addr,
		"status":  status,
	}
	switch {
	case code != a.Code || addr != a.Address:
		a.state = protocol.StateMismatch
		a.summary = fmt.Sprintf("ack mismatch: got code=%#02x addr=%#02x want code=%#02x addr=%#02x", code, addr, a.Code, a.Address)
		return false
	case status != AckStatusOK:
		a.state = protocol.StateRejected
		a.summary = fmt.Sprintf("ack rejected: code=%#02x addr=%#02x status=%#02x", code, addr, status)
		return false
	}
	a.state = protocol.StateOK
	a.summary = fmt.Sprintf("ack ok: code=%#02x addr=%#02x", code, addr)
	return true
}

// Measurement is the live reading of one test step. Multi-byte fields are
// little-endian.
type Measurement struct {
	reply
	Layout    frame.Layout
	Status    byte
	Step      byte
	VoltageV  uint16
	CurrentUA uint32
	// ElapsedDS is elapsed test time in tenths of a second.
	ElapsedDS uint16
}

var _ protocol.RecvPacket = (*Measurement)(nil)

// NewMeasurement decodes the CLT1.1-compatible long frame. Those devices pad
// their replies with zeros to a fixed slot, so padding support is forced on.
func NewMeasurement(opts frame.Options) *Measurement {
	opts.ZeroPadded = true
	return &Measurement{reply: reply{opts: opts}, Layout: frame.CLT}
}

// NewZHMeasurement decodes the 0x4F long frame, which is never padded.
func NewZHMeasurement(opts frame.Options) *Measurement {
	opts.ZeroPadded = false
	return &Measurement{reply: reply{opts: opts}, Layout: frame.ZH}
}

func (m *Measurement) Parse(b []byte) bool {
	m.reset()
	f, ok := m.decode("measurement", m.Layout, b)
	if !ok {
		return false
	}
	if f.Control[2] != CmdMeasure {
		m.state = protocol.StateMismatch
		m.summary = fmt.Sprintf("measurement mismatch: control code %#02x", f.Control[2])
		return false
	}

	buf := bytebuf.Wrap(f.Data)
	if buf.Remaining() < MeasurementDataLen {
		m.state = protocol.StateUnknown
		m.summary = fmt.Sprintf("measurement unknown: data field %d bytes, want %d", buf.Remaining(), MeasurementDataLen)
		return false
	}
	// length checked above; reads cannot fail
	m.Status, _ = buf.Uint8()
	m.Step, _ = buf.Uint8()
	m.VoltageV, _ = buf.Uint16LE()
	m.CurrentUA, _ = buf.Uint32LE()
	m.ElapsedDS, _ = buf.Uint16LE()

	m.values = protocol.Values{
		"target":     f.Control[0],
		"source":     f.Control[1],
		"step":       m.Step,
		"voltage_v":  m.VoltageV,
		"current_ua": m.CurrentUA,
		"elapsed_ds": m.ElapsedDS,
		"running":    protocol.GetBit(m.Status, StatusRunning),
		"pass":       protocol.GetBit(m.Status, StatusPass),
		"fail":       protocol.GetBit(m.Status, StatusFail),
		"arc":        protocol.GetBit(m.Status, StatusArc),
		"breakdown":  protocol.GetBit(m.Status, StatusBreakdown),
	}
	m.state = protocol.StateOK
	m.summary = fmt.Sprintf("measurement ok: step=%d voltage=%dV current=%duA elapsed=%d.%ds flags=%s",
		m.Step, m.VoltageV, m.CurrentUA, m.ElapsedDS/10, m.ElapsedDS%10, m.flags())
	return true
}

func (m *Measurement) flags() string {
	names := []struct {
		bit  uint
		name string
	}{
		{StatusRunning, "running"},
		{StatusPass, "pass"},
		{StatusFail, "fail"},
		{StatusArc, "arc"},
		{StatusBreakdown, "breakdown"},
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if protocol.GetBit(m.Status, n.bit) {
			out = append(out, n.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, ",")
}

// Raw accepts any well-formed frame of its layout and exposes control and data.
type Raw struct {
	reply
	Layout frame.Layout
	Frame  frame.Frame
}

var _ protocol.RecvPacket = (*Raw)(nil)

func NewRaw(layout frame.Layout, opts frame.Options) *Raw {
	return &Raw{reply: reply{opts: opts}, Layout: layout}
}

func (r *Raw) Parse(b []byte) bool {
	r.reset()
	f, ok := r.decode("raw", r.Layout, b)
	if !ok {
		return false
	}
	r.Frame = f
	r.values = protocol.Values{
		"control": fmt.Sprintf("% X", f.Control),
		"data":    fmt.Sprintf("% X", f.Data),
		"length":  f.Length,
	}
	r.state = protocol.StateOK
	r.summary = fmt.Sprintf("raw %s ok: control=[% X] data=[% X]", r.Layout.Name, f.Control, f.Data)
	return true
}
