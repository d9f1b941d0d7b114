package instrument

import (
	"github.com/danmuck/hipotlink/internal/bytebuf"
	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/protocol/frame"
)

// Reading is the device-side view of a measurement, used to build the replies
// an instrument would send.
type Reading struct {
	Target    byte
	Source    byte
	Status    byte
	Step      byte
	VoltageV  uint16
	CurrentUA uint32
	ElapsedDS uint16
}

// Flag sets one status bit.
func (r Reading) Flag(bit uint, on bool) Reading {
	r.Status = protocol.ReplaceBit(r.Status, bit, on)
	return r
}

// EncodeMeasurement frames r in layout.
func EncodeMeasurement(layout frame.Layout, r Reading) ([]byte, error) {
	buf := bytebuf.New(MeasurementDataLen)
	buf.PutUint8(r.Status)
	buf.PutUint8(r.Step)
	buf.PutUint16LE(r.VoltageV)
	buf.PutUint32LE(r.CurrentUA)
	buf.PutUint16LE(r.ElapsedDS)
	return layout.Encode([]byte{r.Target, r.Source, CmdMeasure}, buf.Bytes())
}

// EncodeAck builds the short acknowledgement for cmd.
func EncodeAck(cmd Command, status byte) ([]byte, error) {
	return frame.Short.Encode([]byte{cmd.Code, cmd.Address}, []byte{status})
}

// Respond is the reply a well-behaved instrument sends for req, or nil when
// the request carries no reply. Unparseable requests get nil.
func Respond(req []byte, reading Reading) []byte {
	f, err := frame.Short.Decode(req, frame.DefaultOptions())
	if err != nil {
		return nil
	}
	cmd := Command{Code: f.Control[0], Address: f.Control[1]}
	switch cmd.Code {
	case CmdStop:
		return nil
	case CmdMeasure:
		if len(f.Data) > 0 {
			reading.Step = f.Data[0]
		}
		reading.Source = cmd.Address
		out, err := EncodeMeasurement(frame.CLT, reading)
		if err != nil {
			return nil
		}
		return out
	default:
		out, err := EncodeAck(cmd, AckStatusOK)
		if err != nil {
			return nil
		}
		return out
	}
}
