package protocol

import "math"

// CommandSink receives decoded packet fields.
type CommandSink interface {
	SetCommand(b byte)
	SetSpeed(b byte)
	SetAngle(b byte)
}

type decodeState uint8

const (
	expectCommand decodeState = iota
	expectSpeed
	expectAngle
)

// Decoder is the operator packet state machine. The command byte reaches
// the sink as soon as it arrives; speed and angle are forwarded together once
// the angle byte is valid. A byte that is out of range for the field expected
// next drops the packet and the decoder waits for a command byte again.
type Decoder struct {
	sink  CommandSink
	state decodeState
	speed byte

	packets uint32
	resyncs uint32
}

// NewDecoder creates a decoder forwarding to sink.
func NewDecoder(sink CommandSink) *Decoder {
	return &Decoder{sink: sink}
}

// Feed consumes one received byte and reports whether it was accepted.
func (d *Decoder) Feed(b byte) bool {
	switch d.state {
	case expectCommand:
		if b != CmdRun && b != CmdEmergencyStop {
			return d.resync()
		}
		d.sink.SetCommand(b)
		d.state = expectSpeed
	case expectSpeed:
		if b > SpeedMax {
			return d.resync()
		}
		d.speed = b
		d.state = expectAngle
	case expectAngle:
		if b > AngleMax {
			return d.resync()
		}
		d.sink.SetSpeed(d.speed)
		d.sink.SetAngle(b)
		d.state = expectCommand
		d.packets++
	}
	return true
}

func (d *Decoder) resync() bool {
	d.state = expectCommand
	d.resyncs++
	return false
}

// Packets returns the number of complete packets decoded.
func (d *Decoder) Packets() uint32 {
	return d.packets
}

// Resyncs returns the number of malformed bytes seen.
func (d *Decoder) Resyncs() uint32 {
	return d.resyncs
}

// SpeedByte encodes a normalized speed in [-1,1].
func SpeedByte(speed float64) byte {
	if math.IsNaN(speed) {
		return SpeedZero
	}
	v := math.Round(speed*100) + SpeedZero
	return byte(math.Max(0, math.Min(SpeedMax, v)))
}

// AngleByte encodes a heading in degrees, 90 being straight ahead.
func AngleByte(degrees int) byte {
	if degrees < 0 {
		return 0
	}
	if degrees > AngleMax {
		return AngleMax
	}
	return byte(degrees)
}

// EncodePacket builds a complete operator packet.
func EncodePacket(cmd byte, speed float64, degrees int) [PacketSize]byte {
	return [PacketSize]byte{cmd, SpeedByte(speed), AngleByte(degrees)}
}
