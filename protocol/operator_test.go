package protocol

import "testing"

type recordingSink struct {
	commands, speeds, angles []byte
}

func (r *recordingSink) SetCommand(b byte) { r.commands = append(r.commands, b) }
func (r *recordingSink) SetSpeed(b byte)   { r.speeds = append(r.speeds, b) }
func (r *recordingSink) SetAngle(b byte)   { r.angles = append(r.angles, b) }

func TestDecoderPacket(t *testing.T) {
	sink := &recordingSink{}
	dec := NewDecoder(sink)

	for _, b := range []byte{CmdRun, 0x96, 0x5A} {
		if !dec.Feed(b) {
			t.Fatalf("Feed(0x%02x) rejected", b)
		}
	}

	if dec.Packets() != 1 {
		t.Errorf("Expected 1 packet, got %d", dec.Packets())
	}
	if len(sink.commands) != 1 || sink.commands[0] != CmdRun {
		t.Errorf("commands = %v", sink.commands)
	}
	if len(sink.speeds) != 1 || sink.speeds[0] != 150 {
		t.Errorf("speeds = %v", sink.speeds)
	}
	if len(sink.angles) != 1 || sink.angles[0] != 90 {
		t.Errorf("angles = %v", sink.angles)
	}
}

func TestDecoderResync(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		packets uint32
		resyncs uint32
	}{
		{"garbage before command", []byte{0x00, 0x42, CmdRun, 100, 90}, 1, 2},
		{"speed out of range", []byte{CmdRun, 201, CmdRun, 100, 90}, 1, 1},
		{"angle out of range", []byte{CmdRun, 100, 181, CmdEmergencyStop, 100, 90}, 1, 1},
		{"command where speed expected", []byte{CmdRun, CmdRun, 100, 90}, 0, 3},
		{"bounds accepted", []byte{CmdRun, 0, 0, CmdRun, 200, 180}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(&recordingSink{})
			for _, b := range tt.input {
				dec.Feed(b)
			}
			if dec.Packets() != tt.packets {
				t.Errorf("packets = %d, want %d", dec.Packets(), tt.packets)
			}
			if dec.Resyncs() != tt.resyncs {
				t.Errorf("resyncs = %d, want %d", dec.Resyncs(), tt.resyncs)
			}
		})
	}
}

func TestDecoderStopCommandForwarded(t *testing.T) {
	sink := &recordingSink{}
	dec := NewDecoder(sink)

	dec.Feed(CmdEmergencyStop)
	if len(sink.commands) != 1 || sink.commands[0] != CmdEmergencyStop {
		t.Fatalf("stop command must reach the sink before the packet completes, got %v", sink.commands)
	}
}

func TestDecoderTruncatedPacketKeepsMotion(t *testing.T) {
	sink := &recordingSink{}
	dec := NewDecoder(sink)

	for _, b := range []byte{CmdRun, 190, 0xFF} {
		dec.Feed(b)
	}
	if len(sink.speeds) != 0 || len(sink.angles) != 0 {
		t.Errorf("bad angle must drop the speed too, got speeds=%v angles=%v", sink.speeds, sink.angles)
	}

	for _, b := range []byte{CmdRun, 120, 45} {
		dec.Feed(b)
	}
	if len(sink.speeds) != 1 || sink.speeds[0] != 120 {
		t.Errorf("speeds = %v", sink.speeds)
	}
	if len(sink.angles) != 1 || sink.angles[0] != 45 {
		t.Errorf("angles = %v", sink.angles)
	}
}

func TestEncodePacket(t *testing.T) {
	tests := []struct {
		speed   float64
		degrees int
		want    [PacketSize]byte
	}{
		{0.5, 90, [PacketSize]byte{CmdRun, 150, 90}},
		{-1, 0, [PacketSize]byte{CmdRun, 0, 0}},
		{2, 270, [PacketSize]byte{CmdRun, 200, 180}},
		{-3, -10, [PacketSize]byte{CmdRun, 0, 0}},
	}

	for _, tt := range tests {
		got := EncodePacket(CmdRun, tt.speed, tt.degrees)
		if got != tt.want {
			t.Errorf("EncodePacket(%v, %d) = %v, want %v", tt.speed, tt.degrees, got, tt.want)
		}
	}
}
