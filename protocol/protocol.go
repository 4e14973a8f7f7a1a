// Package protocol implements the operator channel of the robot: a three byte
// command, speed, angle packet sent over a serial link, echoed byte by byte.
package protocol

// Version represents the diffbot firmware version
const Version = "0.1.0"

// Command bytes
const (
	CmdEmergencyStop byte = 0xF0
	CmdRun           byte = 0xF1
)

// Packet field ranges
const (
	SpeedMax   = 200 // 100 is stopped
	SpeedZero  = 100
	AngleMax   = 180 // degrees; 90 is straight ahead
	PacketSize = 3
)
