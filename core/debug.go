package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a fault or safety-relevant event for post-mortem analysis
type Event struct {
	EventType uint8  // Event type code
	Source    uint8  // Motor, sonar side or bus address
	Tick      uint32 // Tick counter at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtBusRejected         = 1 // transaction did not fit in the queue
	EvtBusAbort            = 2 // NACK or bus error
	EvtBusTimeout          = 3 // watchdog aborted a stalled chain
	EvtRangingTimeout      = 4 // sonar reading did not arrive
	EvtCalibrationRejected = 5 // zero slope
	EvtEmergencyStop       = 6 // latch tripped
	EvtFault               = 7 // unrecovered error, motors braked
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event ring buffer (non-blocking, for post-mortem)
	eventRing     [EventRingSize]Event
	eventRingHead uint8
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, a host logger, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordEvent captures an event in the ring buffer. Safe from interrupt
// context.
func RecordEvent(eventType, source uint8, tick, value1, value2 uint32) {
	state := disableInterrupts()
	recordEvent(eventType, source, tick, value1, value2)
	restoreInterrupts(state)
}

// recordEvent is RecordEvent for callers already holding the interrupt mask
// or running inside a handler.
func recordEvent(eventType, source uint8, tick, value1, value2 uint32) {
	idx := eventRingHead
	eventRing[idx] = Event{
		EventType: eventType,
		Source:    source,
		Tick:      tick,
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// Events returns the recorded events from oldest to newest.
func Events() []Event {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	out := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// DumpEvents outputs the event ring buffer (call on shutdown/error)
func DumpEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range Events() {
		var name string
		switch evt.EventType {
		case EvtBusRejected:
			name = "BUS_REJECTED"
		case EvtBusAbort:
			name = "BUS_ABORT"
		case EvtBusTimeout:
			name = "BUS_TIMEOUT!"
		case EvtRangingTimeout:
			name = "RANGING_TIMEOUT"
		case EvtCalibrationRejected:
			name = "CAL_REJECTED"
		case EvtEmergencyStop:
			name = "ESTOP"
		case EvtFault:
			name = "FAULT!"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[EVENTS] " + name +
			" src=" + itoa(int(evt.Source)) +
			" tick=" + utoa(evt.Tick) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEvents clears the event buffer
func ClearEvents() {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
}
