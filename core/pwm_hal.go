package core

// PWMChannel identifies one compare channel of the shared PWM timer
type PWMChannel uint8

const (
	PWMChannelLeft  PWMChannel = 0
	PWMChannelRight PWMChannel = 1
)

// PWMTimer is the abstract interface to the timer that generates both motor
// PWM channels against one period register. Its period-elapsed interrupt is
// the master tick and must be routed to TickTimer.HandleInterrupt.
type PWMTimer interface {
	// Configure programs the shared period (counts per cycle), zeroes both
	// compare registers and enables the period-elapsed interrupt.
	Configure(period uint32) error

	// Period returns the programmed period register value.
	Period() uint32

	// SetCompare loads a channel's duty register (0 to Period()).
	SetCompare(ch PWMChannel, value uint32)

	// ClearUpdate clears the pending period-elapsed flag.
	ClearUpdate()
}
