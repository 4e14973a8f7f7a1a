package sim

import (
	"errors"
	"io"
	"sync"
	"time"

	"diffbot/protocol"
)

const serialBufferSize = 256

// Serial is a simulated operator link. The robot side satisfies
// core.OperatorPort; Host returns the operator's end.
type Serial struct {
	mu        sync.Mutex
	toRobot   *protocol.FifoBuffer
	fromRobot *protocol.FifoBuffer
	closed    bool

	// ReadTimeout bounds a host read that finds nothing to return.
	ReadTimeout time.Duration
}

// ErrSerialClosed is returned by a closed host end.
var ErrSerialClosed = errors.New("sim: serial link closed")

// NewSerial creates an idle link.
func NewSerial() *Serial {
	return &Serial{
		toRobot:     protocol.NewFifoBuffer(serialBufferSize),
		fromRobot:   protocol.NewFifoBuffer(serialBufferSize),
		ReadTimeout: 100 * time.Millisecond,
	}
}

func (s *Serial) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toRobot.Available()
}

func (s *Serial) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.toRobot.Shift()
	if !ok {
		return 0, io.EOF
	}
	return b, nil
}

// WriteByte drops the byte when the operator is not draining the link.
func (s *Serial) WriteByte(b byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fromRobot.Push(b)
	return nil
}

// Host returns the operator's end of the link.
func (s *Serial) Host() *HostPort {
	return &HostPort{link: s}
}

// HostPort is the operator's end of a simulated link. It has the method set
// of a host serial port.
type HostPort struct {
	link *Serial
}

// Read returns echoed bytes, waiting up to the link's read timeout for the
// first one. A timeout returns 0 bytes and no error, like a serial port.
func (h *HostPort) Read(p []byte) (int, error) {
	deadline := time.Now().Add(h.link.ReadTimeout)
	for {
		h.link.mu.Lock()
		if h.link.closed {
			h.link.mu.Unlock()
			return 0, ErrSerialClosed
		}
		n := h.link.fromRobot.Read(p)
		h.link.mu.Unlock()
		if n > 0 || len(p) == 0 || time.Now().After(deadline) {
			return n, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *HostPort) Write(p []byte) (int, error) {
	h.link.mu.Lock()
	defer h.link.mu.Unlock()
	if h.link.closed {
		return 0, ErrSerialClosed
	}
	n := h.link.toRobot.Write(p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (h *HostPort) Flush() error {
	return nil
}

func (h *HostPort) Close() error {
	h.link.mu.Lock()
	defer h.link.mu.Unlock()
	h.link.closed = true
	return nil
}
