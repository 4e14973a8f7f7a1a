package core

// BusQueueCapacity is the number of words the bus transaction queue holds
const BusQueueCapacity = 64

type busWordKind uint8

const (
	wordHeader busWordKind = iota + 1
	wordData
	wordDest
)

// busWord is one queue slot: a transfer header, a payload byte or the
// destination of a received byte.
type busWord struct {
	kind busWordKind
	// continuation marks the read half of a write-then-read transaction
	continuation bool
	ctrl         I2CControl
	data         byte
	dest         *RxCell
}

// busQueue is a bounded ring over a fixed arena. It is only touched by the
// issuing call (with interrupts masked) and the bus interrupt handler.
type busQueue struct {
	words [BusQueueCapacity]busWord
	head  uint16 // next word to consume
	count uint16
}

func (q *busQueue) free() int {
	return BusQueueCapacity - int(q.count)
}

func (q *busQueue) empty() bool {
	return q.count == 0
}

// push appends a whole transaction or nothing.
func (q *busQueue) push(words ...busWord) bool {
	if len(words) > q.free() {
		return false
	}
	for _, w := range words {
		q.words[(q.head+q.count)%BusQueueCapacity] = w
		q.count++
	}
	return true
}

// peek returns the next word without consuming it.
func (q *busQueue) peek() (busWord, bool) {
	if q.count == 0 {
		return busWord{}, false
	}
	return q.words[q.head], true
}

func (q *busQueue) pop() (busWord, bool) {
	w, ok := q.peek()
	if !ok {
		return w, false
	}
	q.words[q.head] = busWord{}
	q.head = (q.head + 1) % BusQueueCapacity
	q.count--
	return w, true
}

// dropTransaction discards words up to the next transaction header (a header
// that is not a continuation), failing any destinations on the way. It
// returns the number of words dropped.
func (q *busQueue) dropTransaction(err error) int {
	n := 0
	for {
		w, ok := q.peek()
		if !ok || (w.kind == wordHeader && !w.continuation) {
			return n
		}
		q.pop()
		if w.kind == wordDest && w.dest != nil {
			w.dest.fail(err)
		}
		n++
	}
}
