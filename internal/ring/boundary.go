package ring

import (
	"errors"
	"sync"
)

// ErrEnded is returned by a blocking wait when the boundary has been ended
// (pipeline shutting down) with no further packets to deliver.
var ErrEnded = errors.New("ring: boundary ended")

// Boundary is the handoff between two adjacent stages sharing one Ring. The
// upstream stage is the producer (WaitOutput/ReleaseOutput); the downstream
// stage is the consumer (WaitInput/ReleaseInput). Both sides address the same
// underlying absolute packet sequence: produced counts packets the upstream
// stage has handed off, consumed counts packets the downstream stage has
// claimed back. Region [consumed, produced) is what the downstream stage may
// read right now.
type Boundary struct {
	ring *Ring

	mu   sync.Mutex
	cond *sync.Cond

	produced int64
	consumed int64

	flushed bool
	ended   bool
}

// NewBoundary creates a boundary over the given ring, with both cursors at
// absolute position 0.
func NewBoundary(r *Ring) *Boundary {
	b := &Boundary{ring: r}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// WaitOutput blocks, on behalf of the upstream (producing) stage, until at
// least min slots are free to write, or the boundary ends. It returns the
// absolute base index to write at and the number of contiguous slots granted,
// which is <= max and respects the ring's wrap point.
func (b *Boundary) WaitOutput(min, max int) (base int64, n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cap64 := int64(b.ring.Cap())
	for {
		free := cap64 - (b.produced - b.consumed)
		if b.ended {
			return 0, 0, ErrEnded
		}
		if free >= int64(min) {
			granted := max
			if int64(granted) > free {
				granted = int(free)
			}
			if run := b.ring.ContiguousRun(int(b.produced), granted); run < granted {
				granted = run
			}
			return b.produced, granted, nil
		}
		b.cond.Wait()
	}
}

// ReleaseOutput publishes n packets written starting at the base returned by
// the preceding WaitOutput, advancing the produced cursor. flush requests
// that the downstream stage be woken even below its min threshold.
func (b *Boundary) ReleaseOutput(n int, flush bool) {
	b.mu.Lock()
	b.produced += int64(n)
	if flush {
		b.flushed = true
	}
	b.mu.Unlock()
	b.cond.Broadcast()
}

// WaitInput blocks, on behalf of the downstream (consuming) stage, until at
// least min packets are available, a flush was requested, or the boundary
// ends. It returns the absolute base index to read from and the number of
// contiguous packets granted (<= max, wrap-limited).
func (b *Boundary) WaitInput(min, max int) (base int64, n int, flush bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		avail := b.produced - b.consumed
		switch {
		case avail >= int64(min) && avail > 0:
			granted := max
			if int64(granted) > avail {
				granted = int(avail)
			}
			if run := b.ring.ContiguousRun(int(b.consumed), granted); run < granted {
				granted = run
			}
			wasFlushed := b.flushed
			if int64(granted) >= avail {
				b.flushed = false
			}
			return b.consumed, granted, wasFlushed, nil
		case avail > 0 && b.flushed:
			granted := max
			if int64(granted) > avail {
				granted = int(avail)
			}
			if run := b.ring.ContiguousRun(int(b.consumed), granted); run < granted {
				granted = run
			}
			b.flushed = false
			return b.consumed, granted, true, nil
		case b.ended:
			return 0, 0, false, ErrEnded
		}
		b.cond.Wait()
	}
}

// ReleaseInput returns n consumed packets to the upstream stage, advancing
// the consumed cursor and waking any producer blocked in WaitOutput.
func (b *Boundary) ReleaseInput(n int) {
	b.mu.Lock()
	b.consumed += int64(n)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// End marks the boundary as finished: every blocked and future waiter
// returns immediately (with ErrEnded once nothing remains to deliver).
func (b *Boundary) End() {
	b.mu.Lock()
	b.ended = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Pending reports the number of packets currently available to the
// downstream stage (produced but not yet consumed).
func (b *Boundary) Pending() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.produced - b.consumed
}
