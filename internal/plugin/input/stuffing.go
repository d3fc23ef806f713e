package input

import (
	"context"

	"github.com/zsiec/tsproc/internal/stage"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// Stuffing wraps another Input to implement tsp's global `-a nullpkt/inpkt`,
// `--add-start-stuffing`, and `--add-stop-stuffing` options (spec.md §6):
// it prepends startCount null packets before the wrapped input ever runs,
// inserts nullCount null packets after every inputCount packets the wrapped
// input produces, and appends stopCount null packets once the wrapped input
// reaches end of stream. Every inserted packet is a plain stuffing packet
// (PID 0x1FFF); it never touches the wrapped input's own packets.
type Stuffing struct {
	inner stage.Input

	startRemaining int
	stopRemaining  int
	nullCount      int
	inputCount     int

	sincePeriodic int64
	pendingNull   int
	eof           bool
}

// WrapStuffing returns inner unchanged if none of the stuffing options are
// set, or a Stuffing wrapper otherwise.
func WrapStuffing(inner stage.Input, startCount, stopCount, nullCount, inputCount int) stage.Input {
	if startCount <= 0 && stopCount <= 0 && (nullCount <= 0 || inputCount <= 0) {
		return inner
	}
	return &Stuffing{
		inner:          inner,
		startRemaining: startCount,
		stopRemaining:  stopCount,
		nullCount:      nullCount,
		inputCount:     inputCount,
	}
}

func (s *Stuffing) Start(ctx context.Context) error { return s.inner.Start(ctx) }
func (s *Stuffing) Stop() error                     { return s.inner.Stop() }

// SetBitrateSource forwards to inner if it is bitrate-aware, preserving the
// capability-composition pattern the rest of the plugin set follows.
func (s *Stuffing) SetBitrateSource(b stage.BitrateSource) {
	if aware, ok := s.inner.(stage.BitrateAware); ok {
		aware.SetBitrateSource(b)
	}
}

// SetJointTermination forwards to inner if it opts in to joint termination.
func (s *Stuffing) SetJointTermination(c *stage.JointCoordinator) {
	if jt, ok := s.inner.(stage.JointTerminable); ok {
		jt.SetJointTermination(c)
	}
}

func fillNull(batch []*tspacket.Packet) {
	for _, p := range batch {
		*p = tspacket.NullPacket
	}
}

func (s *Stuffing) Receive(batch []*tspacket.Packet) (int, error) {
	if s.startRemaining > 0 {
		n := min(len(batch), s.startRemaining)
		fillNull(batch[:n])
		s.startRemaining -= n
		return n, nil
	}
	if s.pendingNull > 0 {
		n := min(len(batch), s.pendingNull)
		fillNull(batch[:n])
		s.pendingNull -= n
		return n, nil
	}
	if !s.eof {
		n, err := s.inner.Receive(batch)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			s.eof = true
		} else {
			if s.nullCount > 0 && s.inputCount > 0 {
				s.sincePeriodic += int64(n)
				for s.sincePeriodic >= int64(s.inputCount) {
					s.sincePeriodic -= int64(s.inputCount)
					s.pendingNull += s.nullCount
				}
			}
			return n, nil
		}
	}
	if s.eof && s.stopRemaining > 0 {
		n := min(len(batch), s.stopRemaining)
		fillNull(batch[:n])
		s.stopRemaining -= n
		return n, nil
	}
	return 0, nil
}
