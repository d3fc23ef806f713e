package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// ErrEnd is returned by the Run* workers when the pipeline is ending on
// request rather than at the input's end of stream: a processor returned
// StatusEnd, the abort signal fired, or the downstream boundary was ended
// (RunInput returns nil at the input's own end of stream). It represents
// requested, not failed, termination: the controller drains and stops every
// stage but still exits 0.
var ErrEnd = errors.New("stage: end of pipeline requested")

// BatchConfig bounds how many packets a stage claims per handoff iteration.
// A zero field means unbounded; the spec.md §4.1 defaults (offline
// max_flush_pkt=10000/max_input_pkt unbounded; real-time
// max_flush_pkt=1000/max_input_pkt=1000) are filled in by cmd/tsp.
type BatchConfig struct {
	MaxFlushPkt int // processor/output claim cap; <=0 means unbounded
	MaxInputPkt int // input claim cap; <=0 means unbounded
}

const unboundedBatch = 1 << 30

func (c BatchConfig) flushCap() int {
	if c.MaxFlushPkt <= 0 {
		return unboundedBatch
	}
	return c.MaxFlushPkt
}

func (c BatchConfig) inputCap() int {
	if c.MaxInputPkt <= 0 {
		return unboundedBatch
	}
	return c.MaxInputPkt
}

// AbortFunc reports whether the pipeline should wind down cooperatively
// (context cancelled, or joint termination coordinator satisfied).
type AbortFunc func() bool

// ObserveFunc lets the controller watch packets as the input stage produces
// them, independent of the processor chain (internal/bitrate's PCR-based
// estimation runs off this rather than off any one processor's view). It
// receives the packet's own ring slot so it can set slot.BitrateChanged
// (spec.md §3) when the observation causes the published bitrate to move.
type ObserveFunc func(pkt *tspacket.Packet, slot *ring.Slot, pktIndex int64)

func batchPointers(r *ring.Ring, base int64, n int) []*tspacket.Packet {
	out := make([]*tspacket.Packet, n)
	for i := 0; i < n; i++ {
		out[i] = r.Packet(int(base) + i)
	}
	return out
}

// RunInput drives one Input stage: Start, repeated Receive into freshly
// claimed ring slots released downstream, then Stop. It returns nil on a
// clean end of stream, ErrEnd on the abort signal or an ended downstream
// boundary, or the first I/O error otherwise.
func RunInput(ctx context.Context, in Input, r *ring.Ring, down *ring.Boundary, cfg BatchConfig, abort AbortFunc, observe ObserveFunc) error {
	if err := in.Start(ctx); err != nil {
		return fmt.Errorf("stage: input start: %w", err)
	}

	runErr := func() error {
		for {
			if abort() {
				return ErrEnd
			}

			base, n, err := down.WaitOutput(1, cfg.inputCap())
			if err != nil {
				if errors.Is(err, ring.ErrEnded) {
					return ErrEnd
				}
				return err
			}

			batch := batchPointers(r, base, n)
			for i := 0; i < n; i++ {
				*r.Slot(int(base) + i) = ring.Slot{}
			}

			produced, err := in.Receive(batch)
			if err != nil {
				return fmt.Errorf("stage: input receive: %w", err)
			}
			if produced == 0 {
				down.ReleaseOutput(0, true)
				down.End()
				return nil
			}
			if observe != nil {
				for i := 0; i < produced; i++ {
					observe(batch[i], r.Slot(int(base)+i), base+int64(i))
				}
			}
			down.ReleaseOutput(produced, false)
		}
	}()

	if stopErr := in.Stop(); stopErr != nil && runErr == nil {
		runErr = fmt.Errorf("stage: input stop: %w", stopErr)
	}
	return runErr
}

// RunProcessor drives one Processor stage between its upstream and
// downstream boundaries, mutating packets in place and relaying exactly what
// it consumed. It returns ErrEnd when a packet's status was StatusEnd or the
// abort signal fired, or the first processing error otherwise.
func RunProcessor(ctx context.Context, p Processor, r *ring.Ring, up, down *ring.Boundary, cfg BatchConfig, abort AbortFunc) error {
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("stage: processor start: %w", err)
	}

	runErr := func() error {
		for {
			if abort() {
				up.End()
				down.End()
				return ErrEnd
			}

			upBase, upN, upFlush, err := up.WaitInput(1, cfg.flushCap())
			if err != nil {
				if errors.Is(err, ring.ErrEnded) {
					down.End()
					return nil
				}
				return err
			}

			downBase, downN, err := down.WaitOutput(1, upN)
			if err != nil {
				if errors.Is(err, ring.ErrEnded) {
					return ErrEnd
				}
				return err
			}
			_ = downBase // same absolute index as upBase by construction

			n := downN
			flushOut := upFlush && n == upN
			ended := false

			for i := 0; i < n; i++ {
				idx := int(upBase) + i
				pkt := r.Packet(idx)
				slot := r.Slot(idx)
				status, perr := p.Process(pkt, slot)
				if perr != nil {
					return fmt.Errorf("stage: process packet: %w", perr)
				}
				// A processor may set slot.Flush itself (spec.md §4.1's
				// flush-request operation) to wake the downstream
				// boundary early, e.g. a packetizer delivering a burst
				// that must not wait for the batch to fill.
				if slot.Flush {
					flushOut = true
				}
				switch status {
				case StatusNull, StatusDrop:
					*pkt = tspacket.NullPacket
				case StatusEnd:
					ended = true
					n = i + 1
					flushOut = true
				}
				if ended {
					break
				}
			}

			down.ReleaseOutput(n, flushOut)
			up.ReleaseInput(n)

			if ended {
				down.End()
				return ErrEnd
			}
		}
	}()

	if stopErr := p.Stop(); stopErr != nil && runErr == nil {
		runErr = fmt.Errorf("stage: processor stop: %w", stopErr)
	}
	return runErr
}

// RunOutput drives one Output stage: Start, repeated Send from claimed ring
// slots released back upstream, then Stop.
func RunOutput(ctx context.Context, out Output, r *ring.Ring, up *ring.Boundary, cfg BatchConfig, abort AbortFunc) error {
	if err := out.Start(ctx); err != nil {
		return fmt.Errorf("stage: output start: %w", err)
	}

	runErr := func() error {
		for {
			if abort() {
				up.End()
				return ErrEnd
			}

			base, n, _, err := up.WaitInput(1, cfg.flushCap())
			if err != nil {
				if errors.Is(err, ring.ErrEnded) {
					return nil
				}
				return err
			}

			batch := batchPointers(r, base, n)
			if err := out.Send(batch); err != nil {
				return fmt.Errorf("stage: output send: %w", err)
			}
			up.ReleaseInput(n)
		}
	}()

	if stopErr := out.Stop(); stopErr != nil && runErr == nil {
		runErr = fmt.Errorf("stage: output stop: %w", stopErr)
	}
	return runErr
}
