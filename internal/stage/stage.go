// Package stage defines the three plugin capability shapes the pipeline
// controller drives (Input, Processor, Output), the per-packet status
// contract processors return, and the worker that runs one stage through its
// start -> receive/process/send x N -> stop lifecycle on its own goroutine.
package stage

import (
	"context"

	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// Status is the per-packet verdict a Processor returns.
type Status int

const (
	// StatusOK keeps the packet as processed.
	StatusOK Status = iota
	// StatusNull replaces the packet with stuffing.
	StatusNull
	// StatusDrop replaces the packet with stuffing and marks it to be
	// skipped by downstream accounting; wire-equivalent to StatusNull.
	StatusDrop
	// StatusEnd terminates the whole pipeline cleanly after this packet.
	StatusEnd
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNull:
		return "NULL"
	case StatusDrop:
		return "DROP"
	case StatusEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// Lifecycle is embedded by every stage kind.
type Lifecycle interface {
	// Start configures the stage, failing fast on bad options. It runs
	// before any packet flows.
	Start(ctx context.Context) error
	// Stop flushes buffers and releases resources. Each stage's worker
	// calls it when that worker's own loop exits; stages stop concurrently,
	// in no particular chain order.
	Stop() error
}

// JointTerminable is implemented by stages that opt in to joint
// termination: once they decide their work is done, they call Terminate on
// the coordinator, but must keep accepting and passing through packets
// (becoming transparent) until the whole pipeline actually ends.
type JointTerminable interface {
	// SetJointTermination wires the coordinator the stage should notify,
	// or nil to opt out.
	SetJointTermination(c *JointCoordinator)
}

// BitrateAware is implemented by stages that read the published TS bitrate
// to schedule packet-count-based work (mux, scrambler).
type BitrateAware interface {
	SetBitrateSource(b BitrateSource)
}

// BitrateSource is the subset of internal/bitrate.Monitor stages consume.
type BitrateSource interface {
	Bitrate() uint64
}

// Input produces new packets into the pipeline.
type Input interface {
	Lifecycle
	// Receive fills up to len(batch) packets (each initially undefined,
	// callers must fully populate the backing packet), returning how many
	// were produced. Zero means end of stream.
	Receive(batch []*tspacket.Packet) (n int, err error)
}

// Processor inspects, mutates, drops, or replaces one packet at a time.
type Processor interface {
	Lifecycle
	// Process handles one packet in place. slot is the packet's metadata
	// word: the processor may set slot.Flush to request the downstream
	// boundary end the current batch early.
	Process(pkt *tspacket.Packet, slot *ring.Slot) (Status, error)
}

// Output drains processed packets out of the pipeline.
type Output interface {
	Lifecycle
	// Send writes a batch of packets out. An error aborts the pipeline.
	Send(batch []*tspacket.Packet) error
}
