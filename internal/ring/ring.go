// Package ring implements the shared packet buffer at the center of the
// pipeline: a fixed-capacity circular array of TS packets plus per-packet
// metadata, and the per-boundary handoff protocol stages use to claim and
// release contiguous regions of it.
package ring

import (
	"fmt"

	"github.com/zsiec/tsproc/internal/tspacket"
)

// Slot is the metadata word attached to one ring cell alongside its packet.
type Slot struct {
	// Flush requests that the downstream boundary treat this packet as the
	// end of a batch, waking the next stage even under its min threshold.
	Flush bool
	// BitrateChanged marks that the published TS bitrate changed while this
	// packet was being produced, so downstream stages re-read it.
	BitrateChanged bool
}

// Ring is a fixed-capacity circular buffer of TS packets shared by every
// stage in a pipeline. Stages never access it directly; they go through the
// Boundary between them, which enforces disjoint, monotonically advancing
// regions over the same backing array.
type Ring struct {
	packets []tspacket.Packet
	slots   []Slot
}

// DefaultBufferMiB is the default ring size in mebibytes (--buffer-size-mb).
const DefaultBufferMiB = 16

// CapacityForMiB converts a buffer size in mebibytes to a packet capacity.
func CapacityForMiB(mib int) int {
	if mib <= 0 {
		mib = DefaultBufferMiB
	}
	cap := (mib * 1024 * 1024) / tspacket.Size
	if cap < 1 {
		cap = 1
	}
	return cap
}

// New allocates a ring with room for capacity packets. capacity must be >= 1.
func New(capacity int) (*Ring, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("ring: capacity must be >= 1, got %d", capacity)
	}
	packets := make([]tspacket.Packet, capacity)
	for i := range packets {
		packets[i] = tspacket.NullPacket
	}
	return &Ring{
		packets: packets,
		slots:   make([]Slot, capacity),
	}, nil
}

// Cap returns the ring's fixed packet capacity.
func (r *Ring) Cap() int { return len(r.packets) }

// Packet returns a pointer to the packet at absolute index i mod Cap().
func (r *Ring) Packet(i int) *tspacket.Packet {
	return &r.packets[r.index(i)]
}

// Slot returns a pointer to the metadata slot at absolute index i mod Cap().
func (r *Ring) Slot(i int) *Slot {
	return &r.slots[r.index(i)]
}

func (r *Ring) index(i int) int {
	n := len(r.packets)
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// ContiguousRun returns how many packets starting at absolute index base can
// be addressed without wrapping the backing array, capped at want.
func (r *Ring) ContiguousRun(base, want int) int {
	n := len(r.packets)
	off := r.index(base)
	run := n - off
	if run > want {
		run = want
	}
	return run
}
