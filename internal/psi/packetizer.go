package psi

import "github.com/zsiec/tsproc/internal/tspacket"

// CyclingPacketizer re-emits one PSI section (typically a patched PMT)
// continuously on a fixed PID, replacing packets on that PID as they flow
// through the stream. It mirrors the original's "packetizer bound to the
// original PMT PID" (spec.md §4.5.4 step 7): each call to Next fills the
// given packet with the next 184-byte slice of the section (wrapping the
// section and starting a fresh pointer_field when a new cycle begins),
// advancing a private continuity counter.
type CyclingPacketizer struct {
	pid     uint16
	section []byte
	offset  int // byte offset into section of the next unsent byte
	cc      uint8
}

// NewCyclingPacketizer creates a packetizer for pid that will emit section
// (a fully marshalled PSI section with CRC32) in an endless cycle.
func NewCyclingPacketizer(pid uint16, section []byte) *CyclingPacketizer {
	return &CyclingPacketizer{pid: pid, section: section}
}

// SetSection replaces the section being cycled (e.g. on a version bump),
// restarting at its first byte on the next Next call.
func (c *CyclingPacketizer) SetSection(section []byte) {
	c.section = section
	c.offset = 0
}

// Next overwrites pkt with the next slice of the cycling section.
func (c *CyclingPacketizer) Next(pkt *tspacket.Packet) {
	buf := pkt.Bytes()
	startOfSection := c.offset == 0

	buf[1] = byte(c.pid>>8) & 0x1F
	if startOfSection {
		buf[1] |= 0x40 // payload_unit_start_indicator
	}
	buf[0] = tspacket.SyncByte
	buf[2] = byte(c.pid)
	buf[3] = 0x10 | (c.cc & 0x0F) // no adaptation field, payload only

	payload := buf[4:]

	// pointer_field occupies payload[0] only in the packet that starts a new
	// section (PUSI=1); continuation packets carry table bytes from
	// payload[0] onward.
	var written, fillStart int
	if startOfSection {
		payload[0] = 0x00
		written = copy(payload[1:], c.section[c.offset:])
		fillStart = 1 + written
	} else {
		written = copy(payload, c.section[c.offset:])
		fillStart = written
	}
	c.offset += written
	for i := fillStart; i < len(payload); i++ {
		payload[i] = 0xFF
	}
	if c.offset >= len(c.section) {
		c.offset = 0
	}
	c.cc = (c.cc + 1) & 0x0F
}
