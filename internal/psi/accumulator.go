package psi

import "github.com/zsiec/tsproc/internal/tspacket"

// Accumulator reassembles one PSI section (PAT or PMT) per PID out of a
// stream of TS packets. Adapted from the teacher's packet-to-section
// reassembly in internal/mpegts/accumulator.go: same payload_unit_start +
// pointer_field handling, simplified to the single-section tables (PAT,
// PMT) the scrambler stage needs rather than the teacher's general PSI
// pool across every PID in the stream.
type Accumulator struct {
	pending map[uint16][]byte
}

// NewAccumulator returns an empty section reassembler.
func NewAccumulator() *Accumulator {
	return &Accumulator{pending: map[uint16][]byte{}}
}

// Add feeds one packet's payload into the reassembler for its PID. It
// returns a complete section (table_id..CRC32, pointer_field and trailing
// stuffing already stripped) the first time one becomes available on that
// PID, discarding accumulated bytes so a later call starts the next
// section fresh.
func (a *Accumulator) Add(pkt *tspacket.Packet) ([]byte, bool) {
	if !pkt.HasPayload() {
		return nil, false
	}
	payload := pkt.Payload()
	pid := pkt.PID()

	if pkt.PayloadUnitStartIndicator() {
		if len(payload) == 0 {
			return nil, false
		}
		pointer := int(payload[0])
		if 1+pointer > len(payload) {
			delete(a.pending, pid)
			return nil, false
		}
		a.pending[pid] = append([]byte{}, payload[1+pointer:]...)
	} else if buf, ok := a.pending[pid]; ok {
		a.pending[pid] = append(buf, payload...)
	} else {
		return nil, false
	}

	buf := a.pending[pid]
	if len(buf) < 3 {
		return nil, false
	}
	if buf[0] == 0xFF {
		delete(a.pending, pid)
		return nil, false
	}
	sectionLength := int(buf[1]&0x0F)<<8 | int(buf[2])
	total := 3 + sectionLength
	if len(buf) < total {
		return nil, false
	}
	delete(a.pending, pid)
	return buf[:total], true
}
