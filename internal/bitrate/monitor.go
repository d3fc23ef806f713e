// Package bitrate estimates the TS stream's bitrate from PCR deltas and
// publishes it to a single shared cell that every bitrate-aware stage
// (mux, scrambler) re-reads before scheduling packet-count-based work.
package bitrate

import (
	"sync/atomic"
	"time"
)

// DefaultAdjustInterval is --bitrate-adjust-interval's default.
const DefaultAdjustInterval = 5 * time.Second

// pcrHz is the PCR clock frequency (27MHz).
const pcrHz = 27_000_000

// Monitor maintains a sliding TS bitrate estimate from observed PCR deltas
// on one reference PID, recomputed at most once per adjust interval.
// Observe keeps its PCR reference in plain fields and runs from a single
// goroutine; the published value is an atomic word, so Bitrate and
// SetOverride are safe to call concurrently from any stage goroutine.
type Monitor struct {
	published      atomic.Uint64
	overridden     atomic.Bool
	adjustInterval time.Duration

	pid        uint16
	pidSet     bool
	lastPCR    uint64
	lastPCRSet bool
	lastPkt    int64
	pktAtFirst int64

	lastAdjust time.Time
}

// NewMonitor creates a Monitor. adjustInterval <= 0 uses DefaultAdjustInterval.
// An explicit override (the -b/--bitrate global option) may be supplied via
// SetOverride; it takes priority over PCR-derived estimates.
func NewMonitor(adjustInterval time.Duration) *Monitor {
	if adjustInterval <= 0 {
		adjustInterval = DefaultAdjustInterval
	}
	return &Monitor{adjustInterval: adjustInterval}
}

// SetOverride forces the published bitrate to a fixed value (the -b/
// --bitrate global option), bypassing PCR-based estimation.
func (m *Monitor) SetOverride(bps uint64) {
	m.published.Store(bps)
	m.overridden.Store(true)
}

// Bitrate returns the most recently published bitrate estimate in bits per
// second, or 0 if none is known yet.
func (m *Monitor) Bitrate() uint64 {
	return m.published.Load()
}

// Observe feeds one PCR sighting at absolute packet index pktIndex on PID
// pid. Only the first PID seen is tracked. Once the adjust interval has
// elapsed since the reference sighting, the bitrate is recomputed and
// published: bits = (pktIndex-refPktIndex)*188*8, time = (pcr-refPCR)/27e6
// seconds, and this sighting becomes the new reference. It reports whether the publication actually
// changed the estimate, so the caller can set the packet slot's
// bitrate-changed bit (spec.md §3/§4.1) for downstream stages to notice.
func (m *Monitor) Observe(pid uint16, pcr uint64, pktIndex int64, now time.Time) (changed bool) {
	if m.overridden.Load() {
		return false
	}
	if !m.pidSet {
		m.pid = pid
		m.pidSet = true
	}
	if pid != m.pid {
		return false
	}
	if !m.lastPCRSet {
		m.lastPCR = pcr
		m.lastPCRSet = true
		m.pktAtFirst = pktIndex
		m.lastAdjust = now
		return false
	}

	if now.Sub(m.lastAdjust) < m.adjustInterval {
		return false
	}

	pcrDelta := pcr - m.lastPCR
	pktDelta := pktIndex - m.pktAtFirst
	if pcrDelta == 0 || pktDelta <= 0 {
		m.lastPCR = pcr
		m.pktAtFirst = pktIndex
		m.lastAdjust = now
		return false
	}

	bits := uint64(pktDelta) * 188 * 8
	bps := bits * pcrHz / pcrDelta
	previous := m.published.Swap(bps)

	m.lastPCR = pcr
	m.pktAtFirst = pktIndex
	m.lastAdjust = now

	return previous != bps
}
