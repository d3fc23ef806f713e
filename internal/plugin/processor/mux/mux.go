// Package mux implements the mux processor: it inserts packets read from an
// auxiliary 188-byte side file into stuffing slots of the live stream,
// gated by bitrate/inter-packet/PTS-window configuration. --inter-time is
// parsed and checked for mutual exclusion but does not gate insertion.
// Grounded on spec.md §4.3; the side-file framing itself is grounded on
// internal/tspacket.FromBytes, the same per-packet validation input/file
// uses for the main stream.
package mux

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/stage"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// Mux implements stage.Processor, stage.BitrateAware and
// stage.JointTerminable.
type Mux struct {
	log *slog.Logger

	sidePath     string
	repeat       int // 0 = infinite
	byteOffset   int64
	packetOffset int64

	bitrateTarget  uint64
	interPacket    int64
	interTimeMS    int64
	minPTS, maxPTS *uint64
	ptsPID         *uint16
	forcePID       *uint16
	maxInsert      int64

	noContinuityUpdate bool
	noPIDConflictCheck bool
	terminateOnEOF     bool
	jointTermination   bool

	bitrate stage.BitrateSource
	joint   *stage.JointCoordinator

	// runtime state
	side           *os.File
	loopsRemaining int // mirrors repeat, decremented on each EOF rewind; -1 = infinite
	exhausted      bool

	interPktComputed int64
	nextInsertAt     int64
	packetCounter    int64
	insertedCount    int64

	ptsLatched   bool
	latchedPID   uint16
	lastTS       uint64
	haveLastTS   bool
	ptsRangeOK   bool

	seen     map[uint16]bool
	ccByPID  map[uint16]uint8

	optedIn bool
}

// New parses args for the mux processor. Supported flags match spec.md's
// §4.3 option table.
func New(args []string, log *slog.Logger) (*Mux, error) {
	fs := flag.NewFlagSet("mux", flag.ContinueOnError)
	bitrateBps := fs.Uint64("bitrate", 0, "")
	interPkt := fs.Int64("inter-packet", 0, "")
	interTime := fs.Int64("inter-time", 0, "milliseconds between insertions (validated only; not applied to insertion gating)")
	minPTS := fs.Int64("min-pts", -1, "")
	maxPTS := fs.Int64("max-pts", -1, "")
	ptsPID := fs.Int64("pts-pid", -1, "")
	forcePID := fs.Int64("pid", -1, "rewrite inserted packets to this PID")
	maxInsert := fs.Int64("max-insert-count", 0, "0 = unbounded")
	noCC := fs.Bool("no-continuity-update", false, "")
	noConflict := fs.Bool("no-pid-conflict-check", false, "")
	terminate := fs.Bool("terminate", false, "end the pipeline on side-file EOF")
	joint := fs.Bool("joint-termination", false, "opt into joint termination on side-file EOF")
	repeat := fs.Int("repeat", 1, "0 = loop forever")
	byteOffset := fs.Int64("byte-offset", 0, "")
	packetOffset := fs.Int64("packet-offset", 0, "")
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "mux")
		return nil, flag.ErrHelp
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("mux: expected exactly one side-file path argument")
	}
	if *interPkt != 0 && *bitrateBps != 0 {
		return nil, fmt.Errorf("mux: bitrate and inter-packet are mutually exclusive")
	}
	if *interTime != 0 && (*interPkt != 0 || *bitrateBps != 0) {
		return nil, fmt.Errorf("mux: inter-time is mutually exclusive with bitrate/inter-packet")
	}
	if log == nil {
		log = slog.Default()
	}

	m := &Mux{
		log:                log.With("component", "mux"),
		sidePath:           fs.Arg(0),
		repeat:             *repeat,
		byteOffset:         *byteOffset,
		packetOffset:       *packetOffset,
		bitrateTarget:      *bitrateBps,
		interPacket:        *interPkt,
		interTimeMS:        *interTime,
		maxInsert:          *maxInsert,
		noContinuityUpdate: *noCC,
		noPIDConflictCheck: *noConflict,
		terminateOnEOF:     *terminate,
		jointTermination:   *joint,
		seen:               map[uint16]bool{},
		ccByPID:            map[uint16]uint8{},
	}
	if *minPTS >= 0 {
		v := uint64(*minPTS)
		m.minPTS = &v
	}
	if *maxPTS >= 0 {
		v := uint64(*maxPTS)
		m.maxPTS = &v
	}
	if *ptsPID >= 0 {
		v := uint16(*ptsPID)
		m.ptsPID = &v
		m.ptsLatched = true
		m.latchedPID = v
	}
	if *forcePID >= 0 {
		v := uint16(*forcePID)
		m.forcePID = &v
	}
	return m, nil
}

func (m *Mux) SetBitrateSource(b stage.BitrateSource) { m.bitrate = b }

func (m *Mux) SetJointTermination(c *stage.JointCoordinator) {
	m.joint = c
	if c != nil && m.jointTermination {
		c.OptIn()
		m.optedIn = true
	}
}

func (m *Mux) Start(ctx context.Context) error {
	f, err := os.Open(m.sidePath)
	if err != nil {
		return fmt.Errorf("mux: open side file %s: %w", m.sidePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("mux: stat side file: %w", err)
	}
	if info.Size()%tspacket.Size != 0 {
		f.Close()
		return fmt.Errorf("mux: side file size %d is not a multiple of %d", info.Size(), tspacket.Size)
	}
	off := m.byteOffset
	if m.packetOffset > 0 && m.byteOffset == 0 {
		off = m.packetOffset * tspacket.Size
	}
	if off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			f.Close()
			return fmt.Errorf("mux: seek side file: %w", err)
		}
	}
	m.side = f
	if m.repeat == 0 {
		m.loopsRemaining = -1
	} else {
		m.loopsRemaining = m.repeat - 1
	}

	if m.interPacket > 0 {
		m.interPktComputed = m.interPacket
	}
	return nil
}

func (m *Mux) Stop() error {
	if m.side != nil {
		return m.side.Close()
	}
	return nil
}

func (m *Mux) Process(pkt *tspacket.Packet, slot *ring.Slot) (stage.Status, error) {
	m.packetCounter++

	if m.bitrateTarget != 0 && m.interPktComputed == 0 {
		if m.bitrate == nil {
			return stage.StatusEnd, fmt.Errorf("mux: bitrate-gated insertion requires a bitrate source")
		}
		ts := m.bitrate.Bitrate()
		if ts == 0 {
			// no estimate yet; try again on a later packet
		} else if ts < m.bitrateTarget {
			return stage.StatusEnd, fmt.Errorf("mux: TS bitrate %d below requested insertion bitrate %d", ts, m.bitrateTarget)
		} else {
			m.interPktComputed = int64(ts / m.bitrateTarget)
			if m.interPktComputed < 1 {
				m.interPktComputed = 1
			}
		}
	}

	m.updateTimestamp(pkt)
	m.updatePTSRangeOK()

	if pkt.PID() != tspacket.NullPID {
		m.seen[pkt.PID()] = true
		return stage.StatusOK, nil
	}

	if m.exhausted {
		return stage.StatusOK, nil
	}

	if !m.readyToInsert() {
		return stage.StatusOK, nil
	}

	status, err := m.insert(pkt)
	if err != nil {
		return status, err
	}

	m.advanceInsertionCursor()
	return status, nil
}

func (m *Mux) readyToInsert() bool {
	if m.maxInsert > 0 && m.insertedCount >= m.maxInsert {
		return false
	}
	if m.minPTS != nil || m.maxPTS != nil {
		if !m.ptsRangeOK {
			return false
		}
	}
	return m.packetCounter >= m.nextInsertAt
}

func (m *Mux) advanceInsertionCursor() {
	step := m.interPktComputed
	if step <= 0 {
		step = 1
	}
	m.nextInsertAt = m.packetCounter + step
}

func (m *Mux) insert(pkt *tspacket.Packet) (stage.Status, error) {
	var buf [tspacket.Size]byte
	n, err := io.ReadFull(m.side, buf[:])
	if err != nil || n != tspacket.Size {
		return m.handleSideEOF(pkt)
	}

	p, perr := tspacket.FromBytes(buf[:])
	if perr != nil {
		return stage.StatusEnd, fmt.Errorf("mux: side file: %w", perr)
	}
	*pkt = p

	pid := pkt.PID()
	if m.forcePID != nil {
		pid = *m.forcePID
		pkt.SetPID(pid)
	}
	if !m.noPIDConflictCheck && m.seen[pid] {
		return stage.StatusEnd, fmt.Errorf("mux: PID conflict on 0x%04X between side file and live stream", pid)
	}
	if !m.noContinuityUpdate {
		cc := m.ccByPID[pid]
		pkt.SetCC(cc)
		m.ccByPID[pid] = (cc + 1) & 0x0F
	}
	m.insertedCount++
	return stage.StatusOK, nil
}

func (m *Mux) handleSideEOF(pkt *tspacket.Packet) (stage.Status, error) {
	if m.loopsRemaining != 0 {
		if m.loopsRemaining > 0 {
			m.loopsRemaining--
		}
		if _, err := m.side.Seek(0, io.SeekStart); err != nil {
			return stage.StatusEnd, fmt.Errorf("mux: rewind side file: %w", err)
		}
		return m.insert(pkt)
	}

	m.exhausted = true
	if m.joint != nil && m.jointTermination {
		if !m.optedIn {
			m.joint.OptIn()
			m.optedIn = true
		}
		m.joint.Terminate()
		m.log.Info("side file exhausted, opted out of further insertion")
		return stage.StatusOK, nil
	}
	if m.terminateOnEOF {
		m.log.Info("side file exhausted, terminating pipeline")
		return stage.StatusEnd, nil
	}
	m.log.Info("side file exhausted, becoming transparent")
	return stage.StatusOK, nil
}

func (m *Mux) updateTimestamp(pkt *tspacket.Packet) {
	pid := pkt.PID()
	if m.ptsPID != nil && pid == *m.ptsPID && pkt.HasPTS() {
		m.lastTS, m.haveLastTS = pkt.GetPTS(), true
		return
	}
	if m.ptsPID == nil && pid != tspacket.NullPID && pkt.HasPCR() {
		m.ptsPID = &pid
		m.lastTS, m.haveLastTS = pkt.GetPCR()/300, true
		return
	}
	if m.ptsPID != nil && pid == *m.ptsPID && pkt.HasPCR() {
		m.lastTS, m.haveLastTS = pkt.GetPCR()/300, true
	}
}

func (m *Mux) updatePTSRangeOK() {
	if !m.haveLastTS {
		m.ptsRangeOK = m.minPTS == nil && m.maxPTS == nil
		return
	}
	ok := true
	if m.minPTS != nil && m.lastTS < *m.minPTS {
		ok = false
	}
	if m.maxPTS != nil && m.lastTS > *m.maxPTS {
		ok = false
	}
	m.ptsRangeOK = ok
}
