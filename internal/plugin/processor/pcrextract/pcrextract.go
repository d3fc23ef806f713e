// Package pcrextract implements the pcrextract processor: per-PID
// PCR/OPCR/PTS/DTS bookkeeping, emitted either as a CSV report or as
// free-form log lines. Grounded on internal/mpegts's PES/PCR field
// access (now internal/tspacket) and prism's slog-based reporting style.
package pcrextract

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/stage"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// csvHeader is the literal CSV header row emitted unless --noheader.
const csvHeader = "PID;Packet index in TS;Packet index in PID;Type;Count in PID;Value;Value offset in PID;Offset from PCR"

type perPID struct {
	packetCount int64

	lastPCR    uint64
	havePCR    bool
	firstPCR   uint64
	pcrCount   int64
	lastPTS    uint64
	havePTS    bool
	firstPTS   uint64
	ptsCount   int64
	lastDTS    uint64
	haveDTS    bool
	firstDTS   uint64
	dtsCount   int64
	firstPCRPkt int64
}

// PCRExtract implements stage.Processor, recording PCR/OPCR/PTS/DTS
// sightings per PID and writing a report as it goes.
type PCRExtract struct {
	outPath   string
	separator string
	noHeader  bool
	logMode   bool

	w        *bufio.Writer
	f        *os.File
	wroteHdr bool

	pktIndex int64
	pids     map[uint16]*perPID
}

// New parses args for the pcrextract processor:
//
//	[--output-file path] [--separator sep] [--noheader] [--log]
func New(args []string) (*PCRExtract, error) {
	fs := flag.NewFlagSet("pcrextract", flag.ContinueOnError)
	outPath := fs.String("output-file", "", "write CSV report here instead of stderr")
	sep := fs.String("separator", ";", "CSV field separator")
	noHeader := fs.Bool("noheader", false, "omit the CSV header row")
	logMode := fs.Bool("log", false, "emit one log line per timestamp instead of CSV")
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "pcrextract")
		return nil, flag.ErrHelp
	}
	return &PCRExtract{
		outPath:   *outPath,
		separator: *sep,
		noHeader:  *noHeader,
		logMode:   *logMode,
		pids:      map[uint16]*perPID{},
	}, nil
}

func (e *PCRExtract) Start(ctx context.Context) error {
	if e.outPath == "" || e.outPath == "-" {
		e.f = os.Stderr
	} else {
		f, err := os.Create(e.outPath)
		if err != nil {
			return fmt.Errorf("pcrextract: create %s: %w", e.outPath, err)
		}
		e.f = f
	}
	e.w = bufio.NewWriter(e.f)
	if !e.logMode && !e.noHeader {
		e.writeRow(csvHeader)
		e.wroteHdr = true
	}
	return nil
}

func (e *PCRExtract) Stop() error {
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("pcrextract: flush: %w", err)
	}
	if e.f != os.Stderr {
		return e.f.Close()
	}
	return nil
}

func (e *PCRExtract) Process(pkt *tspacket.Packet, slot *ring.Slot) (stage.Status, error) {
	pid := pkt.PID()
	e.pktIndex++
	if pid == tspacket.NullPID {
		return stage.StatusOK, nil
	}

	st, ok := e.pids[pid]
	if !ok {
		st = &perPID{}
		e.pids[pid] = st
	}
	st.packetCount++

	if pkt.HasPCR() {
		v := pkt.GetPCR()
		if !st.havePCR {
			st.firstPCR = v
			st.havePCR = true
			st.firstPCRPkt = e.pktIndex
		}
		st.pcrCount++
		e.report(pid, st.packetCount, "PCR", st.pcrCount, v, v-st.firstPCR, 0)
		st.lastPCR = v
	}
	if pkt.HasOPCR() {
		v := pkt.GetOPCR()
		offsetFromPCR := int64(0)
		if st.havePCR {
			offsetFromPCR = int64(v) - int64(st.lastPCR)
		}
		e.report(pid, st.packetCount, "OPCR", st.pcrCount, v, 0, offsetFromPCR)
	}
	if pkt.HasPTS() {
		v := pkt.GetPTS()
		if !st.havePTS || tspacket.SequencedPTS(st.lastPTS, v) {
			if !st.havePTS {
				st.firstPTS = v
				st.havePTS = true
			}
			st.ptsCount++
			offsetFromPCR := int64(0)
			if st.havePCR {
				offsetFromPCR = int64(v) - int64(st.lastPCR/300)
			}
			e.report(pid, st.packetCount, "PTS", st.ptsCount, v, v-st.firstPTS, offsetFromPCR)
			st.lastPTS = v
		}
	}
	if pkt.HasDTS() {
		v := pkt.GetDTS()
		if !st.haveDTS {
			st.firstDTS = v
			st.haveDTS = true
		}
		st.dtsCount++
		e.report(pid, st.packetCount, "DTS", st.dtsCount, v, v-st.firstDTS, 0)
		st.lastDTS = v
	}

	return stage.StatusOK, nil
}

func (e *PCRExtract) report(pid uint16, pidPktCount int64, kind string, count int64, value, offset uint64, offsetFromPCR int64) {
	if e.logMode {
		fmt.Fprintf(e.w, "PID %d: %s #%d = %d (offset %d, PCR offset %d)\n",
			pid, kind, count, value, offset, offsetFromPCR)
		return
	}
	e.writeRow(fmt.Sprintf("%d%s%d%s%d%s%s%s%d%s%d%s%d%s%d",
		pid, e.separator,
		e.pktIndex, e.separator,
		pidPktCount, e.separator,
		kind, e.separator,
		count, e.separator,
		value, e.separator,
		offset, e.separator,
		offsetFromPCR))
}

func (e *PCRExtract) writeRow(s string) {
	fmt.Fprintln(e.w, s)
}
