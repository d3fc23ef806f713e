package input

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// srtLatencyNs mirrors ingest/srt's 120ms default SRT latency.
const srtLatencyNs = 120_000_000

// srtChunkPackets is the number of TS packets read per SRT payload, matching
// the standard 7*188=1316-byte SRT MTU chunking.
const srtChunkPackets = 7

// SRT is a live input reading MPEG-TS from one incoming (listener mode) or
// outgoing (caller mode) SRT connection. Grounded on ingest/srt/server.go's
// srtgo.Listen/Accept loop and test/tools/srt-push's srtgo.Dial usage; here
// collapsed to a single connection because tsp's chain model is one input
// per pipeline run, not a multiplexing registry.
type SRT struct {
	log      *slog.Logger
	addr     string
	caller   bool
	streamID string

	listener *srtgo.Listener
	conn     *srtgo.Conn

	buf    []byte
	filled int
	off    int
}

// NewSRT parses args ("[--caller] [--stream-id id] <addr>"); flags precede
// the address.
func NewSRT(args []string, log *slog.Logger) (*SRT, error) {
	fs := flag.NewFlagSet("srt", flag.ContinueOnError)
	caller := fs.Bool("caller", false, "connect out instead of listening")
	streamID := fs.String("stream-id", "", "SRT StreamID to present when dialing")
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "input/srt")
		return nil, flag.ErrHelp
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("input/srt: expected exactly one address argument")
	}
	if log == nil {
		log = slog.Default()
	}
	return &SRT{
		log:      log.With("component", "input/srt"),
		addr:     fs.Arg(0),
		caller:   *caller,
		streamID: *streamID,
		buf:      make([]byte, tspacket.Size*srtChunkPackets*10),
	}, nil
}

func (in *SRT) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	if in.caller {
		cfg.StreamID = in.streamID
		conn, err := srtgo.Dial(in.addr, cfg)
		if err != nil {
			return fmt.Errorf("input/srt: dial %s: %w", in.addr, err)
		}
		in.conn = conn
		in.log.Info("connected", "addr", in.addr)
		return nil
	}

	l, err := srtgo.Listen(in.addr, cfg)
	if err != nil {
		return fmt.Errorf("input/srt: listen on %s: %w", in.addr, err)
	}
	in.listener = l
	in.log.Info("listening", "addr", in.addr)

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	conn, err := l.Accept()
	if err != nil {
		return fmt.Errorf("input/srt: accept: %w", err)
	}
	in.conn = conn
	in.log.Info("publish", "remote", conn.RemoteAddr())
	return nil
}

func (in *SRT) Stop() error {
	var err error
	if in.conn != nil {
		err = in.conn.Close()
	}
	if in.listener != nil {
		in.listener.Close()
	}
	return err
}

func (in *SRT) Receive(batch []*tspacket.Packet) (int, error) {
	i := 0
	for i < len(batch) {
		if in.off+tspacket.Size > in.filled {
			if err := in.refill(); err != nil {
				if errors.Is(err, io.EOF) {
					return i, nil
				}
				return i, fmt.Errorf("input/srt: read: %w", err)
			}
			if in.filled == 0 {
				return i, nil
			}
		}
		p, err := tspacket.FromBytes(in.buf[in.off : in.off+tspacket.Size])
		if err != nil {
			// resync: drop one byte and keep scanning for the sync byte
			in.off++
			continue
		}
		*batch[i] = p
		in.off += tspacket.Size
		i++
	}
	return i, nil
}

func (in *SRT) refill() error {
	remaining := copy(in.buf, in.buf[in.off:in.filled])
	in.off = 0
	in.filled = remaining
	n, err := in.conn.Read(in.buf[in.filled:])
	if err != nil {
		return err
	}
	in.filled += n
	return nil
}
