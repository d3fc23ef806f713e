// Package input holds the file, null, and srt input plugins.
package input

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// File reads 188-byte TS packets sequentially from a file (or stdin via
// "-"), ending the pipeline at EOF.
type File struct {
	log  *slog.Logger
	path string
	f    *os.File
	buf  [tspacket.Size]byte
}

// NewFile parses args ("<path>") and constructs a File input.
func NewFile(args []string, log *slog.Logger) (*File, error) {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "input/file")
		return nil, flag.ErrHelp
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("input/file: expected exactly one file path argument")
	}
	if log == nil {
		log = slog.Default()
	}
	return &File{log: log.With("component", "input/file"), path: fs.Arg(0)}, nil
}

func (in *File) Start(ctx context.Context) error {
	if in.path == "-" {
		in.f = os.Stdin
		return nil
	}
	f, err := os.Open(in.path)
	if err != nil {
		return fmt.Errorf("input/file: open %s: %w", in.path, err)
	}
	in.f = f
	in.log.Info("opened", "path", in.path)
	return nil
}

func (in *File) Stop() error {
	if in.f != nil && in.f != os.Stdin {
		return in.f.Close()
	}
	return nil
}

func (in *File) Receive(batch []*tspacket.Packet) (int, error) {
	for i, pkt := range batch {
		n, err := io.ReadFull(in.f, in.buf[:])
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return i, nil
			}
			return i, fmt.Errorf("input/file: read: %w", err)
		}
		if n != tspacket.Size {
			return i, nil
		}
		p, err := tspacket.FromBytes(in.buf[:])
		if err != nil {
			return i, fmt.Errorf("input/file: %w", err)
		}
		*pkt = p
	}
	return len(batch), nil
}
