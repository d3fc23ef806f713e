// Package output holds the file, drop, and quic output plugins.
package output

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// File writes processed packets sequentially to a file (or stdout via "-").
type File struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewFile parses args ("<path>").
func NewFile(args []string) (*File, error) {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "output/file")
		return nil, flag.ErrHelp
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("output/file: expected exactly one file path argument")
	}
	return &File{path: fs.Arg(0)}, nil
}

func (out *File) Start(ctx context.Context) error {
	if out.path == "-" {
		out.f = os.Stdout
	} else {
		f, err := os.Create(out.path)
		if err != nil {
			return fmt.Errorf("output/file: create %s: %w", out.path, err)
		}
		out.f = f
	}
	out.w = bufio.NewWriterSize(out.f, 188*1024)
	return nil
}

func (out *File) Stop() error {
	if err := out.w.Flush(); err != nil {
		return fmt.Errorf("output/file: flush: %w", err)
	}
	if out.f != os.Stdout {
		return out.f.Close()
	}
	return nil
}

func (out *File) Send(batch []*tspacket.Packet) error {
	for _, pkt := range batch {
		b := pkt.Bytes()
		if _, err := out.w.Write(b[:]); err != nil {
			return fmt.Errorf("output/file: write: %w", err)
		}
	}
	return nil
}
