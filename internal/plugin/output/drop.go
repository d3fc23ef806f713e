package output

import (
	"context"
	"flag"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// Drop discards every packet it receives. Used for throughput
// measurement and as the sink half of unit tests that only care about
// what a processor chain did upstream.
type Drop struct {
	Count int64
}

// NewDrop constructs a Drop output; its only recognized flag is --version.
func NewDrop(args []string) (*Drop, error) {
	fs := flag.NewFlagSet("drop", flag.ContinueOnError)
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "output/drop")
		return nil, flag.ErrHelp
	}
	return &Drop{}, nil
}

func (d *Drop) Start(ctx context.Context) error { return nil }
func (d *Drop) Stop() error                     { return nil }

func (d *Drop) Send(batch []*tspacket.Packet) error {
	d.Count += int64(len(batch))
	return nil
}
