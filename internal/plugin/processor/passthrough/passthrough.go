// Package passthrough implements the identity processor: every packet is
// relayed unchanged. It exists as the minimal Processor implementation,
// useful in chains that only need the pipeline's bitrate/CLI/stage
// machinery without any packet mutation (spec.md §4.7).
package passthrough

import (
	"context"
	"flag"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/stage"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// Passthrough is the no-op Processor.
type Passthrough struct{}

// New constructs a Passthrough; its only recognized flag is --version.
func New(args []string) (*Passthrough, error) {
	fs := flag.NewFlagSet("passthrough", flag.ContinueOnError)
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "passthrough")
		return nil, flag.ErrHelp
	}
	return &Passthrough{}, nil
}

func (p *Passthrough) Start(ctx context.Context) error { return nil }
func (p *Passthrough) Stop() error                      { return nil }

func (p *Passthrough) Process(pkt *tspacket.Packet, slot *ring.Slot) (stage.Status, error) {
	return stage.StatusOK, nil
}
