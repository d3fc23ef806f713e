package input

import (
	"context"
	"flag"
	"fmt"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// Null generates stuffing packets (PID 0x1FFF) endlessly, or until
// max_count have been produced. Grounded on tsp's null input plugin:
// the trivial always-available producer used to pad bitrate-limited
// chains and to drive deterministic tests of downstream stages.
type Null struct {
	maxCount int64
	produced int64
}

// NewNull parses args ("[max_count]").
func NewNull(args []string) (*Null, error) {
	fs := flag.NewFlagSet("null", flag.ContinueOnError)
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "input/null")
		return nil, flag.ErrHelp
	}
	n := &Null{maxCount: -1}
	switch fs.NArg() {
	case 0:
	case 1:
		var count int64
		if _, err := fmt.Sscanf(fs.Arg(0), "%d", &count); err != nil {
			return nil, fmt.Errorf("input/null: invalid max_count %q", fs.Arg(0))
		}
		n.maxCount = count
	default:
		return nil, fmt.Errorf("input/null: expected at most one max_count argument")
	}
	return n, nil
}

func (n *Null) Start(ctx context.Context) error { return nil }
func (n *Null) Stop() error                     { return nil }

func (n *Null) Receive(batch []*tspacket.Packet) (int, error) {
	for i := range batch {
		if n.maxCount >= 0 && n.produced >= n.maxCount {
			return i, nil
		}
		*batch[i] = tspacket.NullPacket
		n.produced++
	}
	return len(batch), nil
}
