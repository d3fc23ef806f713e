// Package cli implements tsp's command line grammar: a global options block
// parsed by the standard flag package (spec.md §6), followed by a chain of
// -I/-P/-O plugin specifications, resolved against a static plugin
// registry (internal/cli's replacement for the out-of-scope dynamic loader;
// spec.md's Non-goals explicitly exclude a general plugin ABI).
package cli

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GlobalOptions holds every global flag from spec.md §6.
type GlobalOptions struct {
	AddStartStuffing int
	AddStopStuffing  int
	AFreqNull        int
	AFreqInput       int
	BitrateOverride  uint64
	BitrateAdjust    time.Duration
	BufferSizeMB     int
	IgnoreJoint      bool
	ListProcessors   string // "", "all", "input", "output", "packet"
	LogMessageCount  int
	MaxFlushedPkt    int
	MaxInputPkt      int
	Monitor          bool
	Realtime         *bool // nil: not given; offline batch defaults apply
	SynchronousLog   bool
	TimedLog         bool
	Debug            int
	Verbose          bool
	ShowVersion      bool
}

// ParseGlobalOptions parses the leading global-options block from args,
// stopping at the first -I/-P/-O token (or --help/--version, handled by the
// caller). It returns the parsed options and the unconsumed remainder.
func ParseGlobalOptions(args []string) (*GlobalOptions, []string, error) {
	opts := &GlobalOptions{
		BitrateAdjust: 5 * time.Second,
		BufferSizeMB:  16,
	}

	fs := flag.NewFlagSet("tsp", flag.ContinueOnError)
	var aFreq, realtimeVal string
	fs.StringVar(&aFreq, "a", "", "nullpkt/inpkt")
	fs.IntVar(&opts.AddStartStuffing, "add-start-stuffing", 0, "")
	fs.IntVar(&opts.AddStopStuffing, "add-stop-stuffing", 0, "")
	var bitrate uint64
	fs.Uint64Var(&bitrate, "b", 0, "")
	fs.Uint64Var(&bitrate, "bitrate", 0, "")
	var adjustSeconds int
	fs.IntVar(&adjustSeconds, "bitrate-adjust-interval", 5, "")
	fs.IntVar(&opts.BufferSizeMB, "buffer-size-mb", 16, "")
	fs.BoolVar(&opts.IgnoreJoint, "i", false, "")
	fs.BoolVar(&opts.IgnoreJoint, "ignore-joint-termination", false, "")
	fs.StringVar(&opts.ListProcessors, "l", "", "")
	fs.StringVar(&opts.ListProcessors, "list-processors", "", "")
	fs.IntVar(&opts.LogMessageCount, "log-message-count", 0, "")
	fs.IntVar(&opts.MaxFlushedPkt, "max-flushed-packets", 0, "")
	fs.IntVar(&opts.MaxInputPkt, "max-input-packets", 0, "")
	fs.BoolVar(&opts.Monitor, "m", false, "")
	fs.BoolVar(&opts.Monitor, "monitor", false, "")
	fs.StringVar(&realtimeVal, "r", "", "")
	fs.StringVar(&realtimeVal, "realtime", "", "")
	fs.BoolVar(&opts.SynchronousLog, "s", false, "")
	fs.BoolVar(&opts.SynchronousLog, "synchronous-log", false, "")
	fs.BoolVar(&opts.TimedLog, "t", false, "")
	fs.BoolVar(&opts.TimedLog, "timed-log", false, "")
	fs.IntVar(&opts.Debug, "d", 0, "")
	fs.IntVar(&opts.Debug, "debug", 0, "")
	fs.BoolVar(&opts.Verbose, "v", false, "")
	fs.BoolVar(&opts.Verbose, "verbose", false, "")
	fs.BoolVar(&opts.ShowVersion, "version", false, "print tsp's version and exit")

	globalArgs, rest := splitAtChain(args)
	if err := fs.Parse(globalArgs); err != nil {
		return nil, nil, fmt.Errorf("cli: global options: %w", err)
	}

	opts.BitrateOverride = bitrate
	opts.BitrateAdjust = time.Duration(adjustSeconds) * time.Second

	if aFreq != "" {
		n, in, err := parseAFreq(aFreq)
		if err != nil {
			return nil, nil, err
		}
		opts.AFreqNull, opts.AFreqInput = n, in
	}
	if realtimeVal != "" {
		b, err := parseBoolish(realtimeVal)
		if err != nil {
			return nil, nil, fmt.Errorf("cli: --realtime: %w", err)
		}
		opts.Realtime = &b
	}

	return opts, rest, nil
}

// splitAtChain separates the global-options block from the plugin chain: it
// scans for the first -I, -P, or -O token.
func splitAtChain(args []string) (global, rest []string) {
	for i, a := range args {
		if a == "-I" || a == "-P" || a == "-O" {
			return args[:i], args[i:]
		}
	}
	return args, nil
}

func parseAFreq(s string) (nullpkt, inpkt int, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("cli: -a expects nullpkt/inpkt, got %q", s)
	}
	nullpkt, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("cli: -a: %w", err)
	}
	inpkt, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("cli: -a: %w", err)
	}
	return nullpkt, inpkt, nil
}

func parseBoolish(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "on", "1":
		return true, nil
	case "no", "false", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("cli: invalid boolean %q", s)
	}
}
