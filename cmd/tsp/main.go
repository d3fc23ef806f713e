// Command tsp runs a transport-stream processing chain: one input plugin,
// zero or more packet processors, and one output plugin, wired front to
// back by the shared ring buffer (internal/ring) and driven by
// internal/pipeline. Grounded on cmd/prism/main.go's slog setup, signal
// handling, and errgroup-based run loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zsiec/tsproc/internal/bitrate"
	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/cli"
	"github.com/zsiec/tsproc/internal/logging"
	"github.com/zsiec/tsproc/internal/monitor"
	"github.com/zsiec/tsproc/internal/pipeline"
	"github.com/zsiec/tsproc/internal/plugin/input"
	"github.com/zsiec/tsproc/internal/plugin/output"
	"github.com/zsiec/tsproc/internal/plugin/processor/mux"
	"github.com/zsiec/tsproc/internal/plugin/processor/passthrough"
	"github.com/zsiec/tsproc/internal/plugin/processor/pcrextract"
	"github.com/zsiec/tsproc/internal/plugin/processor/scrambler"
	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/stage"
)

// Batch caps spec.md §4.1 names: real-time mode caps both flush and input at
// 1000; offline mode caps flush at 10000 and leaves input unbounded (a zero
// stage.BatchConfig field).
const (
	realtimeMaxFlushPkt = 1000
	realtimeMaxInputPkt = 1000
	offlineMaxFlushPkt  = 10000
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts, rest, err := cli.ParseGlobalOptions(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		bootstrap.Error("parsing global options", "error", err)
		return 1
	}
	if opts.ShowVersion {
		fmt.Println("tsp", buildinfo.Version)
		return 0
	}

	log, closeLog := newLogger(opts)
	defer closeLog()
	slog.SetDefault(log)

	reg := newRegistry()

	if opts.ListProcessors != "" {
		for kind, names := range reg.Names(opts.ListProcessors) {
			fmt.Printf("%s:\n", kind)
			for _, n := range names {
				fmt.Printf("  %s\n", n)
			}
		}
		return 0
	}

	specs, err := cli.ParseChain(rest)
	if err != nil {
		log.Error("parsing plugin chain", "error", err)
		return 1
	}

	mon := bitrate.NewMonitor(opts.BitrateAdjust)
	if opts.BitrateOverride > 0 {
		mon.SetOverride(opts.BitrateOverride)
	}
	joint := stage.NewJointCoordinator(opts.IgnoreJoint)
	deps := cli.Deps{Bitrate: mon, Joint: joint}

	var in stage.Input
	var processors []stage.Processor
	var out stage.Output
	for _, spec := range specs {
		switch spec.Kind {
		case cli.KindInput:
			in, err = reg.BuildInput(spec, deps)
		case cli.KindProcessor:
			var p stage.Processor
			p, err = reg.BuildProcessor(spec, deps)
			if err == nil {
				processors = append(processors, p)
			}
		case cli.KindOutput:
			out, err = reg.BuildOutput(spec, deps)
		}
		if err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			log.Error("building plugin", "name", spec.Name, "error", err)
			return 1
		}
	}

	in = input.WrapStuffing(in, opts.AddStartStuffing, opts.AddStopStuffing, opts.AFreqNull, opts.AFreqInput)

	wireBitrateAwareness(in, processors, out, mon)
	wireJointTermination(processors, joint)

	capacity := ring.CapacityForMiB(opts.BufferSizeMB)
	r, err := ring.New(capacity)
	if err != nil {
		log.Error("creating ring buffer", "error", err)
		return 1
	}

	batchCfg := realtimeBatchConfig(opts)
	ctrl := pipeline.New(r, in, processors, out, batchCfg, joint, mon, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if opts.Monitor {
		go monitor.Run(ctx, log.With("component", "monitor"), 0)
	}

	if err := ctrl.Run(ctx); err != nil {
		log.Error("pipeline failed", "error", err)
		return 1
	}
	return 0
}

// newLogger builds the slog.Logger tsp logs through for the rest of the
// run, per SPEC_FULL.md's ambient-stack section: a text handler whose
// level and AddSource follow -d/--debug and -v/--verbose, whose time
// attribute is stripped unless -t/--timed-log is set, and which defers
// writes through internal/logging's bounded async queue unless
// -s/--synchronous-log demands every message land inline. The returned
// close func drains that queue and must run before the process exits.
func newLogger(opts *cli.GlobalOptions) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if opts.Debug > 0 || opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: opts.Verbose}
	if !opts.TimedLog {
		handlerOpts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	}
	text := slog.NewTextHandler(os.Stderr, handlerOpts)
	h := logging.NewHandler(text, opts.LogMessageCount, opts.SynchronousLog)
	return slog.New(h), h.Close
}

// realtimeBatchConfig applies spec.md §4.1's real-time batch caps
// (1000/1000) when -r/--realtime resolved true and the user didn't
// already pin --max-flushed-packets/--max-input-packets explicitly, and
// the offline flush default (10000) when it resolved false or was not given.
func realtimeBatchConfig(opts *cli.GlobalOptions) stage.BatchConfig {
	cfg := stage.BatchConfig{MaxFlushPkt: opts.MaxFlushedPkt, MaxInputPkt: opts.MaxInputPkt}
	if opts.Realtime != nil && *opts.Realtime {
		if cfg.MaxFlushPkt <= 0 {
			cfg.MaxFlushPkt = realtimeMaxFlushPkt
		}
		if cfg.MaxInputPkt <= 0 {
			cfg.MaxInputPkt = realtimeMaxInputPkt
		}
	} else if cfg.MaxFlushPkt <= 0 {
		cfg.MaxFlushPkt = offlineMaxFlushPkt
	}
	return cfg
}

func wireBitrateAwareness(in stage.Input, processors []stage.Processor, out stage.Output, mon *bitrate.Monitor) {
	if aware, ok := in.(stage.BitrateAware); ok {
		aware.SetBitrateSource(mon)
	}
	for _, p := range processors {
		if aware, ok := p.(stage.BitrateAware); ok {
			aware.SetBitrateSource(mon)
		}
	}
	if aware, ok := out.(stage.BitrateAware); ok {
		aware.SetBitrateSource(mon)
	}
}

func wireJointTermination(processors []stage.Processor, joint *stage.JointCoordinator) {
	for _, p := range processors {
		if jt, ok := p.(stage.JointTerminable); ok {
			jt.SetJointTermination(joint)
		}
	}
}

// newRegistry populates a plugin registry with every plugin this build of
// tsp ships. A real deployment would instead resolve plugin names against
// a search path of dynamically loaded shared objects (spec.md §6); that
// collaborator is out of scope here, so every plugin tsp knows about is
// linked in directly.
func newRegistry() *cli.Registry {
	reg := cli.NewRegistry()

	reg.RegisterInput("file", func(args []string, deps cli.Deps) (stage.Input, error) {
		return input.NewFile(args, nil)
	})
	reg.RegisterInput("null", func(args []string, deps cli.Deps) (stage.Input, error) {
		return input.NewNull(args)
	})
	reg.RegisterInput("srt", func(args []string, deps cli.Deps) (stage.Input, error) {
		return input.NewSRT(args, nil)
	})

	reg.RegisterOutput("file", func(args []string, deps cli.Deps) (stage.Output, error) {
		return output.NewFile(args)
	})
	reg.RegisterOutput("drop", func(args []string, deps cli.Deps) (stage.Output, error) {
		return output.NewDrop(args)
	})
	reg.RegisterOutput("quic", func(args []string, deps cli.Deps) (stage.Output, error) {
		return output.NewQUIC(args)
	})

	reg.RegisterProcessor("passthrough", func(args []string, deps cli.Deps) (stage.Processor, error) {
		return passthrough.New(args)
	})
	reg.RegisterProcessor("mux", func(args []string, deps cli.Deps) (stage.Processor, error) {
		return mux.New(args, nil)
	})
	reg.RegisterProcessor("pcrextract", func(args []string, deps cli.Deps) (stage.Processor, error) {
		return pcrextract.New(args)
	})
	reg.RegisterProcessor("scrambler", func(args []string, deps cli.Deps) (stage.Processor, error) {
		return scrambler.New(args, scrambler.Config{}, slog.Default())
	})

	return reg
}
