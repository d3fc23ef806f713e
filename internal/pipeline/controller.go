// Package pipeline builds the stage chain from parsed plugin specs and runs
// it: one goroutine per stage under an errgroup (grounded on
// cmd/prism/main.go's errgroup.WithContext + g.Go + g.Wait pattern), wired
// front-to-back by a chain of ring boundaries, with a UUID-tagged logger
// identifying the run across concurrent invocations sharing stderr.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsproc/internal/bitrate"
	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/stage"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// Controller owns one pipeline run: the shared ring, the constructed stage
// chain, and the boundaries between them.
type Controller struct {
	ring       *ring.Ring
	input      stage.Input
	processors []stage.Processor
	output     stage.Output
	cfg        stage.BatchConfig
	joint      *stage.JointCoordinator
	mon        *bitrate.Monitor
	log        *slog.Logger
	runID      uuid.UUID
}

// New builds a Controller over r, driving input -> processors... -> output.
// If log is nil, slog.Default() is used. mon may be nil: the input stage
// then runs without feeding PCR sightings back into any bitrate estimate.
func New(r *ring.Ring, input stage.Input, processors []stage.Processor, output stage.Output, cfg stage.BatchConfig, joint *stage.JointCoordinator, mon *bitrate.Monitor, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if joint == nil {
		joint = stage.NewJointCoordinator(false)
	}
	runID := uuid.New()
	return &Controller{
		ring:       r,
		input:      input,
		processors: processors,
		output:     output,
		cfg:        cfg,
		joint:      joint,
		mon:        mon,
		log:        log.With("component", "pipeline", "run_id", runID.String()),
		runID:      runID,
	}
}

// RunID returns the per-run correlation id attached to every log line this
// controller emits.
func (c *Controller) RunID() uuid.UUID { return c.runID }

// Run wires the boundaries, starts every stage on its own goroutine, and
// blocks until the pipeline ends: normally (input EOF or a processor
// returning StatusEnd), on context cancellation, or on the first stage
// error, which is what Run returns. A clean end (spec.md §7's "Process exit
// status is 0 only when all stages stopped cleanly and no error was
// reported") is reported as a nil error even though internally it
// propagates as stage.ErrEnd.
func (c *Controller) Run(ctx context.Context) error {
	n := len(c.processors)
	boundaries := make([]*ring.Boundary, n+1)
	for i := range boundaries {
		boundaries[i] = ring.NewBoundary(c.ring)
	}

	c.log.Info("pipeline starting", "processors", n, "ring_capacity", c.ring.Cap())

	g, gctx := errgroup.WithContext(ctx)

	abort := func() bool {
		return gctx.Err() != nil || c.joint.ShouldEnd()
	}

	var observe stage.ObserveFunc
	if c.mon != nil {
		observe = func(pkt *tspacket.Packet, slot *ring.Slot, pktIndex int64) {
			if pkt.HasPCR() {
				if c.mon.Observe(pkt.PID(), pkt.GetPCR(), pktIndex, time.Now()) {
					slot.BitrateChanged = true
				}
			}
		}
	}

	g.Go(func() error {
		err := stage.RunInput(gctx, c.input, c.ring, boundaries[0], c.cfg, abort, observe)
		c.log.Debug("input stage exited", "error", err)
		return err
	})

	for i, p := range c.processors {
		i, p := i, p
		up, down := boundaries[i], boundaries[i+1]
		g.Go(func() error {
			err := stage.RunProcessor(gctx, p, c.ring, up, down, c.cfg, abort)
			c.log.Debug("processor stage exited", "index", i, "error", err)
			return err
		})
	}

	g.Go(func() error {
		err := stage.RunOutput(gctx, c.output, c.ring, boundaries[n], c.cfg, abort)
		c.log.Debug("output stage exited", "error", err)
		return err
	})

	// Wake every boundary immediately on cancellation so no stage stays
	// blocked in a handoff wait past the point the controller decided to end.
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		<-gctx.Done()
		for _, b := range boundaries {
			b.End()
		}
	}()

	err := g.Wait()
	<-watchdogDone

	if err == nil || errors.Is(err, stage.ErrEnd) {
		c.log.Info("pipeline ended cleanly")
		return nil
	}
	c.log.Error("pipeline aborted", "error", err)
	return fmt.Errorf("pipeline: %w", err)
}
