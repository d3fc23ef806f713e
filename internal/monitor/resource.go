// Package monitor implements tsp's `-m/--monitor` background resource
// monitor thread (spec.md §6): a goroutine that periodically logs process
// memory and goroutine counts, independent of the pipeline's own stage
// threads, grounded on the same ticker-driven background-goroutine shape
// internal/bitrate.Monitor uses for its own periodic recomputation.
package monitor

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// DefaultInterval is the period between resource samples when the caller
// doesn't override it.
const DefaultInterval = 10 * time.Second

// Run logs a resource snapshot every interval until ctx is done. It is
// meant to be started in its own goroutine; it returns once ctx.Done()
// fires. interval <= 0 uses DefaultInterval.
func Run(ctx context.Context, log *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logSnapshot(log)
		}
	}
}

func logSnapshot(log *slog.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Info("resource monitor",
		"goroutines", runtime.NumGoroutine(),
		"heap_alloc_bytes", m.HeapAlloc,
		"heap_sys_bytes", m.HeapSys,
		"num_gc", m.NumGC,
	)
}
