package logging

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandlerAsyncDelivers(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(slog.NewTextHandler(&buf, nil), 16, false)
	log := slog.New(h)
	log.Info("hello", "n", 1)
	h.Close()
	require.Contains(t, buf.String(), "hello")
	require.Zero(t, h.Dropped())
}

func TestHandlerSynchronousNeverDrops(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(slog.NewTextHandler(&buf, nil), 1, true)
	log := slog.New(h)
	for i := 0; i < 100; i++ {
		log.Info("msg")
	}
	require.Equal(t, 100, bytes.Count(buf.Bytes(), []byte("msg=msg")))
	require.Zero(t, h.Dropped())
}

func TestHandlerWithAttrsPreservesAsync(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(slog.NewTextHandler(&buf, nil), 16, false)
	log := slog.New(h).With("component", "test")
	log.Info("tagged")
	h.Close()
	require.Contains(t, buf.String(), "component=test")
	require.Contains(t, buf.String(), "tagged")
}

func TestHandlerCloseIsIdempotent(t *testing.T) {
	h := NewHandler(slog.NewTextHandler(new(bytes.Buffer), nil), 4, false)
	h.Close()
	require.NotPanics(t, func() { h.Close() })
}

func TestHandlerQueueDepthDefault(t *testing.T) {
	h := NewHandler(slog.NewTextHandler(new(bytes.Buffer), nil), 0, false)
	defer h.Close()
	require.Equal(t, DefaultQueueDepth, cap(h.inner.ch))
}

func TestHandlerDropCounting(t *testing.T) {
	release := make(chan struct{})
	slow := slog.NewTextHandler(&slowWriter{release: release}, nil)
	h := NewHandler(slow, 1, false)
	log := slog.New(h)
	for i := 0; i < 10; i++ {
		log.Info("msg")
	}
	time.Sleep(10 * time.Millisecond)
	require.NotZero(t, h.Dropped())
	close(release)
	h.Close()
}

// slowWriter blocks the drain goroutine's first write until release is
// closed, giving the test room to overflow the queue deterministically.
type slowWriter struct {
	release chan struct{}
}

func (w *slowWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}
