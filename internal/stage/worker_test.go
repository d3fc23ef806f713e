package stage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// onceInput produces one batch of two packets, then signals end of stream.
type onceInput struct {
	produced bool
}

func (o *onceInput) Start(context.Context) error { return nil }
func (o *onceInput) Stop() error                 { return nil }

func (o *onceInput) Receive(batch []*tspacket.Packet) (int, error) {
	if o.produced {
		return 0, nil
	}
	o.produced = true
	for _, p := range batch[:2] {
		*p = tspacket.NullPacket
	}
	return 2, nil
}

// TestRunInputPassesSlotToObserve exercises spec.md §3's packet-slot
// metadata word end to end: RunInput must hand the observe callback the
// same ring.Slot the rest of the pipeline will later see at that index, so
// internal/bitrate's bitrate-changed signal (wired in internal/pipeline's
// Controller) actually reaches the slot a downstream stage reads.
func TestRunInputPassesSlotToObserve(t *testing.T) {
	r, err := ring.New(4)
	require.NoError(t, err)
	down := ring.NewBoundary(r)

	var observed []int64
	observe := func(pkt *tspacket.Packet, slot *ring.Slot, idx int64) {
		slot.BitrateChanged = true
		observed = append(observed, idx)
	}

	err = RunInput(context.Background(), &onceInput{}, r, down, BatchConfig{}, func() bool { return false }, observe)
	require.NoError(t, err)

	require.Equal(t, []int64{0, 1}, observed)
	require.True(t, r.Slot(0).BitrateChanged)
	require.True(t, r.Slot(1).BitrateChanged)
}

// flushOnceProcessor sets the §4.1 flush-request bit on every packet it
// sees, the way a burst-emitting processor (e.g. the scrambler's PMT
// packetizer or ECM insertion) does.
type flushOnceProcessor struct{}

func (flushOnceProcessor) Start(context.Context) error { return nil }
func (flushOnceProcessor) Stop() error                 { return nil }

func (flushOnceProcessor) Process(pkt *tspacket.Packet, slot *ring.Slot) (Status, error) {
	slot.Flush = true
	return StatusOK, nil
}

type waitInputResult struct {
	n     int
	flush bool
	err   error
}

// TestRunProcessorHonorsSlotFlush exercises spec.md §4.1's flush-request
// operation: a processor setting slot.Flush must wake the downstream
// boundary even though far fewer packets are available than its min
// threshold asks for.
func TestRunProcessorHonorsSlotFlush(t *testing.T) {
	r, err := ring.New(4)
	require.NoError(t, err)
	up := ring.NewBoundary(r)
	down := ring.NewBoundary(r)

	_, n, err := up.WaitOutput(1, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	up.ReleaseOutput(1, false)
	up.End()

	resultCh := make(chan waitInputResult, 1)
	go func() {
		_, n, flush, err := down.WaitInput(2, 10)
		resultCh <- waitInputResult{n, flush, err}
	}()

	err = RunProcessor(context.Background(), flushOnceProcessor{}, r, up, down, BatchConfig{}, func() bool { return false })
	require.NoError(t, err)

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		require.Equal(t, 1, res.n)
		require.True(t, res.flush, "downstream should wake on slot.Flush despite min=2 > available=1")
	case <-time.After(time.Second):
		t.Fatal("down.WaitInput never woke on flush")
	}
}
