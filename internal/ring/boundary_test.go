package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoundaryProduceConsumeFIFO(t *testing.T) {
	r, err := New(8)
	require.NoError(t, err)
	b := NewBoundary(r)

	base, n, err := b.WaitOutput(1, 4)
	require.NoError(t, err)
	require.EqualValues(t, 0, base)
	require.Equal(t, 4, n)
	b.ReleaseOutput(n, false)

	rbase, rn, flush, err := b.WaitInput(1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 0, rbase)
	require.Equal(t, 4, rn)
	require.False(t, flush)
	b.ReleaseInput(rn)

	require.EqualValues(t, 0, b.Pending())
}

func TestBoundaryCapacityOneStillProgresses(t *testing.T) {
	r, err := New(1)
	require.NoError(t, err)
	b := NewBoundary(r)

	for i := 0; i < 5; i++ {
		base, n, err := b.WaitOutput(1, 10)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		b.ReleaseOutput(n, false)

		rbase, rn, _, err := b.WaitInput(1, 10)
		require.NoError(t, err)
		require.Equal(t, base, rbase)
		require.Equal(t, 1, rn)
		b.ReleaseInput(rn)
	}
}

func TestBoundaryFlushWakesBelowMin(t *testing.T) {
	r, err := New(16)
	require.NoError(t, err)
	b := NewBoundary(r)

	_, n, err := b.WaitOutput(1, 1)
	require.NoError(t, err)
	b.ReleaseOutput(n, true)

	done := make(chan struct{})
	go func() {
		_, rn, flush, err := b.WaitInput(10, 10)
		require.NoError(t, err)
		require.Equal(t, 1, rn)
		require.True(t, flush)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush did not wake waiter below min")
	}
}

func TestBoundaryEndWakesWaiters(t *testing.T) {
	r, err := New(4)
	require.NoError(t, err)
	b := NewBoundary(r)

	done := make(chan error, 1)
	go func() {
		_, _, _, err := b.WaitInput(1, 4)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.End()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrEnded)
	case <-time.After(time.Second):
		t.Fatal("End did not wake blocked WaitInput")
	}
}

func TestBoundaryWrapContiguity(t *testing.T) {
	r, err := New(4)
	require.NoError(t, err)
	b := NewBoundary(r)

	_, n, err := b.WaitOutput(1, 4)
	require.NoError(t, err)
	b.ReleaseOutput(n, false)
	_, rn, _, err := b.WaitInput(1, 4)
	require.NoError(t, err)
	b.ReleaseInput(rn)

	// produced/consumed both at 4; next write wraps at index 0 mod 4, but
	// only 2 slots are contiguous before hitting the end of the backing array
	// from an arbitrary non-zero base. With base==4 (%4==0) contiguity is full.
	_, n2, err := b.WaitOutput(1, 4)
	require.NoError(t, err)
	require.Equal(t, 4, n2)
}
