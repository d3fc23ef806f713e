package input

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsproc/internal/tspacket"
)

func TestNullProducesBoundedCount(t *testing.T) {
	n, err := NewNull([]string{"5"})
	require.NoError(t, err)
	require.NoError(t, n.Start(nil))
	defer n.Stop()

	batch := make([]*tspacket.Packet, 3)
	for i := range batch {
		batch[i] = &tspacket.Packet{}
	}

	produced, err := n.Receive(batch)
	require.NoError(t, err)
	require.Equal(t, 3, produced)

	produced, err = n.Receive(batch)
	require.NoError(t, err)
	require.Equal(t, 2, produced)

	produced, err = n.Receive(batch)
	require.NoError(t, err)
	require.Equal(t, 0, produced)

	for _, p := range batch[:2] {
		require.EqualValues(t, tspacket.NullPID, p.PID())
	}
}

func TestNullUnboundedByDefault(t *testing.T) {
	n, err := NewNull(nil)
	require.NoError(t, err)

	batch := make([]*tspacket.Packet, 1000)
	for i := range batch {
		batch[i] = &tspacket.Packet{}
	}
	produced, err := n.Receive(batch)
	require.NoError(t, err)
	require.Equal(t, 1000, produced)
}

func TestNullRejectsExtraArgs(t *testing.T) {
	_, err := NewNull([]string{"5", "6"})
	require.Error(t, err)
}
