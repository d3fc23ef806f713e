package mux

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/stage"
	"github.com/zsiec/tsproc/internal/tspacket"
)

func writeSideFile(t *testing.T, packets int, pid uint16) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "side.ts")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	for i := 0; i < packets; i++ {
		var p tspacket.Packet
		p.Reset()
		p.SetPID(pid)
		_, err := f.Write(p.Bytes())
		require.NoError(t, err)
	}
	return path
}

func stuffingPacket() tspacket.Packet {
	var p tspacket.Packet
	p.Reset()
	return p
}

func TestMuxInsertsAtFixedInterval(t *testing.T) {
	side := writeSideFile(t, 5, 0x200)

	m, err := New([]string{"--inter-packet", "2", "--repeat", "1", side}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start(nil))
	defer m.Stop()

	inserted := 0
	for i := 0; i < 10; i++ {
		pkt := stuffingPacket()
		status, err := m.Process(&pkt, &ring.Slot{})
		require.NoError(t, err)
		require.Equal(t, stage.StatusOK, status)
		if pkt.PID() == 0x200 {
			inserted++
		}
	}
	require.Equal(t, 5, inserted)
}

func TestMuxDetectsPIDConflict(t *testing.T) {
	side := writeSideFile(t, 1, 0x300)

	m, err := New([]string{"--inter-packet", "1", side}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start(nil))
	defer m.Stop()

	live := stuffingPacket()
	live.SetPID(0x300)
	_, err = m.Process(&live, &ring.Slot{})
	require.NoError(t, err)

	pkt := stuffingPacket()
	status, err := m.Process(&pkt, &ring.Slot{})
	require.Error(t, err)
	require.Equal(t, stage.StatusEnd, status)
}

func TestMuxTerminatesOnSideFileExhaustion(t *testing.T) {
	side := writeSideFile(t, 1, 0x200)

	m, err := New([]string{"--inter-packet", "1", "--repeat", "1", "--terminate", side}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start(nil))
	defer m.Stop()

	pkt := stuffingPacket()
	status, err := m.Process(&pkt, &ring.Slot{})
	require.NoError(t, err)
	require.Equal(t, stage.StatusOK, status)

	pkt2 := stuffingPacket()
	status2, err := m.Process(&pkt2, &ring.Slot{})
	require.NoError(t, err)
	require.Equal(t, stage.StatusEnd, status2)
}
