package pcrextract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/tspacket"
)

func pcrPacket(pid uint16, pcr uint64) tspacket.Packet {
	raw := make([]byte, tspacket.Size)
	raw[0] = tspacket.SyncByte
	raw[1] = byte(pid>>8) & 0x1F
	raw[2] = byte(pid)
	raw[3] = 0x20 | 0x05 // adaptation field only
	raw[4] = 183
	raw[5] = 0x10 // PCR flag
	p, err := tspacket.FromBytes(raw)
	if err != nil {
		panic(err)
	}
	p.SetPCR(pcr)
	return p
}

func encodeTimestamp(v uint64) [5]byte {
	var b [5]byte
	b[0] = byte((v>>30)&0x07)<<1 | 0x01
	b[1] = byte(v >> 22)
	b[2] = byte((v>>15)&0x7F)<<1 | 0x01
	b[3] = byte(v >> 7)
	b[4] = byte(v&0x7F)<<1 | 0x01
	return b
}

func ptsPacket(pid uint16, pts uint64) tspacket.Packet {
	raw := make([]byte, tspacket.Size)
	raw[0] = tspacket.SyncByte
	raw[1] = byte(pid>>8)&0x1F | 0x40 // payload_unit_start_indicator
	raw[2] = byte(pid)
	raw[3] = 0x10 // payload only

	payload := raw[4:]
	payload[0], payload[1], payload[2] = 0x00, 0x00, 0x01
	payload[3] = 0xE0 // video stream id
	payload[6] = 0x80
	payload[7] = 0x80 // PTS_DTS_indicator = 10 (PTS only)
	payload[8] = 5    // PES header data length
	tsb := encodeTimestamp(pts)
	copy(payload[9:14], tsb[:])

	p, err := tspacket.FromBytes(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func TestPCRExtractWritesCSVHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "report.csv")

	e, err := New([]string{"--output-file", out})
	require.NoError(t, err)
	require.NoError(t, e.Start(nil))

	p1 := pcrPacket(0x100, 27_000_000)
	_, err = e.Process(&p1, &ring.Slot{})
	require.NoError(t, err)

	p2 := ptsPacket(0x101, 90000)
	_, err = e.Process(&p2, &ring.Slot{})
	require.NoError(t, err)

	require.NoError(t, e.Stop())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Equal(t, csvHeader, lines[0])
	require.Contains(t, lines[1], "256;") // 0x100
	require.Contains(t, lines[1], "PCR")
	require.Contains(t, lines[2], "257;") // 0x101
	require.Contains(t, lines[2], "PTS")
}

func TestPCRExtractLogMode(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "report.log")

	e, err := New([]string{"--output-file", out, "--log"})
	require.NoError(t, err)
	require.NoError(t, e.Start(nil))

	p := pcrPacket(0x200, 1000)
	_, err = e.Process(&p, &ring.Slot{})
	require.NoError(t, err)
	require.NoError(t, e.Stop())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "PID 512: PCR")
}

func TestPCRExtractSkipsNullPackets(t *testing.T) {
	e, err := New([]string{"--output-file", os.DevNull})
	require.NoError(t, err)
	require.NoError(t, e.Start(nil))
	defer e.Stop()

	var null tspacket.Packet
	null.Reset()
	_, err = e.Process(&null, &ring.Slot{})
	require.NoError(t, err)
	require.Len(t, e.pids, 0)
}
