package tspacket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeRawPacket(pid uint16, cc uint8, payload []byte) []byte {
	buf := make([]byte, Size)
	buf[0] = SyncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F)
	copy(buf[4:], payload)
	return buf
}

func TestFromBytesRoundTrip(t *testing.T) {
	raw := makeRawPacket(0x100, 7, []byte{1, 2, 3})
	p, err := FromBytes(raw)
	require.NoError(t, err)
	require.True(t, p.ValidSync())
	require.EqualValues(t, 0x100, p.PID())
	require.EqualValues(t, 7, p.ContinuityCounter())
	require.Equal(t, raw, p.Bytes())
}

func TestFromBytesRejectsBadSync(t *testing.T) {
	raw := makeRawPacket(0x100, 0, nil)
	raw[0] = 0x00
	_, err := FromBytes(raw)
	require.Error(t, err)
}

func TestFromBytesRejectsWrongSize(t *testing.T) {
	_, err := FromBytes(make([]byte, 10))
	require.Error(t, err)
}

func TestNullPacket(t *testing.T) {
	require.EqualValues(t, NullPID, NullPacket.PID())
	require.True(t, NullPacket.ValidSync())
	require.True(t, NullPacket.HasPayload())
}

func TestSetPIDAndCC(t *testing.T) {
	var p Packet
	p.Reset()
	p.SetPID(0x1FF)
	require.EqualValues(t, 0x1FF, p.PID())
	p.SetCC(9)
	require.EqualValues(t, 9, p.ContinuityCounter())
	p.SetCC(17) // wraps mod 16
	require.EqualValues(t, 1, p.ContinuityCounter())
}

func TestPCRRoundTrip(t *testing.T) {
	raw := make([]byte, Size)
	raw[0] = SyncByte
	raw[1] = 0x00
	raw[2] = 0x10
	raw[3] = 0x20 | 0x05 // adaptation field only
	raw[4] = 183         // adaptation field length fills the rest of the packet
	raw[5] = 0x10        // PCR flag set

	p, err := FromBytes(raw)
	require.NoError(t, err)
	require.True(t, p.HasPCR())
	require.False(t, p.HasOPCR())

	p.SetPCR(12345678901)
	require.EqualValues(t, 12345678901, p.GetPCR())
}

func TestSequencedPTS(t *testing.T) {
	require.True(t, SequencedPTS(100, 200))
	require.False(t, SequencedPTS(200, 100))
	require.False(t, SequencedPTS(100, 100))

	const mod = uint64(1) << 33
	// candidate wrapped around but is still "ahead" by a small amount
	require.True(t, SequencedPTS(mod-10, 5))
	// candidate is far enough behind (more than half the modulus) to count
	// as a stale/out-of-order PTS rather than a wrap.
	require.False(t, SequencedPTS(5, mod-10))
}
