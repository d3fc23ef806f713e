package scrambler

import (
	"errors"
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/zsiec/tsproc/internal/ecmgscs"
	"github.com/zsiec/tsproc/internal/psi"
	"github.com/zsiec/tsproc/internal/ring"
	"github.com/zsiec/tsproc/internal/stage"
	"github.com/zsiec/tsproc/internal/tspacket"
)

type fixedBitrate uint64

func (f fixedBitrate) Bitrate() uint64 { return uint64(f) }

func newTestScrambler(t *testing.T, client ecmgscs.Client) *Scrambler {
	s, err := New(nil, Config{
		Client:        client,
		ScrambleVideo: true,
		ECMBitrate:    188 * 8 * 10, // one ECM packet per ten TS packets
	}, nil)
	require.NoError(t, err)
	s.SetBitrateSource(fixedBitrate(188 * 8 * 1000))
	return s
}

func TestScramblerHandlePMTAddsCADescriptorAndSchedules(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := ecmgscs.NewMockClient(ctrl)
	client.EXPECT().ChannelSetup(gomock.Any()).Return(ecmgscs.ChannelStatus{}, nil)
	client.EXPECT().GenerateECM(gomock.Any(), gomock.Any()).Return([][]byte{make([]byte, tspacket.Size)}, nil)

	s := newTestScrambler(t, client)
	require.NoError(t, s.Start(nil))

	pmt := &psi.PMT{
		ProgramNumber: 1,
		PCRPID:        0x100,
		Streams:       []*psi.PMTElementaryStream{{StreamType: 0x1B, PID: 0x100}},
	}
	require.NoError(t, s.HandlePMT(0x20, pmt))

	require.True(t, s.scrambled[0x100])
	require.NotZero(t, s.ecmPID)
	require.Len(t, pmt.ProgramDescriptors, 1)
}

func TestScramblerScramblesEligiblePID(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := ecmgscs.NewMockClient(ctrl)
	client.EXPECT().ChannelSetup(gomock.Any()).Return(ecmgscs.ChannelStatus{}, nil)
	client.EXPECT().GenerateECM(gomock.Any(), gomock.Any()).Return([][]byte{make([]byte, tspacket.Size)}, nil)
	client.EXPECT().Close().Return(nil)

	s := newTestScrambler(t, client)
	require.NoError(t, s.Start(nil))

	pmt := &psi.PMT{
		ProgramNumber: 1,
		PCRPID:        0x100,
		Streams:       []*psi.PMTElementaryStream{{StreamType: 0x1B, PID: 0x100}},
	}
	require.NoError(t, s.HandlePMT(0x20, pmt))

	var pkt tspacket.Packet
	pkt.Reset()
	pkt.SetPID(0x100)
	for i := range pkt.Payload() {
		pkt.Payload()[i] = byte(i)
	}
	before := append([]byte{}, pkt.Payload()...)

	status, err := s.Process(&pkt, &ring.Slot{})
	require.NoError(t, err)
	require.Equal(t, stage.StatusOK, status)
	require.NotEqual(t, before, pkt.Payload())
	require.True(t, pkt.IsScrambled())

	require.NoError(t, s.Stop())
}

// buildPATSection and buildPMTSection hand-roll just enough of the PAT/PMT
// wire format to exercise discover()'s PAT->PMT auto-discovery end to end,
// independent of the psi package's own round-trip tests.
func buildPATSection(programNumber, pmtPID uint16) []byte {
	body := []byte{psi.TableIDPAT, 0, 0, 0, 1, 0xC1, 0x00, 0x00}
	body = append(body, byte(programNumber>>8), byte(programNumber), byte(pmtPID>>8)&0x1F|0xE0, byte(pmtPID))
	sectionLength := len(body) - 3 + 4
	body[1] = 0x80 | byte(sectionLength>>8)&0x0F
	body[2] = byte(sectionLength)
	crc := psi.ComputeCRC32(body)
	return append(body, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func sectionToPackets(pid uint16, section []byte) []tspacket.Packet {
	const payloadCap = 184
	buf := append([]byte{0x00}, section...)
	var out []tspacket.Packet
	cc := uint8(0)
	for i := 0; i < len(buf); i += payloadCap {
		end := i + payloadCap
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[i:end]
		raw := make([]byte, tspacket.Size)
		raw[0] = tspacket.SyncByte
		raw[1] = byte(pid>>8) & 0x1F
		if i == 0 {
			raw[1] |= 0x40
		}
		raw[2] = byte(pid)
		raw[3] = 0x10 | (cc & 0x0F)
		copy(raw[4:], chunk)
		for j := 4 + len(chunk); j < tspacket.Size; j++ {
			raw[j] = 0xFF
		}
		p, err := tspacket.FromBytes(raw)
		if err != nil {
			panic(err)
		}
		out = append(out, p)
		cc = (cc + 1) & 0x0F
	}
	return out
}

func TestScramblerAutoDiscoversPATAndPMT(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := ecmgscs.NewMockClient(ctrl)
	client.EXPECT().ChannelSetup(gomock.Any()).Return(ecmgscs.ChannelStatus{}, nil)
	client.EXPECT().GenerateECM(gomock.Any(), gomock.Any()).Return([][]byte{make([]byte, tspacket.Size)}, nil)

	s := newTestScrambler(t, client)
	require.NoError(t, s.Start(nil))
	require.False(t, s.pmtSeen)

	for _, pkt := range sectionToPackets(0x0000, buildPATSection(1, 0x20)) {
		pkt := pkt
		status, err := s.Process(&pkt, &ring.Slot{})
		require.NoError(t, err)
		require.Equal(t, stage.StatusOK, status)
	}
	require.True(t, s.patSeen)
	require.False(t, s.pmtSeen)

	pmt := &psi.PMT{
		ProgramNumber: 1,
		PCRPID:        0x100,
		Streams:       []*psi.PMTElementaryStream{{StreamType: 0x1B, PID: 0x100}},
	}
	for _, pkt := range sectionToPackets(0x20, pmt.Marshal()) {
		pkt := pkt
		_, err := s.Process(&pkt, &ring.Slot{})
		require.NoError(t, err)
	}

	require.True(t, s.pmtSeen)
	require.True(t, s.scrambled[0x100])
}

func TestScramblerAbortsOnAlreadyScrambledPacket(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := ecmgscs.NewMockClient(ctrl)
	client.EXPECT().ChannelSetup(gomock.Any()).Return(ecmgscs.ChannelStatus{}, nil)
	client.EXPECT().GenerateECM(gomock.Any(), gomock.Any()).Return([][]byte{make([]byte, tspacket.Size)}, nil)

	s := newTestScrambler(t, client)
	require.NoError(t, s.Start(nil))

	pmt := &psi.PMT{
		ProgramNumber: 1,
		PCRPID:        0x100,
		Streams:       []*psi.PMTElementaryStream{{StreamType: 0x1B, PID: 0x100}},
	}
	require.NoError(t, s.HandlePMT(0x20, pmt))

	var pkt tspacket.Packet
	pkt.Reset()
	pkt.SetPID(0x100)
	pkt.SetScramblingControl(2)

	status, err := s.Process(&pkt, &ring.Slot{})
	require.Error(t, err)
	require.Equal(t, stage.StatusEnd, status)
}

func TestNewVersionFlagExitsCleanly(t *testing.T) {
	_, err := New([]string{"--version"}, Config{}, nil)
	require.True(t, errors.Is(err, flag.ErrHelp))
}

func TestNewDefaultsECMGVersionToV3(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := ecmgscs.NewMockClient(ctrl)
	s, err := New(nil, Config{Client: client}, nil)
	require.NoError(t, err)
	require.Equal(t, ecmgscs.Version3, s.ecmgVersion())
}

func TestNewRejectsInvalidECMGVersionFlag(t *testing.T) {
	_, err := New([]string{"--ecmg-version", "7"}, Config{}, nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, flag.ErrHelp))
}
