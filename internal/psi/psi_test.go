package psi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC32SelfCheck(t *testing.T) {
	data := []byte{0x02, 0x80, 0x11, 0x00, 0x01}
	section := appendCRC32(data)
	require.NoError(t, verifyCRC32(section))

	corrupt := append([]byte{}, section...)
	corrupt[0] ^= 0xFF
	require.Error(t, verifyCRC32(corrupt))
}

func buildPAT(tsid uint16, programs []PATProgram) []byte {
	body := []byte{TableIDPAT, 0, 0, byte(tsid >> 8), byte(tsid), 0xC1, 0x00, 0x00}
	for _, p := range programs {
		body = append(body, byte(p.ProgramNumber>>8), byte(p.ProgramNumber),
			byte(p.PMTPID>>8)&0x1F|0xE0, byte(p.PMTPID))
	}
	sectionLength := len(body) - 3 + 4
	body[1] = 0x80 | byte(sectionLength>>8)&0x0F
	body[2] = byte(sectionLength)
	return appendCRC32(body)
}

func TestParsePAT(t *testing.T) {
	section := buildPAT(7, []PATProgram{{ProgramNumber: 1, PMTPID: 0x100}})
	pat, err := ParsePAT(section)
	require.NoError(t, err)
	require.EqualValues(t, 7, pat.TransportStreamID)
	require.Len(t, pat.Programs, 1)
	require.EqualValues(t, 0x100, pat.Programs[0].PMTPID)
}

func TestPMTMarshalParseRoundTrip(t *testing.T) {
	pmt := &PMT{
		ProgramNumber: 1,
		PCRPID:        0x101,
		Streams: []*PMTElementaryStream{
			{StreamType: 0x1B, PID: 0x101},
			{StreamType: 0x0F, PID: 0x102},
		},
	}
	section := pmt.Marshal()
	require.NoError(t, verifyCRC32(section))

	parsed, err := ParsePMT(section)
	require.NoError(t, err)
	require.EqualValues(t, 1, parsed.ProgramNumber)
	require.EqualValues(t, 0x101, parsed.PCRPID)
	require.Len(t, parsed.Streams, 2)
	require.EqualValues(t, 0x1B, parsed.Streams[0].StreamType)
	require.EqualValues(t, 0x102, parsed.Streams[1].PID)
}

func TestAddCADescriptorRoundTrip(t *testing.T) {
	pmt := &PMT{ProgramNumber: 1, PCRPID: 0x101, Streams: []*PMTElementaryStream{{StreamType: 0x1B, PID: 0x101}}}
	ca := CADescriptor(0x4A44, 0x200, []byte{0xAB})
	pmt.AddProgramDescriptor(ca)

	section := pmt.Marshal()
	parsed, err := ParsePMT(section)
	require.NoError(t, err)
	require.Len(t, parsed.ProgramDescriptors, 1)
	require.Equal(t, ca, parsed.ProgramDescriptors[0])
}

func TestAddComponentDescriptor(t *testing.T) {
	pmt := &PMT{ProgramNumber: 1, PCRPID: 0x101, Streams: []*PMTElementaryStream{{StreamType: 0x1B, PID: 0x101}}}
	require.True(t, pmt.AddComponentDescriptor(0x101, CADescriptor(1, 2, nil)))
	require.False(t, pmt.AddComponentDescriptor(0x999, CADescriptor(1, 2, nil)))
}
