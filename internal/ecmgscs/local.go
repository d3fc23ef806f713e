package ecmgscs

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/zsiec/tsproc/internal/tspacket"
)

// LocalClient is a self-contained stand-in for a real ECMG<->SCS network
// session: spec.md §1 treats the ECMG client as an opaque request/response
// collaborator outside this core's scope, so rather than fabricate a DVB
// SimulCrypt TLV/TCP stack tsp ships a local generator that produces
// well-formed (if not cryptographically meaningful) ECM packets on demand.
// It is the default Client cmd/tsp wires into the scrambler plugin; tests
// substitute ecmgscs.MockClient instead.
type LocalClient struct {
	version      Version
	delayStart   time.Duration
	asyncDelay   time.Duration
	packetsPerCP int
}

// NewLocalClient builds a LocalClient. version is the ECMG<->SCS protocol
// revision this channel negotiates (spec.md §9: an explicit construction-time
// field, never process-wide state); version 0 defaults to Version3.
// delayStart is returned verbatim from ChannelSetup (spec.md §4.5.1's
// channel_status.delay_start); asyncDelay is the latency SubmitECM's
// callback fires after, simulating network round-trip so degraded mode
// (spec.md §4.5.3) is reachable in practice; packetsPerCP sizes the
// synthetic ECM packet vector per crypto-period.
func NewLocalClient(version Version, delayStart, asyncDelay time.Duration, packetsPerCP int) *LocalClient {
	if packetsPerCP < 1 {
		packetsPerCP = 1
	}
	if version == 0 {
		version = Version3
	}
	return &LocalClient{version: version, delayStart: delayStart, asyncDelay: asyncDelay, packetsPerCP: packetsPerCP}
}

// Version reports the protocol revision this channel was built with.
func (c *LocalClient) Version() Version { return c.version }

func (c *LocalClient) ChannelSetup(ctx context.Context) (ChannelStatus, error) {
	return ChannelStatus{DelayStart: c.delayStart}, nil
}

func (c *LocalClient) GenerateECM(ctx context.Context, cp CPDescriptor) ([][]byte, error) {
	return c.buildECM(cp), nil
}

func (c *LocalClient) SubmitECM(ctx context.Context, cp CPDescriptor, cb ECMCallback) error {
	pkts := c.buildECM(cp)
	if c.asyncDelay <= 0 {
		cb(pkts, nil)
		return nil
	}
	timer := time.AfterFunc(c.asyncDelay, func() { cb(pkts, nil) })
	go func() {
		<-ctx.Done()
		timer.Stop()
	}()
	return nil
}

func (c *LocalClient) Close() error { return nil }

// buildECM synthesizes packetsPerCP well-formed TS packets whose payload
// encodes cp so the scrambler's emission cursor has distinct packets to
// cycle through; it carries no real ECM_response TLV, matching the "ECMG
// is opaque" scope decision.
func (c *LocalClient) buildECM(cp CPDescriptor) [][]byte {
	out := make([][]byte, c.packetsPerCP)
	for i := range out {
		var pkt tspacket.Packet
		pkt.Reset()
		payload := pkt.Payload()
		binary.BigEndian.PutUint16(payload[0:2], cp.CPNumber)
		copy(payload[2:10], cp.CWCurrent[:])
		copy(payload[10:18], cp.CWNext[:])
		payload[18] = byte(i)
		out[i] = append([]byte{}, pkt.Bytes()...)
	}
	return out
}
