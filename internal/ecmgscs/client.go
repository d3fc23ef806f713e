// Package ecmgscs models the core's SCS-side view of a DVB SimulCrypt
// ECMG<->SCS session (spec.md §4.5.1, §6): channel_setup/stream_setup,
// CW_provision, and ECM_response, reduced to the opaque request/response
// shape the scrambler stage actually drives. The wire protocol itself (TLV
// encoding, TCP framing) is an out-of-scope collaborator; Client is the
// capability surface the scrambler consumes.
package ecmgscs

import (
	"context"
	"fmt"
	"time"
)

// Version selects the DVB SimulCrypt ECMG<->SCS protocol revision. Unlike
// the original C++ implementation, which mutates a process-wide singleton,
// this is an explicit field on Client construction (spec.md §9).
type Version int

const (
	Version2 Version = 2
	Version3 Version = 3
)

func (v Version) String() string {
	switch v {
	case Version2:
		return "2"
	case Version3:
		return "3"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// CPDescriptor is everything the ECMG needs to produce one ECM: the
// crypto-period being described, both control words bracketing it, the
// access criteria to embed, and how long the CP lasts.
type CPDescriptor struct {
	CPNumber       uint16
	CWCurrent      [8]byte
	CWNext         [8]byte
	AccessCriteria []byte
	CPDuration     time.Duration
}

// ChannelStatus is the subset of channel_status the scrambler cares about:
// the delay_start the ECMG wants between a CW change and the corresponding
// ECM change, per spec.md §4.5.2. Callers must reject |DelayStart| >
// CPDuration/2 at startup.
type ChannelStatus struct {
	DelayStart time.Duration
}

// ECMCallback delivers an asynchronously generated ECM packet vector, or an
// error if the ECMG could not produce one. It is invoked from the client's
// own goroutine, never from the scrambler's packet loop.
type ECMCallback func(packets [][]byte, err error)

// Client is the SCS-side handle to one ECMG channel/stream. The scrambler
// never sees TLV messages or socket state; it only calls these four
// methods.
type Client interface {
	// ChannelSetup negotiates the channel and returns the ECMG's delay_start.
	ChannelSetup(ctx context.Context) (ChannelStatus, error)

	// GenerateECM synchronously requests one ECM for cp and blocks for the
	// response. Used only at startup, per spec.md §4.2's "processors never
	// block on I/O under normal operation" and §4.5's "synchronous only at
	// startup", or when --synchronous forces it throughout.
	GenerateECM(ctx context.Context, cp CPDescriptor) ([][]byte, error)

	// SubmitECM asynchronously requests one ECM for cp; cb fires later, off
	// the packet-processing critical path, once the ECMG responds.
	SubmitECM(ctx context.Context, cp CPDescriptor, cb ECMCallback) error

	// Close tears down the channel/stream.
	Close() error
}
