package output

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/tsproc/internal/buildinfo"
	"github.com/zsiec/tsproc/internal/tspacket"
)

// quicALPN is the application-layer protocol negotiated with the remote
// collector; arbitrary but must match on both ends.
const quicALPN = "tsp/1"

// quicIdleTimeout mirrors the MaxIdleTimeout distribution/server.go sets on
// its own quic.Config for the WebTransport listener.
const quicIdleTimeout = 30 * time.Second

// QUIC streams processed packets to a remote collector over one QUIC
// unidirectional stream, writing each packet of a batch to the stream as
// it comes (no userspace buffer, unlike output/file). Grounded on internal/distribution/server.go's quic.Config
// (MaxIdleTimeout, Allow0RTT) and its tls.Config construction, stripped
// down from a full HTTP/3 WebTransport listener to a bare client
// connection since tsp only needs an outbound byte pipe, not sessions.
type QUIC struct {
	addr       string
	insecure   bool
	conn       quic.Connection
	stream     quic.SendStream
}

// NewQUIC parses args ("[--insecure] <addr>"); flags precede the address.
func NewQUIC(args []string) (*QUIC, error) {
	fs := flag.NewFlagSet("quic", flag.ContinueOnError)
	insecure := fs.Bool("insecure", false, "skip TLS certificate verification")
	showVersion := buildinfo.VersionFlag(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *showVersion {
		buildinfo.PrintVersion(fs.Output(), "output/quic")
		return nil, flag.ErrHelp
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("output/quic: expected exactly one address argument")
	}
	return &QUIC{addr: fs.Arg(0), insecure: *insecure}, nil
}

func (out *QUIC) Start(ctx context.Context) error {
	tlsConf := &tls.Config{
		NextProtos:         []string{quicALPN},
		InsecureSkipVerify: out.insecure,
	}
	qConf := &quic.Config{
		MaxIdleTimeout: quicIdleTimeout,
		Allow0RTT:      true,
	}

	conn, err := quic.DialAddr(ctx, out.addr, tlsConf, qConf)
	if err != nil {
		return fmt.Errorf("output/quic: dial %s: %w", out.addr, err)
	}
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return fmt.Errorf("output/quic: open stream: %w", err)
	}
	out.conn = conn
	out.stream = stream
	return nil
}

func (out *QUIC) Stop() error {
	if out.stream != nil {
		out.stream.Close()
	}
	if out.conn != nil {
		return out.conn.CloseWithError(0, "done")
	}
	return nil
}

func (out *QUIC) Send(batch []*tspacket.Packet) error {
	for _, pkt := range batch {
		if _, err := out.stream.Write(pkt.Bytes()); err != nil {
			return fmt.Errorf("output/quic: write: %w", err)
		}
	}
	return nil
}
