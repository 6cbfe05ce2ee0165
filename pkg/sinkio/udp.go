package sinkio

import (
	"fmt"
	"net"

	"github.com/relaylog/relay/pkg/types"
	"github.com/relaylog/relay/pkg/wire"
)

// UdpSink sends one binary-framed datagram per record to a fixed remote
// address. There is no batching within the framed protocol: Emit already
// receives one encoded frame per call. The socket is opened once at
// construction and reused; UDP has no connection to recover, so send
// failures are simply dropped.
type UdpSink struct {
	name      string
	authToken string
	appID     string
	conn      *net.UDPConn
}

// dialUDP is a variable so tests can substitute a fake dialer without a
// real socket.
var dialUDP = net.DialUDP

// NewUdpSink resolves addr and opens a UDP socket to it. The socket is
// non-blocking by nature of UDP's connectionless writes; a send that would
// block the OS buffer simply returns an error, which the caller drops.
func NewUdpSink(name, addr, authToken, appID string) (*UdpSink, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving udp address %q: %w", addr, err)
	}
	conn, err := dialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing udp address %q: %w", addr, err)
	}
	return &UdpSink{name: name, authToken: authToken, appID: appID, conn: conn}, nil
}

// Name implements Sink.
func (s *UdpSink) Name() string { return s.name }

// Emit sends one already-encoded datagram. Errors are the caller's to
// record; they are never surfaced to the producer.
func (s *UdpSink) Emit(data []byte) error {
	_, err := s.conn.Write(data)
	return err
}

// Sync is a no-op: UDP sends complete (or fail) synchronously in Emit, and
// there is no OS-level buffer to flush.
func (s *UdpSink) Sync() error { return nil }

// OnCommand handles shutdown by closing the socket; rotate and compress do
// not apply to a network sink.
func (s *UdpSink) OnCommand(cmd types.Command) error {
	if cmd.Kind == types.CmdShutdown {
		return s.Close()
	}
	return nil
}

// Close closes the underlying UDP socket.
func (s *UdpSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Format renders r as one datagram using this sink's configured auth token
// and app id.
func (s *UdpSink) Format(r *types.Record) []byte {
	return wire.Encode(r, s.authToken, s.appID)
}
