package telemetry

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/banshee-data/sonar/internal/protocol"
)

// Sender emits telemetry frames from the node. Delivery is best effort:
// a failed send is reported to the caller and never retried.
type Sender struct {
	sock UDPSocket
	buf  [protocol.TelemetryFrameSize]byte
}

// ListenSender binds the node's telemetry socket on all interfaces at port.
// A zero port binds SourcePort.
func ListenSender(port int) (*Sender, error) {
	if port == 0 {
		port = SourcePort
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind telemetry source port %d: %w", port, err)
	}
	return NewSender(conn), nil
}

// NewSender wraps an already bound socket.
func NewSender(sock UDPSocket) *Sender {
	return &Sender{sock: sock}
}

// Send writes one frame to dst. It is called only from the sweep goroutine,
// so the encode buffer is not shared.
func (s *Sender) Send(frame protocol.TelemetryFrame, dst netip.AddrPort) error {
	dst = netip.AddrPortFrom(dst.Addr().Unmap(), dst.Port())
	b := protocol.AppendTelemetry(s.buf[:0], frame)
	if _, err := s.sock.WriteToUDPAddrPort(b, dst); err != nil {
		return fmt.Errorf("send telemetry to %s: %w", dst, err)
	}
	return nil
}

// LocalAddr returns the bound address.
func (s *Sender) LocalAddr() net.Addr { return s.sock.LocalAddr() }

// Close releases the socket.
func (s *Sender) Close() error { return s.sock.Close() }
