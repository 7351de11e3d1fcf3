package telemetry

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sonar/internal/protocol"
)

// Receiver reads telemetry frames on the operator side. Each Poll waits at
// most the given timeout so the display loop never blocks on a quiet link.
// Only one goroutine may Poll at a time.
type Receiver struct {
	sock      UDPSocket
	buf       [64]byte
	malformed atomic.Uint64
}

// ListenReceiver binds the telemetry port on all interfaces. A zero port
// binds Port.
func ListenReceiver(port int) (*Receiver, error) {
	if port == 0 {
		port = Port
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind telemetry port %d: %w", port, err)
	}
	return NewReceiver(conn), nil
}

// NewReceiver wraps a bound socket.
func NewReceiver(sock UDPSocket) *Receiver {
	return &Receiver{sock: sock}
}

// Poll waits up to timeout for one datagram. ok is false when nothing
// arrived in time. Datagrams that are not exactly one frame are discarded
// and reported as a *protocol.DecodeError.
func (r *Receiver) Poll(timeout time.Duration) (frame protocol.TelemetryFrame, from netip.AddrPort, ok bool, err error) {
	if err := r.sock.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return frame, from, false, fmt.Errorf("set telemetry read deadline: %w", err)
	}

	n, from, err := r.sock.ReadFromUDPAddrPort(r.buf[:])
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return frame, from, false, nil
		}
		return frame, from, false, fmt.Errorf("read telemetry: %w", err)
	}

	frame, err = protocol.DecodeTelemetry(r.buf[:n])
	if err != nil {
		r.malformed.Add(1)
		return frame, from, false, err
	}
	return frame, from, true, nil
}

// Malformed returns the number of discarded datagrams.
func (r *Receiver) Malformed() uint64 { return r.malformed.Load() }

// LocalAddr returns the bound address.
func (r *Receiver) LocalAddr() net.Addr { return r.sock.LocalAddr() }

// Close releases the socket.
func (r *Receiver) Close() error { return r.sock.Close() }
