// Package telemetry carries sweep angle frames from the node to the
// operator over UDP.
package telemetry

import (
	"net"
	"net/netip"
	"sync"
	"time"
)

// Well-known ports of the telemetry link.
const (
	// SourcePort is the fixed local port the node sends from.
	SourcePort = 2222
	// Port is the operator's telemetry listening port.
	Port = 1122
)

// UDPSocket defines the socket operations the sender and receiver need.
// *net.UDPConn satisfies it; tests substitute MockUDPSocket.
type UDPSocket interface {
	ReadFromUDPAddrPort(b []byte) (n int, addr netip.AddrPort, err error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// MockUDPPacket represents a queued datagram for mock testing.
type MockUDPPacket struct {
	Data []byte
	Addr netip.AddrPort
}

// MockUDPSocket implements UDPSocket for testing.
type MockUDPSocket struct {
	mu sync.Mutex
	// Packets holds the datagrams to return from ReadFromUDPAddrPort.
	Packets []MockUDPPacket
	// Sent records every datagram written.
	Sent []MockUDPPacket
	// ReadError is returned on the next read if set.
	ReadError error
	// WriteError is returned by every write while set.
	WriteError error
	// ReadDeadline holds the value set by SetReadDeadline.
	ReadDeadline time.Time
	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr
	Closed       bool
}

// NewMockUDPSocket creates a MockUDPSocket with the given packets queued.
func NewMockUDPSocket(packets ...MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		Packets:      packets,
		LocalAddress: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: Port},
	}
}

// Queue appends a datagram to be read.
func (m *MockUDPSocket) Queue(data []byte, from netip.AddrPort) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Packets = append(m.Packets, MockUDPPacket{Data: data, Addr: from})
}

// ReadFromUDPAddrPort returns the next queued packet or a timeout error
// when none is left.
func (m *MockUDPSocket) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return 0, netip.AddrPort{}, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, netip.AddrPort{}, err
	}
	if len(m.Packets) == 0 {
		return 0, netip.AddrPort{}, &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
	}
	pkt := m.Packets[0]
	m.Packets = m.Packets[1:]
	return copy(b, pkt.Data), pkt.Addr, nil
}

// WriteToUDPAddrPort records the datagram.
func (m *MockUDPSocket) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return 0, net.ErrClosed
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.Sent = append(m.Sent, MockUDPPacket{Data: append([]byte(nil), b...), Addr: addr})
	return len(b), nil
}

// SentPackets returns a copy of the recorded datagrams.
func (m *MockUDPSocket) SentPackets() []MockUDPPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockUDPPacket(nil), m.Sent...)
}

// SetReadDeadline records the deadline.
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadDeadline = t
	return nil
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr { return m.LocalAddress }

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
