package servo

import (
	"io"
	"sync"
)

// MockSerialPort implements SerialPorter for testing.
type MockSerialPort struct {
	mu          sync.Mutex
	ReadData    []byte
	WrittenData []byte
	ReadError   error
	WriteError  error
	CloseError  error
	// ShortWrite, when positive, caps the number of bytes each Write accepts.
	ShortWrite int
	Closed     bool
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadError != nil {
		return 0, m.ReadError
	}
	if len(m.ReadData) == 0 {
		return 0, io.EOF
	}
	n = copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	if m.ShortWrite > 0 && len(p) > m.ShortWrite {
		p = p[:m.ShortWrite]
	}
	m.WrittenData = append(m.WrittenData, p...)
	return len(p), nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

// Written returns a copy of everything written so far.
func (m *MockSerialPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.WrittenData...)
}

// NewMockSerialDriver creates a SerialDriver backed by a mock serial port.
func NewMockSerialDriver(channel uint8) (*SerialDriver[*MockSerialPort], *MockSerialPort) {
	port := &MockSerialPort{}
	return NewSerialDriver[*MockSerialPort](port, channel, DefaultPulseRange()), port
}
