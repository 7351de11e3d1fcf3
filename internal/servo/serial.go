package servo

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Compact protocol command bytes understood by Pololu Maestro style serial
// servo controllers.
const (
	cmdSetTarget byte = 0x84
	cmdGetErrors byte = 0xA1
)

// SerialDriver positions a servo through a serial servo controller. Targets
// are sent as quarter-microsecond pulse widths using the compact protocol:
//
//	0x84, channel, target & 0x7F, (target >> 7) & 0x7F
type SerialDriver[T SerialPorter] struct {
	mu      sync.Mutex
	port    T
	channel uint8
	pulses  PulseRange
	closed  bool
}

// NewSerialDriver wraps an open port. channel selects the controller output
// the servo is wired to.
func NewSerialDriver[T SerialPorter](port T, channel uint8, pulses PulseRange) *SerialDriver[T] {
	return &SerialDriver[T]{
		port:    port,
		channel: channel,
		pulses:  pulses.normalise(),
	}
}

// NewRealSerialDriver opens the serial device at path using go.bug.st/serial.
func NewRealSerialDriver(path string, opts PortOptions, channel uint8, pulses PulseRange) (*SerialDriver[serial.Port], error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open servo controller %s: %w", path, err)
	}
	if err := port.SetReadTimeout(opts.withDefaults().ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set servo controller read timeout: %w", err)
	}

	return NewSerialDriver[serial.Port](port, channel, pulses), nil
}

// maxTarget is the largest value the two 7-bit target bytes can carry.
const maxTarget = 0x3FFF

// MaxSerialPulse is the widest pulse the compact protocol can express.
const MaxSerialPulse = maxTarget * 250 * time.Nanosecond

// setTargetFrame builds the compact-protocol frame for an angle. A pulse
// wider than MaxSerialPulse is rejected rather than truncated.
func (d *SerialDriver[T]) setTargetFrame(degrees int32) ([]byte, error) {
	quarterMicros := d.pulses.Pulse(degrees).Nanoseconds() / 250
	if quarterMicros > maxTarget {
		return nil, fmt.Errorf("%w: %v exceeds %v", ErrPulseOutOfRange, d.pulses.Pulse(degrees), MaxSerialPulse)
	}
	return []byte{
		cmdSetTarget,
		d.channel,
		byte(quarterMicros & 0x7F),
		byte((quarterMicros >> 7) & 0x7F),
	}, nil
}

// SetAngle implements Driver.
func (d *SerialDriver[T]) SetAngle(degrees int32) error {
	if err := checkRange(degrees); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &HardwareError{Angle: degrees, Err: ErrClosed}
	}

	frame, err := d.setTargetFrame(degrees)
	if err != nil {
		return &HardwareError{Angle: degrees, Err: err}
	}
	n, err := d.port.Write(frame)
	if err != nil {
		return &HardwareError{Angle: degrees, Err: err}
	}
	if n != len(frame) {
		return &HardwareError{Angle: degrees, Err: ErrWriteFailed}
	}
	return nil
}

// ControllerErrors queries the controller's error register. A non-zero
// value means the controller latched a fault (serial framing, overrun, and
// similar); reading it clears the register.
func (d *SerialDriver[T]) ControllerErrors() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}

	if _, err := d.port.Write([]byte{cmdGetErrors}); err != nil {
		return 0, fmt.Errorf("request controller errors: %w", err)
	}

	var reply [2]byte
	read := 0
	for read < len(reply) {
		n, err := d.port.Read(reply[read:])
		if err != nil {
			return 0, fmt.Errorf("read controller errors: %w", err)
		}
		if n == 0 {
			return 0, fmt.Errorf("read controller errors: no reply")
		}
		read += n
	}
	return uint16(reply[0]) | uint16(reply[1])<<8, nil
}

// Close implements Driver.
func (d *SerialDriver[T]) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.port.Close()
}
