// Package servo drives the sweep servo. The sweep controller only needs
// one capability, SetAngle; the backends here translate it to a serial
// servo controller, a Linux PWM channel, or an in-memory simulation.
package servo

import (
	"errors"
	"fmt"
	"time"
)

// Mechanical range of the servo shaft in degrees, centred on 0.
const (
	MinAngle int32 = -90
	MaxAngle int32 = 90
)

// Default pulse widths for an SG90-class hobby servo at the range ends.
const (
	DefaultMinPulse = 500 * time.Microsecond
	DefaultMaxPulse = 2500 * time.Microsecond
)

var (
	// ErrOutOfRange is wrapped by HardwareError when a requested angle lies
	// outside the mechanical range.
	ErrOutOfRange = errors.New("angle outside mechanical range")
	// ErrWriteFailed is wrapped when a backend accepted fewer bytes than sent.
	ErrWriteFailed = errors.New("short write to servo controller")
	// ErrPulseOutOfRange is wrapped when the configured pulse range maps an
	// angle to a pulse the backend cannot produce.
	ErrPulseOutOfRange = errors.New("pulse width outside backend range")
	// ErrClosed is wrapped when a closed driver is used.
	ErrClosed = errors.New("servo driver closed")
)

// Driver positions the servo shaft.
type Driver interface {
	// SetAngle moves the shaft to degrees. It fails with a *HardwareError
	// when the angle is out of range or the hardware reports a fault.
	SetAngle(degrees int32) error
	// Close releases the underlying device.
	Close() error
}

// FaultReporter is implemented by drivers whose hardware latches fault
// codes that can be read back after a failure.
type FaultReporter interface {
	ControllerErrors() (uint16, error)
}

// ControllerFault is a non-zero code read from the controller's error
// register.
type ControllerFault struct {
	Code uint16
}

func (f ControllerFault) Error() string {
	return fmt.Sprintf("controller error 0x%04x", f.Code)
}

// HardwareError reports a failed positioning request.
type HardwareError struct {
	Angle int32
	Err   error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("servo: set angle %d: %v", e.Angle, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

func checkRange(degrees int32) error {
	if degrees < MinAngle || degrees > MaxAngle {
		return &HardwareError{Angle: degrees, Err: ErrOutOfRange}
	}
	return nil
}

// PulseRange maps the mechanical range onto control pulse widths.
type PulseRange struct {
	Min time.Duration
	Max time.Duration
}

// DefaultPulseRange returns the SG90 pulse range.
func DefaultPulseRange() PulseRange {
	return PulseRange{Min: DefaultMinPulse, Max: DefaultMaxPulse}
}

func (p PulseRange) normalise() PulseRange {
	if p.Min <= 0 {
		p.Min = DefaultMinPulse
	}
	if p.Max <= p.Min {
		p.Max = DefaultMaxPulse
	}
	return p
}

// Pulse returns the pulse width for an in-range angle. MinAngle maps to
// Min and MaxAngle to Max, linearly in between.
func (p PulseRange) Pulse(degrees int32) time.Duration {
	p = p.normalise()
	span := int64(p.Max - p.Min)
	offset := int64(degrees - MinAngle)
	return p.Min + time.Duration(span*offset/int64(MaxAngle-MinAngle))
}
