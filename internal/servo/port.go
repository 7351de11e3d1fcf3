package servo

import (
	"fmt"
	"io"
	"slices"
	"time"

	"go.bug.st/serial"
)

// SerialPorter is the part of a serial port the driver uses. Tests
// substitute MockSerialPort.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// Servo controllers speak 8N1 framing. Only the line rate is configurable.
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 100 * time.Millisecond
)

// controllerBaudRates are the rates the controller's auto-detect locks on to.
var controllerBaudRates = []int{
	1200, 2400, 4800, 9600, 14400, 19200, 38400, 57600, 115200, 200000,
}

// PortOptions are the line settings for the servo controller's serial port.
type PortOptions struct {
	BaudRate int `json:"baud_rate" yaml:"baud_rate"`
	// ReadTimeout bounds the wait for a reply to an error query.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`
}

func (o PortOptions) withDefaults() PortOptions {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	return o
}

// Mode validates the options and returns the go.bug.st/serial mode to open
// the port with.
func (o PortOptions) Mode() (*serial.Mode, error) {
	o = o.withDefaults()
	if !slices.Contains(controllerBaudRates, o.BaudRate) {
		return nil, fmt.Errorf("unsupported servo controller baud rate %d", o.BaudRate)
	}
	return &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}, nil
}
