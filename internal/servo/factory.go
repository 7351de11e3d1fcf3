package servo

import (
	"fmt"
	"strings"
)

// Backend names accepted by New.
const (
	BackendSerial    = "serial"
	BackendPWM       = "pwm"
	BackendSimulated = "sim"
	BackendDisabled  = "disabled"
)

// Config selects and parameterises a servo backend.
type Config struct {
	Backend string

	// Serial backend.
	SerialPath string
	Port       PortOptions
	Channel    uint8

	// PWM backend.
	PWMRoot    string
	PWMChip    int
	PWMChannel int

	Pulse PulseRange
}

// New opens the backend named by cfg.Backend.
func New(cfg Config) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendSerial:
		if cfg.SerialPath == "" {
			return nil, fmt.Errorf("servo backend %q requires a serial path", BackendSerial)
		}
		d, err := NewRealSerialDriver(cfg.SerialPath, cfg.Port, cfg.Channel, cfg.Pulse)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendPWM:
		d, err := NewPWMDriver(cfg.PWMRoot, cfg.PWMChip, cfg.PWMChannel, cfg.Pulse)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendSimulated, "":
		return NewSimulatedDriver(), nil
	case BackendDisabled:
		return DisabledDriver{}, nil
	default:
		return nil, fmt.Errorf("unknown servo backend %q", cfg.Backend)
	}
}
