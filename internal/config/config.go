// Package config loads node and console settings from JSON or YAML files.
// Every field is optional; the Get* accessors supply the default for any
// field the file leaves out, so partial files are safe.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/sonar/internal/servo"
)

// maxFileSize caps config files at 1MB.
const maxFileSize = 1 * 1024 * 1024

// ServoConfig selects and configures the servo backend on the node.
type ServoConfig struct {
	Backend    *string `json:"backend,omitempty" yaml:"backend,omitempty"` // serial, pwm, sim or disabled
	SerialPath *string `json:"serial_path,omitempty" yaml:"serial_path,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	Channel    *int    `json:"channel,omitempty" yaml:"channel,omitempty"`
	PWMRoot    *string `json:"pwm_root,omitempty" yaml:"pwm_root,omitempty"`
	PWMChip    *int    `json:"pwm_chip,omitempty" yaml:"pwm_chip,omitempty"`
	PWMChannel *int    `json:"pwm_channel,omitempty" yaml:"pwm_channel,omitempty"`
	MinPulse   *string `json:"min_pulse,omitempty" yaml:"min_pulse,omitempty"` // duration string like "500us"
	MaxPulse   *string `json:"max_pulse,omitempty" yaml:"max_pulse,omitempty"`
}

// NodeConfig configures sonar-node.
type NodeConfig struct {
	Listen          *string      `json:"listen,omitempty" yaml:"listen,omitempty"`
	AcceptBackoff   *string      `json:"accept_backoff,omitempty" yaml:"accept_backoff,omitempty"`
	TickPeriod      *string      `json:"tick_period,omitempty" yaml:"tick_period,omitempty"`
	TelemetrySource *int         `json:"telemetry_source_port,omitempty" yaml:"telemetry_source_port,omitempty"`
	TelemetryPort   *int         `json:"telemetry_port,omitempty" yaml:"telemetry_port,omitempty"`
	DebugListen     *string      `json:"debug_listen,omitempty" yaml:"debug_listen,omitempty"`
	Servo           *ServoConfig `json:"servo,omitempty" yaml:"servo,omitempty"`
}

// ConsoleConfig configures sonar-console.
type ConsoleConfig struct {
	Address        *string `json:"address,omitempty" yaml:"address,omitempty"`
	TelemetryPort  *int    `json:"telemetry_port,omitempty" yaml:"telemetry_port,omitempty"`
	ConnectTimeout *string `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	WriteTimeout   *string `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	FrameInterval  *string `json:"frame_interval,omitempty" yaml:"frame_interval,omitempty"`
	LogFile        *string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

// LoadNodeConfig reads a NodeConfig from a .json, .yaml or .yml file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cfg := &NodeConfig{}
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadConsoleConfig reads a ConsoleConfig from a .json, .yaml or .yml file.
func LoadConsoleConfig(path string) (*ConsoleConfig, error) {
	cfg := &ConsoleConfig{}
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func load(path string, into any) error {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(into); err != nil {
			return fmt.Errorf("failed to parse config JSON: %w", err)
		}
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(into); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

func checkDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

func checkPort(name string, v *int) error {
	if v != nil && (*v < 1 || *v > 65535) {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, *v)
	}
	return nil
}

func checkHostPort(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(*v); err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	return nil
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate checks that the configuration values are valid.
func (c *NodeConfig) Validate() error {
	if err := checkHostPort("listen", c.Listen); err != nil {
		return err
	}
	if err := checkHostPort("debug_listen", c.DebugListen); err != nil {
		return err
	}
	if err := checkDuration("accept_backoff", c.AcceptBackoff); err != nil {
		return err
	}
	if err := checkDuration("tick_period", c.TickPeriod); err != nil {
		return err
	}
	if err := checkPort("telemetry_source_port", c.TelemetrySource); err != nil {
		return err
	}
	if err := checkPort("telemetry_port", c.TelemetryPort); err != nil {
		return err
	}
	if c.Servo != nil {
		if err := c.Servo.Validate(); err != nil {
			return fmt.Errorf("servo: %w", err)
		}
	}
	return nil
}

// GetListen returns the command listen address or the default ":1111".
func (c *NodeConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":1111"
	}
	return *c.Listen
}

// GetAcceptBackoff returns the pause between failed binds.
func (c *NodeConfig) GetAcceptBackoff() time.Duration {
	return duration(c.AcceptBackoff, time.Second)
}

// GetTickPeriod returns the sweep tick period.
func (c *NodeConfig) GetTickPeriod() time.Duration {
	return duration(c.TickPeriod, 10*time.Millisecond)
}

// GetTelemetrySourcePort returns the UDP port telemetry is sent from.
func (c *NodeConfig) GetTelemetrySourcePort() int {
	if c.TelemetrySource == nil {
		return 2222
	}
	return *c.TelemetrySource
}

// GetTelemetryPort returns the UDP port telemetry is sent to on the peer.
func (c *NodeConfig) GetTelemetryPort() int {
	if c.TelemetryPort == nil {
		return 1122
	}
	return *c.TelemetryPort
}

// GetDebugListen returns the debug HTTP address, empty when disabled.
func (c *NodeConfig) GetDebugListen() string {
	if c.DebugListen == nil {
		return ""
	}
	return *c.DebugListen
}

// GetServo returns the servo section, never nil.
func (c *NodeConfig) GetServo() *ServoConfig {
	if c.Servo == nil {
		return &ServoConfig{}
	}
	return c.Servo
}

// Validate checks the servo section.
func (s *ServoConfig) Validate() error {
	if s.Backend != nil {
		switch *s.Backend {
		case "", "serial", "pwm", "sim", "disabled":
		default:
			return fmt.Errorf("unknown backend %q", *s.Backend)
		}
	}
	if s.BaudRate != nil && *s.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *s.BaudRate)
	}
	if s.Channel != nil && (*s.Channel < 0 || *s.Channel > 23) {
		return fmt.Errorf("channel must be between 0 and 23, got %d", *s.Channel)
	}
	if err := checkDuration("min_pulse", s.MinPulse); err != nil {
		return err
	}
	if err := checkDuration("max_pulse", s.MaxPulse); err != nil {
		return err
	}
	if s.GetMinPulse() >= s.GetMaxPulse() {
		return fmt.Errorf("min_pulse %v must be below max_pulse %v", s.GetMinPulse(), s.GetMaxPulse())
	}
	switch s.GetBackend() {
	case servo.BackendSerial:
		if s.GetMaxPulse() > servo.MaxSerialPulse {
			return fmt.Errorf("max_pulse %v exceeds the serial controller limit %v", s.GetMaxPulse(), servo.MaxSerialPulse)
		}
	case servo.BackendPWM:
		if s.GetMaxPulse() >= servo.PWMPeriod {
			return fmt.Errorf("max_pulse %v must be below the pwm period %v", s.GetMaxPulse(), servo.PWMPeriod)
		}
	}
	return nil
}

// GetBackend returns the servo backend name, "sim" by default.
func (s *ServoConfig) GetBackend() string {
	if s.Backend == nil || *s.Backend == "" {
		return "sim"
	}
	return *s.Backend
}

// GetSerialPath returns the servo controller's serial device.
func (s *ServoConfig) GetSerialPath() string {
	if s.SerialPath == nil || *s.SerialPath == "" {
		return "/dev/ttyACM0"
	}
	return *s.SerialPath
}

// GetBaudRate returns the serial baud rate.
func (s *ServoConfig) GetBaudRate() int {
	if s.BaudRate == nil {
		return 9600
	}
	return *s.BaudRate
}

// GetChannel returns the servo controller channel.
func (s *ServoConfig) GetChannel() int {
	if s.Channel == nil {
		return 0
	}
	return *s.Channel
}

// GetPWMRoot returns the sysfs PWM class directory.
func (s *ServoConfig) GetPWMRoot() string {
	if s.PWMRoot == nil || *s.PWMRoot == "" {
		return "/sys/class/pwm"
	}
	return *s.PWMRoot
}

// GetPWMChip returns the pwmchip index.
func (s *ServoConfig) GetPWMChip() int {
	if s.PWMChip == nil {
		return 0
	}
	return *s.PWMChip
}

// GetPWMChannel returns the PWM channel on the chip.
func (s *ServoConfig) GetPWMChannel() int {
	if s.PWMChannel == nil {
		return 0
	}
	return *s.PWMChannel
}

// GetMinPulse returns the pulse width at -90 degrees.
func (s *ServoConfig) GetMinPulse() time.Duration {
	return duration(s.MinPulse, 500*time.Microsecond)
}

// GetMaxPulse returns the pulse width at +90 degrees.
func (s *ServoConfig) GetMaxPulse() time.Duration {
	return duration(s.MaxPulse, 2500*time.Microsecond)
}

// Validate checks that the configuration values are valid.
func (c *ConsoleConfig) Validate() error {
	if err := checkHostPort("address", c.Address); err != nil {
		return err
	}
	if err := checkPort("telemetry_port", c.TelemetryPort); err != nil {
		return err
	}
	if err := checkDuration("connect_timeout", c.ConnectTimeout); err != nil {
		return err
	}
	if err := checkDuration("write_timeout", c.WriteTimeout); err != nil {
		return err
	}
	return checkDuration("frame_interval", c.FrameInterval)
}

// GetAddress returns the node address to pre-fill, empty by default.
func (c *ConsoleConfig) GetAddress() string {
	if c.Address == nil {
		return ""
	}
	return *c.Address
}

// GetTelemetryPort returns the UDP port to receive telemetry on.
func (c *ConsoleConfig) GetTelemetryPort() int {
	if c.TelemetryPort == nil {
		return 1122
	}
	return *c.TelemetryPort
}

// GetConnectTimeout returns the dial timeout.
func (c *ConsoleConfig) GetConnectTimeout() time.Duration {
	return duration(c.ConnectTimeout, 5*time.Second)
}

// GetWriteTimeout returns the per-command write deadline.
func (c *ConsoleConfig) GetWriteTimeout() time.Duration {
	return duration(c.WriteTimeout, 2*time.Second)
}

// GetFrameInterval returns the display refresh interval.
func (c *ConsoleConfig) GetFrameInterval() time.Duration {
	return duration(c.FrameInterval, 16*time.Millisecond)
}

// GetLogFile returns where diagnostics go while the terminal UI owns the
// screen. Empty discards them.
func (c *ConsoleConfig) GetLogFile() string {
	if c.LogFile == nil {
		return ""
	}
	return *c.LogFile
}
