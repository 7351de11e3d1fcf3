package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sonar/internal/servo"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, ":1111", cfg.GetListen())
	assert.Equal(t, 10*time.Millisecond, cfg.GetTickPeriod())
	assert.Equal(t, 1122, cfg.GetTelemetryPort())
	assert.Equal(t, 2222, cfg.GetTelemetrySourcePort())
	assert.Empty(t, cfg.GetDebugListen())
	assert.Equal(t, "sim", cfg.GetServo().GetBackend())
}

func TestParseFlags_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \"0.0.0.0:1111\"\ntick_period: 20ms\nservo:\n  backend: pwm\n  pwm_chip: 1\n"), 0644))

	cfg, err := parseFlags([]string{"--config", path, "--tick", "5ms", "--servo-channel", "2"})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:1111", cfg.GetListen(), "file value kept when the flag is not given")
	assert.Equal(t, 5*time.Millisecond, cfg.GetTickPeriod())
	assert.Equal(t, "pwm", cfg.GetServo().GetBackend())
	assert.Equal(t, 1, cfg.GetServo().GetPWMChip())
	assert.Equal(t, 2, cfg.GetServo().GetPWMChannel())
}

func TestParseFlags_Errors(t *testing.T) {
	_, err := parseFlags([]string{"--servo", "stepper"})
	assert.ErrorContains(t, err, "unknown backend")

	_, err = parseFlags([]string{"extra"})
	assert.ErrorContains(t, err, "unexpected argument")

	_, err = parseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--version"})
	assert.ErrorIs(t, err, errVersion)
}

func TestServoConfig(t *testing.T) {
	cfg, err := parseFlags([]string{"--servo", "serial", "--serial-path", "/dev/ttyUSB0", "--baud", "115200", "--servo-channel", "5"})
	require.NoError(t, err)

	got := servoConfig(cfg.GetServo())
	assert.Equal(t, servo.Config{
		Backend:    "serial",
		SerialPath: "/dev/ttyUSB0",
		Port:       servo.PortOptions{BaudRate: 115200},
		Channel:    5,
		PWMRoot:    "/sys/class/pwm",
		PWMChannel: 5,
		Pulse:      servo.PulseRange{Min: 500 * time.Microsecond, Max: 2500 * time.Microsecond},
	}, got)
}
