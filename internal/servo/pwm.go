package servo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// DefaultPWMRoot is where the kernel exposes PWM chips.
const DefaultPWMRoot = "/sys/class/pwm"

// PWMPeriod is the 50 Hz frame hobby servos expect.
const PWMPeriod = 20 * time.Millisecond

// exportSettle bounds how long we wait for udev to create the channel
// directory after an export.
const exportSettle = 500 * time.Millisecond

// PWMDriver drives a servo through the Linux sysfs PWM interface:
//
//	<root>/pwmchip<chip>/pwm<channel>/{period,duty_cycle,enable}
type PWMDriver struct {
	mu      sync.Mutex
	dir     string
	pulses  PulseRange
	enabled bool
	closed  bool
}

// NewPWMDriver exports the channel if needed and programs the 50 Hz period.
// root defaults to DefaultPWMRoot when empty.
func NewPWMDriver(root string, chip, channel int, pulses PulseRange) (*PWMDriver, error) {
	if root == "" {
		root = DefaultPWMRoot
	}
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := writeSysfs(filepath.Join(chipDir, "export"), int64(channel)); err != nil {
			return nil, fmt.Errorf("export pwm channel %d: %w", channel, err)
		}
		if err := waitForDir(dir, exportSettle); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	if err := writeSysfs(filepath.Join(dir, "period"), PWMPeriod.Nanoseconds()); err != nil {
		return nil, fmt.Errorf("set pwm period: %w", err)
	}

	return &PWMDriver{dir: dir, pulses: pulses.normalise()}, nil
}

func waitForDir(dir string, limit time.Duration) error {
	deadline := time.Now().Add(limit)
	for {
		if _, err := os.Stat(dir); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pwm channel %s did not appear after export", dir)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func writeSysfs(path string, value int64) error {
	return os.WriteFile(path, []byte(strconv.FormatInt(value, 10)), 0o644)
}

// SetAngle implements Driver. The channel is enabled on first use so the
// servo does not twitch to an arbitrary duty cycle at start-up.
func (d *PWMDriver) SetAngle(degrees int32) error {
	if err := checkRange(degrees); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &HardwareError{Angle: degrees, Err: ErrClosed}
	}

	duty := d.pulses.Pulse(degrees)
	if duty >= PWMPeriod {
		return &HardwareError{Angle: degrees, Err: fmt.Errorf("%w: %v not below period %v", ErrPulseOutOfRange, duty, PWMPeriod)}
	}
	if err := writeSysfs(filepath.Join(d.dir, "duty_cycle"), duty.Nanoseconds()); err != nil {
		return &HardwareError{Angle: degrees, Err: err}
	}
	if !d.enabled {
		if err := writeSysfs(filepath.Join(d.dir, "enable"), 1); err != nil {
			return &HardwareError{Angle: degrees, Err: err}
		}
		d.enabled = true
	}
	return nil
}

// Close disables the channel. The channel stays exported.
func (d *PWMDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.enabled {
		return nil
	}
	if err := writeSysfs(filepath.Join(d.dir, "enable"), 0); err != nil {
		return fmt.Errorf("disable pwm: %w", err)
	}
	return nil
}
