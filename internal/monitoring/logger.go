package monitoring

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// LogFunc is the printf-style logger signature used throughout the module.
type LogFunc func(format string, v ...interface{})

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf LogFunc = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that prefixes each line with the component
// name. Logf is resolved on every call so a later SetLogger still applies.
func Component(name string) LogFunc {
	prefix := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// Throttle rate-limits a noisy log line, such as a failure that repeats on
// every sweep tick. At most one line is emitted per interval; the number of
// suppressed lines is reported with the next emitted one.
type Throttle struct {
	mu         sync.Mutex
	logf       LogFunc
	interval   time.Duration
	now        func() time.Time
	last       time.Time
	suppressed int
}

// NewThrottle wraps logf. A nil logf logs through Logf; a nil now reads
// the wall clock.
func NewThrottle(logf LogFunc, interval time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{logf: logf, interval: interval, now: now}
}

// Logf emits the line unless another one was emitted within the interval.
func (t *Throttle) Logf(format string, v ...interface{}) {
	t.mu.Lock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.suppressed++
		t.mu.Unlock()
		return
	}
	suppressed := t.suppressed
	t.suppressed = 0
	t.last = now
	t.mu.Unlock()

	logf := t.logf
	if logf == nil {
		logf = Logf
	}
	msg := fmt.Sprintf(format, v...)
	if suppressed > 0 {
		msg = fmt.Sprintf("%s (%d similar suppressed)", msg, suppressed)
	}
	logf("%s", msg)
}
