package monitoring

import (
	"fmt"
	"testing"
	"time"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestComponent_PrefixesAndResolvesLate(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	logf := Component("sweep")

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	logf("angle=%d", 45)

	if got != "[sweep] angle=45" {
		t.Errorf("got %q, want %q", got, "[sweep] angle=45")
	}
}

func TestThrottle_SuppressesWithinInterval(t *testing.T) {
	var lines []string
	now := time.Unix(1000, 0)
	th := NewThrottle(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	}, time.Second, func() time.Time { return now })

	th.Logf("servo failed: %s", "a")
	th.Logf("servo failed: %s", "b")
	th.Logf("servo failed: %s", "c")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line within interval, got %d: %v", len(lines), lines)
	}

	now = now.Add(time.Second)
	th.Logf("servo failed: %s", "d")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines after interval, got %d", len(lines))
	}
	if want := "servo failed: d (2 similar suppressed)"; lines[1] != want {
		t.Errorf("got %q, want %q", lines[1], want)
	}
}

func TestThrottle_NilLoggerUsesPackageLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })

	NewThrottle(nil, time.Minute, nil).Logf("x")
	if !called {
		t.Error("expected package logger to be used")
	}
}
