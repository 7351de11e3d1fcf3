package servo

import "sync"

// SimulatedDriver records commanded angles in memory. It is used when the
// node runs on a development machine, and by tests.
type SimulatedDriver struct {
	mu      sync.Mutex
	angles  []int32
	current int32
	failErr error
	closed  bool
}

// NewSimulatedDriver returns a driver parked at 0°.
func NewSimulatedDriver() *SimulatedDriver {
	return &SimulatedDriver{}
}

// SetAngle implements Driver.
func (s *SimulatedDriver) SetAngle(degrees int32) error {
	if err := checkRange(degrees); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &HardwareError{Angle: degrees, Err: ErrClosed}
	}
	if s.failErr != nil {
		return &HardwareError{Angle: degrees, Err: s.failErr}
	}
	s.angles = append(s.angles, degrees)
	s.current = degrees
	return nil
}

// FailWith makes every subsequent SetAngle fail with err. A nil err clears
// the injected failure.
func (s *SimulatedDriver) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Current returns the last successfully commanded angle.
func (s *SimulatedDriver) Current() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Angles returns a copy of every successfully commanded angle, in order.
func (s *SimulatedDriver) Angles() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int32(nil), s.angles...)
}

// Close implements Driver.
func (s *SimulatedDriver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// DisabledDriver accepts every in-range angle and does nothing.
type DisabledDriver struct{}

func (DisabledDriver) SetAngle(degrees int32) error { return checkRange(degrees) }
func (DisabledDriver) Close() error                 { return nil }
