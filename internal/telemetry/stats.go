package telemetry

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultStatsWindow is the number of arrivals Stats keeps.
const DefaultStatsWindow = 128

// Summary describes recent telemetry arrivals.
type Summary struct {
	Frames       uint64        // total frames recorded
	LastAngle    int32         // most recent angle
	Rate         float64       // frames per second over the window
	MeanInterval time.Duration // mean gap between arrivals
	Jitter       time.Duration // standard deviation of the gap
}

// Stats keeps a sliding window of arrival times. It is not safe for
// concurrent use; the console records and reads from its update loop.
type Stats struct {
	window    int
	arrivals  []time.Time
	frames    uint64
	lastAngle int32
}

// NewStats returns a Stats over the last window arrivals. A window smaller
// than two is raised to DefaultStatsWindow.
func NewStats(window int) *Stats {
	if window < 2 {
		window = DefaultStatsWindow
	}
	return &Stats{window: window, arrivals: make([]time.Time, 0, window)}
}

// Record notes a frame that arrived at t.
func (s *Stats) Record(at time.Time, angle int32) {
	if len(s.arrivals) == s.window {
		copy(s.arrivals, s.arrivals[1:])
		s.arrivals = s.arrivals[:s.window-1]
	}
	s.arrivals = append(s.arrivals, at)
	s.frames++
	s.lastAngle = angle
}

// Reset drops the window. Used when the link goes down so stale arrivals
// do not skew the next session.
func (s *Stats) Reset() {
	s.arrivals = s.arrivals[:0]
	s.lastAngle = 0
}

// Summary computes rate and interval statistics over the window.
func (s *Stats) Summary() Summary {
	sum := Summary{Frames: s.frames, LastAngle: s.lastAngle}
	if len(s.arrivals) < 2 {
		return sum
	}

	gaps := make([]float64, 0, len(s.arrivals)-1)
	for i := 1; i < len(s.arrivals); i++ {
		gaps = append(gaps, s.arrivals[i].Sub(s.arrivals[i-1]).Seconds())
	}

	mean, std := stat.MeanStdDev(gaps, nil)
	sum.MeanInterval = time.Duration(mean * float64(time.Second))
	if len(gaps) > 1 {
		sum.Jitter = time.Duration(std * float64(time.Second))
	}
	if mean > 0 {
		sum.Rate = 1 / mean
	}
	return sum
}
