package console

import (
	"net/netip"
	"time"

	"github.com/banshee-data/sonar/internal/protocol"
	"github.com/banshee-data/sonar/internal/telemetry"
	"github.com/banshee-data/sonar/internal/timeutil"
)

// ReplaySource plays back captured telemetry at the pace it was recorded,
// scaled by Speed. It satisfies TelemetrySource.
type ReplaySource struct {
	frames []telemetry.CapturedFrame
	next   int
	speed  float64
	clock  timeutil.Clock
	start  time.Time
}

// ReplayOptions configures a ReplaySource.
type ReplayOptions struct {
	// Speed multiplies the recorded pace. Zero or less plays at 1x.
	Speed float64
	// Clock paces playback. Defaults to the wall clock.
	Clock timeutil.Clock
}

// NewReplaySource creates a source over frames in capture order.
func NewReplaySource(frames []telemetry.CapturedFrame, opts ReplayOptions) *ReplaySource {
	r := &ReplaySource{frames: frames, speed: opts.Speed, clock: opts.Clock}
	if r.speed <= 0 {
		r.speed = 1
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	return r
}

// Poll returns the next frame once it is due, waiting at most timeout.
func (r *ReplaySource) Poll(timeout time.Duration) (protocol.TelemetryFrame, netip.AddrPort, bool, error) {
	if r.Done() {
		return protocol.TelemetryFrame{}, netip.AddrPort{}, false, nil
	}
	if r.start.IsZero() {
		r.start = r.clock.Now()
	}

	wait := r.due(r.next) - r.clock.Since(r.start)
	if wait > 0 {
		if wait > timeout {
			r.clock.Sleep(timeout)
			return protocol.TelemetryFrame{}, netip.AddrPort{}, false, nil
		}
		r.clock.Sleep(wait)
	}

	f := r.frames[r.next]
	r.next++
	return f.Frame, netip.AddrPort{}, true, nil
}

// due returns the offset of frame i from the first frame, scaled by speed.
func (r *ReplaySource) due(i int) time.Duration {
	offset := r.frames[i].Timestamp.Sub(r.frames[0].Timestamp)
	if offset < 0 {
		return 0
	}
	return time.Duration(float64(offset) / r.speed)
}

// Done reports whether every frame has been played.
func (r *ReplaySource) Done() bool { return r.next >= len(r.frames) }

// Remaining returns the number of frames not yet played.
func (r *ReplaySource) Remaining() int { return len(r.frames) - r.next }
