package sweep

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/sonar/internal/protocol"
)

type step struct {
	Angle     int32
	Direction Direction
}

// run applies NextAngle n times starting from s and returns each result.
func run(s State, n int) []step {
	out := make([]step, 0, n)
	for i := 0; i < n; i++ {
		s.Angle, s.Direction = NextAngle(s)
		out = append(out, step{s.Angle, s.Direction})
	}
	return out
}

func TestNextAngle_Sequences(t *testing.T) {
	narrow, wide := protocol.FieldOfViewNarrow, protocol.FieldOfViewWide

	tests := []struct {
		name  string
		start State
		want  []step
	}{
		{
			name:  "simple ascending step",
			start: State{FieldOfView: wide, Angle: 0, Direction: Ascending},
			want:  []step{{1, Ascending}},
		},
		{
			name:  "simple descending step",
			start: State{FieldOfView: narrow, Angle: -12, Direction: Descending},
			want:  []step{{-13, Descending}},
		},
		{
			name:  "narrow shrink correction upper side",
			start: State{FieldOfView: narrow, Angle: 60, Direction: Ascending},
			want:  []step{{45, Descending}, {44, Descending}},
		},
		{
			name:  "narrow shrink correction lower side",
			start: State{FieldOfView: narrow, Angle: -50, Direction: Ascending},
			want:  []step{{-45, Ascending}, {-44, Ascending}},
		},
		{
			name:  "wide upper bounce",
			start: State{FieldOfView: wide, Angle: 88, Direction: Ascending},
			want:  []step{{89, Ascending}, {90, Descending}, {89, Descending}},
		},
		{
			name:  "narrow lower bounce",
			start: State{FieldOfView: narrow, Angle: -44, Direction: Descending},
			want:  []step{{-45, Ascending}, {-44, Ascending}, {-43, Ascending}},
		},
		{
			name:  "on upper bound moving outward reverses",
			start: State{FieldOfView: narrow, Angle: 45, Direction: Ascending},
			want:  []step{{44, Descending}, {43, Descending}},
		},
		{
			name:  "on lower bound moving outward reverses",
			start: State{FieldOfView: wide, Angle: -90, Direction: Descending},
			want:  []step{{-89, Ascending}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := run(tc.start, len(tc.want))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("NextAngle sequence mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNextAngle_StaysInRange(t *testing.T) {
	for _, fov := range []protocol.FieldOfView{protocol.FieldOfViewNarrow, protocol.FieldOfViewWide} {
		lower, upper := fov.Bounds()
		for angle := lower; angle <= upper; angle++ {
			for _, dir := range []Direction{Ascending, Descending} {
				got, _ := NextAngle(State{FieldOfView: fov, Angle: angle, Direction: dir})
				if got < lower || got > upper {
					t.Fatalf("%v angle %d %v stepped to %d, outside [%d, %d]", fov, angle, dir, got, lower, upper)
				}
				if d := got - angle; d != 1 && d != -1 {
					t.Fatalf("%v angle %d %v moved by %d", fov, angle, dir, d)
				}
			}
		}
	}
}

func TestNextAngle_ExactReversal(t *testing.T) {
	for _, fov := range []protocol.FieldOfView{protocol.FieldOfViewNarrow, protocol.FieldOfViewWide} {
		lower, upper := fov.Bounds()

		// Leaving the lower bound always ascends.
		for _, dir := range []Direction{Ascending, Descending} {
			if angle, d := NextAngle(State{FieldOfView: fov, Angle: lower, Direction: dir}); angle != lower+1 || d != Ascending {
				t.Errorf("%v from lower bound %v: got (%d, %v)", fov, dir, angle, d)
			}
			if angle, d := NextAngle(State{FieldOfView: fov, Angle: upper, Direction: dir}); angle != upper-1 || d != Descending {
				t.Errorf("%v from upper bound %v: got (%d, %v)", fov, dir, angle, d)
			}
		}
	}
}

func TestNextAngle_FullCycle(t *testing.T) {
	// A wide sweep from 0 returns to 0 ascending after 360 steps.
	s := DefaultState()
	for i := 0; i < 360; i++ {
		s.Angle, s.Direction = NextAngle(s)
	}
	if s.Angle != 0 || s.Direction != Ascending {
		t.Errorf("after full cycle got (%d, %v), want (0, Ascending)", s.Angle, s.Direction)
	}
}

func TestDirection_String(t *testing.T) {
	if Ascending.String() != "Ascending" || Descending.String() != "Descending" {
		t.Error("unexpected direction names")
	}
	if Direction(7).String() != "Direction(7)" {
		t.Errorf("got %q", Direction(7).String())
	}
}
