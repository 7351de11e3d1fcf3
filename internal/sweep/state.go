// Package sweep runs the node's servo sweep. A single goroutine owns the
// sweep state: it applies queued operator commands, steps the angle on a
// fixed tick, drives the servo and streams the angle as telemetry.
package sweep

import (
	"fmt"

	"github.com/banshee-data/sonar/internal/protocol"
)

// Direction is the way the angle is currently moving.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "Ascending"
	case Descending:
		return "Descending"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// State is the sweep position and mode.
type State struct {
	FieldOfView protocol.FieldOfView    `json:"field_of_view"`
	Status      protocol.OperationStatus `json:"status"`
	Angle       int32                    `json:"angle"`
	Direction   Direction                `json:"direction"`
}

// DefaultState is the state at start-up and after a Reset.
func DefaultState() State {
	return State{
		FieldOfView: protocol.FieldOfViewWide,
		Status:      protocol.StatusStop,
		Angle:       0,
		Direction:   Ascending,
	}
}

// NextAngle computes one sweep step. An angle outside the field of view is
// snapped to the nearest bound first, so a narrowed range is corrected on
// the next tick rather than immediately. Inside the range the angle moves
// one degree and the direction flips on landing on a bound.
//
// An angle already sitting on a bound while moving outward reverses
// instead of stepping out of range.
func NextAngle(s State) (int32, Direction) {
	lower, upper := s.FieldOfView.Bounds()

	switch {
	case s.Angle < lower:
		return lower, Ascending
	case s.Angle > upper:
		return upper, Descending
	}

	dir := s.Direction
	if dir == Ascending && s.Angle == upper {
		dir = Descending
	} else if dir == Descending && s.Angle == lower {
		dir = Ascending
	}

	if dir == Ascending {
		next := s.Angle + 1
		if next == upper {
			return next, Descending
		}
		return next, Ascending
	}

	next := s.Angle - 1
	if next == lower {
		return next, Ascending
	}
	return next, Descending
}
