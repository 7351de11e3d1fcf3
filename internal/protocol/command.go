// Package protocol defines the frames exchanged between the operator
// console and the sensor node: fixed-width command frames carried over
// the TCP command channel and fixed-width telemetry frames carried over
// UDP.
package protocol

import (
	"fmt"
	"net/netip"
)

// FieldOfView selects the angular range swept by the node.
type FieldOfView uint8

const (
	FieldOfViewNarrow FieldOfView = iota
	FieldOfViewWide
)

// Bounds returns the inclusive sweep range in degrees. All range checks on
// the node derive from this mapping.
func (f FieldOfView) Bounds() (lower, upper int32) {
	switch f {
	case FieldOfViewNarrow:
		return -45, 45
	default:
		return -90, 90
	}
}

func (f FieldOfView) String() string {
	switch f {
	case FieldOfViewNarrow:
		return "Narrow"
	case FieldOfViewWide:
		return "Wide"
	default:
		return fmt.Sprintf("FieldOfView(%d)", uint8(f))
	}
}

// MarshalText renders the name in JSON debug output.
func (f FieldOfView) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// Valid reports whether f is one of the defined fields of view.
func (f FieldOfView) Valid() bool {
	return f == FieldOfViewNarrow || f == FieldOfViewWide
}

// OperationStatus controls whether the node is sweeping.
type OperationStatus uint8

const (
	StatusStart OperationStatus = iota
	StatusStop
)

func (s OperationStatus) String() string {
	switch s {
	case StatusStart:
		return "Start"
	case StatusStop:
		return "Stop"
	default:
		return fmt.Sprintf("OperationStatus(%d)", uint8(s))
	}
}

func (s OperationStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Valid reports whether s is one of the defined statuses.
func (s OperationStatus) Valid() bool {
	return s == StatusStart || s == StatusStop
}

// Tag identifies a command variant on the wire. It is always the first
// byte of a command frame.
type Tag uint8

const (
	TagSetFieldOfView Tag = 0x01
	TagSetOperation   Tag = 0x02
	TagAnnouncePeer   Tag = 0x03
	TagReset          Tag = 0x04
)

// Command is one operator instruction. The concrete types below are the
// only implementations.
type Command interface {
	fmt.Stringer
	Tag() Tag
}

// SetFieldOfView changes the sweep range. The angle is not moved until the
// next sweep tick.
type SetFieldOfView struct {
	FieldOfView FieldOfView
}

// SetOperation starts or stops the sweep.
type SetOperation struct {
	Status OperationStatus
}

// AnnouncePeer tells the node where to stream telemetry. Only the address
// is used; the node substitutes its fixed telemetry port.
type AnnouncePeer struct {
	Addr netip.AddrPort
}

// NewAnnouncePeer builds an AnnouncePeer in the form the codec produces:
// an IPv4-mapped IPv6 address is reduced to plain IPv4, so encoding and
// decoding the result gives back an equal value.
func NewAnnouncePeer(addr netip.AddrPort) AnnouncePeer {
	return AnnouncePeer{Addr: netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())}
}

// Reset returns the sweep state to its defaults.
type Reset struct{}

func (SetFieldOfView) Tag() Tag { return TagSetFieldOfView }
func (SetOperation) Tag() Tag   { return TagSetOperation }
func (AnnouncePeer) Tag() Tag   { return TagAnnouncePeer }
func (Reset) Tag() Tag          { return TagReset }

func (c SetFieldOfView) String() string { return "SetFieldOfView(" + c.FieldOfView.String() + ")" }
func (c SetOperation) String() string   { return "SetOperation(" + c.Status.String() + ")" }
func (c AnnouncePeer) String() string   { return "AnnouncePeer(" + c.Addr.String() + ")" }
func (Reset) String() string            { return "Reset" }
