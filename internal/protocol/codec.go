package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// Frame geometry. Every command occupies exactly CommandFrameSize bytes:
//
//	byte 0     tag
//	bytes 1..7 payload, zero padded
//
// The widest payload is AnnouncePeer: IPv4 address (4) + port (2). IPv6
// peers are never encoded; the node builds AnnouncePeer locally from the
// accepted connection, so the wire never needs to carry one.
//
// Telemetry frames are a single two's-complement int32 angle. All
// multi-byte fields use network byte order (big-endian).
const (
	CommandFrameSize   = 8
	TelemetryFrameSize = 4

	commandPayloadSize = CommandFrameSize - 1
)

var (
	// ErrAddressNotIPv4 is returned when encoding an AnnouncePeer whose
	// address does not fit the frame.
	ErrAddressNotIPv4 = errors.New("protocol: announce peer address is not IPv4")
	// ErrUnknownCommand is returned when encoding a Command implementation
	// that is not part of this package.
	ErrUnknownCommand = errors.New("protocol: unknown command type")
)

// DecodeError describes a malformed frame. Decoders return it instead of
// panicking so callers can treat the peer as misbehaving.
type DecodeError struct {
	Reason string
	Frame  []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %x: %s", e.Frame, e.Reason)
}

func decodeErr(frame []byte, format string, args ...any) *DecodeError {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	return &DecodeError{Reason: fmt.Sprintf(format, args...), Frame: cp}
}

// TelemetryFrame carries the node's current servo angle in degrees.
type TelemetryFrame struct {
	Angle int32
}

// EncodeCommand returns the fixed-width frame for cmd. Encoding is
// deterministic. An AnnouncePeer carrying an IPv4-mapped IPv6 address is
// encoded as its IPv4 form and decodes as such; build peers with
// NewAnnouncePeer for an exact round trip.
func EncodeCommand(cmd Command) ([]byte, error) {
	return AppendCommand(make([]byte, 0, CommandFrameSize), cmd)
}

// AppendCommand appends the frame for cmd to dst. On error dst is returned
// unchanged.
func AppendCommand(dst []byte, cmd Command) ([]byte, error) {
	var frame [CommandFrameSize]byte

	switch c := cmd.(type) {
	case SetFieldOfView:
		if !c.FieldOfView.Valid() {
			return dst, fmt.Errorf("protocol: encode %s: invalid field of view", c)
		}
		frame[0] = byte(TagSetFieldOfView)
		frame[1] = byte(c.FieldOfView)
	case SetOperation:
		if !c.Status.Valid() {
			return dst, fmt.Errorf("protocol: encode %s: invalid status", c)
		}
		frame[0] = byte(TagSetOperation)
		frame[1] = byte(c.Status)
	case AnnouncePeer:
		addr := c.Addr.Addr().Unmap()
		if !addr.Is4() {
			return dst, ErrAddressNotIPv4
		}
		frame[0] = byte(TagAnnouncePeer)
		ip := addr.As4()
		copy(frame[1:5], ip[:])
		binary.BigEndian.PutUint16(frame[5:7], c.Addr.Port())
	case Reset:
		frame[0] = byte(TagReset)
	default:
		return dst, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	return append(dst, frame[:]...), nil
}

// DecodeCommand parses one command frame. Any frame that is not exactly
// CommandFrameSize bytes, carries an unknown tag or enum value, or has
// non-zero padding is rejected with a *DecodeError.
func DecodeCommand(frame []byte) (Command, error) {
	if len(frame) != CommandFrameSize {
		return nil, decodeErr(frame, "command frame length %d, want %d", len(frame), CommandFrameSize)
	}

	tag := Tag(frame[0])
	payload := frame[1:]

	var (
		cmd  Command
		used int
	)
	switch tag {
	case TagSetFieldOfView:
		fov := FieldOfView(payload[0])
		if !fov.Valid() {
			return nil, decodeErr(frame, "unknown field of view %d", payload[0])
		}
		cmd, used = SetFieldOfView{FieldOfView: fov}, 1
	case TagSetOperation:
		status := OperationStatus(payload[0])
		if !status.Valid() {
			return nil, decodeErr(frame, "unknown operation status %d", payload[0])
		}
		cmd, used = SetOperation{Status: status}, 1
	case TagAnnouncePeer:
		ip := netip.AddrFrom4([4]byte(payload[0:4]))
		port := binary.BigEndian.Uint16(payload[4:6])
		cmd, used = AnnouncePeer{Addr: netip.AddrPortFrom(ip, port)}, 6
	case TagReset:
		cmd, used = Reset{}, 0
	default:
		return nil, decodeErr(frame, "unknown tag 0x%02x", frame[0])
	}

	for i := used; i < commandPayloadSize; i++ {
		if payload[i] != 0 {
			return nil, decodeErr(frame, "non-zero padding at byte %d", i+1)
		}
	}
	return cmd, nil
}

// EncodeTelemetry returns the 4-byte frame for f.
func EncodeTelemetry(f TelemetryFrame) []byte {
	return AppendTelemetry(make([]byte, 0, TelemetryFrameSize), f)
}

// AppendTelemetry appends the frame for f to dst.
func AppendTelemetry(dst []byte, f TelemetryFrame) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(f.Angle))
}

// DecodeTelemetry parses one telemetry frame.
func DecodeTelemetry(frame []byte) (TelemetryFrame, error) {
	if len(frame) != TelemetryFrameSize {
		return TelemetryFrame{}, decodeErr(frame, "telemetry frame length %d, want %d", len(frame), TelemetryFrameSize)
	}
	return TelemetryFrame{Angle: int32(binary.BigEndian.Uint32(frame))}, nil
}
