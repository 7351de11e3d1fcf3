// Package connection implements the operator's command link to the node as
// a state machine. Step is the only transition function; the socket lives
// inside the Connected state and moves with it, so whoever holds the state
// value is the only goroutine that can touch the socket.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/protocol"
)

// DefaultDialTimeout bounds a Connect so an unreachable node cannot stall
// the worker indefinitely.
const DefaultDialTimeout = 5 * time.Second

// ErrNotConnected is carried by SendFailed when there is no link.
var ErrNotConnected = errors.New("not connected")

// State is Disconnected or *Connected.
type State interface {
	isState()
	String() string
}

// Disconnected is the initial state.
type Disconnected struct{}

// Connected holds the live socket and the address it was opened to.
type Connected struct {
	conn    net.Conn
	Address string
}

func (Disconnected) isState() {}
func (*Connected) isState()   {}

func (Disconnected) String() string  { return "Disconnected" }
func (c *Connected) String() string { return "Connected(" + c.Address + ")" }

// Intent is an operator request: Connect, Disconnect or Send.
type Intent interface {
	isIntent()
}

type Connect struct{ Address string }
type Disconnect struct{}
type Send struct{ Command protocol.Command }

func (Connect) isIntent()    {}
func (Disconnect) isIntent() {}
func (Send) isIntent()       {}

// Event reports the outcome of a transition for display.
type Event interface {
	isEvent()
	String() string
}

// Outcome events. Err fields are informational only.
type (
	ConnectedEvent    struct{ Address string }
	DisconnectedEvent struct{}
	ConnectFailed     struct{ Err error }
	CommandSent       struct{ Command protocol.Command }
	SendFailed        struct{ Err error }
)

func (ConnectedEvent) isEvent()    {}
func (DisconnectedEvent) isEvent() {}
func (ConnectFailed) isEvent()     {}
func (CommandSent) isEvent()       {}
func (SendFailed) isEvent()        {}

func (e ConnectedEvent) String() string  { return "Connected(" + e.Address + ")" }
func (DisconnectedEvent) String() string { return "Disconnected" }
func (e ConnectFailed) String() string   { return fmt.Sprintf("ConnectFailed(%v)", e.Err) }
func (e CommandSent) String() string     { return fmt.Sprintf("CommandSent(%v)", e.Command) }
func (e SendFailed) String() string      { return fmt.Sprintf("SendFailed(%v)", e.Err) }

// Dialer opens the command connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config configures a Machine.
type Config struct {
	Dialer Dialer
	// DialTimeout defaults to DefaultDialTimeout.
	DialTimeout time.Duration
	// WriteTimeout, when positive, bounds each command write.
	WriteTimeout time.Duration
	Logf         monitoring.LogFunc
}

// Machine performs the I/O behind each transition. It holds no connection
// state of its own.
type Machine struct {
	dialer       Dialer
	dialTimeout  time.Duration
	writeTimeout time.Duration
	logf         monitoring.LogFunc
}

// NewMachine creates a Machine.
func NewMachine(cfg Config) *Machine {
	m := &Machine{
		dialer:       cfg.Dialer,
		dialTimeout:  cfg.DialTimeout,
		writeTimeout: cfg.WriteTimeout,
		logf:         cfg.Logf,
	}
	if m.dialer == nil {
		m.dialer = &net.Dialer{}
	}
	if m.dialTimeout <= 0 {
		m.dialTimeout = DefaultDialTimeout
	}
	if m.logf == nil {
		m.logf = monitoring.Component("connection")
	}
	return m
}

// Step applies one intent to state and returns the next state and the
// event to display. It never panics and never returns an error; failures
// are reported as events.
func (m *Machine) Step(ctx context.Context, state State, intent Intent) (State, Event) {
	switch in := intent.(type) {
	case Connect:
		return m.connect(ctx, state, in.Address)
	case Disconnect:
		return m.disconnect(state)
	case Send:
		return m.send(state, in.Command)
	default:
		m.logf("ignoring unknown intent %T", intent)
		return state, DisconnectedEvent{}
	}
}

func (m *Machine) connect(ctx context.Context, state State, address string) (State, Event) {
	if cur, ok := state.(*Connected); ok {
		// The existing link is kept, but the event reports Disconnected.
		// The display shows the link as down until the operator reconnects.
		m.logf("connect to %s ignored: already connected to %s", address, cur.Address)
		return state, DisconnectedEvent{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()
	conn, err := m.dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		m.logf("connect to %s failed: %v", address, err)
		return Disconnected{}, ConnectFailed{Err: err}
	}
	m.logf("connected to %s", address)
	return &Connected{conn: conn, Address: address}, ConnectedEvent{Address: address}
}

func (m *Machine) disconnect(state State) (State, Event) {
	cur, ok := state.(*Connected)
	if !ok {
		return Disconnected{}, DisconnectedEvent{}
	}
	if err := closeBoth(cur.conn); err != nil {
		m.logf("closing %s: %v", cur.Address, err)
	}
	m.logf("disconnected from %s", cur.Address)
	return Disconnected{}, DisconnectedEvent{}
}

func (m *Machine) send(state State, cmd protocol.Command) (State, Event) {
	cur, ok := state.(*Connected)
	if !ok {
		return state, SendFailed{Err: ErrNotConnected}
	}

	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		m.logf("encode %v: %v", cmd, err)
		return state, SendFailed{Err: err}
	}

	if m.writeTimeout > 0 {
		if err := cur.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout)); err != nil {
			return state, SendFailed{Err: err}
		}
	}
	if _, err := cur.conn.Write(frame); err != nil {
		m.logf("send %v to %s failed: %v", cmd, cur.Address, err)
		return state, SendFailed{Err: err}
	}
	return state, CommandSent{Command: cmd}
}

// Close releases the socket held by state, if any. It is used when the
// owning worker exits.
func Close(state State) error {
	if cur, ok := state.(*Connected); ok {
		return closeBoth(cur.conn)
	}
	return nil
}

type halfCloser interface {
	CloseWrite() error
	CloseRead() error
}

func closeBoth(conn net.Conn) error {
	if cw, ok := conn.(halfCloser); ok {
		_ = cw.CloseRead()
		_ = cw.CloseWrite()
	}
	return conn.Close()
}
