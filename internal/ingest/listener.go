// Package ingest accepts the operator's command connection on the node and
// forwards decoded commands to the sweep controller.
package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/protocol"
)

// Default listener settings.
const (
	DefaultAddress = ":1111"
	DefaultBackoff = time.Second
)

// Forwarder receives commands in arrival order. *queue.Mailbox satisfies it.
type Forwarder interface {
	Send(cmd protocol.Command)
}

// Config configures a Listener.
type Config struct {
	// Address is the TCP listen address; DefaultAddress when empty.
	Address string
	Forward Forwarder
	// Backoff is the delay before retrying a failed bind or accept.
	Backoff time.Duration
	Logf    monitoring.LogFunc
	// Listen opens the listener; net.ListenConfig.Listen when nil.
	Listen func(ctx context.Context, network, address string) (net.Listener, error)
}

// Listener serves one operator connection at a time. A new connection is
// accepted only after the previous one has ended.
type Listener struct {
	address string
	forward Forwarder
	backoff time.Duration
	logf    monitoring.LogFunc
	listen  func(ctx context.Context, network, address string) (net.Listener, error)

	bound chan net.Addr
}

// NewListener creates a Listener. It does not bind until Serve is called.
func NewListener(cfg Config) *Listener {
	l := &Listener{
		address: cfg.Address,
		forward: cfg.Forward,
		backoff: cfg.Backoff,
		logf:    cfg.Logf,
		listen:  cfg.Listen,
		bound:   make(chan net.Addr, 1),
	}
	if l.address == "" {
		l.address = DefaultAddress
	}
	if l.backoff <= 0 {
		l.backoff = DefaultBackoff
	}
	if l.logf == nil {
		l.logf = monitoring.Component("ingest")
	}
	if l.listen == nil {
		var lc net.ListenConfig
		l.listen = lc.Listen
	}
	return l
}

// Bound delivers the listening address once the first bind succeeds. Tests
// listening on port 0 use it to learn the port.
func (l *Listener) Bound() <-chan net.Addr { return l.bound }

// Serve binds and accepts connections until ctx is done. Bind and accept
// failures are reported as a forwarded Reset, logged, and retried after
// the backoff; Serve itself only returns when ctx ends.
func (l *Listener) Serve(ctx context.Context) error {
	for ctx.Err() == nil {
		ln, err := l.listen(ctx, "tcp", l.address)
		if err != nil {
			l.fail("bind %s: %v", l.address, err)
			if !l.sleep(ctx) {
				break
			}
			continue
		}
		l.logf("accepting operator connections on %s", ln.Addr())
		select {
		case l.bound <- ln.Addr():
		default:
		}

		l.acceptLoop(ctx, ln)
		ln.Close()
	}
	return nil
}

// acceptLoop returns when ctx is done or the listener fails in a way that
// needs a fresh bind.
func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener) {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.fail("accept: %v", err)
			if errors.Is(err, net.ErrClosed) {
				l.sleep(ctx)
				return
			}
			if !l.sleep(ctx) {
				return
			}
			continue
		}
		l.handle(ctx, conn)
	}
}

// handle serves one connection to completion. Exactly one Reset is
// forwarded when the connection ends for any reason other than shutdown.
func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	session := uuid.New()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	peer := remoteAddrPort(conn.RemoteAddr())
	l.logf("session %s: new connection from %s", session, peer)
	l.forward.Send(protocol.NewAnnouncePeer(peer))

	var frame [protocol.CommandFrameSize]byte
	var commands int
	for {
		if _, err := io.ReadFull(conn, frame[:]); err != nil {
			if ctx.Err() != nil {
				l.logf("session %s: closed for shutdown after %d commands", session, commands)
				return
			}
			l.logf("session %s: connection ended after %d commands: %v", session, commands, err)
			l.forward.Send(protocol.Reset{})
			return
		}

		cmd, err := protocol.DecodeCommand(frame[:])
		if err != nil {
			l.logf("session %s: dropping connection: %v", session, err)
			l.forward.Send(protocol.Reset{})
			return
		}
		commands++
		l.logf("session %s: %v", session, cmd)
		l.forward.Send(cmd)
	}
}

func (l *Listener) fail(format string, args ...any) {
	l.logf("listener error: "+format, args...)
	l.forward.Send(protocol.Reset{})
}

func (l *Listener) sleep(ctx context.Context) bool {
	t := time.NewTimer(l.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func remoteAddrPort(addr net.Addr) netip.AddrPort {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		ap := tcp.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.AddrPort{}
	}
	return ap
}
