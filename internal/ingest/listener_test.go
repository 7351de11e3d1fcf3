package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sonar/internal/protocol"
	"github.com/banshee-data/sonar/internal/queue"
)

type harness struct {
	t     *testing.T
	inbox *queue.Mailbox[protocol.Command]
	addr  string
	done  chan error
}

func startListener(t *testing.T, cfg Config) *harness {
	t.Helper()
	inbox := queue.NewMailbox[protocol.Command]()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	cfg.Forward = inbox
	cfg.Logf = t.Logf
	if cfg.Backoff == 0 {
		cfg.Backoff = 10 * time.Millisecond
	}
	l := NewListener(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, inbox: inbox, done: make(chan error, 1)}
	go func() { h.done <- l.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})

	select {
	case a := <-l.Bound():
		h.addr = a.String()
	case <-time.After(2 * time.Second):
		t.Fatal("listener never bound")
	}
	return h
}

func (h *harness) next() protocol.Command {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cmd, err := h.inbox.Receive(ctx)
	require.NoError(h.t, err, "expected a forwarded command")
	return cmd
}

func (h *harness) quiet(d time.Duration) {
	h.t.Helper()
	time.Sleep(d)
	assert.Zero(h.t, h.inbox.Len(), "unexpected forwarded commands")
}

func (h *harness) dial() net.Conn {
	h.t.Helper()
	conn, err := net.Dial("tcp", h.addr)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func encode(t *testing.T, cmds ...protocol.Command) []byte {
	t.Helper()
	var out []byte
	for _, c := range cmds {
		var err error
		out, err = protocol.AppendCommand(out, c)
		require.NoError(t, err)
	}
	return out
}

func TestListener_ForwardsInOrder(t *testing.T) {
	h := startListener(t, Config{})
	conn := h.dial()

	announce, ok := h.next().(protocol.AnnouncePeer)
	require.True(t, ok, "first forwarded command must announce the peer")
	assert.Equal(t, remoteAddrPort(conn.LocalAddr()), announce.Addr)

	cmds := []protocol.Command{
		protocol.SetFieldOfView{FieldOfView: protocol.FieldOfViewNarrow},
		protocol.SetOperation{Status: protocol.StatusStart},
		protocol.SetOperation{Status: protocol.StatusStop},
	}
	_, err := conn.Write(encode(t, cmds...))
	require.NoError(t, err)

	for _, want := range cmds {
		assert.Equal(t, want, h.next())
	}
	h.quiet(20 * time.Millisecond)
}

func TestListener_MidStreamCloseResetsOnceAndReaccepts(t *testing.T) {
	h := startListener(t, Config{})

	conn := h.dial()
	require.IsType(t, protocol.AnnouncePeer{}, h.next())

	frame := encode(t, protocol.SetOperation{Status: protocol.StatusStart})
	partial := encode(t, protocol.Reset{})[:3]
	_, err := conn.Write(append(frame, partial...))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Equal(t, protocol.SetOperation{Status: protocol.StatusStart}, h.next())
	assert.Equal(t, protocol.Reset{}, h.next())
	h.quiet(30 * time.Millisecond)

	second := h.dial()
	require.IsType(t, protocol.AnnouncePeer{}, h.next())
	require.NoError(t, second.Close())
	assert.Equal(t, protocol.Reset{}, h.next())
	h.quiet(30 * time.Millisecond)
}

func TestListener_MalformedFrameDropsConnection(t *testing.T) {
	h := startListener(t, Config{})
	conn := h.dial()
	require.IsType(t, protocol.AnnouncePeer{}, h.next())

	bad := make([]byte, protocol.CommandFrameSize)
	bad[0] = 0x7F
	_, err := conn.Write(bad)
	require.NoError(t, err)

	assert.Equal(t, protocol.Reset{}, h.next())

	// The node closes its end.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	h.quiet(20 * time.Millisecond)
}

func TestListener_AcceptsSequentially(t *testing.T) {
	h := startListener(t, Config{})

	first := h.dial()
	require.IsType(t, protocol.AnnouncePeer{}, h.next())

	// The second dial completes in the kernel backlog but is not served
	// until the first session ends.
	second := h.dial()
	_, err := second.Write(encode(t, protocol.SetOperation{Status: protocol.StatusStart}))
	require.NoError(t, err)
	h.quiet(50 * time.Millisecond)

	require.NoError(t, first.Close())
	assert.Equal(t, protocol.Reset{}, h.next())

	announce, ok := h.next().(protocol.AnnouncePeer)
	require.True(t, ok)
	assert.Equal(t, remoteAddrPort(second.LocalAddr()), announce.Addr)
	assert.Equal(t, protocol.SetOperation{Status: protocol.StatusStart}, h.next())
}

func TestListener_BindFailureForwardsResetAndRetries(t *testing.T) {
	var attempts atomic.Int32
	var lc net.ListenConfig
	h := startListener(t, Config{
		Listen: func(ctx context.Context, network, address string) (net.Listener, error) {
			if attempts.Add(1) <= 2 {
				return nil, errors.New("address already in use")
			}
			return lc.Listen(ctx, network, address)
		},
	})

	assert.Equal(t, protocol.Reset{}, h.next())
	assert.Equal(t, protocol.Reset{}, h.next())
	assert.Equal(t, int32(3), attempts.Load())

	h.dial()
	assert.IsType(t, protocol.AnnouncePeer{}, h.next())
}

func TestListener_ShutdownClosesActiveConnection(t *testing.T) {
	inbox := queue.NewMailbox[protocol.Command]()
	l := NewListener(Config{Address: "127.0.0.1:0", Forward: inbox, Logf: t.Logf})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	addr := <-l.Bound()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return inbox.Len() == 1 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	// Shutdown is not a peer failure.
	assert.Equal(t, 1, inbox.Len())
}

func TestNewListener_Defaults(t *testing.T) {
	l := NewListener(Config{Forward: queue.NewMailbox[protocol.Command]()})
	assert.Equal(t, DefaultAddress, l.address)
	assert.Equal(t, DefaultBackoff, l.backoff)
	assert.NotNil(t, l.listen)
	assert.NotNil(t, l.logf)
}
