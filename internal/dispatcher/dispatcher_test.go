package dispatcher

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sonar/internal/connection"
	"github.com/banshee-data/sonar/internal/protocol"
)

// recordingStepper returns canned events and records the intents it saw,
// checking that Step is never entered concurrently.
type recordingStepper struct {
	mu      sync.Mutex
	active  bool
	overlap bool
	seen    []connection.Intent
}

func (r *recordingStepper) Step(_ context.Context, state connection.State, intent connection.Intent) (connection.State, connection.Event) {
	r.mu.Lock()
	if r.active {
		r.overlap = true
	}
	r.active = true
	r.seen = append(r.seen, intent)
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.active = false
	r.mu.Unlock()

	switch in := intent.(type) {
	case connection.Connect:
		return state, connection.ConnectedEvent{Address: in.Address}
	case connection.Send:
		return state, connection.CommandSent{Command: in.Command}
	default:
		return state, connection.DisconnectedEvent{}
	}
}

func startDispatcher(t *testing.T, s Stepper) *Dispatcher {
	t.Helper()
	d := New(s, t.Logf)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	return d
}

func collect(t *testing.T, d *Dispatcher, n int) []connection.Event {
	t.Helper()
	var got []connection.Event
	require.Eventually(t, func() bool {
		for {
			ev, ok := d.Poll()
			if !ok {
				break
			}
			got = append(got, ev)
		}
		return len(got) >= n
	}, 2*time.Second, time.Millisecond)
	return got
}

func TestDispatcher_ProcessesInOrder(t *testing.T) {
	s := &recordingStepper{}
	d := startDispatcher(t, s)

	d.Connect("node:1111")
	d.Send(protocol.SetOperation{Status: protocol.StatusStart})
	d.Send(protocol.SetFieldOfView{FieldOfView: protocol.FieldOfViewNarrow})
	d.Disconnect()

	want := []connection.Event{
		connection.ConnectedEvent{Address: "node:1111"},
		connection.CommandSent{Command: protocol.SetOperation{Status: protocol.StatusStart}},
		connection.CommandSent{Command: protocol.SetFieldOfView{FieldOfView: protocol.FieldOfViewNarrow}},
		connection.DisconnectedEvent{},
	}
	if diff := cmp.Diff(want, collect(t, d, len(want))); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.False(t, s.overlap, "Step ran concurrently")
	assert.Len(t, s.seen, 4)
}

func TestDispatcher_PollEmpty(t *testing.T) {
	d := New(&recordingStepper{}, t.Logf)
	_, ok := d.Poll()
	assert.False(t, ok)

	d.Disconnect()
	assert.Equal(t, 1, d.Pending())
}

func TestDispatcher_RealMachine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			accepted <- conn
		}
	}()

	m := connection.NewMachine(connection.Config{DialTimeout: time.Second, Logf: t.Logf})
	d := New(m, t.Logf)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Send(protocol.Reset{})
	d.Connect(ln.Addr().String())
	d.Send(protocol.SetOperation{Status: protocol.StatusStart})

	events := collect(t, d, 3)
	assert.IsType(t, connection.SendFailed{}, events[0])
	assert.Equal(t, connection.ConnectedEvent{Address: ln.Addr().String()}, events[1])
	assert.Equal(t, connection.CommandSent{Command: protocol.SetOperation{Status: protocol.StatusStart}}, events[2])

	node := <-accepted
	defer node.Close()

	// Stopping the worker closes the link it owns.
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, node.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 16)
	n, _ := node.Read(buf)
	assert.Equal(t, protocol.CommandFrameSize, n, "the start frame arrives before the close")
	_, err = node.Read(buf)
	assert.Error(t, err)
}
