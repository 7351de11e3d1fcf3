// Package dispatcher serialises the operator's UI actions onto a single
// worker goroutine that owns the connection state machine.
package dispatcher

import (
	"context"

	"github.com/banshee-data/sonar/internal/connection"
	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/protocol"
	"github.com/banshee-data/sonar/internal/queue"
)

// Stepper is the transition function the worker drives.
// *connection.Machine satisfies it.
type Stepper interface {
	Step(ctx context.Context, state connection.State, intent connection.Intent) (connection.State, connection.Event)
}

// Dispatcher queues intents from the UI and publishes the resulting
// events. The UI is the only writer of the intent queue and the only
// reader of the event inbox; Run is the only reader of intents.
type Dispatcher struct {
	machine Stepper
	intents *queue.Mailbox[connection.Intent]
	events  *queue.Mailbox[connection.Event]
	logf    monitoring.LogFunc
}

// New creates a Dispatcher driving machine.
func New(machine Stepper, logf monitoring.LogFunc) *Dispatcher {
	if logf == nil {
		logf = monitoring.Component("dispatcher")
	}
	return &Dispatcher{
		machine: machine,
		intents: queue.NewMailbox[connection.Intent](),
		events:  queue.NewMailbox[connection.Event](),
		logf:    logf,
	}
}

// Submit queues an intent. It never blocks.
func (d *Dispatcher) Submit(intent connection.Intent) { d.intents.Send(intent) }

// Connect queues a connection attempt to address.
func (d *Dispatcher) Connect(address string) { d.Submit(connection.Connect{Address: address}) }

// Disconnect queues closing the link.
func (d *Dispatcher) Disconnect() { d.Submit(connection.Disconnect{}) }

// Send queues a command for the node.
func (d *Dispatcher) Send(cmd protocol.Command) { d.Submit(connection.Send{Command: cmd}) }

// Poll returns the next event if one is waiting. It never blocks.
func (d *Dispatcher) Poll() (connection.Event, bool) { return d.events.TryReceive() }

// Pending returns the number of intents not yet processed.
func (d *Dispatcher) Pending() int { return d.intents.Len() }

// Run is the worker. It processes intents strictly in order, one at a
// time, until ctx is done, then closes any link it still holds.
func (d *Dispatcher) Run(ctx context.Context) error {
	var state connection.State = connection.Disconnected{}
	defer func() {
		if err := connection.Close(state); err != nil {
			d.logf("closing link on exit: %v", err)
		}
	}()

	for {
		intent, err := d.intents.Receive(ctx)
		if err != nil {
			return nil
		}
		var ev connection.Event
		state, ev = d.machine.Step(ctx, state, intent)
		d.events.Send(ev)
	}
}
