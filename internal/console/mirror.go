// Package console is the operator's terminal display. It renders the link
// state projected from connection events and the live sweep angle, and
// turns key presses into dispatcher intents.
package console

import (
	"github.com/banshee-data/sonar/internal/connection"
	"github.com/banshee-data/sonar/internal/protocol"
)

// Mirror is the display's view of the link, built only from the events the
// dispatcher publishes. It never inspects the worker's connection state.
type Mirror struct {
	Connected   bool
	Link        string // address, "Disconnected" or the last link error
	FieldOfView string
	Status      string
	LastError   string

	operation protocol.OperationStatus
}

// NewMirror returns the mirror shown before any event arrives.
func NewMirror() Mirror {
	return Mirror{Link: "Disconnected", operation: protocol.StatusStop}
}

// Apply folds one event into the mirror.
func (m *Mirror) Apply(ev connection.Event) {
	switch ev := ev.(type) {
	case connection.ConnectedEvent:
		// A fresh connection means the node has just reset.
		m.Connected = true
		m.Link = ev.Address
		m.FieldOfView = protocol.FieldOfViewWide.String()
		m.Status = protocol.StatusStop.String()
		m.operation = protocol.StatusStop
		m.LastError = ""
	case connection.DisconnectedEvent:
		m.Connected = false
		m.Link = "Disconnected"
		m.FieldOfView = ""
		m.Status = ""
	case connection.ConnectFailed:
		m.Link = "Error connecting"
		m.LastError = errString(ev.Err)
	case connection.SendFailed:
		m.Link = "Error sending data"
		m.LastError = errString(ev.Err)
	case connection.CommandSent:
		switch cmd := ev.Command.(type) {
		case protocol.SetFieldOfView:
			m.FieldOfView = cmd.FieldOfView.String()
		case protocol.SetOperation:
			m.operation = cmd.Status
			m.Status = cmd.Status.String()
		}
	}
}

// ReadyForTelemetry reports whether the node should be streaming: the
// link is up and the last acknowledged operation was Start.
func (m Mirror) ReadyForTelemetry() bool {
	return m.Connected && m.operation == protocol.StatusStart
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
