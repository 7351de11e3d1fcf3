package sweep

import (
	"context"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/protocol"
	"github.com/banshee-data/sonar/internal/queue"
	"github.com/banshee-data/sonar/internal/servo"
	"github.com/banshee-data/sonar/internal/telemetry"
	"github.com/banshee-data/sonar/internal/timeutil"
)

// DefaultTickPeriod is the interval between sweep steps.
const DefaultTickPeriod = 10 * time.Millisecond

// failureLogInterval bounds how often repeated servo or telemetry
// failures are logged; at 100 ticks per second they would flood the log.
const failureLogInterval = 5 * time.Second

// TelemetrySender emits one frame to the operator.
type TelemetrySender interface {
	Send(frame protocol.TelemetryFrame, dst netip.AddrPort) error
}

// Config wires a Controller to its collaborators.
type Config struct {
	Servo servo.Driver
	// Telemetry may be nil, in which case no frames are sent.
	Telemetry TelemetrySender
	// TelemetryPort is the operator port frames are sent to. The peer's
	// announced port is ignored.
	TelemetryPort uint16
	// Inbox carries commands from the ingestion pipeline and the debug
	// routes.
	Inbox *queue.Mailbox[protocol.Command]
	Clock timeutil.Clock
	// TickPeriod defaults to DefaultTickPeriod.
	TickPeriod time.Duration
	Logf       monitoring.LogFunc
}

// Snapshot is a read-only copy of the controller published after every
// tick and command.
type Snapshot struct {
	State           State     `json:"state"`
	Peer            string    `json:"peer,omitempty"`
	Ticks           uint64    `json:"ticks"`
	Commands        uint64    `json:"commands"`
	ServoErrors     uint64    `json:"servo_errors"`
	TelemetrySent   uint64    `json:"telemetry_sent"`
	TelemetryFailed uint64    `json:"telemetry_failed"`
	LastServoError  string    `json:"last_servo_error,omitempty"`
	ControllerError uint16    `json:"controller_error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Controller owns the sweep state. Apply, Tick and Run must be called from
// a single goroutine; Snapshot and Submit are safe from any goroutine.
type Controller struct {
	state State
	peer  netip.AddrPort

	servo         servo.Driver
	telemetry     TelemetrySender
	telemetryPort uint16
	inbox         *queue.Mailbox[protocol.Command]
	clock         timeutil.Clock
	period        time.Duration

	logf     monitoring.LogFunc
	servoLog *monitoring.Throttle
	sendLog  *monitoring.Throttle

	ticks           uint64
	commands        uint64
	servoErrors     uint64
	telemetrySent   uint64
	telemetryFailed uint64
	lastServoError  string
	controllerError uint16

	snapshot atomic.Pointer[Snapshot]
}

// NewController creates a controller in the default state.
func NewController(cfg Config) *Controller {
	logf := cfg.Logf
	if logf == nil {
		logf = monitoring.Component("sweep")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	period := cfg.TickPeriod
	if period <= 0 {
		period = DefaultTickPeriod
	}
	port := cfg.TelemetryPort
	if port == 0 {
		port = telemetry.Port
	}
	inbox := cfg.Inbox
	if inbox == nil {
		inbox = queue.NewMailbox[protocol.Command]()
	}
	drv := cfg.Servo
	if drv == nil {
		drv = servo.DisabledDriver{}
	}

	c := &Controller{
		state:         DefaultState(),
		servo:         drv,
		telemetry:     cfg.Telemetry,
		telemetryPort: port,
		inbox:         inbox,
		clock:         clock,
		period:        period,
		logf:          logf,
		servoLog:      monitoring.NewThrottle(logf, failureLogInterval, clock.Now),
		sendLog:       monitoring.NewThrottle(logf, failureLogInterval, clock.Now),
	}
	c.publish()
	return c
}

// Inbox returns the command mailbox consumed by Run.
func (c *Controller) Inbox() *queue.Mailbox[protocol.Command] { return c.inbox }

// Submit queues a command for the sweep goroutine.
func (c *Controller) Submit(cmd protocol.Command) { c.inbox.Send(cmd) }

// State returns the current sweep state. Only the owning goroutine may
// call it; others use Snapshot.
func (c *Controller) State() State { return c.state }

// Peer returns the telemetry destination, which is invalid until a peer
// has been announced.
func (c *Controller) Peer() netip.AddrPort { return c.peer }

// Apply updates the state for one command.
func (c *Controller) Apply(cmd protocol.Command) {
	c.commands++
	switch cmd := cmd.(type) {
	case protocol.SetFieldOfView:
		c.state.FieldOfView = cmd.FieldOfView
	case protocol.SetOperation:
		c.state.Status = cmd.Status
	case protocol.Reset:
		c.state = DefaultState()
		c.setServo(c.state.Angle)
	case protocol.AnnouncePeer:
		c.peer = netip.AddrPortFrom(cmd.Addr.Addr().Unmap(), c.telemetryPort)
		c.logf("telemetry destination %s", c.peer)
	default:
		c.logf("ignoring unknown command %v", cmd)
	}
	c.publish()
}

// Tick advances the sweep by one step when running. The servo is
// commanded first, then the new angle is sent to the peer if one is known.
func (c *Controller) Tick() {
	if c.state.Status != protocol.StatusStart {
		return
	}
	c.ticks++
	c.state.Angle, c.state.Direction = NextAngle(c.state)
	c.setServo(c.state.Angle)

	if c.telemetry != nil && c.peer.IsValid() {
		if err := c.telemetry.Send(protocol.TelemetryFrame{Angle: c.state.Angle}, c.peer); err != nil {
			c.telemetryFailed++
			c.sendLog.Logf("telemetry send failed: %v", err)
		} else {
			c.telemetrySent++
		}
	}
	c.publish()
}

// setServo reports a hardware failure but never retries it; the next
// tick commands the following angle as usual. Drivers that latch fault
// codes are asked for one so the snapshot shows the controller's view.
func (c *Controller) setServo(angle int32) {
	err := c.servo.SetAngle(angle)
	if err == nil {
		return
	}
	c.servoErrors++
	if fr, ok := c.servo.(servo.FaultReporter); ok {
		code, qerr := fr.ControllerErrors()
		switch {
		case qerr != nil:
			c.servoLog.Logf("reading servo controller errors failed: %v", qerr)
		case code != 0:
			c.controllerError = code
			err = fmt.Errorf("%w: %w", err, servo.ControllerFault{Code: code})
		}
	}
	c.lastServoError = err.Error()
	c.servoLog.Logf("setting servo failed: %v", err)
}

// Run steps the sweep on every tick until ctx is done. Each tick applies
// at most one queued command before stepping.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.period)
	defer ticker.Stop()

	c.logf("sweep running, tick %v", c.period)
	for {
		select {
		case <-ctx.Done():
			c.logf("sweep stopping: %v", ctx.Err())
			return nil
		case <-ticker.C():
			if cmd, ok := c.inbox.TryReceive(); ok {
				c.Apply(cmd)
			}
			c.Tick()
		}
	}
}

func (c *Controller) publish() {
	snap := &Snapshot{
		State:           c.state,
		Ticks:           c.ticks,
		Commands:        c.commands,
		ServoErrors:     c.servoErrors,
		TelemetrySent:   c.telemetrySent,
		TelemetryFailed: c.telemetryFailed,
		LastServoError:  c.lastServoError,
		ControllerError: c.controllerError,
		UpdatedAt:       c.clock.Now(),
	}
	if c.peer.IsValid() {
		snap.Peer = c.peer.String()
	}
	c.snapshot.Store(snap)
}

// Snapshot returns the most recently published state.
func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}
