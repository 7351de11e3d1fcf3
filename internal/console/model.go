package console

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/banshee-data/sonar/internal/connection"
	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/protocol"
	"github.com/banshee-data/sonar/internal/telemetry"
)

// Frame pacing defaults.
const (
	DefaultFrameInterval = 16 * time.Millisecond
	DefaultPollTimeout   = 5 * time.Millisecond
)

// Dispatcher is the part of the command dispatcher the console uses.
type Dispatcher interface {
	Connect(address string)
	Disconnect()
	Send(cmd protocol.Command)
	Poll() (connection.Event, bool)
	// Pending is the number of intents the worker has not reached yet.
	Pending() int
}

// TelemetrySource yields telemetry frames without blocking longer than
// timeout. *telemetry.Receiver and *ReplaySource satisfy it.
type TelemetrySource interface {
	Poll(timeout time.Duration) (protocol.TelemetryFrame, netip.AddrPort, bool, error)
}

// Options configures a Model.
type Options struct {
	// Address pre-fills the node address field.
	Address       string
	FrameInterval time.Duration
	PollTimeout   time.Duration
	// Replay polls telemetry regardless of link state. Used when the
	// source is a packet capture rather than a live node.
	Replay bool
	Logf   monitoring.LogFunc
}

type frameMsg time.Time

type telemetryMsg struct {
	frame protocol.TelemetryFrame
	ok    bool
	err   error
	at    time.Time
}

// Model is the bubbletea model for the operator console.
type Model struct {
	keys       KeyMap
	help       help.Model
	address    textinput.Model
	dispatcher Dispatcher
	source     TelemetrySource

	mirror    Mirror
	stats     *telemetry.Stats
	angle     int32
	haveAngle bool
	polling   bool
	badFrames int

	frameInterval time.Duration
	pollTimeout   time.Duration
	replay        bool
	width         int
	logf          monitoring.LogFunc
}

// NewModel creates the console model. dispatcher may be nil in replay mode.
func NewModel(dispatcher Dispatcher, source TelemetrySource, opts Options) Model {
	input := textinput.New()
	input.Placeholder = "192.168.1.10:1111"
	input.Prompt = "Node: "
	input.CharLimit = 64
	input.SetValue(opts.Address)

	m := Model{
		keys:          DefaultKeyMap,
		help:          help.New(),
		address:       input,
		dispatcher:    dispatcher,
		source:        source,
		mirror:        NewMirror(),
		stats:         telemetry.NewStats(telemetry.DefaultStatsWindow),
		frameInterval: opts.FrameInterval,
		pollTimeout:   opts.PollTimeout,
		replay:        opts.Replay,
		width:         80,
		logf:          opts.Logf,
	}
	if m.frameInterval <= 0 {
		m.frameInterval = DefaultFrameInterval
	}
	if m.pollTimeout <= 0 {
		m.pollTimeout = DefaultPollTimeout
	}
	if m.logf == nil {
		m.logf = monitoring.Component("console")
	}
	if dispatcher != nil {
		m.address.Focus()
	}
	return m
}

// Mirror returns the current link projection.
func (m Model) Mirror() Mirror { return m.mirror }

// Angle returns the last received angle and whether any has arrived.
func (m Model) Angle() (int32, bool) { return m.angle, m.haveAngle }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.nextFrame()
}

func (m Model) nextFrame() tea.Cmd {
	return tea.Tick(m.frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m Model) pollTelemetry() tea.Cmd {
	src, timeout := m.source, m.pollTimeout
	return func() tea.Msg {
		frame, _, ok, err := src.Poll(timeout)
		return telemetryMsg{frame: frame, ok: ok, err: err, at: time.Now()}
	}
}

func (m Model) wantTelemetry() bool {
	if m.source == nil {
		return false
	}
	return m.replay || m.mirror.ReadyForTelemetry()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case frameMsg:
		// One status event per frame keeps the display a step behind the
		// worker at most, never ahead of it.
		if m.dispatcher != nil {
			if ev, ok := m.dispatcher.Poll(); ok {
				m.logf("%v", ev)
				m.mirror.Apply(ev)
				if _, down := ev.(connection.DisconnectedEvent); down {
					m.stats.Reset()
					m.haveAngle = false
				}
			}
		}
		cmds := []tea.Cmd{m.nextFrame()}
		if !m.polling && m.wantTelemetry() {
			m.polling = true
			cmds = append(cmds, m.pollTelemetry())
		}
		return m, tea.Batch(cmds...)

	case telemetryMsg:
		switch {
		case msg.ok:
			m.angle = msg.frame.Angle
			m.haveAngle = true
			m.stats.Record(msg.at, msg.frame.Angle)
		case msg.err != nil:
			m.badFrames++
		}
		// Keep draining while frames are arriving; a quiet poll waits for
		// the next display frame.
		if (msg.ok || msg.err != nil) && m.wantTelemetry() {
			return m, m.pollTelemetry()
		}
		m.polling = false
		return m, nil
	}

	var cmd tea.Cmd
	m.address, cmd = m.address.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}

	if m.address.Focused() {
		switch {
		case msg.Type == tea.KeyEnter:
			m.address.Blur()
			m.connect()
			return m, nil
		case key.Matches(msg, m.keys.Blur):
			m.address.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.address, cmd = m.address.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Focus):
		if m.dispatcher != nil {
			return m, m.address.Focus()
		}
	case key.Matches(msg, m.keys.Connect):
		m.connect()
	case key.Matches(msg, m.keys.Disconnect):
		if m.dispatcher != nil {
			m.dispatcher.Disconnect()
		}
	case key.Matches(msg, m.keys.Start):
		m.send(protocol.SetOperation{Status: protocol.StatusStart})
	case key.Matches(msg, m.keys.Stop):
		m.send(protocol.SetOperation{Status: protocol.StatusStop})
	case key.Matches(msg, m.keys.Wide):
		m.send(protocol.SetFieldOfView{FieldOfView: protocol.FieldOfViewWide})
	case key.Matches(msg, m.keys.Narrow):
		m.send(protocol.SetFieldOfView{FieldOfView: protocol.FieldOfViewNarrow})
	case key.Matches(msg, m.keys.Reset):
		m.send(protocol.Reset{})
	}
	return m, nil
}

func (m *Model) connect() {
	addr := strings.TrimSpace(m.address.Value())
	if addr == "" || m.dispatcher == nil {
		return
	}
	m.dispatcher.Connect(addr)
}

func (m *Model) send(cmd protocol.Command) {
	if m.dispatcher != nil {
		m.dispatcher.Send(cmd)
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(11)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	gaugeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// gaugeWidth spans -90..+90 at 5 degrees per cell.
const gaugeWidth = 37

// renderGauge draws the angle as a marker on a -90..+90 scale.
func renderGauge(angle int32) string {
	if angle < -90 {
		angle = -90
	}
	if angle > 90 {
		angle = 90
	}
	pos := int(angle+90) * (gaugeWidth - 1) / 180
	cells := []rune(strings.Repeat("─", gaugeWidth))
	cells[gaugeWidth/2] = '┼'
	cells[pos] = '●'
	return string(cells)
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// View implements tea.Model.
func (m Model) View() string {
	var lines []string
	lines = append(lines, titleStyle.Render("Sonar console"))

	if m.dispatcher != nil {
		lines = append(lines, m.address.View())
		link := m.mirror.Link
		switch {
		case m.mirror.Connected:
			link = okStyle.Render(link)
		case strings.HasPrefix(link, "Error"):
			link = errStyle.Render(link)
		default:
			link = warnStyle.Render(link)
		}
		lines = append(lines,
			row("Link", link),
			row("Status", m.mirror.Status),
			row("FoV", m.mirror.FieldOfView),
		)
		if n := m.dispatcher.Pending(); n > 0 {
			lines = append(lines, row("Queued", warnStyle.Render(fmt.Sprintf("%d pending", n))))
		}
	} else {
		source := "capture replay"
		if r, ok := m.source.(interface{ Remaining() int }); ok {
			source = fmt.Sprintf("capture replay, %d frames left", r.Remaining())
		}
		lines = append(lines, row("Source", source))
	}

	if m.haveAngle {
		lines = append(lines, row("Angle", fmt.Sprintf("%s %+4d°", gaugeStyle.Render(renderGauge(m.angle)), m.angle)))
	} else {
		lines = append(lines, row("Angle", "waiting for telemetry"))
	}

	sum := m.stats.Summary()
	lines = append(lines, row("Telemetry", fmt.Sprintf("%d frames  %.1f Hz  mean %v  jitter %v",
		sum.Frames, sum.Rate, sum.MeanInterval.Round(100*time.Microsecond), sum.Jitter.Round(100*time.Microsecond))))
	if m.badFrames > 0 {
		lines = append(lines, row("Malformed", warnStyle.Render(fmt.Sprint(m.badFrames))))
	}
	if m.mirror.LastError != "" {
		lines = append(lines, row("Last error", errStyle.Render(m.mirror.LastError)))
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	for i, line := range lines {
		lines[i] = ansi.Truncate(line, width, "…")
	}

	return boxStyle.Render(strings.Join(lines, "\n")) + "\n" + m.help.View(m.keys)
}
