package console

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the operator console. While the
// address field has focus only Connect, Blur and ForceQuit apply; every
// other key is typed into the field.
type KeyMap struct {
	Connect    key.Binding
	Disconnect key.Binding
	Start      key.Binding
	Stop       key.Binding
	Wide       key.Binding
	Narrow     key.Binding
	Reset      key.Binding

	// Focus moves between the address field and the controls.
	Focus key.Binding
	Blur  key.Binding

	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Connect: key.NewBinding(
		key.WithKeys("enter", "c"),
		key.WithHelp("c/enter", "connect"),
	),
	Disconnect: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disconnect"),
	),
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x", " "),
		key.WithHelp("x/space", "stop"),
	),
	Wide: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "wide"),
	),
	Narrow: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "narrow"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reset"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab", "a"),
		key.WithHelp("a/tab", "edit address"),
	),
	Blur: key.NewBinding(
		key.WithKeys("esc", "tab"),
		key.WithHelp("esc", "leave address"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}

// ShortHelp lists the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Disconnect, k.Start, k.Stop, k.Wide, k.Narrow, k.Reset, k.Focus, k.Quit}
}

// FullHelp groups the bindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Connect, k.Disconnect, k.Focus, k.Blur},
		{k.Start, k.Stop, k.Wide, k.Narrow, k.Reset},
		{k.Quit, k.ForceQuit},
	}
}
