package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	FullSequence    key.Binding
	Up              key.Binding
	Down            key.Binding
	ClearSelection  key.Binding
	Preflight       key.Binding
	DismissGuidance key.Binding
	DismissFailure  key.Binding
	Refresh         key.Binding
	Help            key.Binding
	Quit            key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		FullSequence: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "full sequence"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "prev phase"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next phase"),
		),
		ClearSelection: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear selection"),
		),
		Preflight: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "preflight"),
		),
		DismissGuidance: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dismiss guidance"),
		),
		DismissFailure: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "dismiss failure"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.FullSequence, k.Up, k.Down, k.Preflight, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.FullSequence, k.Preflight, k.Refresh},
		{k.Up, k.Down, k.ClearSelection},
		{k.DismissGuidance, k.DismissFailure},
		{k.Help, k.Quit},
	}
}
