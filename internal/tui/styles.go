package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/npratt/pipedeck/internal/execstore"
	"github.com/npratt/pipedeck/internal/uistore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// styles contains all lipgloss styles used by the TUI.
var styles = struct {
	// Layout styles
	Container lipgloss.Style
	Divider   lipgloss.Style

	// Header styles
	Campaign lipgloss.Style
	Hint     lipgloss.Style
	Progress lipgloss.Style

	// Footer style
	Footer lipgloss.Style

	// Phase table
	TableHeader lipgloss.Style
	Selected    lipgloss.Style
	Optional    lipgloss.Style

	// Sections
	Label   lipgloss.Style
	Action  lipgloss.Style
	Reason  lipgloss.Style
	Info    lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Preview lipgloss.Style

	// Mode colors
	ModeManual     lipgloss.Style
	ModeBlocked    lipgloss.Style
	ModeWaiting    lipgloss.Style
	ModeInProgress lipgloss.Style
	ModeCompleted  lipgloss.Style

	// Exec colors
	ExecIdle      lipgloss.Style
	ExecRunning   lipgloss.Style
	ExecCompleted lipgloss.Style
	ExecFailed    lipgloss.Style
}{
	Container: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")),

	Divider: lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")),

	Campaign: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")),

	Hint: lipgloss.NewStyle().
		Foreground(lipgloss.Color("250")),

	Progress: lipgloss.NewStyle().
		Foreground(lipgloss.Color("220")),

	Footer: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	TableHeader: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("245")),

	Selected: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		Background(lipgloss.Color("236")),

	Optional: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	Label: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252")),

	Action: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("82")),

	Reason: lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")),

	Info: lipgloss.NewStyle().
		Foreground(lipgloss.Color("177")),

	Warn: lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")),

	Error: lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")),

	Muted: lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")),

	Preview: lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1),

	ModeManual: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	ModeBlocked: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196")),

	ModeWaiting: lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")),

	ModeInProgress: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("82")),

	ModeCompleted: lipgloss.NewStyle().
		Foreground(lipgloss.Color("114")),

	ExecIdle: lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")),

	ExecRunning: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("82")),

	ExecCompleted: lipgloss.NewStyle().
		Foreground(lipgloss.Color("114")),

	ExecFailed: lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")),
}

// styleForMode returns the header style for a mode state.
func styleForMode(s viewmodel.ModeState) lipgloss.Style {
	switch s {
	case viewmodel.ModeBlocked:
		return styles.ModeBlocked
	case viewmodel.ModeWaitingStart:
		return styles.ModeWaiting
	case viewmodel.ModeInProgress:
		return styles.ModeInProgress
	case viewmodel.ModeCompleted:
		return styles.ModeCompleted
	default:
		return styles.ModeManual
	}
}

func styleForExec(s execstore.Status) lipgloss.Style {
	switch s {
	case execstore.StatusRunning:
		return styles.ExecRunning
	case execstore.StatusCompleted:
		return styles.ExecCompleted
	case execstore.StatusFailed:
		return styles.ExecFailed
	default:
		return styles.ExecIdle
	}
}

func styleForSeverity(s uistore.Severity) lipgloss.Style {
	if s == uistore.SeverityWarn {
		return styles.Warn
	}
	return styles.Info
}
