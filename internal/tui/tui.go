// Package tui provides a terminal watch view for one campaign overview
// using bubbletea.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// Backend is what the watch view reads from and sends commands to. The
// controller satisfies it directly; remote views wrap a daemon client.
type Backend interface {
	Overview(ctx context.Context, campaignID string) (*viewmodel.Overview, error)
	SetFullSequenceMode(ctx context.Context, campaignID string, on bool) error
	SetSelectedPhase(ctx context.Context, campaignID string, k pipeline.PhaseKey) error
	SetPreflightOpen(ctx context.Context, campaignID string, open bool) error
	DismissGuidance(ctx context.Context, campaignID, id string) error
	DismissFailure(ctx context.Context, campaignID string) error
}

// TUI is the terminal watch view.
type TUI struct {
	backend    Backend
	campaignID string
	eventChan  <-chan events.Event
	refresh    time.Duration
	onQuit     func()
}

// Option configures the TUI.
type Option func(*TUI)

// New creates a TUI watching one campaign.
func New(backend Backend, campaignID string, opts ...Option) *TUI {
	t := &TUI{
		backend:    backend,
		campaignID: campaignID,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WithEvents refreshes the view whenever an overview.changed or
// config.changed event for the campaign arrives on ch.
func WithEvents(ch <-chan events.Event) Option {
	return func(t *TUI) {
		t.eventChan = ch
	}
}

// WithRefresh polls the backend every d. Zero disables polling.
func WithRefresh(d time.Duration) Option {
	return func(t *TUI) {
		t.refresh = d
	}
}

// WithOnQuit sets the callback invoked when the user quits.
func WithOnQuit(fn func()) Option {
	return func(t *TUI) {
		t.onQuit = fn
	}
}

// Run starts the TUI and blocks until it exits. Without a terminal, or on
// one that is too small, it falls back to plain text output.
func (t *TUI) Run(ctx context.Context) error {
	if !isTerminal() || terminalTooSmall() {
		return t.runSimple(ctx)
	}

	m := newModel(t.backend, t.campaignID, t.eventChan, t.refresh, t.onQuit)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
