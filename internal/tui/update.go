package tui

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// requestTimeout bounds each backend call made from the view.
const requestTimeout = 5 * time.Second

// overviewMsg carries the result of a fetch.
type overviewMsg struct {
	overview *viewmodel.Overview
	err      error
}

// commandDoneMsg signals that a backend command returned.
type commandDoneMsg struct {
	err error
}

// eventMsg wraps an event for the bubbletea message system.
type eventMsg events.Event

// channelClosedMsg signals that the event channel was closed.
type channelClosedMsg struct{}

// tickMsg signals a periodic refresh.
type tickMsg time.Time

// waitForEvent creates a command that waits for the next event from the channel.
// Returns channelClosedMsg if the channel is closed.
func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return channelClosedMsg{}
		}
		return eventMsg(event)
	}
}

func doTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) fetch() tea.Cmd {
	backend, id := m.backend, m.campaignID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ov, err := backend.Overview(ctx, id)
		return overviewMsg{overview: ov, err: err}
	}
}

// command runs fn against the backend and reports completion.
func (m *model) command(fn func(ctx context.Context) error) tea.Cmd {
	m.pending++
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return commandDoneMsg{err: fn(ctx)}
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetch()}
	if m.eventChan != nil {
		cmds = append(cmds, waitForEvent(m.eventChan))
	}
	if m.refresh > 0 {
		cmds = append(cmds, doTick(m.refresh))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case overviewMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.overview = msg.overview
		m.err = nil
		m.lastUpdate = time.Now()
		if m.pending == 0 {
			m.syncCursor()
		}
		return m, nil

	case commandDoneMsg:
		if m.pending > 0 {
			m.pending--
		}
		if msg.err != nil {
			m.err = msg.err
		}
		return m, m.fetch()

	case eventMsg:
		next := waitForEvent(m.eventChan)
		if affects(events.Event(msg), m.campaignID) {
			return m, tea.Batch(m.fetch(), next)
		}
		return m, next

	case channelClosedMsg:
		slog.Info("event channel closed, exiting watch view")
		return m, tea.Quit

	case tickMsg:
		return m, tea.Batch(m.fetch(), doTick(m.refresh))
	}
	return m, nil
}

// handleKey processes keyboard input and returns the updated model and command.
func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetch()
	}

	ov := m.overview
	if ov == nil {
		return m, nil
	}
	id := m.campaignID

	switch {
	case key.Matches(msg, m.keys.FullSequence):
		on := ov.Mode.State == viewmodel.ModeManual
		return m, m.command(func(ctx context.Context) error {
			return m.backend.SetFullSequenceMode(ctx, id, on)
		})

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		if len(ov.Phases) == 0 {
			return m, nil
		}
		if key.Matches(msg, m.keys.Up) {
			m.cursor = max(m.cursor-1, 0)
		} else {
			m.cursor = min(m.cursor+1, len(ov.Phases)-1)
		}
		k := m.selectedPhase()
		return m, m.command(func(ctx context.Context) error {
			return m.backend.SetSelectedPhase(ctx, id, k)
		})

	case key.Matches(msg, m.keys.ClearSelection):
		if m.cursor < 0 {
			return m, nil
		}
		m.cursor = -1
		return m, m.command(func(ctx context.Context) error {
			return m.backend.SetSelectedPhase(ctx, id, pipeline.PhaseNone)
		})

	case key.Matches(msg, m.keys.Preflight):
		open := !ov.PreflightOpen
		return m, m.command(func(ctx context.Context) error {
			return m.backend.SetPreflightOpen(ctx, id, open)
		})

	case key.Matches(msg, m.keys.DismissGuidance):
		latest := ov.Guidance.Latest
		// The optional-defaults entry is derived and cannot be dismissed.
		if latest == nil || latest.ID == viewmodel.OptionalDefaultsID {
			return m, nil
		}
		gid := latest.ID
		return m, m.command(func(ctx context.Context) error {
			return m.backend.DismissGuidance(ctx, id, gid)
		})

	case key.Matches(msg, m.keys.DismissFailure):
		if !ov.Failures.LastFailed.Valid() {
			return m, nil
		}
		return m, m.command(func(ctx context.Context) error {
			return m.backend.DismissFailure(ctx, id)
		})
	}
	return m, nil
}
