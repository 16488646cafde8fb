package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"

	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// model is the bubbletea model for the watch view.
type model struct {
	// Data source
	backend    Backend
	campaignID string
	eventChan  <-chan events.Event
	refresh    time.Duration

	// State
	overview   *viewmodel.Overview
	err        error
	lastUpdate time.Time
	cursor     int
	pending    int // commands in flight

	// UI state
	width  int
	height int
	keys   keyMap
	help   help.Model

	onQuit func()
}

// newModel creates a new model with the given configuration.
func newModel(
	backend Backend,
	campaignID string,
	eventChan <-chan events.Event,
	refresh time.Duration,
	onQuit func(),
) model {
	return model{
		backend:    backend,
		campaignID: campaignID,
		eventChan:  eventChan,
		refresh:    refresh,
		cursor:     -1,
		keys:       defaultKeyMap(),
		help:       help.New(),
		onQuit:     onQuit,
	}
}

// selectedPhase returns the phase under the cursor.
func (m model) selectedPhase() pipeline.PhaseKey {
	if m.overview == nil || m.cursor < 0 || m.cursor >= len(m.overview.Phases) {
		return pipeline.PhaseNone
	}
	return m.overview.Phases[m.cursor].Key
}

// syncCursor aligns the cursor with the overview's selected phase.
func (m *model) syncCursor() {
	m.cursor = -1
	if m.overview == nil || m.overview.SelectedPhase == pipeline.PhaseNone {
		return
	}
	for i, ep := range m.overview.Phases {
		if ep.Key == m.overview.SelectedPhase {
			m.cursor = i
			return
		}
	}
}
