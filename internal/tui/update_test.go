package tui

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/uistore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// loaded returns a sized model that already holds ov.
func loaded(backend *fakeBackend, ov *viewmodel.Overview) model {
	m := newModel(backend, "c1", nil, 0, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	next, _ = next.Update(overviewMsg{overview: ov})
	return next.(model)
}

// press sends a key and runs the resulting command once.
func press(t *testing.T, m model, msg tea.KeyMsg) (model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	if cmd == nil {
		return next.(model), nil
	}
	return next.(model), cmd()
}

func TestKeyCommands(t *testing.T) {
	tests := []struct {
		name   string
		key    tea.KeyMsg
		modify func(ov *viewmodel.Overview)
		want   []string
	}{
		{"f enables full sequence in manual mode", runeKey('f'),
			func(ov *viewmodel.Overview) { ov.Mode = viewmodel.Mode{State: viewmodel.ModeManual} },
			[]string{"full_sequence:on"}},
		{"f disables full sequence otherwise", runeKey('f'), nil, []string{"full_sequence:off"}},
		{"p opens preflight", runeKey('p'), nil, []string{"preflight:open"}},
		{"p closes preflight", runeKey('p'),
			func(ov *viewmodel.Overview) { ov.PreflightOpen = true },
			[]string{"preflight:closed"}},
		{"d dismisses latest guidance", runeKey('d'), nil, []string{"dismiss_guidance:phase-failed-validation"}},
		{"d ignores optional defaults", runeKey('d'),
			func(ov *viewmodel.Overview) {
				ov.Guidance.Latest = &uistore.GuidanceMessage{ID: viewmodel.OptionalDefaultsID, Message: "defaults"}
			},
			nil},
		{"d without guidance", runeKey('d'),
			func(ov *viewmodel.Overview) { ov.Guidance.Latest = nil },
			nil},
		{"x dismisses failure", runeKey('x'), nil, []string{"dismiss_failure"}},
		{"x without failure", runeKey('x'),
			func(ov *viewmodel.Overview) { ov.Failures.LastFailed = pipeline.PhaseNone },
			nil},
		{"down selects first phase", tea.KeyMsg{Type: tea.KeyDown}, nil, []string{"select:discovery"}},
		{"up selects first phase", tea.KeyMsg{Type: tea.KeyUp}, nil, []string{"select:discovery"}},
		{"esc without selection", tea.KeyMsg{Type: tea.KeyEsc}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{overview: sampleOverview()}
			ov := sampleOverview()
			if tt.modify != nil {
				tt.modify(ov)
			}
			m := loaded(backend, ov)

			m, msg := press(t, m, tt.key)
			if msg != nil {
				if _, ok := msg.(commandDoneMsg); !ok {
					t.Fatalf("expected commandDoneMsg, got %T", msg)
				}
			}
			if got := backend.Calls(); !slices.Equal(got, tt.want) {
				t.Errorf("calls = %v, want %v", got, tt.want)
			}
			if len(tt.want) > 0 && m.pending != 1 {
				t.Errorf("pending = %d, want 1", m.pending)
			}
		})
	}
}

func TestKeysIgnoredBeforeOverview(t *testing.T) {
	backend := &fakeBackend{overview: sampleOverview()}
	m := newModel(backend, "c1", nil, 0, nil)

	for _, r := range "fpdx" {
		_, cmd := m.Update(runeKey(r))
		if cmd != nil {
			t.Errorf("key %q produced a command before the first overview", r)
		}
	}
	if len(backend.Calls()) != 0 {
		t.Errorf("calls = %v, want none", backend.Calls())
	}
}

func TestCursorMovement(t *testing.T) {
	backend := &fakeBackend{overview: sampleOverview()}
	m := loaded(backend, sampleOverview())

	if m.cursor != -1 {
		t.Fatalf("initial cursor = %d, want -1", m.cursor)
	}

	for range 10 {
		m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	}
	if m.cursor != 4 {
		t.Errorf("cursor = %d, want clamped to 4", m.cursor)
	}
	m, _ = press(t, m, runeKey('k'))
	if m.selectedPhase() != pipeline.PhaseExtraction {
		t.Errorf("selected = %s, want extraction", m.selectedPhase())
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.cursor != -1 {
		t.Errorf("cursor = %d, want -1 after esc", m.cursor)
	}

	calls := backend.Calls()
	if calls[len(calls)-1] != "select:" {
		t.Errorf("last call = %q, want selection cleared", calls[len(calls)-1])
	}
}

func TestCursorSyncsFromOverview(t *testing.T) {
	ov := sampleOverview()
	ov.SelectedPhase = pipeline.PhaseExtraction
	m := loaded(&fakeBackend{overview: ov}, ov)

	if m.cursor != 3 {
		t.Errorf("cursor = %d, want 3", m.cursor)
	}

	// A fetch that lands while a command is in flight keeps the local cursor.
	m.pending = 1
	m.cursor = 1
	next, _ := m.Update(overviewMsg{overview: ov})
	if next.(model).cursor != 1 {
		t.Errorf("cursor = %d, want 1 while pending", next.(model).cursor)
	}
}

func TestCommandDoneRefetches(t *testing.T) {
	backend := &fakeBackend{overview: sampleOverview()}
	m := loaded(backend, sampleOverview())
	m.pending = 1

	next, cmd := m.Update(commandDoneMsg{err: errors.New("rejected")})
	m = next.(model)
	if m.pending != 0 {
		t.Errorf("pending = %d, want 0", m.pending)
	}
	if m.err == nil {
		t.Error("command error not surfaced")
	}
	if cmd == nil {
		t.Fatal("expected refetch command")
	}
	if _, ok := cmd().(overviewMsg); !ok {
		t.Error("refetch did not produce overviewMsg")
	}

	next, _ = m.Update(overviewMsg{overview: sampleOverview()})
	if next.(model).err != nil {
		t.Error("successful fetch should clear error")
	}
}

func TestFetchErrorKeepsOverview(t *testing.T) {
	m := loaded(&fakeBackend{overview: sampleOverview()}, sampleOverview())

	next, _ := m.Update(overviewMsg{err: errors.New("daemon not running")})
	m = next.(model)
	if m.overview == nil {
		t.Error("overview dropped on fetch error")
	}
	if !strings.Contains(m.View(), "daemon not running") {
		t.Error("view does not show fetch error")
	}
}

func TestHelpToggle(t *testing.T) {
	m := loaded(&fakeBackend{overview: sampleOverview()}, sampleOverview())

	m, _ = press(t, m, runeKey('?'))
	if !m.help.ShowAll {
		t.Error("help not expanded")
	}
	if !strings.Contains(m.View(), "dismiss failure") {
		t.Error("full help missing dismiss failure binding")
	}
}

func TestView(t *testing.T) {
	ov := sampleOverview()
	ov.PreflightOpen = true
	m := loaded(&fakeBackend{overview: ov}, ov)

	view := m.View()
	for _, want := range []string{
		"c1",
		"IN_PROGRESS",
		"Validation failed. Start it again to continue.",
		"PHASE",
		"Discovery",
		"Next:",
		"start Validation",
		"Guidance:",
		"Failed:",
		"Preflight",
		"runs with defaults",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewStates(t *testing.T) {
	m := newModel(&fakeBackend{}, "c1", nil, 0, nil)
	if m.View() != "Loading..." {
		t.Errorf("unsized view = %q", m.View())
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	if !strings.Contains(next.(model).View(), "Terminal too small") {
		t.Error("expected too-small message")
	}

	next, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	if !strings.Contains(next.(model).View(), "waiting for overview") {
		t.Error("expected waiting message before first fetch")
	}
}

func TestEventMsgRefetchesOnlyForCampaign(t *testing.T) {
	ch := make(chan events.Event, 1)
	m := newModel(&fakeBackend{overview: sampleOverview()}, "c1", ch, 0, nil)

	_, cmd := m.Update(eventMsg(&events.OverviewChangedEvent{CampaignID: "other"}))
	if cmd == nil {
		t.Fatal("expected wait command")
	}
	ch <- &events.OverviewChangedEvent{CampaignID: "c1"}
	if _, ok := cmd().(eventMsg); !ok {
		t.Error("unrelated event should only re-arm the wait")
	}
}

// TestWatchLifecycle runs the full program headlessly: first render, a
// full-sequence toggle, an overview.changed refresh and quit.
func TestWatchLifecycle(t *testing.T) {
	backend := &fakeBackend{overview: sampleOverview()}
	ch := make(chan events.Event, 4)

	quitCalled := make(chan struct{})
	m := newModel(backend, "c1", ch, 0, func() { close(quitCalled) })

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Validation failed"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(runeKey('f'))
	ch <- &events.OverviewChangedEvent{CampaignID: "c1"}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && (len(backend.Calls()) == 0 || backend.Fetches() < 3) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := backend.Calls(); !slices.Equal(got, []string{"full_sequence:off"}) {
		t.Errorf("calls = %v", got)
	}

	tm.Send(runeKey('q'))
	fm := tm.FinalModel(t, teatest.WithFinalTimeout(5*time.Second))
	if _, ok := fm.(model); !ok {
		t.Fatalf("FinalModel is not of type model: %T", fm)
	}

	select {
	case <-quitCalled:
	default:
		t.Error("quit callback was not invoked")
	}
}

// TestWatchExitsWhenEventsClose verifies that closing the event channel
// ends the program.
func TestWatchExitsWhenEventsClose(t *testing.T) {
	ch := make(chan events.Event)
	m := newModel(&fakeBackend{overview: sampleOverview()}, "c1", ch, 0, nil)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))
	close(ch)

	fm := tm.FinalModel(t, teatest.WithFinalTimeout(5*time.Second))
	if fm == nil {
		t.Fatal("FinalModel returned nil after channel close")
	}
}

// TestWatchPolls verifies the refresh interval drives fetches.
func TestWatchPolls(t *testing.T) {
	backend := &fakeBackend{overview: sampleOverview()}
	m := newModel(backend, "c1", nil, 10*time.Millisecond, nil)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 40))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && backend.Fetches() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	if backend.Fetches() < 3 {
		t.Errorf("fetches = %d, want at least 3", backend.Fetches())
	}

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
	tm.WaitFinished(t, teatest.WithFinalTimeout(5*time.Second))
}

var _ Backend = (*fakeBackend)(nil)

func TestBackendContextTimeout(t *testing.T) {
	m := newModel(&fakeBackend{overview: sampleOverview()}, "c1", nil, 0, nil)
	var seen context.Context
	cmd := m.command(func(ctx context.Context) error {
		seen = ctx
		return nil
	})
	cmd()
	if _, ok := seen.Deadline(); !ok {
		t.Error("command context has no deadline")
	}
}
