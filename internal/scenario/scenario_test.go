package scenario

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/npratt/pipedeck/internal/config"
	"github.com/npratt/pipedeck/internal/execstore"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func replayFile(t *testing.T, name string) (*Scenario, *viewmodel.Overview) {
	t.Helper()
	s, err := Load(filepath.Join("testdata", name))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ov, err := Replay(ctx, config.Default(), s, nil)
	require.NoError(t, err)
	return s, ov
}

func TestReplayTestdata(t *testing.T) {
	files := []string{"scenario_a.yaml", "scenario_b.yaml", "scenario_c.yaml", "failure_retry.yaml"}
	for _, name := range files {
		t.Run(name, func(t *testing.T) {
			s, ov := replayFile(t, name)
			require.NotNil(t, s.Expect)
			assert.Empty(t, s.Expect.Check(ov))
			assert.Equal(t, s.Campaign, ov.CampaignID)
		})
	}
}

func TestReplayScenarioA(t *testing.T) {
	_, ov := replayFile(t, "scenario_a.yaml")

	assert.Equal(t, viewmodel.ModeBlocked, ov.Mode.State)
	assert.Contains(t, ov.Mode.Hint, "Discovery")
	assert.Equal(t, pipeline.PhaseDiscovery, ov.Config.FirstMissing)
}

func TestReplayFailureTimings(t *testing.T) {
	_, ov := replayFile(t, "failure_retry.yaml")

	disc, ok := ov.Phase(pipeline.PhaseDiscovery)
	require.True(t, ok)
	require.NotNil(t, disc.DurationMs)
	assert.Equal(t, int64(2000), *disc.DurationMs)

	val, ok := ov.Phase(pipeline.PhaseValidation)
	require.True(t, ok)
	assert.Equal(t, execstore.StatusFailed, val.ExecState)
	assert.Equal(t, "resolver timeout", val.Error)
	require.NotNil(t, ov.Guidance.Latest)
	assert.Contains(t, ov.Guidance.Latest.Message, "resolver timeout")
}

func TestReplayCommands(t *testing.T) {
	s, err := Parse([]byte(`
campaign: c1
statuses: {discovery: configured, validation: configured, extraction: configured}
steps:
  - command: set_full_sequence
    on: true
  - command: select_phase
    phase: http_keyword_validation
  - command: set_preflight
    on: true
  - command: push_guidance
    id: g1
    message: Check keyword list
    severity: warning
    phase: extraction
  - command: push_guidance
    id: g2
    message: Second note
  - command: dismiss_guidance
    id: g2
  - command: set_last_failed
    phase: analysis
  - command: statuses
    statuses: {discovery: not_started, validation: configured, extraction: configured}
`))
	require.NoError(t, err)

	ov, err := Replay(context.Background(), config.Default(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, pipeline.PhaseExtraction, ov.SelectedPhase)
	assert.True(t, ov.PreflightOpen)
	require.NotNil(t, ov.Guidance.Latest)
	assert.Equal(t, "g1", ov.Guidance.Latest.ID)
	assert.Equal(t, pipeline.PhaseAnalysis, ov.Failures.LastFailed)
	assert.Equal(t, viewmodel.ModeBlocked, ov.Mode.State)
}

func TestReplayResets(t *testing.T) {
	s, err := Parse([]byte(`
campaign: c1
full_sequence: true
statuses: {discovery: configured, validation: configured, extraction: configured}
steps:
  - event: started
    phase: discovery
  - event: failed
    phase: discovery
    error: boom
  - command: dismiss_failure
  - command: clear_guidance
  - command: reset_exec
  - command: set_preflight
    on: true
  - command: reset_ui
`))
	require.NoError(t, err)

	ov, err := Replay(context.Background(), config.Default(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, viewmodel.ModeManual, ov.Mode.State)
	assert.False(t, ov.PreflightOpen)
	assert.Equal(t, pipeline.PhaseNone, ov.Failures.LastFailed)
	for _, ep := range ov.Phases {
		assert.Equal(t, execstore.StatusIdle, ep.ExecState, ep.Key.String())
		assert.Nil(t, ep.DurationMs, ep.Key.String())
	}
}

func TestReplayStrictRejectsOutOfOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Exec.StrictTransitions = true

	s, err := Parse([]byte(`
campaign: c1
steps:
  - event: completed
    phase: discovery
`))
	require.NoError(t, err)

	_, err = Replay(context.Background(), cfg, s, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, execstore.ErrOutOfOrder), "err = %v", err)
	assert.Contains(t, err.Error(), "step 1 (event completed discovery)")
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no campaign", `steps: []`},
		{"unknown field", "campaign: c1\nbogus: 1"},
		{"unknown status phase", "campaign: c1\nstatuses: {proxy_check: configured}"},
		{"event and command", "campaign: c1\nsteps: [{event: started, command: reset_ui, phase: discovery}]"},
		{"empty step", "campaign: c1\nsteps: [{}]"},
		{"bad event", "campaign: c1\nsteps: [{event: paused, phase: discovery}]"},
		{"event without phase", "campaign: c1\nsteps: [{event: started}]"},
		{"unknown command", "campaign: c1\nsteps: [{command: launch}]"},
		{"toggle without on", "campaign: c1\nsteps: [{command: set_preflight}]"},
		{"guidance without message", "campaign: c1\nsteps: [{command: push_guidance}]"},
		{"bad severity", "campaign: c1\nsteps: [{command: push_guidance, message: hi, severity: fatal}]"},
		{"dismiss without id", "campaign: c1\nsteps: [{command: dismiss_guidance}]"},
		{"set failed without phase", "campaign: c1\nsteps: [{command: set_last_failed}]"},
		{"bad expected mode", "campaign: c1\nexpect: {mode: paused}"},
		{"contradictory next action", "campaign: c1\nexpect: {no_next_action: true, next_action: {type: start, phase: discovery}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExpectCheckReportsMismatches(t *testing.T) {
	disabled := true
	e := &Expect{
		Mode:             "blocked",
		HintContains:     "Discovery",
		NextAction:       &ExpectAction{Type: "start", Phase: "discovery"},
		StartCTADisabled: &disabled,
		LastFailed:       "validation",
		GuidanceID:       "g1",
	}
	ov := &viewmodel.Overview{Mode: viewmodel.Mode{State: viewmodel.ModeManual}}

	assert.Len(t, e.Check(ov), 6)

	var nilExpect *Expect
	assert.Empty(t, nilExpect.Check(ov))
}
