// Package viewmodel provides the derived Overview shared by the daemon,
// CLI and TUI.
package viewmodel

import (
	"github.com/npratt/pipedeck/internal/configstatus"
	"github.com/npratt/pipedeck/internal/execstore"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/uistore"
)

// ModeState is the full-sequence state of a campaign.
type ModeState string

// Mode states.
const (
	ModeManual       ModeState = "manual"
	ModeBlocked      ModeState = "blocked"
	ModeWaitingStart ModeState = "waiting_start"
	ModeInProgress   ModeState = "in_progress"
	ModeCompleted    ModeState = "completed"
)

// ActionType is the kind of recommended next action.
type ActionType string

// Action types.
const (
	ActionConfigure ActionType = "configure"
	ActionStart     ActionType = "start"
)

// OptionalDefaultsID identifies the synthesized guidance shown when only
// optional phases are unconfigured.
const OptionalDefaultsID = "optional-defaults"

// EnrichedPhase merges definition, config status and runtime for one phase.
type EnrichedPhase struct {
	Key         pipeline.PhaseKey        `json:"key"`
	Label       string                   `json:"label"`
	Order       int                      `json:"order"`
	Required    bool                     `json:"required"`
	ConfigState configstatus.ConfigState `json:"config_state"`
	ExecState   execstore.Status         `json:"exec_state"`
	Status      string                   `json:"status"` // raw server status
	Error       string                   `json:"error,omitempty"`
	DurationMs  *int64                   `json:"duration_ms,omitempty"` // nil unless both timestamps are set
}

// ConfigSection summarizes configuration readiness. Progress counts every
// phase; AllConfigured and FirstMissing consider required phases only.
type ConfigSection struct {
	Progress      float64           `json:"progress"`
	AllConfigured bool              `json:"all_configured"`
	FirstMissing  pipeline.PhaseKey `json:"first_missing,omitempty"`
}

// ExecSummary counts phases per execution state.
type ExecSummary struct {
	Total     int `json:"total"`
	Idle      int `json:"idle"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ExecSection summarizes execution progress.
type ExecSection struct {
	Progress float64      `json:"progress"`
	Summary  *ExecSummary `json:"summary"`
}

// Mode is the full-sequence mode with a human hint.
type Mode struct {
	State ModeState `json:"state"`
	Hint  string    `json:"hint,omitempty"`
}

// Guidance carries the single guidance entry to display, if any.
type Guidance struct {
	Latest *uistore.GuidanceMessage `json:"latest,omitempty"`
}

// Failures carries the last failed phase, if any.
type Failures struct {
	LastFailed pipeline.PhaseKey `json:"last_failed,omitempty"`
}

// NextAction is the single recommended next user action.
type NextAction struct {
	Type   ActionType        `json:"type"`
	Phase  pipeline.PhaseKey `json:"phase"`
	Reason string            `json:"reason,omitempty"`
}

// StartCTA gates the manual "start full sequence" action.
type StartCTA struct {
	Disabled bool     `json:"disabled"`
	Reasons  []string `json:"reasons"`
}

// Overview is the derived decision surface for one campaign. It is a pure
// function of its inputs and must be treated as read-only.
type Overview struct {
	CampaignID    string            `json:"campaign_id"`
	Phases        []EnrichedPhase   `json:"phases"`
	Config        ConfigSection     `json:"config"`
	Exec          ExecSection       `json:"exec"`
	Mode          Mode              `json:"mode"`
	Guidance      Guidance          `json:"guidance"`
	Failures      Failures          `json:"failures"`
	NextAction    *NextAction       `json:"next_action"`
	StartCTA      StartCTA          `json:"start_cta"`
	SelectedPhase pipeline.PhaseKey `json:"selected_phase,omitempty"`
	PreflightOpen bool              `json:"preflight_open"`
}

// Phase returns the enriched phase for k.
func (o *Overview) Phase(k pipeline.PhaseKey) (EnrichedPhase, bool) {
	if o == nil {
		return EnrichedPhase{}, false
	}
	for _, p := range o.Phases {
		if p.Key == k {
			return p, true
		}
	}
	return EnrichedPhase{}, false
}
