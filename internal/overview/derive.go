// Package overview derives the per-campaign Overview from the pipeline
// definition, server config statuses, local execution runtime and UI state.
package overview

import (
	"fmt"

	"github.com/npratt/pipedeck/internal/configstatus"
	"github.com/npratt/pipedeck/internal/execstore"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/uistore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// OptionalDefaultsMessage is the text of the synthesized optional-defaults entry.
const OptionalDefaultsMessage = "Optional phase(s) will run with default settings if not configured."

// NeedsConfigurationReason is the reason attached to a configure action.
const NeedsConfigurationReason = "Needs configuration"

// Inputs are the three independently updated state slices for one campaign.
// Nil slices mean "nothing known yet".
type Inputs struct {
	CampaignID string
	Config     *configstatus.Snapshot
	Exec       *execstore.Slice
	UI         *uistore.State
}

// Compute derives an Overview without memoization. It fails only when the
// definition is structurally invalid.
func Compute(def *pipeline.Definition, in Inputs) (*viewmodel.Overview, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	ui := in.UI
	if ui == nil {
		ui = &uistore.State{}
	}

	defs := def.Phases()
	out := &viewmodel.Overview{
		CampaignID:    in.CampaignID,
		Phases:        make([]viewmodel.EnrichedPhase, len(defs)),
		SelectedPhase: ui.SelectedPhase,
		PreflightOpen: ui.PreflightOpen,
	}

	summary := &viewmodel.ExecSummary{Total: len(defs)}
	valid := 0
	for i, p := range defs {
		ep := enrich(p, in.Config, in.Exec)
		out.Phases[i] = ep

		if ep.ConfigState == configstatus.ConfigValid {
			valid++
		}
		switch ep.ExecState {
		case execstore.StatusRunning:
			summary.Running++
		case execstore.StatusCompleted:
			summary.Completed++
		case execstore.StatusFailed:
			summary.Failed++
		default:
			summary.Idle++
		}
	}

	total := float64(len(defs))
	out.Config.Progress = float64(valid) / total
	out.Exec.Progress = float64(summary.Completed) / total
	out.Exec.Summary = summary

	// Configuration gate over required phases.
	out.Config.AllConfigured = true
	out.StartCTA.Reasons = []string{}
	for _, ep := range out.Phases {
		if !ep.Required || ep.ConfigState != configstatus.ConfigMissing {
			continue
		}
		if out.Config.AllConfigured {
			out.Config.AllConfigured = false
			out.Config.FirstMissing = ep.Key
		}
		out.StartCTA.Reasons = append(out.StartCTA.Reasons, fmt.Sprintf("%s needs configuration", ep.Label))
	}
	out.StartCTA.Disabled = !out.Config.AllConfigured

	out.NextAction = nextAction(out.Phases)
	out.Mode = mode(out, ui.FullSequenceMode)
	out.Guidance = guidance(out, ui)
	out.Failures.LastFailed = ui.LastFailedPhase

	return out, nil
}

func enrich(p pipeline.Phase, cfg *configstatus.Snapshot, exec *execstore.Slice) viewmodel.EnrichedPhase {
	status := cfg.Status(p.Key)
	raw := cfg.Raw(p.Key)
	if raw == "" {
		raw = string(status)
	}
	rec := exec.Record(p.Key)

	ep := viewmodel.EnrichedPhase{
		Key:         p.Key,
		Label:       p.Key.Label(),
		Order:       p.Order,
		Required:    p.Required,
		ConfigState: status.ConfigState(),
		ExecState:   execState(rec.Status, status),
		Status:      raw,
		Error:       rec.Error,
	}
	if d, ok := rec.Duration(); ok {
		v := d.Milliseconds()
		ep.DurationMs = &v
	}
	return ep
}

// execState merges the local runtime with the server status. A local
// record that has seen any event wins; otherwise terminal and running
// server statuses carry through.
func execState(local execstore.Status, server configstatus.Status) execstore.Status {
	if local != execstore.StatusIdle && local != "" {
		return local
	}
	switch server {
	case configstatus.StatusRunning:
		return execstore.StatusRunning
	case configstatus.StatusCompleted:
		return execstore.StatusCompleted
	case configstatus.StatusFailed:
		return execstore.StatusFailed
	}
	return execstore.StatusIdle
}

// NextRunnable returns the first phase that is not completed and is either
// configured or optional.
func NextRunnable(phases []viewmodel.EnrichedPhase) (viewmodel.EnrichedPhase, bool) {
	for _, ep := range phases {
		if ep.ExecState == execstore.StatusCompleted {
			continue
		}
		if ep.ConfigState == configstatus.ConfigValid || !ep.Required {
			return ep, true
		}
	}
	return viewmodel.EnrichedPhase{}, false
}

// frontier returns the first phase that is not completed.
func frontier(phases []viewmodel.EnrichedPhase) (viewmodel.EnrichedPhase, bool) {
	for _, ep := range phases {
		if ep.ExecState != execstore.StatusCompleted {
			return ep, true
		}
	}
	return viewmodel.EnrichedPhase{}, false
}

// nextAction never skips past an unconfigured required phase: the
// pipeline cannot advance beyond it, so it must be configured first.
func nextAction(phases []viewmodel.EnrichedPhase) *viewmodel.NextAction {
	front, ok := frontier(phases)
	if !ok {
		return nil
	}
	if front.Required && front.ConfigState == configstatus.ConfigMissing {
		return &viewmodel.NextAction{
			Type:   viewmodel.ActionConfigure,
			Phase:  front.Key,
			Reason: NeedsConfigurationReason,
		}
	}
	next, ok := NextRunnable(phases)
	if !ok || next.ExecState == execstore.StatusRunning {
		return nil
	}
	return &viewmodel.NextAction{Type: viewmodel.ActionStart, Phase: next.Key}
}

func mode(o *viewmodel.Overview, fullSequence bool) viewmodel.Mode {
	if !fullSequence {
		return viewmodel.Mode{State: viewmodel.ModeManual}
	}
	if !o.Config.AllConfigured {
		return viewmodel.Mode{
			State: viewmodel.ModeBlocked,
			Hint:  fmt.Sprintf("Configure %s to run the full sequence.", o.Config.FirstMissing.Label()),
		}
	}

	s := o.Exec.Summary
	if s.Completed == s.Total {
		return viewmodel.Mode{State: viewmodel.ModeCompleted, Hint: "All phases completed."}
	}
	if s.Running == 0 && s.Completed == 0 {
		first := o.Phases[0]
		if next, ok := NextRunnable(o.Phases); ok {
			first = next
		}
		return viewmodel.Mode{
			State: viewmodel.ModeWaitingStart,
			Hint:  fmt.Sprintf("Start %s to begin the full sequence.", first.Label),
		}
	}

	for _, ep := range o.Phases {
		if ep.ExecState == execstore.StatusRunning {
			return viewmodel.Mode{
				State: viewmodel.ModeInProgress,
				Hint:  fmt.Sprintf("%s is running.", ep.Label),
			}
		}
	}
	hint := "Waiting for the next phase."
	if front, ok := frontier(o.Phases); ok {
		if front.ExecState == execstore.StatusFailed {
			hint = fmt.Sprintf("%s failed. Start it again to continue.", front.Label)
		} else {
			hint = fmt.Sprintf("%s is next.", front.Label)
		}
	}
	return viewmodel.Mode{State: viewmodel.ModeInProgress, Hint: hint}
}

// guidance prefers the latest explicit entry. The optional-defaults entry
// is synthesized only when the queue is empty, every required phase is
// configured and some optional phase is not.
func guidance(o *viewmodel.Overview, ui *uistore.State) viewmodel.Guidance {
	if latest, ok := ui.Latest(); ok {
		return viewmodel.Guidance{Latest: &latest}
	}
	if !o.Config.AllConfigured {
		return viewmodel.Guidance{}
	}
	for _, ep := range o.Phases {
		if !ep.Required && ep.ConfigState == configstatus.ConfigMissing {
			return viewmodel.Guidance{Latest: &uistore.GuidanceMessage{
				ID:       viewmodel.OptionalDefaultsID,
				Message:  OptionalDefaultsMessage,
				Severity: uistore.SeverityInfo,
			}}
		}
	}
	return viewmodel.Guidance{}
}

// Fallback is the safe overview returned when derivation cannot run.
func Fallback(campaignID string, cause error) *viewmodel.Overview {
	reason := "Pipeline definition is unavailable"
	if cause != nil {
		reason = fmt.Sprintf("Pipeline definition is unavailable: %v", cause)
	}
	return &viewmodel.Overview{
		CampaignID: campaignID,
		Phases:     []viewmodel.EnrichedPhase{},
		Exec:       viewmodel.ExecSection{Summary: &viewmodel.ExecSummary{}},
		Mode:       viewmodel.Mode{State: viewmodel.ModeManual, Hint: "Pipeline state unknown."},
		StartCTA:   viewmodel.StartCTA{Disabled: true, Reasons: []string{reason}},
	}
}
