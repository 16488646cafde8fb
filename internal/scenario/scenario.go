// Package scenario replays a scripted sequence of phase events and UI
// commands against a fresh controller and checks the resulting overview.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/npratt/pipedeck/internal/config"
	"github.com/npratt/pipedeck/internal/configstatus"
	"github.com/npratt/pipedeck/internal/controller"
	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/uistore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// ErrInvalidScenario wraps every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// Commands accepted in a step's command field.
const (
	CmdSetFullSequence = "set_full_sequence"
	CmdSelectPhase     = "select_phase"
	CmdSetPreflight    = "set_preflight"
	CmdPushGuidance    = "push_guidance"
	CmdDismissGuidance = "dismiss_guidance"
	CmdClearGuidance   = "clear_guidance"
	CmdSetLastFailed   = "set_last_failed"
	CmdDismissFailure  = "dismiss_failure"
	CmdResetUI         = "reset_ui"
	CmdResetExec       = "reset_exec"
	CmdStatuses        = "statuses"
)

// Scenario is a campaign's starting inputs plus the steps applied to it.
type Scenario struct {
	Name         string            `yaml:"name"`
	Campaign     string            `yaml:"campaign"`
	FullSequence bool              `yaml:"full_sequence"`
	Statuses     map[string]string `yaml:"statuses"` // phase name (internal or wire) -> server status
	Steps        []Step            `yaml:"steps"`
	Expect       *Expect           `yaml:"expect,omitempty"`
}

// Step is either a phase event or a UI command.
type Step struct {
	Event    string            `yaml:"event,omitempty"` // started, completed, failed
	Command  string            `yaml:"command,omitempty"`
	Phase    string            `yaml:"phase,omitempty"`
	Error    string            `yaml:"error,omitempty"`
	At       time.Time         `yaml:"at,omitempty"`
	On       *bool             `yaml:"on,omitempty"`
	ID       string            `yaml:"id,omitempty"`
	Message  string            `yaml:"message,omitempty"`
	Severity string            `yaml:"severity,omitempty"`
	Statuses map[string]string `yaml:"statuses,omitempty"`
}

// String renders the step for error messages.
func (s Step) String() string {
	if s.Event != "" {
		return fmt.Sprintf("event %s %s", s.Event, s.Phase)
	}
	if s.Phase != "" {
		return fmt.Sprintf("%s %s", s.Command, s.Phase)
	}
	return s.Command
}

// ExpectAction is the expected next action.
type ExpectAction struct {
	Type  string `yaml:"type"`
	Phase string `yaml:"phase"`
}

// Expect lists assertions on the final overview. Unset fields are not checked.
type Expect struct {
	Mode             string        `yaml:"mode,omitempty"`
	HintContains     string        `yaml:"hint_contains,omitempty"`
	NextAction       *ExpectAction `yaml:"next_action,omitempty"`
	NoNextAction     bool          `yaml:"no_next_action,omitempty"`
	StartCTADisabled *bool         `yaml:"start_cta_disabled,omitempty"`
	AllConfigured    *bool         `yaml:"all_configured,omitempty"`
	LastFailed       string        `yaml:"last_failed,omitempty"`
	GuidanceID       string        `yaml:"guidance_id,omitempty"`
}

// Parse decodes and validates a scenario document. Unknown fields are
// rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

// Validate checks that every phase, event and command is known.
func (s *Scenario) Validate() error {
	if s.Campaign == "" {
		return fmt.Errorf("%w: campaign is required", ErrInvalidScenario)
	}
	if _, err := configstatus.ResolveNames(s.Statuses); err != nil {
		return fmt.Errorf("%w: statuses: %v", ErrInvalidScenario, err)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidScenario, i+1, err)
		}
	}
	if s.Expect != nil {
		if err := s.Expect.validate(); err != nil {
			return fmt.Errorf("%w: expect: %v", ErrInvalidScenario, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch {
	case s.Event != "" && s.Command != "":
		return errors.New("event and command are mutually exclusive")
	case s.Event == "" && s.Command == "":
		return errors.New("event or command is required")
	case s.Event != "":
		if _, err := events.ParsePhaseType(s.Event); err != nil {
			return err
		}
		_, err := pipeline.Resolve(s.Phase)
		return err
	}

	switch s.Command {
	case CmdSetFullSequence, CmdSetPreflight:
		if s.On == nil {
			return fmt.Errorf("%s needs on", s.Command)
		}
	case CmdSelectPhase:
		if s.Phase != "" {
			_, err := pipeline.Resolve(s.Phase)
			return err
		}
	case CmdSetLastFailed:
		_, err := pipeline.Resolve(s.Phase)
		return err
	case CmdPushGuidance:
		if s.Message == "" {
			return uistore.ErrEmptyMessage
		}
		if _, err := uistore.ParseSeverity(s.Severity); err != nil {
			return err
		}
		if s.Phase != "" {
			_, err := pipeline.Resolve(s.Phase)
			return err
		}
	case CmdDismissGuidance:
		if s.ID == "" {
			return errors.New("dismiss_guidance needs id")
		}
	case CmdStatuses:
		_, err := configstatus.ResolveNames(s.Statuses)
		return err
	case CmdClearGuidance, CmdDismissFailure, CmdResetUI, CmdResetExec:
	default:
		return fmt.Errorf("unknown command %q", s.Command)
	}
	return nil
}

func (e *Expect) validate() error {
	if e.Mode != "" {
		switch viewmodel.ModeState(e.Mode) {
		case viewmodel.ModeManual, viewmodel.ModeBlocked, viewmodel.ModeWaitingStart,
			viewmodel.ModeInProgress, viewmodel.ModeCompleted:
		default:
			return fmt.Errorf("unknown mode %q", e.Mode)
		}
	}
	if e.NextAction != nil {
		if e.NoNextAction {
			return errors.New("next_action and no_next_action are mutually exclusive")
		}
		if _, err := pipeline.Resolve(e.NextAction.Phase); err != nil {
			return err
		}
	}
	if e.LastFailed != "" {
		if _, err := pipeline.Resolve(e.LastFailed); err != nil {
			return err
		}
	}
	return nil
}

// Replay runs s through a fresh controller configured from cfg and returns
// the campaign overview after the last step.
func Replay(ctx context.Context, cfg *config.Config, s *Scenario, logger *slog.Logger) (*viewmodel.Overview, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def, err := cfg.Definition()
	if err != nil {
		return nil, err
	}

	cache := configstatus.NewCache()
	if len(s.Statuses) > 0 {
		if _, err := cache.SetWire(s.Campaign, s.Statuses); err != nil {
			return nil, err
		}
	}

	ctrl := controller.New(cfg, def, cache, nil, logger.With("scenario", s.Name))
	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(runCtx) }()
	defer func() {
		cancel()
		<-ctrl.Done()
	}()

	if s.FullSequence {
		if err := ctrl.SetFullSequenceMode(runCtx, s.Campaign, true); err != nil {
			return nil, err
		}
	}
	for i, step := range s.Steps {
		if err := apply(runCtx, ctrl, cache, s.Campaign, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step, err)
		}
	}

	ov, err := ctrl.Overview(runCtx, s.Campaign)
	if err != nil {
		select {
		case rerr := <-runErr:
			if rerr != nil {
				return nil, rerr
			}
		default:
		}
		return nil, err
	}
	return ov, nil
}

func apply(ctx context.Context, ctrl *controller.Controller, cache *configstatus.Cache, id string, step Step) error {
	if step.Event != "" {
		t, err := events.ParsePhaseType(step.Event)
		if err != nil {
			return err
		}
		ev := events.NewPhaseEvent(t, id, step.Phase, step.At)
		ev.Error = step.Error
		return ctrl.ApplyPhaseEvent(ctx, ev)
	}

	switch step.Command {
	case CmdSetFullSequence:
		return ctrl.SetFullSequenceMode(ctx, id, *step.On)
	case CmdSetPreflight:
		return ctrl.SetPreflightOpen(ctx, id, *step.On)
	case CmdSelectPhase:
		k := pipeline.PhaseNone
		if step.Phase != "" {
			var err error
			if k, err = pipeline.Resolve(step.Phase); err != nil {
				return err
			}
		}
		return ctrl.SetSelectedPhase(ctx, id, k)
	case CmdSetLastFailed:
		k, err := pipeline.Resolve(step.Phase)
		if err != nil {
			return err
		}
		return ctrl.SetLastFailedPhase(ctx, id, k)
	case CmdPushGuidance:
		sev, err := uistore.ParseSeverity(step.Severity)
		if err != nil {
			return err
		}
		msg := uistore.GuidanceMessage{ID: step.ID, Message: step.Message, Severity: sev}
		if step.Phase != "" {
			if msg.Phase, err = pipeline.Resolve(step.Phase); err != nil {
				return err
			}
		}
		_, err = ctrl.PushGuidance(ctx, id, msg)
		return err
	case CmdDismissGuidance:
		return ctrl.DismissGuidance(ctx, id, step.ID)
	case CmdClearGuidance:
		return ctrl.ClearGuidance(ctx, id)
	case CmdDismissFailure:
		return ctrl.DismissFailure(ctx, id)
	case CmdResetUI:
		return ctrl.ResetCampaignUI(ctx, id)
	case CmdResetExec:
		return ctrl.ResetPipelineExec(ctx, id)
	case CmdStatuses:
		_, err := cache.SetWire(id, step.Statuses)
		return err
	}
	return fmt.Errorf("unknown command %q", step.Command)
}

// Check compares ov against the expectations and returns one line per
// mismatch. A nil Expect always passes.
func (e *Expect) Check(ov *viewmodel.Overview) []string {
	if e == nil {
		return nil
	}
	var out []string
	fail := func(format string, args ...any) {
		out = append(out, fmt.Sprintf(format, args...))
	}

	if e.Mode != "" && string(ov.Mode.State) != e.Mode {
		fail("mode = %s, want %s", ov.Mode.State, e.Mode)
	}
	if e.HintContains != "" && !strings.Contains(ov.Mode.Hint, e.HintContains) {
		fail("hint %q does not mention %q", ov.Mode.Hint, e.HintContains)
	}
	if e.NoNextAction && ov.NextAction != nil {
		fail("next action = %s %s, want none", ov.NextAction.Type, ov.NextAction.Phase)
	}
	if e.NextAction != nil {
		want, _ := pipeline.Resolve(e.NextAction.Phase)
		switch {
		case ov.NextAction == nil:
			fail("next action = none, want %s %s", e.NextAction.Type, want)
		case string(ov.NextAction.Type) != e.NextAction.Type || ov.NextAction.Phase != want:
			fail("next action = %s %s, want %s %s", ov.NextAction.Type, ov.NextAction.Phase, e.NextAction.Type, want)
		}
	}
	if e.StartCTADisabled != nil && ov.StartCTA.Disabled != *e.StartCTADisabled {
		fail("start disabled = %v, want %v", ov.StartCTA.Disabled, *e.StartCTADisabled)
	}
	if e.AllConfigured != nil && ov.Config.AllConfigured != *e.AllConfigured {
		fail("all configured = %v, want %v", ov.Config.AllConfigured, *e.AllConfigured)
	}
	if e.LastFailed != "" {
		want, _ := pipeline.Resolve(e.LastFailed)
		if ov.Failures.LastFailed != want {
			fail("last failed = %q, want %s", ov.Failures.LastFailed, want)
		}
	}
	if e.GuidanceID != "" {
		switch {
		case ov.Guidance.Latest == nil:
			fail("guidance = none, want %s", e.GuidanceID)
		case ov.Guidance.Latest.ID != e.GuidanceID:
			fail("guidance = %s, want %s", ov.Guidance.Latest.ID, e.GuidanceID)
		}
	}
	return out
}
