// Package controller is the single-writer dispatcher for pipedeck. It owns
// the execution and UI stores, applies push-channel phase events and serves
// overview reads, all from one goroutine.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/npratt/pipedeck/internal/config"
	"github.com/npratt/pipedeck/internal/configstatus"
	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/execstore"
	"github.com/npratt/pipedeck/internal/overview"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/uistore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// ErrStopped is returned for commands issued after Run has returned.
var ErrStopped = errors.New("controller stopped")

// State represents the controller's current state.
type State string

// Controller states.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// campaignLister is implemented by providers that know their campaigns.
type campaignLister interface {
	Campaigns() []string
}

type command struct {
	fn    func() error
	reply chan error
}

// Controller serializes every mutation and read through Run.
type Controller struct {
	def    *pipeline.Definition
	exec   *execstore.Store
	ui     *uistore.Store
	status configstatus.Provider
	engine *overview.Engine
	router *events.Router
	logger *slog.Logger

	failureGuidance bool

	inbound  <-chan events.Event
	commands chan command
	done     chan struct{}
	runOnce  sync.Once

	state   State
	stateMu sync.RWMutex

	applied  atomic.Uint64
	rejected atomic.Uint64
}

// New creates a Controller with stores configured from cfg.
// status may be nil when no config status feed is available.
func New(cfg *config.Config, def *pipeline.Definition, status configstatus.Provider, router *events.Router, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = configstatus.NewCache()
	}

	exec := execstore.New(
		execstore.WithStrictTransitions(cfg.Exec.StrictTransitions),
		execstore.WithLogger(logger),
	)
	ui := uistore.New(
		uistore.WithMaxGuidance(cfg.UI.MaxGuidance),
		uistore.WithDefaultFullSequence(cfg.UI.DefaultFullSequence),
	)
	engine := overview.NewEngine(def,
		overview.WithStrict(cfg.Engine.Strict),
		overview.WithDefaultUI(ui.Default()),
		overview.WithLogger(logger),
	)

	buf := cfg.Engine.CommandBuffer
	if buf <= 0 {
		buf = 1
	}

	// Only refresh signals come through the router. Phase events must not
	// be lost, so producers call ApplyPhaseEvent, which waits for Run.
	var inbound <-chan events.Event
	if router != nil {
		inbound = router.SubscribeTypes(events.ControllerBufferSize, events.EventConfigChanged)
	}

	return &Controller{
		inbound:         inbound,
		def:             def,
		exec:            exec,
		ui:              ui,
		status:          status,
		engine:          engine,
		router:          router,
		logger:          logger.With("component", "controller"),
		failureGuidance: cfg.UI.FailureGuidance,
		commands:        make(chan command, buf),
		done:            make(chan struct{}),
		state:           StateIdle,
	}
}

// Run processes commands and config refresh signals until ctx is
// cancelled.
// It must be called at most once.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("controller already ran")
	}

	inbound := c.inbound
	if inbound != nil {
		defer c.router.Unsubscribe(inbound)
	}

	c.setState(StateRunning)
	c.logger.Info("dispatcher started", "phases", c.def.Len())
	defer func() {
		c.setState(StateStopped)
		close(c.done)
		c.logger.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-c.commands:
			cmd.reply <- cmd.fn()

		case ev, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			if cc, isConfig := ev.(*events.ConfigChangedEvent); isConfig {
				c.overviewChanged(cc.CampaignID, string(cc.Type()))
			}
		}
	}
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// do runs fn on the dispatcher goroutine and waits for its result.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.commands <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		// Run may have exited after accepting the command.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mutate runs a store mutation and announces the change.
func (c *Controller) mutate(ctx context.Context, campaignID, cause string, fn func() (bool, error)) error {
	return c.do(ctx, func() error {
		changed, err := fn()
		if err != nil {
			c.rejected.Add(1)
			return err
		}
		if changed {
			c.applied.Add(1)
			c.overviewChanged(campaignID, cause)
		}
		return nil
	})
}

// SetFullSequenceMode toggles automatic phase chaining for a campaign.
func (c *Controller) SetFullSequenceMode(ctx context.Context, campaignID string, on bool) error {
	return c.mutate(ctx, campaignID, "set_full_sequence", func() (bool, error) {
		return c.ui.SetFullSequenceMode(campaignID, on)
	})
}

// SetSelectedPhase selects a phase; PhaseNone clears the selection.
func (c *Controller) SetSelectedPhase(ctx context.Context, campaignID string, k pipeline.PhaseKey) error {
	if k != pipeline.PhaseNone && !c.def.Contains(k) {
		return fmt.Errorf("%w: %s is not part of the pipeline", pipeline.ErrUnknownPhase, k)
	}
	return c.mutate(ctx, campaignID, "select_phase", func() (bool, error) {
		return c.ui.SetSelectedPhase(campaignID, k)
	})
}

// SetPreflightOpen opens or closes the preflight dialog.
func (c *Controller) SetPreflightOpen(ctx context.Context, campaignID string, open bool) error {
	return c.mutate(ctx, campaignID, "set_preflight", func() (bool, error) {
		return c.ui.SetPreflightOpen(campaignID, open)
	})
}

// PushGuidance enqueues a guidance message and returns the stored entry.
func (c *Controller) PushGuidance(ctx context.Context, campaignID string, msg uistore.GuidanceMessage) (uistore.GuidanceMessage, error) {
	var stored uistore.GuidanceMessage
	err := c.mutate(ctx, campaignID, "push_guidance", func() (bool, error) {
		var err error
		stored, err = c.ui.PushGuidanceMessage(campaignID, msg)
		return err == nil, err
	})
	return stored, err
}

// DismissGuidance removes one guidance entry.
func (c *Controller) DismissGuidance(ctx context.Context, campaignID, id string) error {
	return c.mutate(ctx, campaignID, "dismiss_guidance", func() (bool, error) {
		return c.ui.DismissGuidance(campaignID, id)
	})
}

// ClearGuidance empties the guidance queue.
func (c *Controller) ClearGuidance(ctx context.Context, campaignID string) error {
	return c.mutate(ctx, campaignID, "clear_guidance", func() (bool, error) {
		return c.ui.ClearGuidance(campaignID)
	})
}

// SetLastFailedPhase records a failure without touching the runtime store.
func (c *Controller) SetLastFailedPhase(ctx context.Context, campaignID string, k pipeline.PhaseKey) error {
	if k != pipeline.PhaseNone && !c.def.Contains(k) {
		return fmt.Errorf("%w: %s is not part of the pipeline", pipeline.ErrUnknownPhase, k)
	}
	return c.mutate(ctx, campaignID, "set_last_failed", func() (bool, error) {
		return c.ui.SetLastFailedPhase(campaignID, k)
	})
}

// DismissFailure clears the last failed phase and the warn entry that
// announced it.
func (c *Controller) DismissFailure(ctx context.Context, campaignID string) error {
	return c.mutate(ctx, campaignID, "dismiss_failure", func() (bool, error) {
		failed := c.ui.State(campaignID).LastFailedPhase
		changed, err := c.ui.DismissFailure(campaignID)
		if err != nil || failed == pipeline.PhaseNone {
			return changed, err
		}
		dropped, err := c.ui.DismissGuidance(campaignID, FailureGuidanceID(failed))
		return changed || dropped, err
	})
}

// ResetCampaignUI returns the campaign's UI state to defaults.
func (c *Controller) ResetCampaignUI(ctx context.Context, campaignID string) error {
	return c.mutate(ctx, campaignID, "reset_ui", func() (bool, error) {
		c.engine.Forget(campaignID)
		return c.ui.ResetCampaignUI(campaignID), nil
	})
}

// ResetPipelineExec drops every execution record of the campaign.
func (c *Controller) ResetPipelineExec(ctx context.Context, campaignID string) error {
	return c.mutate(ctx, campaignID, "reset_exec", func() (bool, error) {
		c.engine.Forget(campaignID)
		return c.exec.ResetPipelineExec(campaignID), nil
	})
}

// ApplyPhaseEvent applies a phase transition synchronously. The feed
// tailer calls it for every pushed event, so a burst waits on the
// dispatcher instead of overflowing a subscriber buffer.
func (c *Controller) ApplyPhaseEvent(ctx context.Context, ev *events.PhaseEvent) error {
	if ev == nil {
		return errors.New("nil phase event")
	}
	return c.do(ctx, func() error {
		return c.applyPhaseEvent(ev)
	})
}

// applyPhaseEvent runs on the dispatcher goroutine.
func (c *Controller) applyPhaseEvent(ev *events.PhaseEvent) error {
	if ev.CampaignID == "" {
		c.rejected.Add(1)
		return execstore.ErrEmptyCampaign
	}
	k, err := pipeline.Resolve(ev.Phase)
	if err != nil {
		c.rejected.Add(1)
		return err
	}
	if !c.def.Contains(k) {
		c.rejected.Add(1)
		return fmt.Errorf("%w: %s is not part of the pipeline", pipeline.ErrUnknownPhase, k)
	}

	var changed bool
	switch ev.Type() {
	case events.EventPhaseStarted:
		changed, err = c.exec.PhaseStarted(ev.CampaignID, k, ev.Timestamp())
	case events.EventPhaseCompleted:
		changed, err = c.exec.PhaseCompleted(ev.CampaignID, k, ev.Timestamp())
		if err == nil {
			changed = c.clearFailureGuidance(ev.CampaignID, k) || changed
		}
	case events.EventPhaseFailed:
		changed, err = c.exec.PhaseFailed(ev.CampaignID, k, ev.Error, ev.Timestamp())
		if err == nil {
			changed = c.recordFailure(ev.CampaignID, k, ev.Error) || changed
		}
	default:
		err = fmt.Errorf("not a phase event: %s", ev.Type())
	}
	if err != nil {
		c.rejected.Add(1)
		return err
	}

	c.logger.Debug("phase event applied",
		"campaign_id", ev.CampaignID,
		"phase", k.String(),
		"event_type", ev.Type(),
		"changed", changed,
	)
	if changed {
		c.applied.Add(1)
		c.overviewChanged(ev.CampaignID, string(ev.Type()))
	}
	return nil
}

// recordFailure surfaces a failure as lastFailedPhase plus a warn entry.
func (c *Controller) recordFailure(campaignID string, k pipeline.PhaseKey, errMsg string) bool {
	changed, err := c.ui.SetLastFailedPhase(campaignID, k)
	if err != nil {
		c.logger.Warn("set last failed phase", "campaign_id", campaignID, "error", err)
	}
	if !c.failureGuidance {
		return changed
	}

	msg := fmt.Sprintf("%s failed. Start it again to retry.", k.Label())
	if errMsg != "" {
		msg = fmt.Sprintf("%s failed: %s. Start it again to retry.", k.Label(), events.Truncate(errMsg, 200))
	}
	if _, err := c.ui.PushGuidanceMessage(campaignID, uistore.GuidanceMessage{
		ID:       FailureGuidanceID(k),
		Message:  msg,
		Phase:    k,
		Severity: uistore.SeverityWarn,
	}); err != nil {
		c.logger.Warn("push failure guidance", "campaign_id", campaignID, "error", err)
		return changed
	}
	return true
}

// clearFailureGuidance drops the retry hint of k once k has completed.
func (c *Controller) clearFailureGuidance(campaignID string, k pipeline.PhaseKey) bool {
	dropped, err := c.ui.DismissGuidance(campaignID, FailureGuidanceID(k))
	if err != nil {
		c.logger.Warn("dismiss failure guidance", "campaign_id", campaignID, "error", err)
	}
	return dropped
}

// FailureGuidanceID is the guidance ID used for failures of phase k.
// Repeated failures replace the previous entry.
func FailureGuidanceID(k pipeline.PhaseKey) string {
	return "phase-failed-" + k.String()
}

// Overview returns the derived overview for a campaign.
func (c *Controller) Overview(ctx context.Context, campaignID string) (*viewmodel.Overview, error) {
	var out *viewmodel.Overview
	err := c.do(ctx, func() error {
		out = c.derive(campaignID)
		return nil
	})
	return out, err
}

func (c *Controller) derive(campaignID string) *viewmodel.Overview {
	return c.engine.Derive(overview.Inputs{
		CampaignID: campaignID,
		Config:     c.status.Statuses(campaignID),
		Exec:       c.exec.Slice(campaignID),
		UI:         c.ui.Snapshot(campaignID),
	})
}

// Campaigns returns every campaign known to any input, sorted.
func (c *Controller) Campaigns(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, func() error {
		seen := make(map[string]bool)
		add := func(ids []string) {
			for _, id := range ids {
				seen[id] = true
			}
		}
		if l, ok := c.status.(campaignLister); ok {
			add(l.Campaigns())
		}
		add(c.exec.Campaigns())
		add(c.ui.Campaigns())

		out = make([]string, 0, len(seen))
		for id := range seen {
			out = append(out, id)
		}
		sort.Strings(out)
		return nil
	})
	return out, err
}

// Stats holds dispatcher counters.
type Stats struct {
	State    State          `json:"state"`
	Applied  uint64         `json:"applied"`
	Rejected uint64         `json:"rejected"`
	Engine   overview.Stats `json:"engine"`
}

// Stats returns current counters. Safe to call from any goroutine.
func (c *Controller) Stats() Stats {
	return Stats{
		State:    c.State(),
		Applied:  c.applied.Load(),
		Rejected: c.rejected.Load(),
		Engine:   c.engine.Stats(),
	}
}

// Definition returns the pipeline definition.
func (c *Controller) Definition() *pipeline.Definition {
	return c.def
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Controller) overviewChanged(campaignID, cause string) {
	c.emit(&events.OverviewChangedEvent{
		BaseEvent:  events.NewInternalEvent(events.EventOverviewChanged),
		CampaignID: campaignID,
		Cause:      cause,
	})
}

// emit sends an event to the router if available.
func (c *Controller) emit(event events.Event) {
	if c.router != nil {
		c.router.Emit(event)
	}
}
