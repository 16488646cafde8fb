package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/uistore"
)

var errNoController = errors.New("no controller available")

// handleRequest dispatches the request to the appropriate handler.
func (d *Daemon) handleRequest(ctx context.Context, req *Request) Response {
	switch req.Method {
	case MethodStatus:
		return d.handleStatus()
	case MethodStop:
		return d.handleStop(req)
	}

	if d.controller == nil {
		return errorResponse(errNoController)
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case MethodOverview:
		result, err = d.handleOverview(ctx, req)
	case MethodCampaigns:
		result, err = d.controller.Campaigns(ctx)
	case MethodSetFullSequence:
		var p FullSequenceParams
		if err = convert(req.Params, &p); err == nil {
			err = d.controller.SetFullSequenceMode(ctx, p.CampaignID, p.On)
		}
	case MethodSelectPhase:
		err = d.withPhase(req, true, func(id string, k pipeline.PhaseKey) error {
			return d.controller.SetSelectedPhase(ctx, id, k)
		})
	case MethodSetPreflight:
		var p PreflightParams
		if err = convert(req.Params, &p); err == nil {
			err = d.controller.SetPreflightOpen(ctx, p.CampaignID, p.Open)
		}
	case MethodPushGuidance:
		result, err = d.handlePushGuidance(ctx, req)
	case MethodDismissGuidance:
		var p DismissGuidanceParams
		if err = convert(req.Params, &p); err == nil {
			err = d.controller.DismissGuidance(ctx, p.CampaignID, p.ID)
		}
	case MethodClearGuidance:
		err = d.withCampaign(req, func(id string) error { return d.controller.ClearGuidance(ctx, id) })
	case MethodSetLastFailed:
		err = d.withPhase(req, false, func(id string, k pipeline.PhaseKey) error {
			return d.controller.SetLastFailedPhase(ctx, id, k)
		})
	case MethodDismissFailure:
		err = d.withCampaign(req, func(id string) error { return d.controller.DismissFailure(ctx, id) })
	case MethodResetUI:
		err = d.withCampaign(req, func(id string) error { return d.controller.ResetCampaignUI(ctx, id) })
	case MethodResetExec:
		err = d.withCampaign(req, func(id string) error { return d.controller.ResetPipelineExec(ctx, id) })
	case MethodPhaseEvent:
		err = d.handlePhaseEvent(ctx, req)
	default:
		return Response{Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	if err != nil {
		d.logger.Debug("request failed", "method", req.Method, "error", err)
		return errorResponse(err)
	}
	if result == nil {
		result = "ok"
	}
	return Response{Result: result}
}

func errorResponse(err error) Response {
	return Response{Error: err.Error()}
}

func (d *Daemon) withCampaign(req *Request, fn func(id string) error) error {
	var p CampaignParams
	if err := convert(req.Params, &p); err != nil {
		return err
	}
	if p.CampaignID == "" {
		return uistore.ErrEmptyCampaign
	}
	return fn(p.CampaignID)
}

func (d *Daemon) withPhase(req *Request, allowEmpty bool, fn func(id string, k pipeline.PhaseKey) error) error {
	var p PhaseParams
	if err := convert(req.Params, &p); err != nil {
		return err
	}
	if p.Phase == "" && allowEmpty {
		return fn(p.CampaignID, pipeline.PhaseNone)
	}
	k, err := pipeline.Resolve(p.Phase)
	if err != nil {
		return err
	}
	return fn(p.CampaignID, k)
}

// handleStatus returns the current daemon status.
func (d *Daemon) handleStatus() Response {
	if d.controller == nil {
		return errorResponse(errNoController)
	}

	stats := d.controller.Stats()

	d.mu.RLock()
	startTime := d.startTime
	tailer := d.feed
	router := d.router
	d.mu.RUnlock()

	phases := make([]string, 0, d.controller.Definition().Len())
	for _, p := range d.controller.Definition().Phases() {
		phases = append(phases, p.Key.String())
	}

	resp := StatusResponse{
		Status:    string(stats.State),
		Uptime:    time.Since(startTime).Truncate(time.Second).String(),
		StartTime: startTime.Format(time.RFC3339),
		PID:       os.Getpid(),
		Phases:    phases,
		Stats: StatusStats{
			Applied:      stats.Applied,
			Rejected:     stats.Rejected,
			CacheHits:    stats.Engine.Hits,
			CacheMisses:  stats.Engine.Misses,
			CacheEntries: stats.Engine.Entries,
		},
	}
	if router != nil {
		rs := router.Stats()
		resp.Stats.EventsEmitted = rs.Emitted
		resp.Stats.EventsDropped = rs.Dropped
	}
	if tailer != nil {
		fs := tailer.Stats()
		resp.Stats.FeedLines = fs.Lines
		resp.Stats.FeedForwarded = fs.Forwarded
		resp.Stats.FeedMalformed = fs.Malformed
		resp.Stats.FeedRejected = fs.Rejected
	}
	return Response{Result: resp}
}

// handleStop schedules daemon shutdown.
func (d *Daemon) handleStop(req *Request) Response {
	var p StopParams
	if req.Params != nil {
		if err := convert(req.Params, &p); err != nil {
			return errorResponse(err)
		}
	}

	delay := 100 * time.Millisecond
	if p.Force {
		delay = 0
	}
	// Let the response reach the client before the listener closes.
	time.AfterFunc(delay, d.requestStop)

	return Response{Result: "stopping"}
}

func (d *Daemon) handleOverview(ctx context.Context, req *Request) (any, error) {
	var p CampaignParams
	if err := convert(req.Params, &p); err != nil {
		return nil, err
	}
	if p.CampaignID == "" {
		return nil, uistore.ErrEmptyCampaign
	}
	return d.controller.Overview(ctx, p.CampaignID)
}

func (d *Daemon) handlePushGuidance(ctx context.Context, req *Request) (any, error) {
	var p GuidanceParams
	if err := convert(req.Params, &p); err != nil {
		return nil, err
	}
	sev, err := uistore.ParseSeverity(p.Severity)
	if err != nil {
		return nil, err
	}
	msg := uistore.GuidanceMessage{ID: p.ID, Message: p.Message, Severity: sev}
	if p.Phase != "" {
		if msg.Phase, err = pipeline.Resolve(p.Phase); err != nil {
			return nil, err
		}
	}
	return d.controller.PushGuidance(ctx, p.CampaignID, msg)
}

func (d *Daemon) handlePhaseEvent(ctx context.Context, req *Request) error {
	var p PhaseEventParams
	if err := convert(req.Params, &p); err != nil {
		return err
	}
	t, err := events.ParsePhaseType(p.Type)
	if err != nil {
		return err
	}
	ev := events.NewPhaseEvent(t, p.CampaignID, p.Phase, p.Timestamp)
	ev.Error = p.Error
	return d.controller.ApplyPhaseEvent(ctx, ev)
}
