package daemon

import (
	"encoding/json"
	"fmt"
	"time"
)

// RPC method names.
const (
	MethodStatus          = "status"
	MethodStop            = "stop"
	MethodOverview        = "overview"
	MethodCampaigns       = "campaigns"
	MethodSetFullSequence = "set_full_sequence"
	MethodSelectPhase     = "select_phase"
	MethodSetPreflight    = "set_preflight"
	MethodPushGuidance    = "push_guidance"
	MethodDismissGuidance = "dismiss_guidance"
	MethodClearGuidance   = "clear_guidance"
	MethodSetLastFailed   = "set_last_failed"
	MethodDismissFailure  = "dismiss_failure"
	MethodResetUI         = "reset_ui"
	MethodResetExec       = "reset_exec"
	MethodPhaseEvent      = "phase_event"
)

// Request represents a JSON-RPC request from a client.
type Request struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
	ID     int    `json:"id,omitempty"`
}

// Response represents a JSON-RPC response to a client.
type Response struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	ID     int    `json:"id,omitempty"`
}

// StatusResponse contains daemon status information.
type StatusResponse struct {
	Status    string      `json:"status"`
	Uptime    string      `json:"uptime"`
	StartTime string      `json:"start_time"`
	PID       int         `json:"pid"`
	Phases    []string    `json:"phases"`
	Stats     StatusStats `json:"stats"`
}

// StatusStats contains dispatcher and feed counters.
type StatusStats struct {
	Applied       uint64 `json:"applied"`
	Rejected      uint64 `json:"rejected"`
	CacheHits     uint64 `json:"cache_hits"`
	CacheMisses   uint64 `json:"cache_misses"`
	CacheEntries  int    `json:"cache_entries"`
	FeedLines     uint64 `json:"feed_lines,omitempty"`
	FeedForwarded uint64 `json:"feed_forwarded,omitempty"`
	FeedMalformed uint64 `json:"feed_malformed,omitempty"`
	FeedRejected  uint64 `json:"feed_rejected,omitempty"`
	EventsEmitted uint64 `json:"events_emitted,omitempty"`
	EventsDropped uint64 `json:"events_dropped,omitempty"`
}

// StopParams contains parameters for the stop method.
type StopParams struct {
	Force bool `json:"force,omitempty"`
}

// CampaignParams addresses a campaign.
type CampaignParams struct {
	CampaignID string `json:"campaign_id"`
}

// FullSequenceParams toggles full-sequence mode.
type FullSequenceParams struct {
	CampaignID string `json:"campaign_id"`
	On         bool   `json:"on"`
}

// PreflightParams opens or closes the preflight dialog.
type PreflightParams struct {
	CampaignID string `json:"campaign_id"`
	Open       bool   `json:"open"`
}

// PhaseParams addresses one phase of a campaign. Phase may use either
// vocabulary; empty clears where the method allows it.
type PhaseParams struct {
	CampaignID string `json:"campaign_id"`
	Phase      string `json:"phase"`
}

// GuidanceParams enqueues a guidance message.
type GuidanceParams struct {
	CampaignID string `json:"campaign_id"`
	ID         string `json:"id,omitempty"`
	Message    string `json:"message"`
	Phase      string `json:"phase,omitempty"`
	Severity   string `json:"severity,omitempty"`
}

// DismissGuidanceParams removes one guidance entry.
type DismissGuidanceParams struct {
	CampaignID string `json:"campaign_id"`
	ID         string `json:"id"`
}

// PhaseEventParams carries a push-channel phase transition.
type PhaseEventParams struct {
	CampaignID string    `json:"campaign_id"`
	Phase      string    `json:"phase"`
	Type       string    `json:"type"` // started, completed or failed
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
}

// convert re-encodes a decoded JSON value into a typed struct.
func convert(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
