// Package configstatus holds the server-reported configuration status of
// each campaign phase. It is a read-only input to the overview engine.
package configstatus

import (
	"strings"

	"github.com/npratt/pipedeck/internal/pipeline"
)

// Status is the backend's configuration/lifecycle status for a phase.
type Status string

// Status values reported by the backend.
const (
	StatusNotStarted Status = "not_started"
	StatusConfigured Status = "configured"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ConfigState collapses Status into "does this phase have a configuration".
type ConfigState string

// ConfigState values.
const (
	ConfigMissing ConfigState = "missing"
	ConfigValid   ConfigState = "valid"
)

// Normalize maps a raw status string to a Status.
// Unrecognized or empty values become StatusNotStarted.
func Normalize(raw string) Status {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusConfigured, StatusRunning, StatusPaused, StatusCompleted, StatusFailed:
		return s
	default:
		return StatusNotStarted
	}
}

// ConfigState returns missing for not_started and valid for everything else.
func (s Status) ConfigState() ConfigState {
	if s == StatusNotStarted || s == "" {
		return ConfigMissing
	}
	return ConfigValid
}

// Snapshot is an immutable view of one campaign's phase statuses.
// Consumers compare snapshots by pointer identity; writers always install a
// new Snapshot instead of mutating one.
type Snapshot struct {
	raw    [pipeline.KeyCount]string
	status [pipeline.KeyCount]Status
}

// NewSnapshot builds a snapshot from raw status strings keyed by phase.
// Phases not present are reported as not_started with an empty raw value.
func NewSnapshot(raw map[pipeline.PhaseKey]string) *Snapshot {
	s := &Snapshot{}
	for i := range s.status {
		s.status[i] = StatusNotStarted
	}
	for k, v := range raw {
		if !k.Valid() {
			continue
		}
		s.raw[k] = v
		s.status[k] = Normalize(v)
	}
	return s
}

// Status returns the normalized status for the phase. A nil snapshot
// reports not_started for every phase.
func (s *Snapshot) Status(k pipeline.PhaseKey) Status {
	if s == nil || !k.Valid() {
		return StatusNotStarted
	}
	return s.status[k]
}

// Raw returns the status string exactly as the server reported it.
func (s *Snapshot) Raw(k pipeline.PhaseKey) string {
	if s == nil || !k.Valid() {
		return ""
	}
	return s.raw[k]
}

// Map returns the raw statuses of every phase that has one.
func (s *Snapshot) Map() map[pipeline.PhaseKey]string {
	out := make(map[pipeline.PhaseKey]string)
	if s == nil {
		return out
	}
	for _, k := range pipeline.AllKeys() {
		if s.raw[k] != "" {
			out[k] = s.raw[k]
		}
	}
	return out
}

// Equal reports whether two snapshots carry the same raw statuses.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.raw == o.raw
}

// Provider supplies the cached status snapshot for a campaign.
// A nil return means nothing is known about the campaign yet.
type Provider interface {
	Statuses(campaignID string) *Snapshot
}
