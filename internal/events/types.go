// Package events defines the event taxonomy for pipedeck: phase transitions
// delivered by the push channel, status feed refreshes and overview change
// notifications.
package events

import (
	"fmt"
	"strings"
	"time"
)

// EventType identifies the category and nature of an event.
type EventType string

const (
	// Phase transition events (push channel)
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	// Config status feed refreshed
	EventConfigChanged EventType = "config.changed"

	// Derived overview for a campaign may have changed
	EventOverviewChanged EventType = "overview.changed"

	// Error events
	EventError      EventType = "error"
	EventParseError EventType = "error.parse"
)

// Source constants identify the origin of events.
const (
	SourcePush     = "push"
	SourceFeed     = "feed"
	SourceInternal = "pipedeck"
)

// Event is the base interface for all events in the system.
type Event interface {
	Type() EventType
	Timestamp() time.Time
	Source() string
}

// BaseEvent provides the common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	Time      time.Time `json:"timestamp"`
	Src       string    `json:"source"`
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// Source returns the origin of the event.
func (e BaseEvent) Source() string {
	return e.Src
}

// PhaseEvent is a phase transition for one (campaign, phase) pair.
// Phase is kept as delivered and may use either the internal or the
// backend vocabulary; the dispatcher resolves it.
type PhaseEvent struct {
	BaseEvent
	CampaignID string `json:"campaign_id"`
	Phase      string `json:"phase"`
	Error      string `json:"error,omitempty"`
}

// ConfigChangedEvent is emitted when the status feed reloads a campaign.
type ConfigChangedEvent struct {
	BaseEvent
	CampaignID string `json:"campaign_id"`
}

// OverviewChangedEvent is emitted after a mutation touched a campaign.
type OverviewChangedEvent struct {
	BaseEvent
	CampaignID string `json:"campaign_id"`
	Cause      string `json:"cause"`
}

// Severity constants for error events.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ErrorEvent is emitted for any error condition.
type ErrorEvent struct {
	BaseEvent
	Message    string            `json:"message"`
	Severity   string            `json:"severity"`
	CampaignID string            `json:"campaign_id,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// ParseErrorEvent is emitted when a push line cannot be parsed.
type ParseErrorEvent struct {
	BaseEvent
	Line  string `json:"line"`
	Error string `json:"error"`
}

// NewEvent creates a BaseEvent with the given type and source.
func NewEvent(eventType EventType, source string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
		Src:       source,
	}
}

// NewInternalEvent creates a BaseEvent with pipedeck as the source.
func NewInternalEvent(eventType EventType) BaseEvent {
	return NewEvent(eventType, SourceInternal)
}

// NewPhaseEvent builds a push-sourced phase transition event.
// A zero ts leaves the timestamp for the receiver to fill in.
func NewPhaseEvent(eventType EventType, campaignID, phase string, ts time.Time) *PhaseEvent {
	return &PhaseEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Time:      ts,
			Src:       SourcePush,
		},
		CampaignID: campaignID,
		Phase:      phase,
	}
}

// IsPhaseTransition reports whether t is one of the three phase events.
func IsPhaseTransition(t EventType) bool {
	switch t {
	case EventPhaseStarted, EventPhaseCompleted, EventPhaseFailed:
		return true
	}
	return false
}

// phaseTypeNames accepts short names as well as event type strings.
var phaseTypeNames = map[string]EventType{
	"started":   EventPhaseStarted,
	"completed": EventPhaseCompleted,
	"failed":    EventPhaseFailed,

	string(EventPhaseStarted):   EventPhaseStarted,
	string(EventPhaseCompleted): EventPhaseCompleted,
	string(EventPhaseFailed):    EventPhaseFailed,
}

// ParsePhaseType maps a transition name such as "started" or
// "phase.failed" to its event type.
func ParsePhaseType(s string) (EventType, error) {
	t, ok := phaseTypeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown phase transition %q (want started, completed or failed)", s)
	}
	return t, nil
}
