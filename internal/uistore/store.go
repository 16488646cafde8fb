// Package uistore holds ephemeral per-campaign UI preferences: the
// full-sequence toggle, the selected phase, the preflight dialog, the
// guidance queue and the last failed phase.
package uistore

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/npratt/pipedeck/internal/pipeline"
)

// Severity of a guidance message.
type Severity string

// Severity values.
const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
)

// DefaultMaxGuidance bounds the guidance queue per campaign.
const DefaultMaxGuidance = 50

// Errors returned by the store.
var (
	ErrInvalidSeverity = errors.New("invalid guidance severity")
	ErrEmptyMessage    = errors.New("guidance message is empty")
	ErrEmptyCampaign   = errors.New("campaign id is required")
)

// ParseSeverity accepts "info" and "warn" ("warning" is an alias).
// Empty input is info.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "", string(SeverityInfo):
		return SeverityInfo, nil
	case string(SeverityWarn), "warning":
		return SeverityWarn, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// GuidanceMessage is one advisory entry.
type GuidanceMessage struct {
	ID       string            `json:"id"`
	Message  string            `json:"message"`
	Phase    pipeline.PhaseKey `json:"phase,omitempty"`
	Severity Severity          `json:"severity"`
}

// State is the UI state of one campaign. Published States are never
// mutated; every change installs a new pointer.
type State struct {
	FullSequenceMode bool              `json:"full_sequence_mode"`
	SelectedPhase    pipeline.PhaseKey `json:"selected_phase,omitempty"`
	PreflightOpen    bool              `json:"preflight_open"`
	GuidanceQueue    []GuidanceMessage `json:"guidance_queue"`
	LastFailedPhase  pipeline.PhaseKey `json:"last_failed_phase,omitempty"`
}

// Latest returns the most recently pushed guidance entry.
func (s *State) Latest() (GuidanceMessage, bool) {
	if s == nil || len(s.GuidanceQueue) == 0 {
		return GuidanceMessage{}, false
	}
	return s.GuidanceQueue[len(s.GuidanceQueue)-1], true
}

func (s *State) clone() *State {
	c := *s
	c.GuidanceQueue = slices.Clone(s.GuidanceQueue)
	return &c
}

// Store holds UI state for every campaign.
type Store struct {
	mu           sync.RWMutex
	campaigns    map[string]*State
	maxGuidance  int
	fullSequence bool
	newID        func() string
}

// Option configures a Store.
type Option func(*Store)

// WithMaxGuidance caps the guidance queue. Oldest entries are dropped first.
func WithMaxGuidance(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxGuidance = n
		}
	}
}

// WithDefaultFullSequence sets the full-sequence flag of new campaigns.
func WithDefaultFullSequence(on bool) Option {
	return func(s *Store) {
		s.fullSequence = on
	}
}

// WithIDGenerator replaces the guidance ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		campaigns:   make(map[string]*State),
		maxGuidance: DefaultMaxGuidance,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Default returns the state a campaign has before any command.
func (s *Store) Default() State {
	return State{FullSequenceMode: s.fullSequence}
}

// Snapshot returns the published state pointer for the campaign, or nil
// when the campaign has default state.
func (s *Store) Snapshot(campaignID string) *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.campaigns[campaignID]
}

// State returns a copy of the campaign's state, defaults included.
func (s *Store) State(campaignID string) State {
	if st := s.Snapshot(campaignID); st != nil {
		return *st.clone()
	}
	return s.Default()
}

// update applies fn to a copy of the campaign state and publishes it when
// fn reports a change.
func (s *Store) update(campaignID string, fn func(*State) (bool, error)) (bool, error) {
	if campaignID == "" {
		return false, ErrEmptyCampaign
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.campaigns[campaignID]
	var next *State
	if cur != nil {
		next = cur.clone()
	} else {
		d := s.Default()
		next = &d
	}

	changed, err := fn(next)
	if err != nil || !changed {
		return false, err
	}
	s.campaigns[campaignID] = next
	return true, nil
}

// SetFullSequenceMode toggles automatic phase chaining.
func (s *Store) SetFullSequenceMode(campaignID string, on bool) (bool, error) {
	return s.update(campaignID, func(st *State) (bool, error) {
		if st.FullSequenceMode == on {
			return false, nil
		}
		st.FullSequenceMode = on
		return true, nil
	})
}

// SetSelectedPhase selects a phase. PhaseNone clears the selection.
func (s *Store) SetSelectedPhase(campaignID string, k pipeline.PhaseKey) (bool, error) {
	if k != pipeline.PhaseNone && !k.Valid() {
		return false, fmt.Errorf("%w: %d", pipeline.ErrUnknownPhase, int(k))
	}
	return s.update(campaignID, func(st *State) (bool, error) {
		if st.SelectedPhase == k {
			return false, nil
		}
		st.SelectedPhase = k
		return true, nil
	})
}

// SetPreflightOpen opens or closes the preflight dialog.
func (s *Store) SetPreflightOpen(campaignID string, open bool) (bool, error) {
	return s.update(campaignID, func(st *State) (bool, error) {
		if st.PreflightOpen == open {
			return false, nil
		}
		st.PreflightOpen = open
		return true, nil
	})
}

// PushGuidanceMessage appends msg to the queue and returns the stored entry.
// An empty ID is generated. Pushing an existing ID replaces that entry and
// moves it to the tail, so it becomes the latest.
func (s *Store) PushGuidanceMessage(campaignID string, msg GuidanceMessage) (GuidanceMessage, error) {
	if msg.Message == "" {
		return GuidanceMessage{}, ErrEmptyMessage
	}
	sev, err := ParseSeverity(string(msg.Severity))
	if err != nil {
		return GuidanceMessage{}, err
	}
	msg.Severity = sev
	if msg.Phase != pipeline.PhaseNone && !msg.Phase.Valid() {
		return GuidanceMessage{}, fmt.Errorf("%w: %d", pipeline.ErrUnknownPhase, int(msg.Phase))
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}

	_, err = s.update(campaignID, func(st *State) (bool, error) {
		st.GuidanceQueue = slices.DeleteFunc(st.GuidanceQueue, func(g GuidanceMessage) bool {
			return g.ID == msg.ID
		})
		st.GuidanceQueue = append(st.GuidanceQueue, msg)
		if over := len(st.GuidanceQueue) - s.maxGuidance; over > 0 {
			st.GuidanceQueue = slices.Delete(st.GuidanceQueue, 0, over)
		}
		return true, nil
	})
	if err != nil {
		return GuidanceMessage{}, err
	}
	return msg, nil
}

// DismissGuidance removes the entry with the given ID.
func (s *Store) DismissGuidance(campaignID, id string) (bool, error) {
	return s.update(campaignID, func(st *State) (bool, error) {
		n := len(st.GuidanceQueue)
		st.GuidanceQueue = slices.DeleteFunc(st.GuidanceQueue, func(g GuidanceMessage) bool {
			return g.ID == id
		})
		return len(st.GuidanceQueue) != n, nil
	})
}

// ClearGuidance empties the guidance queue.
func (s *Store) ClearGuidance(campaignID string) (bool, error) {
	return s.update(campaignID, func(st *State) (bool, error) {
		if len(st.GuidanceQueue) == 0 {
			return false, nil
		}
		st.GuidanceQueue = nil
		return true, nil
	})
}

// SetGuidance sets the single current guidance message; nil clears it.
//
// Deprecated: the guidance queue is the only source of truth. SetGuidance
// clears the queue and pushes msg; use PushGuidanceMessage instead.
func (s *Store) SetGuidance(campaignID string, msg *GuidanceMessage) (bool, error) {
	if msg == nil {
		return s.ClearGuidance(campaignID)
	}
	if _, err := s.ClearGuidance(campaignID); err != nil {
		return false, err
	}
	if _, err := s.PushGuidanceMessage(campaignID, *msg); err != nil {
		return false, err
	}
	return true, nil
}

// SetLastFailedPhase records the most recent failed phase.
func (s *Store) SetLastFailedPhase(campaignID string, k pipeline.PhaseKey) (bool, error) {
	if !k.Valid() {
		return false, fmt.Errorf("%w: %d", pipeline.ErrUnknownPhase, int(k))
	}
	return s.update(campaignID, func(st *State) (bool, error) {
		if st.LastFailedPhase == k {
			return false, nil
		}
		st.LastFailedPhase = k
		return true, nil
	})
}

// DismissFailure clears the last failed phase.
func (s *Store) DismissFailure(campaignID string) (bool, error) {
	return s.update(campaignID, func(st *State) (bool, error) {
		if st.LastFailedPhase == pipeline.PhaseNone {
			return false, nil
		}
		st.LastFailedPhase = pipeline.PhaseNone
		return true, nil
	})
}

// ResetCampaignUI drops the campaign's entry, returning it to defaults.
func (s *Store) ResetCampaignUI(campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[campaignID]; !ok {
		return false
	}
	delete(s.campaigns, campaignID)
	return true
}

// Campaigns returns campaigns with non-default state, sorted.
func (s *Store) Campaigns() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
