// Package execstore tracks the local execution runtime of campaign phases.
// Records change only through the three phase events and an explicit reset.
package execstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/npratt/pipedeck/internal/pipeline"
)

// Status is the execution state of one phase run.
type Status string

// Execution states.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Errors returned by the store.
var (
	ErrOutOfOrder    = errors.New("out-of-order phase event")
	ErrEmptyCampaign = errors.New("campaign id is required")
)

// Record is the runtime state of one (campaign, phase) pair.
type Record struct {
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Error       string    `json:"error,omitempty"`
}

// Duration returns CompletedAt - StartedAt when both timestamps are set.
func (r Record) Duration() (time.Duration, bool) {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0, false
	}
	return r.CompletedAt.Sub(r.StartedAt), true
}

func (r Record) status() Status {
	if r.Status == "" {
		return StatusIdle
	}
	return r.Status
}

// Slice is the immutable set of records for one campaign. The store never
// mutates a published Slice, so pointer equality means "nothing changed".
type Slice struct {
	records [pipeline.KeyCount]Record
}

// Record returns the record for k. Missing records are idle.
func (s *Slice) Record(k pipeline.PhaseKey) Record {
	if s == nil || !k.Valid() {
		return Record{Status: StatusIdle}
	}
	r := s.records[k]
	r.Status = r.status()
	return r
}

// Records returns every non-idle record keyed by phase.
func (s *Slice) Records() map[pipeline.PhaseKey]Record {
	out := make(map[pipeline.PhaseKey]Record)
	if s == nil {
		return out
	}
	for _, k := range pipeline.AllKeys() {
		if r := s.Record(k); r.Status != StatusIdle {
			out[k] = r
		}
	}
	return out
}

type eventKind string

const (
	eventStarted   eventKind = "started"
	eventCompleted eventKind = "completed"
	eventFailed    eventKind = "failed"
)

type transition int

const (
	// apply the event as delivered
	transApply transition = iota
	// start a fresh run: reset timestamps and error
	transNewRun
	// repeat of the current state
	transDuplicate
	// event that should not follow the current state
	transOutOfOrder
)

type transitionKey struct {
	from Status
	ev   eventKind
}

// transitions is the phase state machine: idle -> running -> completed|failed.
// A start after a terminal state is a retry and begins a new run.
var transitions = map[transitionKey]transition{
	{StatusIdle, eventStarted}:   transApply,
	{StatusIdle, eventCompleted}: transOutOfOrder,
	{StatusIdle, eventFailed}:    transOutOfOrder,

	{StatusRunning, eventStarted}:   transDuplicate,
	{StatusRunning, eventCompleted}: transApply,
	{StatusRunning, eventFailed}:    transApply,

	{StatusCompleted, eventStarted}:   transNewRun,
	{StatusCompleted, eventCompleted}: transDuplicate,
	{StatusCompleted, eventFailed}:    transOutOfOrder,

	{StatusFailed, eventStarted}:   transNewRun,
	{StatusFailed, eventCompleted}: transOutOfOrder,
	{StatusFailed, eventFailed}:    transDuplicate,
}

// Store holds execution records for every campaign.
type Store struct {
	mu        sync.RWMutex
	campaigns map[string]*Slice
	clock     func() time.Time
	strict    bool
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used when an event carries no timestamp.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithStrictTransitions makes out-of-order and duplicate terminal events
// return ErrOutOfOrder instead of being applied last-write-wins.
func WithStrictTransitions(strict bool) Option {
	return func(s *Store) {
		s.strict = strict
	}
}

// WithLogger sets the logger for transition diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		campaigns: make(map[string]*Slice),
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "execstore")
	return s
}

// PhaseStarted marks a phase running. StartedAt is only set when the run
// begins; repeated starts of a running phase change nothing.
// A zero ts uses the store clock. Reports whether the slice changed.
func (s *Store) PhaseStarted(campaignID string, k pipeline.PhaseKey, ts time.Time) (bool, error) {
	return s.apply(campaignID, k, eventStarted, "", ts)
}

// PhaseCompleted marks a phase completed at ts.
func (s *Store) PhaseCompleted(campaignID string, k pipeline.PhaseKey, ts time.Time) (bool, error) {
	return s.apply(campaignID, k, eventCompleted, "", ts)
}

// PhaseFailed marks a phase failed at ts with an optional error message.
func (s *Store) PhaseFailed(campaignID string, k pipeline.PhaseKey, errMsg string, ts time.Time) (bool, error) {
	return s.apply(campaignID, k, eventFailed, errMsg, ts)
}

func (s *Store) apply(campaignID string, k pipeline.PhaseKey, ev eventKind, errMsg string, ts time.Time) (bool, error) {
	if campaignID == "" {
		return false, ErrEmptyCampaign
	}
	if !k.Valid() {
		return false, fmt.Errorf("%w: %d", pipeline.ErrUnknownPhase, int(k))
	}
	if ts.IsZero() {
		ts = s.clock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.campaigns[campaignID]
	prev := cur.Record(k)
	trans := transitions[transitionKey{prev.Status, ev}]

	log := s.logger.With("campaign_id", campaignID, "phase", k.String(), "from", string(prev.Status), "event", string(ev))

	switch trans {
	case transDuplicate:
		if ev == eventStarted {
			log.Debug("duplicate start ignored")
			return false, nil
		}
		if s.strict {
			log.Warn("duplicate terminal event rejected")
			return false, fmt.Errorf("%w: %s already %s", ErrOutOfOrder, k, prev.Status)
		}
		log.Debug("duplicate terminal event, last write wins")
	case transOutOfOrder:
		if s.strict {
			log.Warn("out-of-order event rejected")
			return false, fmt.Errorf("%w: %s %s while %s", ErrOutOfOrder, k, ev, prev.Status)
		}
		log.Warn("out-of-order event, last write wins")
	}

	next := prev
	switch ev {
	case eventStarted:
		if trans == transNewRun {
			next = Record{}
		}
		next.Status = StatusRunning
		if next.StartedAt.IsZero() {
			next.StartedAt = ts
		}
		next.CompletedAt = time.Time{}
		next.Error = ""
	case eventCompleted:
		next.Status = StatusCompleted
		next.CompletedAt = ts
		next.Error = ""
	case eventFailed:
		next.Status = StatusFailed
		next.CompletedAt = ts
		next.Error = errMsg
	}

	if !next.StartedAt.IsZero() && next.CompletedAt.Before(next.StartedAt) && !next.CompletedAt.IsZero() {
		log.Warn("completion precedes start, clamping", "started_at", next.StartedAt, "completed_at", next.CompletedAt)
		next.CompletedAt = next.StartedAt
	}

	if next == prev {
		return false, nil
	}

	updated := &Slice{}
	if cur != nil {
		*updated = *cur
	}
	updated.records[k] = next
	s.campaigns[campaignID] = updated
	return true, nil
}

// ResetPipelineExec removes every record for the campaign.
// Reports whether anything was removed.
func (s *Store) ResetPipelineExec(campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[campaignID]; !ok {
		return false
	}
	delete(s.campaigns, campaignID)
	return true
}

// Record returns the record for (campaign, phase) without creating it.
func (s *Store) Record(campaignID string, k pipeline.PhaseKey) Record {
	return s.Slice(campaignID).Record(k)
}

// Slice returns the current immutable slice for the campaign, or nil.
func (s *Store) Slice(campaignID string) *Slice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.campaigns[campaignID]
}

// Campaigns returns the campaigns with at least one record, sorted.
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
