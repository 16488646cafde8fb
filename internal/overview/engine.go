package overview

import (
	"log/slog"
	"sync"

	"github.com/npratt/pipedeck/internal/configstatus"
	"github.com/npratt/pipedeck/internal/execstore"
	"github.com/npratt/pipedeck/internal/pipeline"
	"github.com/npratt/pipedeck/internal/uistore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

// memo is the single cached result for one campaign, keyed by the
// identity of the three input slices.
type memo struct {
	cfg  *configstatus.Snapshot
	exec *execstore.Slice
	ui   *uistore.State
	out  *viewmodel.Overview
}

// Stats reports memoization counters.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Engine derives overviews with a single-slot cache per campaign.
// Returned overviews are shared between callers and must not be modified.
type Engine struct {
	def       *pipeline.Definition
	strict    bool
	defaultUI uistore.State
	logger    *slog.Logger

	mu     sync.Mutex
	cache  map[string]*memo
	hits   uint64
	misses uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrict makes invariant violations panic instead of degrading to a
// safe manual overview.
func WithStrict(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithDefaultUI sets the UI state assumed for campaigns with no UI entry.
func WithDefaultUI(st uistore.State) Option {
	return func(e *Engine) {
		e.defaultUI = st
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine for the definition.
func NewEngine(def *pipeline.Definition, opts ...Option) *Engine {
	e := &Engine{
		def:    def,
		cache:  make(map[string]*memo),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "overview")
	return e
}

// Definition returns the pipeline definition the engine derives against.
func (e *Engine) Definition() *pipeline.Definition {
	return e.def
}

// Derive returns the Overview for the inputs. When all three input
// pointers are unchanged since the previous call for the campaign, the
// previous Overview is returned as is. Exec.Summary keeps its pointer
// whenever its counts are unchanged. A campaign with no inputs at all is
// not cached, so lookups of unknown IDs do not grow the memo.
func (e *Engine) Derive(in Inputs) *viewmodel.Overview {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.cache[in.CampaignID]
	if prev != nil && prev.cfg == in.Config && prev.exec == in.Exec && prev.ui == in.UI {
		e.hits++
		return prev.out
	}
	e.misses++

	key := memo{cfg: in.Config, exec: in.Exec, ui: in.UI}
	if in.UI == nil {
		ui := e.defaultUI
		in.UI = &ui
	}

	out, err := Compute(e.def, in)
	if err != nil {
		if e.strict {
			panic(err)
		}
		e.logger.Error("overview derivation failed, using fallback", "campaign_id", in.CampaignID, "error", err)
		return Fallback(in.CampaignID, err)
	}

	if prev != nil && prev.out.Exec.Summary != nil && *prev.out.Exec.Summary == *out.Exec.Summary {
		out.Exec.Summary = prev.out.Exec.Summary
	}

	if key.cfg == nil && key.exec == nil && key.ui == nil {
		delete(e.cache, in.CampaignID)
		return out
	}
	key.out = out
	e.cache[in.CampaignID] = &key
	return out
}

// Forget drops the cached overview for a campaign.
func (e *Engine) Forget(campaignID string) {
	e.mu.Lock()
	delete(e.cache, campaignID)
	e.mu.Unlock()
}

// Stats returns the memoization counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{Hits: e.hits, Misses: e.misses, Entries: len(e.cache)}
}
