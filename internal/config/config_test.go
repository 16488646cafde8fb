package config

import (
	"errors"
	"testing"
	"time"

	"github.com/npratt/pipedeck/internal/pipeline"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}

func TestDefaultPipeline(t *testing.T) {
	def, err := Default().Definition()
	if err != nil {
		t.Fatalf("Definition() failed: %v", err)
	}

	want := map[pipeline.PhaseKey]bool{
		pipeline.PhaseDiscovery:  true,
		pipeline.PhaseValidation: true,
		pipeline.PhaseEnrichment: false,
		pipeline.PhaseExtraction: true,
		pipeline.PhaseAnalysis:   false,
	}
	if def.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", def.Len(), len(want))
	}
	for k, required := range want {
		if got := def.IsRequired(k); got != required {
			t.Errorf("IsRequired(%s) = %v, want %v", k, got, required)
		}
	}
}

func TestDefaultUIConfig(t *testing.T) {
	cfg := Default()

	if cfg.UI.DefaultFullSequence {
		t.Error("UI.DefaultFullSequence = true, want false")
	}
	if cfg.UI.MaxGuidance != 50 {
		t.Errorf("UI.MaxGuidance = %d, want 50", cfg.UI.MaxGuidance)
	}
	if !cfg.UI.FailureGuidance {
		t.Error("UI.FailureGuidance = false, want true")
	}
}

func TestDefaultFeedConfig(t *testing.T) {
	cfg := Default()

	if cfg.Feed.StatusFile != ".pipedeck/status.json" {
		t.Errorf("Feed.StatusFile = %q", cfg.Feed.StatusFile)
	}
	if cfg.Feed.EventsFile != "" {
		t.Errorf("Feed.EventsFile = %q, want empty", cfg.Feed.EventsFile)
	}
	if cfg.Feed.Debounce != 100*time.Millisecond {
		t.Errorf("Feed.Debounce = %v, want 100ms", cfg.Feed.Debounce)
	}
}

func TestDefaultPathsConfig(t *testing.T) {
	cfg := Default()

	if cfg.Paths.Log != ".pipedeck/pipedeck.log" {
		t.Errorf("Paths.Log = %q", cfg.Paths.Log)
	}
	if cfg.Paths.Journal != ".pipedeck/events.jsonl" {
		t.Errorf("Paths.Journal = %q", cfg.Paths.Journal)
	}
	if cfg.Paths.Socket != ".pipedeck/pipedeck.sock" {
		t.Errorf("Paths.Socket = %q", cfg.Paths.Socket)
	}
	if cfg.Paths.PID != ".pipedeck/pipedeck.pid" {
		t.Errorf("Paths.PID = %q", cfg.Paths.PID)
	}
}

func TestDefinitionErrors(t *testing.T) {
	tests := []struct {
		name     string
		phases   []string
		optional []string
		wantErr  error
	}{
		{"unknown phase", []string{"discovery", "proxy_check"}, nil, pipeline.ErrUnknownPhase},
		{"duplicate phase", []string{"discovery", "discovery"}, nil, pipeline.ErrInvalidDefinition},
		{"empty", nil, nil, pipeline.ErrInvalidDefinition},
		{"optional not in phases", []string{"discovery"}, []string{"analysis"}, pipeline.ErrInvalidDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Pipeline.Phases = tt.phases
			cfg.Pipeline.Optional = tt.optional
			if _, err := cfg.Definition(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Definition() err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefinitionAcceptsWireNames(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Phases = []string{"domain_generation", "dns_validation", "http_keyword_validation"}
	cfg.Pipeline.Optional = []string{"http_keyword_validation"}

	def, err := cfg.Definition()
	if err != nil {
		t.Fatalf("Definition() failed: %v", err)
	}
	if def.IsRequired(pipeline.PhaseExtraction) {
		t.Error("extraction should be optional")
	}
	if def.OrderOf(pipeline.PhaseValidation) != 1 {
		t.Errorf("OrderOf(validation) = %d, want 1", def.OrderOf(pipeline.PhaseValidation))
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.UI.MaxGuidance = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative max_guidance")
	}

	cfg = Default()
	cfg.Feed.Debounce = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative debounce")
	}
}
