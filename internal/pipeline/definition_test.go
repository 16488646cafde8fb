package pipeline

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDefault(t *testing.T) {
	d := Default()
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if d.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", d.Len())
	}

	tests := []struct {
		key      PhaseKey
		order    int
		required bool
	}{
		{PhaseDiscovery, 0, true},
		{PhaseValidation, 1, true},
		{PhaseEnrichment, 2, false},
		{PhaseExtraction, 3, true},
		{PhaseAnalysis, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			if got := d.OrderOf(tt.key); got != tt.order {
				t.Errorf("OrderOf = %d, want %d", got, tt.order)
			}
			if got := d.IsRequired(tt.key); got != tt.required {
				t.Errorf("IsRequired = %v, want %v", got, tt.required)
			}
		})
	}
}

func TestNextOf(t *testing.T) {
	d := Default()

	next, ok := d.NextOf(PhaseDiscovery)
	if !ok || next != PhaseValidation {
		t.Errorf("NextOf(discovery) = %v, %v; want validation, true", next, ok)
	}
	if _, ok := d.NextOf(PhaseAnalysis); ok {
		t.Error("NextOf(analysis) should report no next phase")
	}
	if _, ok := d.NextOf(PhaseNone); ok {
		t.Error("NextOf(none) should report no next phase")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		phases []Phase
	}{
		{"empty", nil},
		{"unknown key", []Phase{{Key: PhaseKey(42), Order: 0}}},
		{"none key", []Phase{{Key: PhaseNone, Order: 0}}},
		{"duplicate key", []Phase{
			{Key: PhaseDiscovery, Order: 0},
			{Key: PhaseDiscovery, Order: 1},
		}},
		{"gap in order", []Phase{
			{Key: PhaseDiscovery, Order: 0},
			{Key: PhaseValidation, Order: 2},
		}},
		{"shared order", []Phase{
			{Key: PhaseDiscovery, Order: 1},
			{Key: PhaseValidation, Order: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.phases...)
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("New() error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func TestNew_OutOfOrderInput(t *testing.T) {
	d, err := New(
		Phase{Key: PhaseValidation, Order: 1, Required: true},
		Phase{Key: PhaseDiscovery, Order: 0, Required: true},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if d.First() != PhaseDiscovery {
		t.Errorf("First() = %v, want discovery", d.First())
	}
	if d.Contains(PhaseAnalysis) {
		t.Error("Contains(analysis) = true for a two-phase definition")
	}
	if d.OrderOf(PhaseAnalysis) != -1 {
		t.Errorf("OrderOf(analysis) = %d, want -1", d.OrderOf(PhaseAnalysis))
	}
}

func TestZeroDefinitionFailsValidate(t *testing.T) {
	var d Definition
	if err := d.Validate(); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("Validate() = %v, want ErrInvalidDefinition", err)
	}
	var nilDef *Definition
	if err := nilDef.Validate(); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("nil Validate() = %v, want ErrInvalidDefinition", err)
	}
}

func TestPhaseKeyText(t *testing.T) {
	data, err := json.Marshal(map[string]PhaseKey{"phase": PhaseEnrichment})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"phase":"enrichment"}` {
		t.Errorf("Marshal = %s", data)
	}

	var out struct {
		Phase PhaseKey `json:"phase"`
	}
	if err := json.Unmarshal([]byte(`{"phase":"Extraction"}`), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Phase != PhaseExtraction {
		t.Errorf("Phase = %v, want extraction", out.Phase)
	}

	if err := json.Unmarshal([]byte(`{"phase":"nope"}`), &out); !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("Unmarshal unknown = %v, want ErrUnknownPhase", err)
	}
}

func TestLabel(t *testing.T) {
	if got := PhaseDiscovery.Label(); got != "Discovery" {
		t.Errorf("Label() = %q, want Discovery", got)
	}
}

func TestWireTable(t *testing.T) {
	for _, k := range AllKeys() {
		w, ok := ToWire(k)
		if k == PhaseEnrichment {
			if ok {
				t.Errorf("ToWire(enrichment) = %q, want no mapping", w)
			}
			continue
		}
		if !ok {
			t.Errorf("ToWire(%s) missing", k)
			continue
		}
		back, ok := FromWire(w)
		if !ok || back != k {
			t.Errorf("FromWire(%q) = %v, %v; want %v", w, back, ok, k)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		in   string
		want PhaseKey
	}{
		{"discovery", PhaseDiscovery},
		{"domain_generation", PhaseDiscovery},
		{"DNS_VALIDATION", PhaseValidation},
		{"http_keyword_validation", PhaseExtraction},
		{"analysis", PhaseAnalysis},
		{"enrichment", PhaseEnrichment},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("Resolve(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := Resolve("lead_generation"); !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("Resolve(unknown) error = %v, want ErrUnknownPhase", err)
	}
}
