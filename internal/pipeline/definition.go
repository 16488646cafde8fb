// Package pipeline defines the ordered campaign phases and their requiredness.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// PhaseKey identifies one stage of the campaign pipeline.
// The zero value PhaseNone means "no phase".
type PhaseKey int

// Phase keys. KeyCount sizes arrays indexed by PhaseKey.
const (
	PhaseNone PhaseKey = iota
	PhaseDiscovery
	PhaseValidation
	PhaseEnrichment
	PhaseExtraction
	PhaseAnalysis

	KeyCount = int(PhaseAnalysis) + 1
)

var phaseNames = [KeyCount]string{
	PhaseNone:       "",
	PhaseDiscovery:  "discovery",
	PhaseValidation: "validation",
	PhaseEnrichment: "enrichment",
	PhaseExtraction: "extraction",
	PhaseAnalysis:   "analysis",
}

var phaseLabels = [KeyCount]string{
	PhaseNone:       "",
	PhaseDiscovery:  "Discovery",
	PhaseValidation: "Validation",
	PhaseEnrichment: "Enrichment",
	PhaseExtraction: "Extraction",
	PhaseAnalysis:   "Analysis",
}

// Sentinel errors.
var (
	ErrUnknownPhase      = errors.New("unknown phase")
	ErrInvalidDefinition = errors.New("invalid pipeline definition")
)

// AllKeys returns every known phase key in canonical order.
func AllKeys() []PhaseKey {
	return []PhaseKey{PhaseDiscovery, PhaseValidation, PhaseEnrichment, PhaseExtraction, PhaseAnalysis}
}

// Valid reports whether k is one of the known phases.
func (k PhaseKey) Valid() bool {
	return k > PhaseNone && int(k) < KeyCount
}

// String returns the internal name of the phase.
func (k PhaseKey) String() string {
	if k >= PhaseNone && int(k) < KeyCount {
		return phaseNames[k]
	}
	return fmt.Sprintf("phase(%d)", int(k))
}

// Label returns the human-readable name, e.g. "Discovery".
func (k PhaseKey) Label() string {
	if k.Valid() {
		return phaseLabels[k]
	}
	return k.String()
}

// MarshalText encodes the key by name.
func (k PhaseKey) MarshalText() ([]byte, error) {
	if k != PhaseNone && !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes an internal phase name. Empty text yields PhaseNone.
func (k *PhaseKey) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = PhaseNone
		return nil
	}
	parsed, err := ParsePhaseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePhaseKey parses an internal phase name (case-insensitive).
func ParsePhaseKey(s string) (PhaseKey, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i := 1; i < KeyCount; i++ {
		if phaseNames[i] == name {
			return PhaseKey(i), nil
		}
	}
	return PhaseNone, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// Phase is one entry of a Definition.
type Phase struct {
	Key      PhaseKey `json:"key"`
	Order    int      `json:"order"`
	Required bool     `json:"required"`
}

// Definition is an immutable, validated ordered list of phases.
type Definition struct {
	phases []Phase
	index  [KeyCount]int // position+1 in phases; 0 when absent
}

// New validates the phases and builds a Definition.
// Keys must be known and unique, and orders must form the sequence 0..n-1.
func New(phases ...Phase) (*Definition, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: no phases", ErrInvalidDefinition)
	}

	d := &Definition{phases: make([]Phase, len(phases))}
	for _, p := range phases {
		if !p.Key.Valid() {
			return nil, fmt.Errorf("%w: %w: %s", ErrInvalidDefinition, ErrUnknownPhase, p.Key)
		}
		if p.Order < 0 || p.Order >= len(phases) {
			return nil, fmt.Errorf("%w: phase %s has order %d outside 0..%d",
				ErrInvalidDefinition, p.Key, p.Order, len(phases)-1)
		}
		if d.index[p.Key] != 0 {
			return nil, fmt.Errorf("%w: duplicate phase %s", ErrInvalidDefinition, p.Key)
		}
		if d.phases[p.Order].Key != PhaseNone {
			return nil, fmt.Errorf("%w: phases %s and %s share order %d",
				ErrInvalidDefinition, d.phases[p.Order].Key, p.Key, p.Order)
		}
		d.phases[p.Order] = p
		d.index[p.Key] = p.Order + 1
	}
	return d, nil
}

// FromKeys builds a Definition in the given order. Keys listed in optional
// are marked not required.
func FromKeys(keys []PhaseKey, optional ...PhaseKey) (*Definition, error) {
	opt := make(map[PhaseKey]bool, len(optional))
	for _, k := range optional {
		opt[k] = true
	}
	phases := make([]Phase, len(keys))
	for i, k := range keys {
		phases[i] = Phase{Key: k, Order: i, Required: !opt[k]}
	}
	return New(phases...)
}

// Default returns the standard campaign pipeline. Enrichment and analysis
// are optional and run with defaults when left unconfigured.
func Default() *Definition {
	d, err := FromKeys(AllKeys(), PhaseEnrichment, PhaseAnalysis)
	if err != nil {
		panic(err)
	}
	return d
}

// Phases returns a copy of the phases in order.
func (d *Definition) Phases() []Phase {
	out := make([]Phase, len(d.phases))
	copy(out, d.phases)
	return out
}

// Len returns the number of phases.
func (d *Definition) Len() int {
	return len(d.phases)
}

// Contains reports whether the phase is part of the definition.
func (d *Definition) Contains(k PhaseKey) bool {
	return k.Valid() && d.index[k] != 0
}

// IsRequired reports whether the phase must be configured before it can run.
// Unknown phases are reported as not required.
func (d *Definition) IsRequired(k PhaseKey) bool {
	if !d.Contains(k) {
		return false
	}
	return d.phases[d.index[k]-1].Required
}

// OrderOf returns the position of the phase, or -1 if it is not defined.
func (d *Definition) OrderOf(k PhaseKey) int {
	if !d.Contains(k) {
		return -1
	}
	return d.index[k] - 1
}

// NextOf returns the phase after k, or false when k is last or unknown.
func (d *Definition) NextOf(k PhaseKey) (PhaseKey, bool) {
	i := d.OrderOf(k)
	if i < 0 || i+1 >= len(d.phases) {
		return PhaseNone, false
	}
	return d.phases[i+1].Key, true
}

// First returns the first phase key.
func (d *Definition) First() PhaseKey {
	return d.phases[0].Key
}

// Validate re-checks the structural invariants. A Definition built by New
// always passes; a zero Definition does not.
func (d *Definition) Validate() error {
	if d == nil || len(d.phases) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidDefinition)
	}
	for i, p := range d.phases {
		if !p.Key.Valid() || p.Order != i || d.index[p.Key] != i+1 {
			return fmt.Errorf("%w: corrupt entry at %d", ErrInvalidDefinition, i)
		}
	}
	return nil
}
