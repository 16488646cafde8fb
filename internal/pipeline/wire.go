package pipeline

import "strings"

// Wire phase names used by the campaign backend.
const (
	WireDomainGeneration      = "domain_generation"
	WireDNSValidation         = "dns_validation"
	WireHTTPKeywordValidation = "http_keyword_validation"
	WireAnalysis              = "analysis"
)

// toWire has no entry for enrichment: the backend runs it inside extraction.
var toWire = map[PhaseKey]string{
	PhaseDiscovery:  WireDomainGeneration,
	PhaseValidation: WireDNSValidation,
	PhaseExtraction: WireHTTPKeywordValidation,
	PhaseAnalysis:   WireAnalysis,
}

var fromWire = func() map[string]PhaseKey {
	m := make(map[string]PhaseKey, len(toWire))
	for k, w := range toWire {
		m[w] = k
	}
	return m
}()

// ToWire returns the backend name for an internal phase key.
func ToWire(k PhaseKey) (string, bool) {
	w, ok := toWire[k]
	return w, ok
}

// FromWire returns the internal key for a backend phase name.
func FromWire(name string) (PhaseKey, bool) {
	k, ok := fromWire[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// Resolve accepts a phase name in either vocabulary. Internal names win
// when a name exists in both (analysis).
func Resolve(name string) (PhaseKey, error) {
	if k, err := ParsePhaseKey(name); err == nil {
		return k, nil
	}
	if k, ok := FromWire(name); ok {
		return k, nil
	}
	return ParsePhaseKey(name)
}
