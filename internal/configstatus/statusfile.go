package configstatus

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/npratt/pipedeck/internal/pipeline"
)

// ParseStatusFile decodes {"campaign-id": {"phase": "status", ...}, ...}.
// Phase names may use either vocabulary. Unknown phases are skipped and
// logged rather than failing the whole file.
func ParseStatusFile(data []byte, logger *slog.Logger) (map[string]map[pipeline.PhaseKey]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse status file: %w", err)
	}

	out := make(map[string]map[pipeline.PhaseKey]string, len(raw))
	for id, phases := range raw {
		keyed := make(map[pipeline.PhaseKey]string, len(phases))
		for name, status := range phases {
			k, err := pipeline.Resolve(name)
			if err != nil {
				logger.Debug("skipping unknown phase", "campaign_id", id, "phase", name)
				continue
			}
			keyed[k] = status
		}
		out[id] = keyed
	}
	return out, nil
}
