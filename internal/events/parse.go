package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// typeAliases maps the backend's push-channel names onto event types.
var typeAliases = map[string]EventType{
	"phase_started":   EventPhaseStarted,
	"phase_completed": EventPhaseCompleted,
	"phase_failed":    EventPhaseFailed,
}

// decoders builds an empty event value per known type.
var decoders = map[EventType]func() Event{
	EventPhaseStarted:    func() Event { return &PhaseEvent{} },
	EventPhaseCompleted:  func() Event { return &PhaseEvent{} },
	EventPhaseFailed:     func() Event { return &PhaseEvent{} },
	EventConfigChanged:   func() Event { return &ConfigChangedEvent{} },
	EventOverviewChanged: func() Event { return &OverviewChangedEvent{} },
	EventError:           func() Event { return &ErrorEvent{} },
	EventParseError:      func() Event { return &ParseErrorEvent{} },
}

func canonicalType(raw EventType) EventType {
	if alias, ok := typeAliases[strings.ToLower(string(raw))]; ok {
		return alias
	}
	return raw
}

// ParseEvent decodes one JSON line. Unknown types yield (nil, nil) so
// newer producers do not break older readers.
func ParseEvent(line []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, err
	}

	typ := canonicalType(head.Type)
	newEvent, ok := decoders[typ]
	if !ok {
		slog.Debug("unknown event type", "type", head.Type)
		return nil, nil
	}

	ev := newEvent()
	if err := json.Unmarshal(line, ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", typ, err)
	}
	if pe, ok := ev.(*PhaseEvent); ok {
		pe.EventType = typ
		if pe.Src == "" {
			pe.Src = SourcePush
		}
	}
	return ev, nil
}

// GetCampaignID returns the campaign an event belongs to, or "".
func GetCampaignID(ev Event) string {
	switch e := ev.(type) {
	case *PhaseEvent:
		return e.CampaignID
	case *ConfigChangedEvent:
		return e.CampaignID
	case *OverviewChangedEvent:
		return e.CampaignID
	case *ErrorEvent:
		return e.CampaignID
	}
	return ""
}
