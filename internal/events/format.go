package events

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxErrorLength = 120
	ellipsis       = "..."
)

// Format renders an event as one line for journals and plain output.
// It returns "" for nil and for types it does not know.
func Format(event Event) string {
	switch e := event.(type) {
	case nil:
		return ""
	case *PhaseEvent:
		return formatPhase(e)
	case *ConfigChangedEvent:
		return "config refreshed: " + SafeString(e.CampaignID)
	case *OverviewChangedEvent:
		s := "overview changed: " + SafeString(e.CampaignID)
		if e.Cause != "" {
			s += " (" + SafeString(e.Cause) + ")"
		}
		return s
	case *ErrorEvent:
		return fmt.Sprintf("%s: %s", e.Severity, Truncate(e.Message, maxErrorLength))
	case *ParseErrorEvent:
		return "parse error: " + Truncate(e.Error, maxErrorLength)
	}
	return ""
}

// FormatWithTimestamp prefixes Format with the event's wall-clock time.
// Unknown types fall back to the type name.
func FormatWithTimestamp(event Event) string {
	if event == nil {
		return ""
	}
	detail := Format(event)
	if detail == "" {
		detail = string(event.Type())
	}
	return "[" + event.Timestamp().Format("15:04:05") + "] " + detail
}

var phaseVerbs = map[EventType]string{
	EventPhaseStarted:   "started",
	EventPhaseCompleted: "completed",
	EventPhaseFailed:    "failed",
}

func formatPhase(e *PhaseEvent) string {
	verb, ok := phaseVerbs[e.EventType]
	if !ok {
		verb = string(e.EventType)
	}
	s := SafeString(e.CampaignID) + ": " + SafeString(e.Phase) + " " + verb
	if e.EventType == EventPhaseFailed && e.Error != "" {
		s += ": " + Truncate(e.Error, maxErrorLength)
	}
	return s
}

// Truncate sanitizes s and cuts it to at most maxLen runes, marking the
// cut with "...".
func Truncate(s string, maxLen int) string {
	s = SafeString(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= len(ellipsis) {
		return ellipsis
	}
	return string(runes[:maxLen-len(ellipsis)]) + ellipsis
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// SafeString makes untrusted text safe for a terminal: escape sequences
// and control characters are removed and whitespace runs collapse to one
// space.
func SafeString(s string) string {
	s = StripANSI(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
