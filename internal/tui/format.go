package tui

import (
	"fmt"
	"strings"

	"github.com/npratt/pipedeck/internal/configstatus"
	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/execstore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

const maxMessageLength = 100

// FormatOverview renders an overview as plain text, one fact per line.
// Used for non-interactive output.
func FormatOverview(ov *viewmodel.Overview) string {
	if ov == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "campaign %s: %s\n", events.SafeString(ov.CampaignID), formatMode(ov.Mode))
	fmt.Fprintf(&b, "config %s  exec %s\n", formatPercent(ov.Config.Progress), formatPercent(ov.Exec.Progress))

	for _, ep := range ov.Phases {
		fmt.Fprintf(&b, "  %s %s\n", execSymbol(ep.ExecState), formatPhaseRow(ep))
	}

	fmt.Fprintf(&b, "next: %s\n", formatNextAction(ov.NextAction))
	if ov.StartCTA.Disabled {
		fmt.Fprintf(&b, "start blocked: %s\n", strings.Join(ov.StartCTA.Reasons, "; "))
	}
	if g := ov.Guidance.Latest; g != nil {
		fmt.Fprintf(&b, "guidance [%s]: %s\n", g.Severity, events.Truncate(g.Message, maxMessageLength))
	}
	if ov.Failures.LastFailed.Valid() {
		fmt.Fprintf(&b, "last failed: %s\n", ov.Failures.LastFailed.Label())
	}
	return b.String()
}

func formatMode(m viewmodel.Mode) string {
	if m.Hint == "" {
		return string(m.State)
	}
	return fmt.Sprintf("%s (%s)", m.State, m.Hint)
}

func formatPhaseRow(ep viewmodel.EnrichedPhase) string {
	req := "optional"
	if ep.Required {
		req = "required"
	}
	row := fmt.Sprintf("%-11s %-8s %-11s %-9s", ep.Label, req, formatConfig(ep.ConfigState), ep.ExecState)
	if ep.DurationMs != nil {
		row += " " + formatDuration(*ep.DurationMs)
	}
	if ep.Error != "" {
		row += " " + events.Truncate(ep.Error, maxMessageLength/2)
	}
	return strings.TrimRight(row, " ")
}

func formatConfig(s configstatus.ConfigState) string {
	if s == configstatus.ConfigValid {
		return "configured"
	}
	return "missing"
}

func formatNextAction(a *viewmodel.NextAction) string {
	if a == nil {
		return "none"
	}
	if a.Reason != "" {
		return fmt.Sprintf("%s %s (%s)", a.Type, a.Phase.Label(), a.Reason)
	}
	return fmt.Sprintf("%s %s", a.Type, a.Phase.Label())
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%3.0f%%", p*100)
}

// execSymbol returns a one-character marker for an execution state.
func execSymbol(s execstore.Status) string {
	switch s {
	case execstore.StatusRunning:
		return "~"
	case execstore.StatusCompleted:
		return "+"
	case execstore.StatusFailed:
		return "!"
	default:
		return "-"
	}
}

// formatDuration renders milliseconds as "850ms", "12.5s", "3m 4s" or
// "1h 2m".
func formatDuration(ms int64) string {
	switch {
	case ms < 0:
		return "0ms"
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60_000:
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}

	totalSeconds := ms / 1000
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours == 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
