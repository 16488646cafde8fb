package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/npratt/pipedeck/internal/configstatus"
	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/execstore"
	"github.com/npratt/pipedeck/internal/viewmodel"
)

const (
	minWidth  = 60
	minHeight = 15
)

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.width < minWidth || m.height < minHeight {
		return m.renderTooSmall()
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderDivider())
	if m.overview == nil {
		sections = append(sections, styles.Muted.Render("waiting for overview..."))
	} else {
		sections = append(sections, m.renderPhases())
		sections = append(sections, m.renderDivider())
		sections = append(sections, m.renderDecision())
		if m.overview.PreflightOpen {
			sections = append(sections, m.renderPreflight())
		}
	}
	if m.err != nil {
		sections = append(sections, styles.Error.Render("error: "+events.Truncate(m.err.Error(), m.width-12)))
	}
	sections = append(sections, m.renderDivider())
	sections = append(sections, m.renderFooter())

	rendered := styles.Container.
		Width(safeWidth(m.width - 2)).
		Render(strings.Join(sections, "\n"))

	return lipgloss.Place(m.width, m.height, lipgloss.Left, lipgloss.Top, rendered)
}

func (m model) renderTooSmall() string {
	msg := fmt.Sprintf("Terminal too small (%dx%d)\nMinimum: %dx%d", m.width, m.height, minWidth, minHeight)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, msg)
}

// renderHeader shows the campaign, mode and progress.
func (m model) renderHeader() string {
	left := styles.Campaign.Render(events.SafeString(m.campaignID))
	if m.overview == nil {
		return left
	}
	ov := m.overview

	mode := styleForMode(ov.Mode.State).Render(strings.ToUpper(string(ov.Mode.State)))
	progress := styles.Progress.Render(fmt.Sprintf("config %s  exec %s",
		formatPercent(ov.Config.Progress), formatPercent(ov.Exec.Progress)))

	line := left + "  " + mode + "  " + progress
	if ov.Mode.Hint == "" {
		return line
	}
	return line + "\n" + styles.Hint.Render(ov.Mode.Hint)
}

func (m model) renderDivider() string {
	return styles.Divider.Render(strings.Repeat("─", safeWidth(m.width-4)))
}

// renderPhases renders the phase table.
func (m model) renderPhases() string {
	lines := []string{styles.TableHeader.Render(fmt.Sprintf("  %-11s %-8s %-11s %-9s %s", "PHASE", "REQ", "CONFIG", "EXEC", "TIME"))}
	for i, ep := range m.overview.Phases {
		lines = append(lines, m.renderPhaseLine(i, ep))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderPhaseLine(i int, ep viewmodel.EnrichedPhase) string {
	marker := "  "
	if i == m.cursor {
		marker = "> "
	}
	req := "yes"
	if !ep.Required {
		req = "no"
	}
	dur := ""
	if ep.DurationMs != nil {
		dur = formatDuration(*ep.DurationMs)
	}

	exec := styleForExec(ep.ExecState).Render(fmt.Sprintf("%-9s", ep.ExecState))
	line := fmt.Sprintf("%s%-11s %-8s %-11s %s %s", marker, ep.Label, req, formatConfig(ep.ConfigState), exec, dur)
	if ep.Error != "" {
		line += " " + styles.Error.Render(events.Truncate(ep.Error, maxMessageLength/2))
	}

	switch {
	case i == m.cursor:
		return styles.Selected.Render(line)
	case !ep.Required:
		return styles.Optional.Render(line)
	}
	return line
}

// renderDecision shows the next action, start gate, guidance and failure.
func (m model) renderDecision() string {
	ov := m.overview
	var lines []string

	next := styles.Muted.Render("none")
	if ov.NextAction != nil {
		next = styles.Action.Render(formatNextAction(ov.NextAction))
	}
	lines = append(lines, styles.Label.Render("Next: ")+next)

	if ov.StartCTA.Disabled {
		lines = append(lines, styles.Label.Render("Start: ")+styles.Reason.Render("blocked"))
		for _, r := range ov.StartCTA.Reasons {
			lines = append(lines, styles.Reason.Render("  - "+r))
		}
	} else {
		lines = append(lines, styles.Label.Render("Start: ")+styles.Action.Render("ready"))
	}

	if g := ov.Guidance.Latest; g != nil {
		text := events.Truncate(g.Message, safeWidth(m.width-16))
		lines = append(lines, styles.Label.Render("Guidance: ")+styleForSeverity(g.Severity).Render(text))
	}
	if ov.Failures.LastFailed.Valid() {
		lines = append(lines, styles.Label.Render("Failed: ")+styles.Error.Render(ov.Failures.LastFailed.Label()))
	}
	return strings.Join(lines, "\n")
}

// renderPreflight lists what would run with the current configuration.
func (m model) renderPreflight() string {
	ov := m.overview
	lines := []string{styles.Label.Render("Preflight")}
	for _, ep := range ov.Phases {
		state := "ready"
		switch {
		case ep.ExecState == execstore.StatusCompleted:
			state = "done"
		case ep.ConfigState != configstatus.ConfigValid && ep.Required:
			state = "needs configuration"
		case ep.ConfigState != configstatus.ConfigValid:
			state = "runs with defaults"
		}
		lines = append(lines, fmt.Sprintf("%-11s %s", ep.Label, state))
	}
	return styles.Preview.Render(strings.Join(lines, "\n"))
}

func (m model) renderFooter() string {
	text := m.help.View(m.keys)
	if !m.lastUpdate.IsZero() {
		text += styles.Footer.Render("  updated " + m.lastUpdate.Format("15:04:05"))
	}
	return text
}

// safeWidth clamps a computed width to at least 1.
func safeWidth(w int) int {
	if w < 1 {
		return 1
	}
	return w
}
