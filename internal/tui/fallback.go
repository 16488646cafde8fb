package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/npratt/pipedeck/internal/events"
)

// isTerminal returns true if both stdout and stdin are TTYs.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// terminalSize returns the current terminal width and height.
// Returns 0, 0 if the terminal size cannot be determined.
func terminalSize() (width, height int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0, 0
	}
	return width, height
}

// terminalTooSmall returns true if the terminal is below the minimum size.
func terminalTooSmall() bool {
	width, height := terminalSize()
	return width < minWidth || height < minHeight
}

// runSimple prints the overview as plain text each time it changes.
// Without an event source or refresh interval it prints once and returns.
func (t *TUI) runSimple(ctx context.Context) error {
	return t.printLoop(ctx, os.Stdout)
}

func (t *TUI) printLoop(ctx context.Context, w io.Writer) error {
	var last string
	show := func() error {
		ov, err := t.backend.Overview(ctx, t.campaignID)
		if err != nil {
			return err
		}
		text := FormatOverview(ov)
		if text == last {
			return nil
		}
		last = text
		_, err = fmt.Fprintf(w, "%s\n%s", time.Now().Format("15:04:05"), text)
		return err
	}

	if err := show(); err != nil {
		return err
	}
	if t.eventChan == nil && t.refresh <= 0 {
		return nil
	}

	var tick <-chan time.Time
	if t.refresh > 0 {
		ticker := time.NewTicker(t.refresh)
		defer ticker.Stop()
		tick = ticker.C
	}
	eventChan := t.eventChan

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		case ev, ok := <-eventChan:
			if !ok {
				if tick == nil {
					return nil
				}
				eventChan = nil
				continue
			}
			if !affects(ev, t.campaignID) {
				continue
			}
		}
		if err := show(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// affects reports whether ev may change the campaign's overview.
func affects(ev events.Event, campaignID string) bool {
	switch e := ev.(type) {
	case *events.OverviewChangedEvent:
		return e.CampaignID == campaignID
	case *events.ConfigChangedEvent:
		return e.CampaignID == campaignID
	}
	return false
}
