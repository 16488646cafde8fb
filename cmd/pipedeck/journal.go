package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/npratt/pipedeck/internal/daemon"
	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/shutdown"
)

const (
	defaultJournalCount = 20
	followPollInterval  = 200 * time.Millisecond
)

func newJournalCmd(a *app) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent entries of the event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cfg.Paths.Journal
			if info, err := daemon.FindDaemonInfo(""); err == nil && info.JournalPath != "" {
				path = info.JournalPath
			}
			if path == "" {
				return errors.New("event journal is disabled (paths.journal is empty)")
			}

			count, _ := cmd.Flags().GetInt(FlagCount)
			out := cmd.OutOrStdout()
			if err := printJournalTail(out, path, count); err != nil {
				return err
			}

			if follow, _ := cmd.Flags().GetBool(FlagFollow); follow {
				ctx, stop := signal.NotifyContext(cmd.Context(), shutdown.Signals...)
				defer stop()
				return followJournal(ctx, out, path, followPollInterval)
			}
			return nil
		},
	}
	journalCmd.Flags().Int(FlagCount, defaultJournalCount, "Number of entries to show")
	journalCmd.Flags().Bool(FlagFollow, false, "Keep printing new entries")
	return journalCmd
}

// formatJournalLine renders one journal line. Lines that are not events
// are printed sanitized but otherwise as-is.
func formatJournalLine(line string) string {
	ev, err := events.ParseEvent([]byte(line))
	if err != nil || ev == nil {
		return events.SafeString(line)
	}
	return events.FormatWithTimestamp(ev)
}

// printJournalTail prints the last n lines of the journal at path.
func printJournalTail(w io.Writer, path string, n int) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(w, "No events yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = f.Close() }()

	if n <= 0 {
		return nil
	}
	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if len(ring) == 0 {
		fmt.Fprintln(w, "No events yet")
		return nil
	}
	for _, line := range ring {
		fmt.Fprintln(w, formatJournalLine(line))
	}
	return nil
}

// followJournal prints lines appended to path after the call until ctx
// ends. A journal that does not exist yet is waited for.
func followJournal(ctx context.Context, w io.Writer, path string, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var (
		f      *os.File
		reader *bufio.Reader
	)
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	for {
		if f == nil {
			opened, err := os.Open(path)
			switch {
			case err == nil:
				// Entries already printed by the tail are skipped.
				if _, err := opened.Seek(0, io.SeekEnd); err != nil {
					_ = opened.Close()
					return fmt.Errorf("seek journal: %w", err)
				}
				f, reader = opened, bufio.NewReader(opened)
			case !errors.Is(err, os.ErrNotExist):
				return fmt.Errorf("open journal: %w", err)
			}
		}

		for reader != nil {
			line, err := reader.ReadString('\n')
			if err != nil {
				// Partial line: wait for the rest.
				if errors.Is(err, io.EOF) && line != "" {
					if _, serr := f.Seek(-int64(len(line)), io.SeekCurrent); serr == nil {
						reader.Reset(f)
					}
				}
				break
			}
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintln(w, formatJournalLine(line))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
