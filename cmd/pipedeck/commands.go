package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/npratt/pipedeck/internal/daemon"
	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/tui"
)

// parseOnOff accepts on/off and the usual boolean spellings.
func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// parseOpenClose accepts open/close for the preflight dialog.
func parseOpenClose(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return true, nil
	case "close", "closed":
		return false, nil
	}
	return false, fmt.Errorf("expected open or close, got %q", s)
}

// parseEventTime reads --at as RFC 3339. Empty means now.
func parseEventTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --%s: %w", FlagAt, err)
	}
	return t, nil
}

// withClient runs fn against the daemon found for cmd.
func withClient(cmd *cobra.Command, fn func(c *daemon.Client, out io.Writer) error) error {
	client, err := getDaemonClient(cmd)
	if err != nil {
		return err
	}
	return fn(client, cmd.OutOrStdout())
}

func newStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client, out io.Writer) error {
				status, err := c.Status()
				if err != nil {
					return err
				}

				if asJSON, _ := cmd.Flags().GetBool(FlagJSON); asJSON {
					return printJSON(out, status)
				}

				// Human-readable output
				fmt.Fprintf(out, "Status: %s\n", status.Status)
				fmt.Fprintf(out, "Uptime: %s\n", status.Uptime)
				fmt.Fprintf(out, "Started: %s\n", status.StartTime)
				fmt.Fprintf(out, "PID: %d\n", status.PID)
				fmt.Fprintf(out, "Phases: %s\n", strings.Join(status.Phases, ", "))
				fmt.Fprintf(out, "Stats:\n")
				fmt.Fprintf(out, "  Applied: %d\n", status.Stats.Applied)
				fmt.Fprintf(out, "  Rejected: %d\n", status.Stats.Rejected)
				fmt.Fprintf(out, "  Cache: %d hits, %d misses, %d entries\n",
					status.Stats.CacheHits, status.Stats.CacheMisses, status.Stats.CacheEntries)
				if status.Stats.EventsEmitted > 0 {
					fmt.Fprintf(out, "  Events: %d emitted, %d dropped\n",
						status.Stats.EventsEmitted, status.Stats.EventsDropped)
				}
				if status.Stats.FeedLines > 0 {
					fmt.Fprintf(out, "  Feed: %d lines, %d forwarded, %d malformed, %d rejected\n",
						status.Stats.FeedLines, status.Stats.FeedForwarded, status.Stats.FeedMalformed, status.Stats.FeedRejected)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().Bool(FlagJSON, false, "Output status as JSON")
	return statusCmd
}

func newStopCmd() *cobra.Command {
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client, out io.Writer) error {
				force, _ := cmd.Flags().GetBool(FlagForce)
				if err := c.Stop(force); err != nil {
					return err
				}
				if force {
					fmt.Fprintln(out, "Stop requested - daemon stopping immediately")
				} else {
					fmt.Fprintln(out, "Stop requested")
				}
				return nil
			})
		},
	}
	stopCmd.Flags().Bool(FlagForce, false, "Stop without waiting for in-flight responses")
	return stopCmd
}

func newCampaignsCmd() *cobra.Command {
	campaignsCmd := &cobra.Command{
		Use:   "campaigns",
		Short: "List campaigns the daemon knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client, out io.Writer) error {
				ids, err := c.Campaigns()
				if err != nil {
					return err
				}
				if asJSON, _ := cmd.Flags().GetBool(FlagJSON); asJSON {
					return printJSON(out, ids)
				}
				if len(ids) == 0 {
					fmt.Fprintln(out, "No campaigns")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			})
		},
	}
	campaignsCmd.Flags().Bool(FlagJSON, false, "Output as JSON")
	return campaignsCmd
}

func newOverviewCmd() *cobra.Command {
	overviewCmd := &cobra.Command{
		Use:   "overview <campaign>",
		Short: "Show the derived overview of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client, out io.Writer) error {
				ov, err := c.Overview(args[0])
				if err != nil {
					return err
				}
				if asJSON, _ := cmd.Flags().GetBool(FlagJSON); asJSON {
					return printJSON(out, ov)
				}
				_, err = fmt.Fprint(out, tui.FormatOverview(ov))
				return err
			})
		},
	}
	overviewCmd.Flags().Bool(FlagJSON, false, "Output as JSON")
	return overviewCmd
}

func newModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode <campaign> on|off",
		Short: "Turn full-sequence mode on or off",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, func(c *daemon.Client, out io.Writer) error {
				if err := c.SetFullSequence(args[0], on); err != nil {
					return err
				}
				fmt.Fprintf(out, "Full sequence %s for %s\n", args[1], args[0])
				return nil
			})
		},
	}
}

func newSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <campaign> [phase]",
		Short: "Select a phase, or clear the selection",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase := ""
			if len(args) == 2 {
				phase = args[1]
			}
			return withClient(cmd, func(c *daemon.Client, out io.Writer) error {
				if err := c.SelectPhase(args[0], phase); err != nil {
					return err
				}
				if phase == "" {
					fmt.Fprintf(out, "Selection cleared for %s\n", args[0])
				} else {
					fmt.Fprintf(out, "Selected %s for %s\n", phase, args[0])
				}
				return nil
			})
		},
	}
}

func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight <campaign> open|close",
		Short: "Open or close the preflight dialog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			open, err := parseOpenClose(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, func(c *daemon.Client, _ io.Writer) error {
				return c.SetPreflight(args[0], open)
			})
		},
	}
}

func newGuidanceCmd() *cobra.Command {
	guidanceCmd := &cobra.Command{
		Use:   "guidance",
		Short: "Manage a campaign's guidance queue",
	}

	pushCmd := &cobra.Command{
		Use:   "push <campaign> <message>",
		Short: "Enqueue a guidance message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, _ := cmd.Flags().GetString(FlagPhase)
			severity, _ := cmd.Flags().GetString(FlagSeverity)
			id, _ := cmd.Flags().GetString(FlagID)
			return withClient(cmd, func(c *daemon.Client, out io.Writer) error {
				msg, err := c.PushGuidance(daemon.GuidanceParams{
					CampaignID: args[0],
					ID:         id,
					Message:    args[1],
					Phase:      phase,
					Severity:   severity,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Queued %s\n", msg.ID)
				return nil
			})
		},
	}
	pushCmd.Flags().String(FlagPhase, "", "Phase the message refers to")
	pushCmd.Flags().String(FlagSeverity, "info", "Severity: info or warn")
	pushCmd.Flags().String(FlagID, "", "Message id (default: generated)")

	dismissCmd := &cobra.Command{
		Use:   "dismiss <campaign> <id>",
		Short: "Remove one guidance message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client, _ io.Writer) error {
				return c.DismissGuidance(args[0], args[1])
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <campaign>",
		Short: "Remove every guidance message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client, _ io.Writer) error {
				return c.ClearGuidance(args[0])
			})
		},
	}

	guidanceCmd.AddCommand(pushCmd, dismissCmd, clearCmd)
	return guidanceCmd
}

func newFailureCmd() *cobra.Command {
	failureCmd := &cobra.Command{
		Use:   "failure",
		Short: "Set or dismiss the last failed phase",
	}

	setCmd := &cobra.Command{
		Use:   "set <campaign> <phase>",
		Short: "Record a failed phase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client, _ io.Writer) error {
				return c.SetLastFailed(args[0], args[1])
			})
		},
	}

	dismissCmd := &cobra.Command{
		Use:   "dismiss <campaign>",
		Short: "Clear the last failed phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *daemon.Client, _ io.Writer) error {
				return c.DismissFailure(args[0])
			})
		},
	}

	failureCmd.AddCommand(setCmd, dismissCmd)
	return failureCmd
}

func newResetCmd() *cobra.Command {
	resetCmd := &cobra.Command{
		Use:   "reset <campaign>",
		Short: "Reset a campaign's UI state and execution records",
		Long: `Reset a campaign. With neither --ui nor --exec both are reset.
Server-reported configuration is never touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui, _ := cmd.Flags().GetBool(FlagUI)
			exec, _ := cmd.Flags().GetBool(FlagExec)
			if !ui && !exec {
				ui, exec = true, true
			}
			return withClient(cmd, func(c *daemon.Client, out io.Writer) error {
				if ui {
					if err := c.ResetUI(args[0]); err != nil {
						return err
					}
				}
				if exec {
					if err := c.ResetExec(args[0]); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "Reset %s\n", args[0])
				return nil
			})
		},
	}
	resetCmd.Flags().Bool(FlagUI, false, "Reset UI state only")
	resetCmd.Flags().Bool(FlagExec, false, "Reset execution records only")
	return resetCmd
}

func newEventCmd() *cobra.Command {
	eventCmd := &cobra.Command{
		Use:   "event <campaign> <phase> started|completed|failed",
		Short: "Submit a phase execution event",
		Long: `Submit a phase transition as if it arrived on the push channel.
The phase may use either the internal or the wire name.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := events.ParsePhaseType(args[2])
			if err != nil {
				return err
			}
			errMsg, _ := cmd.Flags().GetString(FlagError)
			at, _ := cmd.Flags().GetString(FlagAt)
			ts, err := parseEventTime(at)
			if err != nil {
				return err
			}
			return withClient(cmd, func(c *daemon.Client, _ io.Writer) error {
				return c.PhaseEvent(daemon.PhaseEventParams{
					CampaignID: args[0],
					Phase:      args[1],
					Type:       string(t),
					Error:      errMsg,
					Timestamp:  ts,
				})
			})
		},
	}
	eventCmd.Flags().String(FlagError, "", "Error message for a failed event")
	eventCmd.Flags().String(FlagAt, "", "Event time in RFC 3339 (default: now)")
	return eventCmd
}
