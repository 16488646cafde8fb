package main

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/npratt/pipedeck/internal/daemon"
	"github.com/npratt/pipedeck/internal/shutdown"
	"github.com/npratt/pipedeck/internal/tui"
)

func newWatchCmd(a *app) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch <campaign>",
		Short: "Watch a campaign overview on a running daemon",
		Long: `Attach to a running daemon and show the campaign overview, polling
for changes. On a terminal this is the interactive watch view; otherwise
the overview is printed each time it changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := getDaemonClient(cmd)
			if err != nil {
				return err
			}
			if !client.IsRunning() {
				return daemon.ErrNotRunning
			}

			refresh := cfg.TUI.RefreshInterval
			if flagChanged(cmd, FlagRefresh) {
				refresh, _ = cmd.Flags().GetDuration(FlagRefresh)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdown.Signals...)
			defer stop()

			view := tui.New(clientBackend{client: client}, args[0], tui.WithRefresh(refresh))
			return view.Run(ctx)
		},
	}
	watchCmd.Flags().Duration(FlagRefresh, 0, "Poll interval (default: tui.refresh_interval)")
	return watchCmd
}
