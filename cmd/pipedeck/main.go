package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/npratt/pipedeck/internal/config"
	"github.com/npratt/pipedeck/internal/daemon"
)

var version = "dev"

// app carries state shared by every command.
type app struct {
	logLevel *slog.LevelVar
	logger   *slog.Logger
}

// loadConfig merges config files, env and flags, then resolves every
// relative path against the project root.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	// Apply CLI flag overrides (only if explicitly set)
	if flagChanged(cmd, FlagLogFile) {
		cfg.Paths.Log = viper.GetString(FlagLogFile)
	}
	if flagChanged(cmd, FlagSocketPath) {
		cfg.Paths.Socket = viper.GetString(FlagSocketPath)
	}

	projectRoot := daemon.FindProjectRoot("")
	cfg.Paths, err = daemon.ResolvePaths(cfg.Paths, projectRoot)
	if err != nil {
		return nil, "", fmt.Errorf("resolve paths: %w", err)
	}
	cfg.Feed.StatusFile = resolveOptional(cfg.Feed.StatusFile, projectRoot)
	cfg.Feed.EventsFile = resolveOptional(cfg.Feed.EventsFile, projectRoot)

	return cfg, projectRoot, nil
}

func resolveOptional(p, base string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// getDaemonClient connects to an explicit --socket-path, or finds
// daemon.json in the project.
func getDaemonClient(cmd *cobra.Command) (*daemon.Client, error) {
	if flagChanged(cmd, FlagSocketPath) {
		return daemon.NewClient(viper.GetString(FlagSocketPath)), nil
	}
	info, err := daemon.FindDaemonInfo("")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", daemon.ErrNotRunning, err)
	}
	return daemon.NewClient(info.SocketPath), nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pipedeck",
		Short: "Campaign pipeline decision engine",
		Long: `pipedeck decides what a multi-phase campaign pipeline should do next.

It merges server-reported phase configuration, phase execution events from
the push channel and per-campaign UI preferences into one overview per
campaign: mode, next action, start gate, guidance and last failure.

Run "pipedeck serve" to start the daemon, then query or drive it with the
other commands.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if viper.GetBool(FlagVerbose) {
				a.logLevel.Set(slog.LevelDebug)
				a.logger.Debug("verbose logging enabled")
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().Bool(FlagVerbose, false, "Enable verbose (debug) logging")
	rootCmd.PersistentFlags().String(FlagConfig, "", "Config file path (default: .pipedeck/config.yaml)")
	rootCmd.PersistentFlags().String(FlagLogFile, "", "Log file path")
	rootCmd.PersistentFlags().String(FlagSocketPath, "", "Unix socket path for daemon control")
	bindFlags(rootCmd.PersistentFlags())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pipedeck %s\n", version)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newStatusCmd(), newStopCmd(), newCampaignsCmd())
	rootCmd.AddCommand(newOverviewCmd(), newModeCmd(), newSelectCmd(), newPreflightCmd())
	rootCmd.AddCommand(newGuidanceCmd(), newFailureCmd(), newResetCmd(), newEventCmd())
	rootCmd.AddCommand(newSimulateCmd(a), newWatchCmd(a), newJournalCmd(a))

	return rootCmd
}

func main() {
	logLevel := &slog.LevelVar{}
	a := &app{
		logLevel: logLevel,
		logger:   NewLogger(os.Stderr, logLevel),
	}

	viper.SetEnvPrefix("PIPEDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		a.logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
