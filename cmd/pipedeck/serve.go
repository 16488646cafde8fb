package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/npratt/pipedeck/internal/config"
	"github.com/npratt/pipedeck/internal/configstatus"
	"github.com/npratt/pipedeck/internal/controller"
	"github.com/npratt/pipedeck/internal/daemon"
	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/feed"
	"github.com/npratt/pipedeck/internal/shutdown"
	"github.com/npratt/pipedeck/internal/tui"
)

// errStopRequested ends the serve group when a client or the watch view
// asks to stop.
var errStopRequested = errors.New("stop requested")

// tuiBufferSize is the watch view's event subscription buffer.
const tuiBufferSize = 256

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipedeck daemon",
		Long: `Run the dispatcher, the config status watcher, the push event feed and
the control socket in the foreground until interrupted or stopped.

With --campaign on a terminal the watch view for that campaign runs in
the foreground and logs go to the log file only. Use --tui=false to keep
plain logging.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}

	serveCmd.Flags().Bool(FlagTUI, false, "Show the watch view for --campaign (default: on when stdout is a terminal)")
	serveCmd.Flags().String(FlagCampaign, "", "Campaign to show in the watch view")
	serveCmd.Flags().String(FlagStatusFile, "", "JSON config status file to watch")
	serveCmd.Flags().String(FlagEventsFile, "", "JSONL push event file to follow")
	serveCmd.Flags().Bool(FlagFromStart, false, "Replay events already in the events file")
	serveCmd.Flags().String(FlagJournal, "", "Event journal path (empty disables)")
	serveCmd.Flags().Bool(FlagStrict, false, "Panic on derivation invariant violations")
	serveCmd.Flags().Bool(FlagStrictTransitions, false, "Reject out-of-order phase events")
	bindFlags(serveCmd.Flags())

	return serveCmd
}

// applyServeFlags copies explicitly set serve flags onto cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if flagChanged(cmd, FlagStatusFile) {
		cfg.Feed.StatusFile = viper.GetString(FlagStatusFile)
	}
	if flagChanged(cmd, FlagEventsFile) {
		cfg.Feed.EventsFile = viper.GetString(FlagEventsFile)
	}
	if flagChanged(cmd, FlagFromStart) {
		cfg.Feed.FromStart = viper.GetBool(FlagFromStart)
	}
	if flagChanged(cmd, FlagJournal) {
		cfg.Paths.Journal = viper.GetString(FlagJournal)
	}
	if flagChanged(cmd, FlagStrict) {
		cfg.Engine.Strict = viper.GetBool(FlagStrict)
	}
	if flagChanged(cmd, FlagStrictTransitions) {
		cfg.Exec.StrictTransitions = viper.GetBool(FlagStrictTransitions)
	}
}

func (a *app) runServe(cmd *cobra.Command) error {
	cfg, projectRoot, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	// Flag values are relative to the working directory like other paths.
	cfg.Feed.StatusFile = resolveOptional(cfg.Feed.StatusFile, projectRoot)
	cfg.Feed.EventsFile = resolveOptional(cfg.Feed.EventsFile, projectRoot)
	cfg.Paths.Journal = resolveOptional(cfg.Paths.Journal, projectRoot)

	def, err := cfg.Definition()
	if err != nil {
		return err
	}

	// Determine TUI mode: explicit flag > auto-detect from TTY
	campaign := viper.GetString(FlagCampaign)
	tuiEnabled := viper.GetBool(FlagTUI)
	if !flagChanged(cmd, FlagTUI) {
		tuiEnabled = campaign != "" && term.IsTerminal(int(os.Stdout.Fd()))
	}
	if tuiEnabled && campaign == "" {
		return fmt.Errorf("--tui needs --campaign")
	}

	client := daemon.NewClient(cfg.Paths.Socket)
	if client.IsRunning() {
		return fmt.Errorf("daemon already running (socket: %s)", cfg.Paths.Socket)
	}
	daemon.CleanupStale(cfg.Paths.PID, cfg.Paths.Socket)
	lock, err := daemon.AcquireLock(cfg.Paths.PID)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	// The watch view owns the terminal, so logs go only to the file.
	var tee io.Writer = os.Stderr
	if tuiEnabled {
		tee = nil
	}
	logResult, err := SetupFileLogger(cfg.Paths.Log, a.logLevel, cfg.LogRotation, tee)
	if err != nil {
		return err
	}
	defer func() { _ = logResult.Close() }()
	logger := logResult.Logger
	slog.SetDefault(logger)

	logger.Info("pipedeck starting",
		"version", version,
		"phases", def.Len(),
		"log_file", cfg.Paths.Log,
		"socket", cfg.Paths.Socket,
		"status_file", cfg.Feed.StatusFile,
		"events_file", cfg.Feed.EventsFile,
		"tui", tuiEnabled,
	)

	infoPath := daemon.DaemonInfoPath(projectRoot)
	info := &daemon.DaemonInfo{
		SocketPath:  cfg.Paths.Socket,
		PIDPath:     cfg.Paths.PID,
		LogPath:     cfg.Paths.Log,
		JournalPath: cfg.Paths.Journal,
		StartTime:   time.Now(),
		PID:         os.Getpid(),
	}
	if err := daemon.WriteDaemonInfo(infoPath, info); err != nil {
		logger.Warn("failed to write daemon info", "error", err)
	}
	defer func() { _ = daemon.RemoveDaemonInfo(infoPath) }()

	router := events.NewRouter(cfg.Engine.EventBuffer)
	defer router.Close()

	cache := configstatus.NewCache()
	ctrl := controller.New(cfg, def, cache, router, logger)
	dmn := daemon.New(cfg, ctrl, logger)
	dmn.SetRouter(router)

	var watcher *configstatus.Watcher
	if cfg.Feed.StatusFile != "" {
		watcher = configstatus.NewWatcher(cfg.Feed.StatusFile, cache, router, logger)
		watcher.SetDebounce(cfg.Feed.Debounce)
	}

	var tailer *feed.Tailer
	if cfg.Feed.EventsFile != "" {
		tailer = feed.New(cfg.Feed.EventsFile, router, logger,
			feed.WithFromStart(cfg.Feed.FromStart),
			feed.WithDebounce(cfg.Feed.Debounce),
			feed.WithApplier(ctrl),
		)
		dmn.SetFeed(tailer)
	}

	var journal *events.LogSink
	if cfg.Paths.Journal != "" {
		journal = events.NewLogSink(cfg.Paths.Journal, events.JournalRotation{
			MaxSizeMB:  cfg.LogRotation.MaxSizeMB,
			MaxBackups: cfg.LogRotation.MaxBackups,
			MaxAgeDays: cfg.LogRotation.MaxAgeDays,
			Compress:   cfg.LogRotation.Compress,
		})
	}

	run := func(ctx context.Context) error {
		// Inputs start first so their subscriptions exist before anything runs.
		if journal != nil {
			if err := journal.Start(ctx, router.Subscribe()); err != nil {
				return fmt.Errorf("start journal: %w", err)
			}
			defer func() {
				if err := journal.Stop(); err != nil {
					logger.Warn("close journal", "error", err)
				}
				logger.Info("journal closed", "path", journal.Path(), "events", journal.Written())
			}()
		}
		if watcher != nil {
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("start status watcher: %w", err)
			}
			defer func() { _ = watcher.Stop() }()
		}
		if tailer != nil {
			if err := tailer.Start(ctx); err != nil {
				return fmt.Errorf("start event feed: %w", err)
			}
			defer func() { _ = tailer.Stop() }()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return ctrl.Run(gctx) })

		g.Go(func() error {
			if err := dmn.Start(gctx); err != nil {
				return err
			}
			if gctx.Err() != nil {
				return nil
			}
			return errStopRequested
		})

		if tuiEnabled {
			tuiEvents := router.SubscribeTypes(tuiBufferSize, events.EventOverviewChanged, events.EventConfigChanged)
			g.Go(func() error {
				defer router.Unsubscribe(tuiEvents)
				view := tui.New(ctrl, campaign, tui.WithEvents(tuiEvents))
				if err := view.Run(gctx); err != nil {
					return err
				}
				if gctx.Err() != nil {
					return nil
				}
				return errStopRequested
			})
		}

		return g.Wait()
	}

	err = shutdown.RunWithGracefulShutdown(cmd.Context(), logger, shutdown.DefaultTimeout, run, nil)
	if errors.Is(err, errStopRequested) {
		err = nil
	}
	logger.Info("pipedeck stopped", "stats", ctrl.Stats())
	return err
}
