package main

// Flag names for Viper binding
const (
	// Global flags
	FlagVerbose    = "verbose"
	FlagConfig     = "config"
	FlagLogFile    = "log-file"
	FlagSocketPath = "socket-path"

	// Serve command flags
	FlagTUI               = "tui"
	FlagCampaign          = "campaign"
	FlagStatusFile        = "status-file"
	FlagEventsFile        = "events-file"
	FlagFromStart         = "from-start"
	FlagJournal           = "journal"
	FlagStrict            = "strict"
	FlagStrictTransitions = "strict-transitions"

	// Stop command flags
	FlagForce = "force"

	// Guidance flags
	FlagPhase    = "phase"
	FlagSeverity = "severity"
	FlagID       = "id"

	// Reset flags
	FlagUI   = "ui"
	FlagExec = "exec"

	// Event flags
	FlagError = "error"
	FlagAt    = "at"

	// Watch flags
	FlagRefresh = "refresh"

	// Journal flags
	FlagCount  = "count"
	FlagFollow = "follow"

	// Output format flags
	FlagJSON = "json"
)
