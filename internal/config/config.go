// Package config provides configuration types and defaults for pipedeck.
package config

import "time"

// Config holds all configuration for pipedeck.
type Config struct {
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Engine      EngineConfig      `yaml:"engine" mapstructure:"engine"`
	Exec        ExecConfig        `yaml:"exec" mapstructure:"exec"`
	UI          UIConfig          `yaml:"ui" mapstructure:"ui"`
	Feed        FeedConfig        `yaml:"feed" mapstructure:"feed"`
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	LogRotation LogRotationConfig `yaml:"log_rotation" mapstructure:"log_rotation"`
	TUI         TUIConfig         `yaml:"tui" mapstructure:"tui"`
}

// PipelineConfig declares the phase order and which phases are optional.
type PipelineConfig struct {
	Phases   []string `yaml:"phases" mapstructure:"phases"`     // Phase keys in run order
	Optional []string `yaml:"optional" mapstructure:"optional"` // Phases that may run with defaults when unconfigured
}

// EngineConfig holds dispatcher and derivation settings.
type EngineConfig struct {
	Strict        bool `yaml:"strict" mapstructure:"strict"`                 // Panic on invariant violations instead of degrading
	CommandBuffer int  `yaml:"command_buffer" mapstructure:"command_buffer"` // Pending commands before callers block
	EventBuffer   int  `yaml:"event_buffer" mapstructure:"event_buffer"`     // Router buffer for phase events
}

// ExecConfig holds execution runtime store settings.
type ExecConfig struct {
	StrictTransitions bool `yaml:"strict_transitions" mapstructure:"strict_transitions"` // Reject out-of-order events instead of last-write-wins
}

// UIConfig holds UI preference store settings.
type UIConfig struct {
	DefaultFullSequence bool `yaml:"default_full_sequence" mapstructure:"default_full_sequence"`
	MaxGuidance         int  `yaml:"max_guidance" mapstructure:"max_guidance"`         // Guidance queue cap per campaign
	FailureGuidance     bool `yaml:"failure_guidance" mapstructure:"failure_guidance"` // Enqueue a warn entry when a phase fails
}

// FeedConfig holds settings for the file-backed inputs.
type FeedConfig struct {
	StatusFile string        `yaml:"status_file" mapstructure:"status_file"` // JSON config status cache ("" disables)
	EventsFile string        `yaml:"events_file" mapstructure:"events_file"` // JSONL push events to follow ("" disables)
	Debounce   time.Duration `yaml:"debounce" mapstructure:"debounce"`
	FromStart  bool          `yaml:"from_start" mapstructure:"from_start"` // Replay existing events on startup
}

// PathsConfig holds file paths for logs, the event journal and the daemon.
type PathsConfig struct {
	Log     string `yaml:"log" mapstructure:"log"`
	Journal string `yaml:"journal" mapstructure:"journal"`
	Socket  string `yaml:"socket" mapstructure:"socket"`
	PID     string `yaml:"pid" mapstructure:"pid"`
}

// LogRotationConfig holds settings for log file rotation.
// Used for the daemon log and the event journal.
type LogRotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `yaml:"compress" mapstructure:"compress"`
}

// TUIConfig holds settings for the watch view.
type TUIConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"` // Poll interval when attached to a daemon
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Phases:   []string{"discovery", "validation", "enrichment", "extraction", "analysis"},
			Optional: []string{"enrichment", "analysis"},
		},
		Engine: EngineConfig{
			Strict:        false,
			CommandBuffer: 64,
			EventBuffer:   1000,
		},
		Exec: ExecConfig{
			StrictTransitions: false,
		},
		UI: UIConfig{
			DefaultFullSequence: false,
			MaxGuidance:         50,
			FailureGuidance:     true,
		},
		Feed: FeedConfig{
			StatusFile: ".pipedeck/status.json",
			EventsFile: "",
			Debounce:   100 * time.Millisecond,
		},
		Paths: PathsConfig{
			Log:     ".pipedeck/pipedeck.log",
			Journal: ".pipedeck/events.jsonl",
			Socket:  ".pipedeck/pipedeck.sock",
			PID:     ".pipedeck/pipedeck.pid",
		},
		LogRotation: LogRotationConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		TUI: TUIConfig{
			RefreshInterval: time.Second,
		},
	}
}
