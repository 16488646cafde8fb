package config

import (
	"errors"
	"fmt"

	"github.com/npratt/pipedeck/internal/pipeline"
)

// Definition builds the pipeline definition declared by the config.
// Unknown phase names and optional phases missing from Phases are errors.
func (c *Config) Definition() (*pipeline.Definition, error) {
	keys := make([]pipeline.PhaseKey, 0, len(c.Pipeline.Phases))
	for _, name := range c.Pipeline.Phases {
		k, err := pipeline.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("pipeline.phases: %w", err)
		}
		keys = append(keys, k)
	}

	optional := make([]pipeline.PhaseKey, 0, len(c.Pipeline.Optional))
	for _, name := range c.Pipeline.Optional {
		k, err := pipeline.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("pipeline.optional: %w", err)
		}
		optional = append(optional, k)
	}

	def, err := pipeline.FromKeys(keys, optional...)
	if err != nil {
		return nil, err
	}
	for _, k := range optional {
		if !def.Contains(k) {
			return nil, fmt.Errorf("%w: optional phase %s is not in pipeline.phases", pipeline.ErrInvalidDefinition, k)
		}
	}
	return def, nil
}

// Validate checks settings that cannot be fixed up silently.
func (c *Config) Validate() error {
	if _, err := c.Definition(); err != nil {
		return err
	}
	if c.Engine.CommandBuffer < 0 {
		return errors.New("engine.command_buffer must not be negative")
	}
	if c.UI.MaxGuidance < 0 {
		return errors.New("ui.max_guidance must not be negative")
	}
	if c.Feed.Debounce < 0 {
		return errors.New("feed.debounce must not be negative")
	}
	return nil
}
