package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config file locations.
const (
	GlobalConfigDir   = "pipedeck"    // under $XDG_CONFIG_HOME or ~/.config
	GlobalConfigFile  = "config.yaml"
	ProjectConfigDir  = ".pipedeck"   // relative to the working directory
	ProjectConfigFile = "config.yaml"
)

// explicitConfigKey is the viper key of --config / PIPEDECK_CONFIG.
const explicitConfigKey = "config"

// source is one config file layer. Optional layers may be absent.
type source struct {
	name     string
	path     string
	required bool
}

// sources lists the file layers in merge order, later layers winning.
func sources(v *viper.Viper) []source {
	out := []source{
		{name: "global", path: globalConfigPath()},
		{name: "project", path: projectConfigPath()},
	}
	if explicit := v.GetString(explicitConfigKey); explicit != "" {
		out = append(out, source{name: "explicit", path: explicit, required: true})
	}
	return out
}

// LoadConfig merges, in increasing precedence, Default(), the global file,
// the project file, an explicit --config file, PIPEDECK_* environment
// variables and flags already bound to v. Missing optional files are
// skipped. The result is validated.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := Default()

	defaults, err := structToMap(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}

	for _, src := range sources(v) {
		if src.path == "" {
			continue
		}
		if err := mergeFile(v, src); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg, decodeHooks()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// mergeFile reads one YAML layer into v.
func mergeFile(v *viper.Viper, src source) error {
	f, err := os.Open(src.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !src.required {
			return nil
		}
		return fmt.Errorf("open %s config: %w", src.name, err)
	}
	defer func() { _ = f.Close() }()

	layer := viper.New()
	layer.SetConfigType("yaml")
	if err := layer.ReadConfig(f); err != nil {
		return fmt.Errorf("parse %s config %s: %w", src.name, src.path, err)
	}
	return v.MergeConfigMap(layer.AllSettings())
}

func globalConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return existing(filepath.Join(dir, GlobalConfigDir, GlobalConfigFile))
}

func projectConfigPath() string {
	return existing(filepath.Join(ProjectConfigDir, ProjectConfigFile))
}

// existing returns path when it names a file, else "".
func existing(path string) string {
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return path
	}
	return ""
}

func decodeHooks() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// structToMap flattens cfg into the nested map viper merges. Durations
// become strings so they round-trip through the duration hook.
func structToMap(cfg *Config) (map[string]any, error) {
	out := make(map[string]any)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &out,
		DecodeHook: durationToString,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return out, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func durationToString(from, _ reflect.Type, data any) (any, error) {
	if from != durationType {
		return data, nil
	}
	return data.(time.Duration).String(), nil
}
