package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the live backends the client can construct.
var ValidProviderNames = []string{"gemini", "openai"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.InputSampleRate == 0 {
		cfg.Audio.InputSampleRate = 16000
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = 24000
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = 4096
	}
	if cfg.Camera.IntervalMs == 0 {
		cfg.Camera.IntervalMs = 1000
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider
	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		errs = append(errs, fmt.Errorf("provider.name %q is invalid; valid values: %v", cfg.Provider.Name, ValidProviderNames))
	}
	if cfg.Provider.APIKey == "" {
		errs = append(errs, errors.New("provider.api_key is required"))
	}

	// Audio
	if cfg.Audio.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d must be positive", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must be positive", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// Camera
	if cfg.Camera.IntervalMs < 0 {
		errs = append(errs, fmt.Errorf("camera.interval_ms %d must be positive", cfg.Camera.IntervalMs))
	}

	// Interview
	if err := cfg.Interview.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
