// Package config provides the configuration schema and loader for the
// intervox client.
package config

import "github.com/MrWong99/intervox/internal/interview"

// LogLevel controls log verbosity for the intervox client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for intervox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Provider  ProviderConfig   `yaml:"provider"`
	Audio     AudioConfig      `yaml:"audio"`
	Camera    CameraConfig     `yaml:"camera"`
	Interview interview.Config `yaml:"interview"`
}

// ServerConfig holds the observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics/health server listens on
	// (e.g., ":8080"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderConfig selects and configures the live voice backend.
type ProviderConfig struct {
	// Name selects the backend implementation: "gemini" or "openai".
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default WebSocket endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice is the provider-specific voice name for the interviewer.
	Voice string `yaml:"voice"`
}

// AudioConfig holds device sample rates and framing.
type AudioConfig struct {
	// InputSampleRate is the microphone capture rate in Hz. Default 16000.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the speaker playback rate in Hz. Default 24000.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// FrameSize is the number of samples per transmitted frame. Default 4096.
	FrameSize int `yaml:"frame_size"`
}

// CameraConfig controls the optional periodic camera frames sent alongside
// audio so the interviewer can see the candidate.
type CameraConfig struct {
	// Enabled turns the camera producer on.
	Enabled bool `yaml:"enabled"`

	// IntervalMs is the capture cadence in milliseconds. Default 1000.
	IntervalMs int `yaml:"interval_ms"`
}
