package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/intervox/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
provider:
  name: gemini
  api_key: test-key
  voice: Puck
audio:
  input_sample_rate: 16000
  output_sample_rate: 24000
  frame_size: 2048
camera:
  enabled: true
  interval_ms: 500
interview:
  role: Backend Engineer
  company: Acme Corp
  experience: 5 years
`

func TestLoadFromReader_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Provider.Name != "gemini" || cfg.Provider.Voice != "Puck" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Audio.FrameSize != 2048 {
		t.Errorf("FrameSize = %d, want 2048", cfg.Audio.FrameSize)
	}
	if !cfg.Camera.Enabled || cfg.Camera.IntervalMs != 500 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.Interview.Role != "Backend Engineer" {
		t.Errorf("Role = %q", cfg.Interview.Role)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(`
provider:
  name: openai
  api_key: k
interview:
  role: SRE
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.InputSampleRate != 16000 || cfg.Audio.OutputSampleRate != 24000 || cfg.Audio.FrameSize != 4096 {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.Camera.IntervalMs != 1000 {
		t.Errorf("IntervalMs = %d, want 1000", cfg.Camera.IntervalMs)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
provider:
  name: gemini
  api_key: k
  totally_unknown: true
interview:
  role: SRE
`))
	if err == nil {
		t.Fatal("unknown field should be rejected")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "loud"
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("empty config should fail validation")
	}
	for _, want := range []string{"server.log_level", "provider.name", "provider.api_key", "role"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
provider:
  name: acme-voice
  api_key: k
interview:
  role: SRE
`))
	if err == nil || !strings.Contains(err.Error(), "provider.name") {
		t.Errorf("err = %v, want provider.name error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("Load of a missing file should return an error")
	}
}
