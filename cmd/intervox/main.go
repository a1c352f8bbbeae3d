// Command intervox is the main entry point for the intervox live mock
// interview client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/session"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/device"
	"github.com/MrWong99/intervox/pkg/provider/live"
	geminilive "github.com/MrWong99/intervox/pkg/provider/live/gemini"
	openailive "github.com/MrWong99/intervox/pkg/provider/live/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "intervox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "intervox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("intervox starting",
		"config", *configPath,
		"provider", cfg.Provider.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Live provider ─────────────────────────────────────────────────────────
	provider, err := buildProvider(cfg)
	if err != nil {
		slog.Error("failed to build provider", "err", err)
		return 1
	}
	slog.Info("provider created", "name", provider.Name(), "model", cfg.Provider.Model)

	// ── Session controller ────────────────────────────────────────────────────
	if cfg.Camera.Enabled {
		// Frame acquisition is pluggable through session.Config.CameraSource;
		// no built-in webcam backend ships yet.
		slog.Warn("camera enabled in config but no capture backend is available, continuing without video")
	}

	// The controller owns the device lifecycle: devices are opened during
	// Start and closed by session teardown.
	ctrl := session.NewController(session.Config{
		Provider: provider,
		OpenInput: func() (audio.InputContext, error) {
			return device.OpenCapture(device.CaptureConfig{
				SampleRate: cfg.Audio.InputSampleRate,
				FrameSize:  cfg.Audio.FrameSize,
			})
		},
		OpenOutput: func() (audio.OutputContext, error) {
			return device.OpenOutput(device.OutputConfig{
				SampleRate: cfg.Audio.OutputSampleRate,
			})
		},
		Interview: cfg.Interview,
		Model:     cfg.Provider.Model,
		Voice:     cfg.Provider.Voice,
		Logger:    logger,
	})

	// ── Observability server (optional) ───────────────────────────────────────
	var obsSrv *http.Server
	if cfg.Server.ListenAddr != "" {
		obsSrv = newObservabilityServer(cfg.Server.ListenAddr, ctrl)
		go func() {
			slog.Info("observability server listening", "addr", cfg.Server.ListenAddr)
			if err := obsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("observability server error", "err", err)
			}
		}()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	if err := ctrl.Start(ctx); err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}

	slog.Info("interview session starting — press Ctrl+C to end")

	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	if err := ctrl.Stop(); err != nil {
		slog.Warn("session stop error", "err", err)
	}
	printTranscript(ctrl)

	if obsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("observability server shutdown error", "err", err)
		}
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProvider constructs the live backend named in cfg.
func buildProvider(cfg *config.Config) (live.Provider, error) {
	switch cfg.Provider.Name {
	case "gemini":
		var opts []geminilive.Option
		if cfg.Provider.Model != "" {
			opts = append(opts, geminilive.WithModel(cfg.Provider.Model))
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(cfg.Provider.BaseURL))
		}
		return geminilive.New(cfg.Provider.APIKey, opts...), nil
	case "openai":
		var opts []openailive.Option
		if cfg.Provider.Model != "" {
			opts = append(opts, openailive.WithModel(cfg.Provider.Model))
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, openailive.WithBaseURL(cfg.Provider.BaseURL))
		}
		return openailive.New(cfg.Provider.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q; valid values: %v", cfg.Provider.Name, config.ValidProviderNames)
	}
}

// ── Observability server ──────────────────────────────────────────────────────

// newObservabilityServer serves Prometheus metrics and health probes.
func newObservabilityServer(addr string, ctrl *session.Controller) *http.Server {
	h := health.New(
		health.Checker{Name: "session", Check: func(context.Context) error {
			if ctrl.State() == session.StateError {
				return fmt.Errorf("session failed: %v", ctrl.LastError())
			}
			return nil
		}},
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	h.Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         intervox — mock interview     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Provider", cfg.Provider.Name)
	printField("Model", cfg.Provider.Model)
	printField("Voice", cfg.Provider.Voice)
	printField("Role", cfg.Interview.Role)
	printField("Company", cfg.Interview.Company)
	printField("Experience", cfg.Interview.Experience)
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if value == "" {
		value = "(default)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", name, value)
}

// printTranscript dumps the conversation log to stdout after the session ends.
func printTranscript(ctrl *session.Controller) {
	items := ctrl.Transcript()
	if len(items) == 0 {
		return
	}
	fmt.Println("\n── Interview transcript ──")
	for _, item := range items {
		speaker := "Candidate"
		if item.Role == "model" {
			speaker = "Interviewer"
		}
		fmt.Printf("[%s] %s: %s\n", item.Timestamp.Format("15:04:05"), speaker, item.Text)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
