// Package session owns the lifecycle of one live interview session: it opens
// the audio devices, connects the provider, wires microphone capture and
// speaker playback to the session handle, dispatches inbound server events,
// and tears everything down exactly once regardless of how the session ends.
//
// The controller is a state machine:
//
//	Idle ──Start──▶ Connecting ──OnOpen──▶ Active ──Stop/OnClose──▶ Idle/Error
//
// Connecting is entered only through Start and Active only through the
// provider's open acknowledgement; there is no shortcut from Idle to Active.
// Start opens both device contexts before touching the transport, so a denied
// microphone or missing speaker fails into Error without a half-connected
// session. Microphone frames are forwarded only while the state is exactly
// Active — frames captured during connection setup or teardown are dropped,
// not queued.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervox/internal/camera"
	"github.com/MrWong99/intervox/internal/capture"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/playback"
	"github.com/MrWong99/intervox/internal/transcript"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/pcm"
	"github.com/MrWong99/intervox/pkg/provider/live"
)

// State is the lifecycle state of a Controller.
type State string

const (
	// StateIdle means no session exists. The initial and terminal state.
	StateIdle State = "idle"

	// StateConnecting means the provider connection is being established but
	// the session is not yet acknowledged.
	StateConnecting State = "connecting"

	// StateActive means the session is open and media is flowing.
	StateActive State = "active"

	// StateError means the session ended because of a failure. Start may be
	// called again to retry.
	StateError State = "error"
)

// Config holds all dependencies for a [Controller].
type Config struct {
	// Provider is the live backend to connect to.
	Provider live.Provider

	// OpenInput opens the capture device. Called during Start; the controller
	// owns the returned context and closes it on teardown.
	OpenInput func() (audio.InputContext, error)

	// OpenOutput opens the playback device. Called during Start; the
	// controller owns the returned context and closes it on teardown.
	OpenOutput func() (audio.OutputContext, error)

	// Interview configures the interviewer persona.
	Interview interview.Config

	// Model overrides the provider's default model. Optional.
	Model string

	// Voice is the interviewer's voice name. Optional.
	Voice string

	// CameraSource, when non-nil, enables periodic camera frames alongside
	// audio.
	CameraSource camera.Source

	// CameraInterval is the camera capture cadence. Zero means 1 second.
	CameraInterval time.Duration

	// Metrics receives session instrumentation. Nil uses the package default.
	Metrics *observe.Metrics

	// Logger is used for session lifecycle events. Nil uses slog.Default.
	Logger *slog.Logger
}

// Controller manages a single live session at a time.
// All exported methods are safe for concurrent use.
type Controller struct {
	provider   live.Provider
	openInput  func() (audio.InputContext, error)
	openOutput func() (audio.OutputContext, error)
	itw        interview.Config
	model      string
	voice      string
	camSrc     camera.Source
	camIvl     time.Duration
	metrics    *observe.Metrics
	log        *slog.Logger

	mu        sync.Mutex
	state     State
	handle    live.SessionHandle
	scheduler *playback.Scheduler
	agg       *transcript.Aggregator
	outRate   int
	lastErr   error
	turnStart time.Time

	// closers belong to the current session and are run in reverse order
	// during teardown. Teardown snapshots and clears the slice under mu, so a
	// restarted session's resources can never be consumed by a stale teardown.
	closers []func() error

	// counted is true while this session holds an ActiveSessions increment.
	counted bool
}

// NewController creates an idle Controller with the given dependencies.
func NewController(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	met := cfg.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	ivl := cfg.CameraInterval
	if ivl <= 0 {
		ivl = time.Second
	}
	return &Controller{
		provider:   cfg.Provider,
		openInput:  cfg.OpenInput,
		openOutput: cfg.OpenOutput,
		itw:        cfg.Interview,
		model:      cfg.Model,
		voice:      cfg.Voice,
		camSrc:     cfg.CameraSource,
		camIvl:     ivl,
		metrics:    met,
		log:        log,
		state:      StateIdle,
	}
}

// Start opens the audio devices, connects the provider, and wires the media
// pipelines. It returns once the transport is open; the transition to Active
// happens when the provider acknowledges the session. A device that cannot be
// opened fails the start before the transport is touched. Returns an error if
// a session already exists.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateActive {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session: already %s", state)
	}
	c.state = StateConnecting
	c.lastErr = nil
	c.mu.Unlock()

	in, err := c.openInput()
	if err != nil {
		return c.failStart(fmt.Errorf("session: open capture device: %w", err))
	}
	c.addCloser(in.Close)

	out, err := c.openOutput()
	if err != nil {
		return c.failStart(fmt.Errorf("session: open output device: %w", err))
	}
	c.addCloser(out.Close)

	sched := playback.New(out, playback.WithLogger(c.log))
	pipe := capture.New(in, c.sendFrame, capture.WithLogger(c.log))

	// Wired before Connect so content the server sends while the dial is
	// still returning is dispatched, not dropped.
	c.mu.Lock()
	c.scheduler = sched
	c.agg = transcript.New(transcript.WithObserver(c.onTranscriptItem))
	c.outRate = out.SampleRate()
	c.mu.Unlock()

	handle, err := c.provider.Connect(ctx, live.SessionConfig{
		Model:            c.model,
		Voice:            c.voice,
		Instructions:     c.itw.SystemInstruction(),
		InputSampleRate:  in.SampleRate(),
		OutputSampleRate: out.SampleRate(),
		Callbacks: live.Callbacks{
			OnOpen:    c.onOpen,
			OnMessage: c.onMessage,
			OnError:   c.onError,
			OnClose:   c.onClose,
		},
	})
	if err != nil {
		return c.failStart(fmt.Errorf("session: connect %s: %w", c.provider.Name(), err))
	}

	c.mu.Lock()
	if c.state != StateConnecting && c.state != StateActive {
		// A remote close raced the dial and teardown already consumed the
		// device closers; release what it could not have seen.
		c.mu.Unlock()
		_ = pipe.Close()
		_ = sched.Close()
		_ = handle.Close()
		return fmt.Errorf("session: closed during setup")
	}
	c.handle = handle
	// Teardown runs in reverse: capture stops first so no frames chase a
	// closing handle, then playback, then the transport, then the devices.
	c.closers = append(c.closers, handle.Close, sched.Close, pipe.Close)
	c.counted = true
	c.mu.Unlock()
	c.metrics.ActiveSessions.Add(context.Background(), 1)

	if c.camSrc != nil {
		prod := camera.New(c.camSrc, c.sendCameraFrame,
			camera.WithLogger(c.log), camera.WithInterval(c.camIvl))
		prod.Start()
		c.addCloser(prod.Close)
	}

	if err := pipe.Start(); err != nil {
		return c.failStart(fmt.Errorf("session: start capture: %w", err))
	}

	c.log.Info("session connecting",
		"provider", c.provider.Name(),
		"role", c.itw.Role,
		"input_rate", in.SampleRate(),
		"output_rate", out.SampleRate(),
	)
	return nil
}

// Stop ends the session and releases all resources. Safe to call from any
// state and more than once; stopping an idle controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = StateIdle
	closers, counted := c.releaseLocked()
	c.mu.Unlock()

	c.runClosers(closers, counted)
	c.log.Info("session stopped")
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error that moved the controller into StateError, or
// nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transcript returns the committed conversation log so far, in order.
// Returns nil when no session has run.
func (c *Controller) Transcript() []transcript.Item {
	c.mu.Lock()
	agg := c.agg
	c.mu.Unlock()
	if agg == nil {
		return nil
	}
	return agg.Items()
}

// ── Outbound media ─────────────────────────────────────────────────────────────

// sendFrame is the capture pipeline sink. Frames are forwarded only while the
// session is exactly Active; anything captured during setup or teardown is
// dropped on the floor.
func (c *Controller) sendFrame(chunk pcm.Chunk) error {
	c.mu.Lock()
	handle := c.handle
	active := c.state == StateActive
	c.mu.Unlock()

	if !active || handle == nil {
		return nil
	}

	err := handle.SendMedia(live.MediaChunk{MIMEType: chunk.MIMEType, Data: chunk.Data})
	if err != nil {
		c.metrics.RecordFrameSendError(context.Background(), c.provider.Name())
		return err
	}
	c.metrics.RecordFrameSent(context.Background(), c.provider.Name())
	return nil
}

// sendCameraFrame forwards one camera chunk, gated like audio frames.
func (c *Controller) sendCameraFrame(chunk live.MediaChunk) error {
	c.mu.Lock()
	handle := c.handle
	active := c.state == StateActive
	c.mu.Unlock()

	if !active || handle == nil {
		return nil
	}
	return handle.SendMedia(chunk)
}

// ── Inbound events ─────────────────────────────────────────────────────────────

// onOpen moves Connecting to Active. An acknowledgement arriving after
// teardown began is ignored; Idle never jumps straight to Active.
func (c *Controller) onOpen() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateActive
	c.turnStart = time.Now()
	c.mu.Unlock()

	c.log.Info("session active", "provider", c.provider.Name())
}

// onMessage dispatches one normalised server event. It runs on the session's
// receive goroutine; everything it calls must be non-blocking.
func (c *Controller) onMessage(msg *live.ServerMessage) {
	sc := msg.ServerContent
	if sc == nil {
		return
	}

	c.mu.Lock()
	sched := c.scheduler
	agg := c.agg
	outRate := c.outRate
	c.mu.Unlock()
	if sched == nil || agg == nil {
		return
	}

	// Barge-in: flush everything queued before touching this message's other
	// fields, so audio in the same message lands in the new epoch.
	if sc.Interrupted {
		sched.Interrupt()
		c.metrics.PlaybackInterrupts.Add(context.Background(), 1)
		c.log.Debug("barge-in, playback interrupted")
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			c.scheduleAudioPart(sched, part, outRate)
		}
	}

	if sc.InputTranscription != nil {
		agg.AddUserFragment(sc.InputTranscription.Text)
	}
	if sc.OutputTranscription != nil {
		agg.AddModelFragment(sc.OutputTranscription.Text)
	}

	if sc.TurnComplete {
		agg.CompleteTurn()
		c.mu.Lock()
		started := c.turnStart
		c.turnStart = time.Now()
		c.mu.Unlock()
		if !started.IsZero() {
			c.metrics.TurnDuration.Record(context.Background(), time.Since(started).Seconds())
		}
	}
}

// scheduleAudioPart decodes one inline audio payload and queues it. The epoch
// is snapshotted before decoding: if a barge-in lands mid-decode the buffer
// belongs to the cancelled response and the scheduler drops it.
func (c *Controller) scheduleAudioPart(sched *playback.Scheduler, part live.Part, fallbackRate int) {
	inline := part.InlineData
	if inline == nil || !strings.HasPrefix(inline.MIMEType, "audio/") {
		return
	}

	epoch := sched.Epoch()
	raw, err := pcm.Decode(inline.Data)
	if err != nil {
		c.metrics.DecodeFailures.Add(context.Background(), 1)
		c.log.Warn("failed to decode audio payload", "error", err)
		return
	}

	rate := rateFromMIME(inline.MIMEType, fallbackRate)
	buf := pcm.DecodeAudioData(raw, rate, 1)
	if err := sched.ScheduleAt(epoch, buf); err != nil {
		c.log.Warn("failed to schedule audio buffer", "error", err)
		return
	}
	c.metrics.PlaybackScheduled.Add(context.Background(), 1)
}

// onError records transport and protocol errors. The session contract
// guarantees OnClose follows, so teardown happens there.
func (c *Controller) onError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.log.Error("session error", "error", err)
}

// onClose finalises the session when the transport ends, whether by remote
// disconnect or local Stop. The state transition and the closer snapshot
// happen in one critical section, so a Start that follows immediately gets a
// clean slate and its resources are invisible to this teardown.
func (c *Controller) onClose() {
	c.mu.Lock()
	if c.state == StateIdle {
		// Local Stop already ran teardown; nothing to do.
		c.mu.Unlock()
		return
	}
	if c.lastErr != nil {
		c.state = StateError
	} else {
		c.state = StateIdle
	}
	state := c.state
	closers, counted := c.releaseLocked()
	c.mu.Unlock()

	// Closing the handle from its own receive goroutine would deadlock, so
	// the snapshot runs on a fresh goroutine.
	go c.runClosers(closers, counted)
	c.log.Info("session closed", "state", string(state))
}

// ── Teardown ───────────────────────────────────────────────────────────────────

// addCloser registers fn with the current session's teardown. If the session
// already ended, fn runs immediately instead of leaking.
func (c *Controller) addCloser(fn func() error) {
	c.mu.Lock()
	if c.state != StateConnecting && c.state != StateActive {
		c.mu.Unlock()
		if err := fn(); err != nil {
			c.log.Warn("session closer error", "error", err)
		}
		return
	}
	c.closers = append(c.closers, fn)
	c.mu.Unlock()
}

// releaseLocked snapshots and clears the session's teardown resources.
// Callers hold c.mu.
func (c *Controller) releaseLocked() ([]func() error, bool) {
	closers := c.closers
	c.closers = nil
	c.handle = nil
	c.scheduler = nil
	counted := c.counted
	c.counted = false
	return closers, counted
}

// runClosers runs one teardown snapshot in reverse order.
func (c *Controller) runClosers(closers []func() error, counted bool) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			c.log.Warn("session teardown closer error", "index", i, "error", err)
		}
	}
	if counted {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// failStart records err, tears down whatever Start had assembled so far, and
// moves the controller to StateError.
func (c *Controller) failStart(err error) error {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = err
	closers, counted := c.releaseLocked()
	c.mu.Unlock()

	c.runClosers(closers, counted)
	return err
}

// onTranscriptItem instruments each committed transcript item.
func (c *Controller) onTranscriptItem(item transcript.Item) {
	c.metrics.RecordTranscriptItem(context.Background(), string(item.Role))
}

// rateFromMIME extracts the rate parameter from a MIME type like
// "audio/pcm;rate=24000", falling back to fallback when absent or malformed.
func rateFromMIME(mimeType string, fallback int) int {
	for _, part := range strings.Split(mimeType, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "rate="); ok {
			if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return fallback
}
