// Package openai implements the live.Provider interface for OpenAI's Realtime
// API.
//
// It establishes a bidirectional WebSocket connection to the OpenAI Realtime
// endpoint and exchanges JSON events according to the Realtime API protocol.
// The flat event stream is folded into the normalised [live.ServerMessage]
// shape: audio deltas become model-turn inline data, transcription events
// become input/output transcription fragments, response.done becomes a
// turn-complete signal, and speech_started becomes an interruption.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/live"
	"github.com/coder/websocket"
)

// Compile-time assertions that Provider and session satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// The Realtime API synthesises pcm16 at a fixed 24 kHz.
	outputMIMEType = "audio/pcm;rate=24000"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the default OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return "openai" }

// Connect establishes a new OpenAI Realtime session with the given
// configuration. The session.update event is sent before Connect returns;
// readiness is signalled via Callbacks.OnOpen when the server sends
// session.created.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	model := cfg.Model
	if model == "" {
		model = p.model
	}
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:      conn,
		callbacks: cfg.Callbacks,
		ctx:       sessCtx,
		cancel:    sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice                   string              `json:"voice,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *transcriptionModel `json:"input_audio_transcription,omitempty"`
}

type transcriptionModel struct {
	Model string `json:"model"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

// serverErrorDetail represents the nested error object in an OpenAI Realtime
// error event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn      *websocket.Conn
	callbacks live.Callbacks

	mu     sync.Mutex
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event configuring voice,
// instructions, audio formats, and input transcription. Input transcription
// must be requested explicitly or the API never emits user speech text.
func (s *session) sendSessionUpdate(cfg live.SessionConfig) error {
	params := sessionParams{
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &transcriptionModel{Model: "whisper-1"},
	}
	if cfg.Voice != "" {
		params.Voice = cfg.Voice
	}
	if cfg.Instructions != "" {
		params.Instructions = cfg.Instructions
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket, folds them into the normalised
// shape, and invokes the session callbacks. It owns OnClose: the callback
// fires exactly once when the loop exits, regardless of why.
func (s *session) receiveLoop() {
	defer s.fireClose()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if s.callbacks.OnError != nil {
				s.callbacks.OnError(fmt.Errorf("openai: read: %w", err))
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue // skip malformed frames
		}

		s.handleEvent(&ev)
	}
}

// handleEvent maps one Realtime event onto the normalised message shape.
// Events with no equivalent (rate limit notices, item lifecycle chatter) are
// dropped.
func (s *session) handleEvent(ev *serverEvent) {
	emit := func(msg *live.ServerMessage) {
		if s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(msg)
		}
	}

	switch ev.Type {
	case "session.created":
		if s.callbacks.OnOpen != nil {
			s.callbacks.OnOpen()
		}
		emit(&live.ServerMessage{SetupComplete: true})

	case "response.audio.delta":
		if ev.Delta == "" {
			return
		}
		emit(&live.ServerMessage{ServerContent: &live.ServerContent{
			ModelTurn: &live.ModelTurn{Parts: []live.Part{
				{InlineData: &live.InlineData{MIMEType: outputMIMEType, Data: ev.Delta}},
			}},
		}})

	case "response.audio_transcript.delta":
		if ev.Delta == "" {
			return
		}
		emit(&live.ServerMessage{ServerContent: &live.ServerContent{
			OutputTranscription: &live.Transcription{Text: ev.Delta},
		}})

	case "conversation.item.input_audio_transcription.completed":
		if ev.Transcript == "" {
			return
		}
		emit(&live.ServerMessage{ServerContent: &live.ServerContent{
			InputTranscription: &live.Transcription{Text: ev.Transcript},
		}})

	case "response.done":
		emit(&live.ServerMessage{ServerContent: &live.ServerContent{TurnComplete: true}})

	case "input_audio_buffer.speech_started":
		// Server VAD detected barge-in; queued output for the current turn
		// is void.
		emit(&live.ServerMessage{ServerContent: &live.ServerContent{Interrupted: true}})

	case "error":
		if s.callbacks.OnError == nil {
			return
		}
		text := "unknown error"
		if ev.Error != nil && ev.Error.Message != "" {
			text = ev.Error.Message
		}
		s.callbacks.OnError(fmt.Errorf("openai: %s", text))
	}
}

// fireClose invokes OnClose exactly once.
func (s *session) fireClose() {
	s.closeOnce.Do(func() {
		if s.callbacks.OnClose != nil {
			s.callbacks.OnClose()
		}
	})
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendMedia delivers audio chunks as input_audio_buffer.append events. The
// Realtime API carries audio only; chunks with a non-audio MIME type are
// dropped.
func (s *session) SendMedia(chunks ...live.MediaChunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	for _, c := range chunks {
		if !strings.HasPrefix(c.MIMEType, "audio/") {
			continue
		}
		msg := appendAudioMessage{Type: "input_audio_buffer.append", Audio: c.Data}
		if err := s.writeJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	s.fireClose()
	return nil
}
