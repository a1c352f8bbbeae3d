// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Outbound media travels as base64-encoded chunks in realtimeInput
// messages; inbound server events are decoded into the normalised
// [live.ServerMessage] shape and delivered through the session callbacks.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/live"
	"github.com/coder/websocket"
)

// Compile-time assertions that Provider and session satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the default Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new Gemini Live Provider with the given API key and options.
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
func (p *Provider) Name() string { return "gemini" }

// Connect establishes a new Gemini Live session with the given configuration.
// The setup message is sent before Connect returns; readiness is signalled via
// Callbacks.OnOpen when the server acknowledges with setupComplete.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:      conn,
		callbacks: cfg.Callbacks,
		done:      make(chan struct{}),
		ctx:       sessCtx,
		cancel:    sessCancel,
	}

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	if err := sess.sendSetup(model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *systemInstruction `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn      *websocket.Conn
	callbacks live.Callbacks

	mu     sync.Mutex
	closed bool

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup sends the initial BidiGenerateContent setup message. Input and
// output transcription are always requested; the transcript pipeline depends
// on both streams.
func (s *session) sendSetup(model string, cfg live.SessionConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
			InputAudioTranscription:  &struct{}{},
			OutputAudioTranscription: &struct{}{},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket, decodes them into the
// normalised shape, and invokes the session callbacks. It owns OnClose: the
// callback fires exactly once when the loop exits, regardless of why.
func (s *session) receiveLoop() {
	defer s.fireClose()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// If the session context was cancelled, exit cleanly.
			if s.ctx.Err() != nil {
				return
			}
			if s.callbacks.OnError != nil {
				s.callbacks.OnError(fmt.Errorf("gemini: read: %w", err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}

		s.handleServerMessage(&msg)
	}
}

func (s *session) handleServerMessage(msg *serverMessage) {
	if msg.Error != nil {
		if s.callbacks.OnError != nil {
			text := msg.Error.Message
			if text == "" {
				text = "unknown error"
			}
			s.callbacks.OnError(fmt.Errorf("gemini: %s", text))
		}
		return
	}

	if msg.SetupComplete != nil {
		if s.callbacks.OnOpen != nil {
			s.callbacks.OnOpen()
		}
		if s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(&live.ServerMessage{SetupComplete: true})
		}
		return
	}

	if msg.ServerContent != nil && s.callbacks.OnMessage != nil {
		s.callbacks.OnMessage(&live.ServerMessage{
			ServerContent: normaliseContent(msg.ServerContent),
		})
	}
}

// normaliseContent maps the wire shape onto the provider-neutral one. The two
// are deliberately parallel, so this is a field-by-field copy.
func normaliseContent(sc *serverContent) *live.ServerContent {
	out := &live.ServerContent{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.ModelTurn != nil {
		mt := &live.ModelTurn{Parts: make([]live.Part, 0, len(sc.ModelTurn.Parts))}
		for _, p := range sc.ModelTurn.Parts {
			np := live.Part{Text: p.Text}
			if p.InlineData != nil {
				np.InlineData = &live.InlineData{
					MIMEType: p.InlineData.MIMEType,
					Data:     p.InlineData.Data,
				}
			}
			mt.Parts = append(mt.Parts, np)
		}
		out.ModelTurn = mt
	}
	if sc.InputTranscription != nil {
		out.InputTranscription = &live.Transcription{Text: sc.InputTranscription.Text}
	}
	if sc.OutputTranscription != nil {
		out.OutputTranscription = &live.Transcription{Text: sc.OutputTranscription.Text}
	}
	return out
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
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

// SendMedia delivers media chunks to the model as one realtimeInput message.
func (s *session) SendMedia(chunks ...live.MediaChunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("gemini: session closed")
	}
	s.mu.Unlock()

	if len(chunks) == 0 {
		return nil
	}

	wire := make([]mediaChunk, len(chunks))
	for i, c := range chunks {
		wire[i] = mediaChunk{MIMEType: c.MIMEType, Data: c.Data}
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{MediaChunks: wire},
	}
	return s.writeJSON(msg)
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

	s.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(s.done) // signals keepaliveLoop via done channel
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	s.fireClose()
	return nil
}
