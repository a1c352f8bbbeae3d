package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/live"
	"github.com/MrWong99/intervox/pkg/provider/live/openai"
	"github.com/coder/websocket"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startRealtimeServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// sendSessionCreated sends the server-side session.created ack.
func sendSessionCreated(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"type": "session.created"})
}

type messageCollector struct {
	opened   chan struct{}
	messages chan *live.ServerMessage
	errs     chan error
	closed   chan struct{}
}

func newCollector() *messageCollector {
	return &messageCollector{
		opened:   make(chan struct{}, 1),
		messages: make(chan *live.ServerMessage, 16),
		errs:     make(chan error, 4),
		closed:   make(chan struct{}, 1),
	}
}

func (c *messageCollector) callbacks() live.Callbacks {
	return live.Callbacks{
		OnOpen:    func() { c.opened <- struct{}{} },
		OnMessage: func(msg *live.ServerMessage) { c.messages <- msg },
		OnError:   func(err error) { c.errs <- err },
		OnClose:   func() { c.closed <- struct{}{} },
	}
}

// waitForContent receives messages until one with ServerContent arrives.
func waitForContent(t *testing.T, col *messageCollector) *live.ServerMessage {
	t.Helper()
	for {
		select {
		case msg := <-col.messages:
			if msg.ServerContent != nil {
				return msg
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for server content")
			return nil
		}
	}
}

// ── TestConnect ────────────────────────────────────────────────────────────────

func TestConnect_SendsSessionUpdate(t *testing.T) {
	t.Parallel()

	type updateMsg struct {
		Type    string `json:"type"`
		Session struct {
			Voice                   string `json:"voice"`
			Instructions            string `json:"instructions"`
			InputAudioFormat        string `json:"input_audio_format"`
			OutputAudioFormat       string `json:"output_audio_format"`
			InputAudioTranscription *struct {
				Model string `json:"model"`
			} `json:"input_audio_transcription"`
		} `json:"session"`
	}

	received := make(chan updateMsg, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg updateMsg
		readJSON(t, conn, &msg)
		received <- msg
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{
		Voice:        "verse",
		Instructions: "You are a strict interviewer.",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case msg := <-received:
		if msg.Type != "session.update" {
			t.Errorf("type = %q; want session.update", msg.Type)
		}
		if msg.Session.Voice != "verse" {
			t.Errorf("voice = %q; want verse", msg.Session.Voice)
		}
		if msg.Session.Instructions != "You are a strict interviewer." {
			t.Errorf("instructions = %q", msg.Session.Instructions)
		}
		if msg.Session.InputAudioFormat != "pcm16" || msg.Session.OutputAudioFormat != "pcm16" {
			t.Errorf("audio formats = %q/%q; want pcm16/pcm16",
				msg.Session.InputAudioFormat, msg.Session.OutputAudioFormat)
		}
		if msg.Session.InputAudioTranscription == nil {
			t.Error("input_audio_transcription should always be requested")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestConnect_SendsAuthHeaders(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, r *http.Request) {
		headers <- r.Header
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("secret-key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case h := <-headers:
		if got := h.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q; want 'Bearer secret-key'", got)
		}
		if got := h.Get("OpenAI-Beta"); got != "realtime=v1" {
			t.Errorf("OpenAI-Beta = %q; want realtime=v1", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

// ── TestOnOpen ─────────────────────────────────────────────────────────────────

func TestOnOpen_FiresOnSessionCreated(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	col := newCollector()
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{Callbacks: col.callbacks()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case <-col.opened:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnOpen")
	}
}

// ── Event mapping tests ────────────────────────────────────────────────────────

func TestOnMessage_AudioDeltaBecomesModelTurn(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		writeJSON(t, conn, map[string]any{"type": "response.audio.delta", "delta": "AQIDBA=="})
		<-conn.CloseRead(context.Background()).Done()
	})

	col := newCollector()
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{Callbacks: col.callbacks()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	msg := waitForContent(t, col)
	mt := msg.ServerContent.ModelTurn
	if mt == nil || len(mt.Parts) != 1 || mt.Parts[0].InlineData == nil {
		t.Fatalf("unexpected model turn: %+v", mt)
	}
	if mt.Parts[0].InlineData.Data != "AQIDBA==" {
		t.Errorf("data = %q; want AQIDBA==", mt.Parts[0].InlineData.Data)
	}
	if got := mt.Parts[0].InlineData.MIMEType; got != "audio/pcm;rate=24000" {
		t.Errorf("mimeType = %q; want audio/pcm;rate=24000", got)
	}
}

func TestOnMessage_TranscriptionEvents(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		writeJSON(t, conn, map[string]any{
			"type":       "conversation.item.input_audio_transcription.completed",
			"transcript": "What is a goroutine?",
		})
		writeJSON(t, conn, map[string]any{
			"type":  "response.audio_transcript.delta",
			"delta": "A goroutine is ",
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	col := newCollector()
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{Callbacks: col.callbacks()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	first := waitForContent(t, col)
	if first.ServerContent.InputTranscription == nil || first.ServerContent.InputTranscription.Text != "What is a goroutine?" {
		t.Errorf("inputTranscription = %+v", first.ServerContent.InputTranscription)
	}

	second := waitForContent(t, col)
	if second.ServerContent.OutputTranscription == nil || second.ServerContent.OutputTranscription.Text != "A goroutine is " {
		t.Errorf("outputTranscription = %+v", second.ServerContent.OutputTranscription)
	}
}

func TestOnMessage_TurnAndInterruptSignals(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		writeJSON(t, conn, map[string]any{"type": "response.done"})
		writeJSON(t, conn, map[string]any{"type": "input_audio_buffer.speech_started"})
		<-conn.CloseRead(context.Background()).Done()
	})

	col := newCollector()
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{Callbacks: col.callbacks()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	first := waitForContent(t, col)
	if !first.ServerContent.TurnComplete {
		t.Errorf("first = %+v; want TurnComplete", first.ServerContent)
	}
	second := waitForContent(t, col)
	if !second.ServerContent.Interrupted {
		t.Errorf("second = %+v; want Interrupted", second.ServerContent)
	}
}

func TestOnMessage_UnknownEventsDropped(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		writeJSON(t, conn, map[string]any{"type": "rate_limits.updated"})
		writeJSON(t, conn, map[string]any{"type": "response.done"})
		<-conn.CloseRead(context.Background()).Done()
	})

	col := newCollector()
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{Callbacks: col.callbacks()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	// The rate-limit event must not surface; the next content message is the
	// turn-complete signal.
	msg := waitForContent(t, col)
	if !msg.ServerContent.TurnComplete {
		t.Errorf("got %+v; want TurnComplete", msg.ServerContent)
	}
}

// ── TestOnError ────────────────────────────────────────────────────────────────

func TestOnError_SurfacesErrorEvent(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		writeJSON(t, conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "invalid_request_error", "message": "bad session config"},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	col := newCollector()
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{Callbacks: col.callbacks()})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case err := <-col.errs:
		if !strings.Contains(err.Error(), "bad session config") {
			t.Errorf("error = %v; want it to contain 'bad session config'", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnError")
	}
}

// ── TestSendMedia ──────────────────────────────────────────────────────────────

func TestSendMedia_AppendsAudio(t *testing.T) {
	t.Parallel()

	type appendMsg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}

	received := make(chan appendMsg, 2)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)

		var msg appendMsg
		readJSON(t, conn, &msg)
		received <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	chunks := []live.MediaChunk{
		{MIMEType: "image/jpeg", Data: "ignored"}, // dropped: not audio
		{MIMEType: "audio/pcm;rate=16000", Data: "AQIDBA=="},
	}
	if err := handle.SendMedia(chunks...); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Type != "input_audio_buffer.append" {
			t.Errorf("type = %q; want input_audio_buffer.append", msg.Type)
		}
		if msg.Audio != "AQIDBA==" {
			t.Errorf("audio = %q; want AQIDBA== (image chunk must be dropped)", msg.Audio)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio append")
	}
}

func TestSendMedia_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = handle.Close()

	if err := handle.SendMedia(live.MediaChunk{MIMEType: "audio/pcm;rate=16000", Data: "AA=="}); err == nil {
		t.Fatal("SendMedia after Close should return an error")
	}
}

// ── TestClose ──────────────────────────────────────────────────────────────────

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
}
