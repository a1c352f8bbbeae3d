// Package mock provides in-memory mock implementations of the
// [live.Provider] and [live.SessionHandle] interfaces for use in unit tests.
//
// The mock session is scripted: the test drives the server side by calling
// [Session.Open], [Session.Emit], [Session.EmitError], and
// [Session.Disconnect], which invoke the callbacks the session was connected
// with. Everything sent through SendMedia is recorded for assertions.
//
// All mocks are safe for concurrent use.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/live"
)

// ─── Provider ─────────────────────────────────────────────────────────────────

// Provider is a mock implementation of [live.Provider].
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock" if empty.
	ProviderName string

	// ConnectError is returned by Connect.
	ConnectError error

	// Session is the handle Connect returns. If nil, Connect creates a fresh
	// [Session] and stores it here.
	Session *Session

	// CallCountConnect records how many times Connect was called.
	CallCountConnect int

	lastConfig live.SessionConfig
}

var _ live.Provider = (*Provider)(nil)

// Name implements [live.Provider].
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Connect implements [live.Provider]. It records the config, wires the
// callbacks into the session, and returns it.
func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountConnect++
	p.lastConfig = cfg
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	if p.Session == nil {
		p.Session = &Session{}
	}
	p.Session.setCallbacks(cfg.Callbacks)
	return p.Session, nil
}

// LastConfig returns the SessionConfig passed to the most recent Connect call.
func (p *Provider) LastConfig() live.SessionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastConfig
}

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of [live.SessionHandle].
type Session struct {
	mu sync.Mutex

	// SendError is returned by SendMedia.
	SendError error

	// CloseError is returned by the first Close call.
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	callbacks  live.Callbacks
	sent       []live.MediaChunk
	closed     bool
	closeFired bool
}

var _ live.SessionHandle = (*Session)(nil)

func (s *Session) setCallbacks(cb live.Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = cb
}

// SendMedia implements [live.SessionHandle]. Chunks are recorded in order.
func (s *Session) SendMedia(chunks ...live.MediaChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendError != nil {
		return s.SendError
	}
	if s.closed {
		return fmt.Errorf("mock session: closed")
	}
	s.sent = append(s.sent, chunks...)
	return nil
}

// Close implements [live.SessionHandle]. Idempotent; fires OnClose once.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.CloseError
	s.mu.Unlock()

	s.fireClose()
	return err
}

// Sent returns a copy of every chunk passed to SendMedia, in order.
func (s *Session) Sent() []live.MediaChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]live.MediaChunk, len(s.sent))
	copy(out, s.sent)
	return out
}

// Closed reports whether Close has been called at least once.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Scripting ────────────────────────────────────────────────────────────────

// Open simulates the provider acknowledging session setup: OnOpen fires,
// followed by a SetupComplete message.
func (s *Session) Open() {
	s.mu.Lock()
	cb := s.callbacks
	s.mu.Unlock()

	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	if cb.OnMessage != nil {
		cb.OnMessage(&live.ServerMessage{SetupComplete: true})
	}
}

// Emit delivers one server message through OnMessage.
func (s *Session) Emit(msg *live.ServerMessage) {
	s.mu.Lock()
	cb := s.callbacks
	s.mu.Unlock()

	if cb.OnMessage != nil {
		cb.OnMessage(msg)
	}
}

// EmitContent delivers one server content payload through OnMessage.
func (s *Session) EmitContent(sc *live.ServerContent) {
	s.Emit(&live.ServerMessage{ServerContent: sc})
}

// EmitError delivers err through OnError.
func (s *Session) EmitError(err error) {
	s.mu.Lock()
	cb := s.callbacks
	s.mu.Unlock()

	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// Disconnect simulates the server dropping the connection: OnClose fires once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.fireClose()
}

func (s *Session) fireClose() {
	s.mu.Lock()
	if s.closeFired {
		s.mu.Unlock()
		return
	}
	s.closeFired = true
	cb := s.callbacks
	s.mu.Unlock()

	if cb.OnClose != nil {
		cb.OnClose()
	}
}
