// Package live defines the Provider interface for live voice AI backends.
//
// A live provider wraps a real-time speech-to-speech service that accepts raw
// audio input and returns synthesised audio output in a single, stateful
// session. Examples include the Gemini Live API and the OpenAI Realtime API.
//
// The central abstraction is SessionHandle: an open bidirectional connection
// that carries microphone media upstream and delivers model output through the
// callbacks registered at connect time. All server events — audio chunks,
// transcriptions, turn boundaries, interruptions — arrive as [ServerMessage]
// values through a single OnMessage callback, normalised to one shape
// regardless of which backend produced them.
//
// All implementations must be safe for concurrent use.
package live

import "context"

// Callbacks carries the event handlers for one session. All callbacks are
// optional; a nil callback is simply not invoked.
//
// Callbacks are invoked sequentially from the session's internal receive
// goroutine, so OnMessage never runs concurrently with itself. Handlers must
// not block and must not call SessionHandle.Close from within the callback;
// doing so risks deadlocking the receive loop.
type Callbacks struct {
	// OnOpen is invoked once, when the provider has acknowledged the session
	// setup and the handle is ready to accept media.
	OnOpen func()

	// OnMessage is invoked for every decoded server event.
	OnMessage func(msg *ServerMessage)

	// OnError is invoked for transport and protocol errors. A call to OnError
	// is always followed by OnClose.
	OnError func(err error)

	// OnClose is invoked exactly once when the session ends, whether cleanly
	// or after an error.
	OnClose func()
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Model overrides the provider's default model. Empty selects the default.
	Model string

	// Voice is the provider-specific voice name for synthesised output.
	// Empty selects the provider's default voice.
	Voice string

	// Instructions is the system-level prompt establishing the model's persona
	// and behavioural constraints for the whole session.
	Instructions string

	// InputSampleRate is the rate in Hz of the PCM media the client will send.
	InputSampleRate int

	// OutputSampleRate is the rate in Hz the client expects for synthesised
	// audio. Providers that cannot honour it report their actual rate in the
	// inline data MIME type.
	OutputSampleRate int

	// Callbacks receives all session events.
	Callbacks Callbacks
}

// MediaChunk is one outbound media payload: base64-encoded bytes plus the
// MIME type declaring their format, e.g. "audio/pcm;rate=16000" or
// "image/jpeg".
type MediaChunk struct {
	MIMEType string
	Data     string
}

// ServerMessage is the normalised shape of one server event. Exactly the
// fields present on the wire are populated; everything else is zero.
type ServerMessage struct {
	// SetupComplete is true for the provider's session acknowledgement.
	SetupComplete bool

	// ServerContent carries model output and turn signals.
	ServerContent *ServerContent
}

// ServerContent is the content payload of a server message. Any combination
// of fields may be present in a single message.
type ServerContent struct {
	// ModelTurn carries synthesised audio (and possibly text) parts.
	ModelTurn *ModelTurn

	// TurnComplete signals that the model has finished its current response.
	TurnComplete bool

	// Interrupted signals that the user spoke over the model and all queued
	// output for the current turn must be discarded.
	Interrupted bool

	// InputTranscription is an incremental fragment of the recognised user
	// speech.
	InputTranscription *Transcription

	// OutputTranscription is an incremental fragment of the text form of the
	// model's spoken output.
	OutputTranscription *Transcription
}

// ModelTurn is one batch of model output parts.
type ModelTurn struct {
	Parts []Part
}

// Part is one element of a model turn: inline media, text, or both.
type Part struct {
	Text       string
	InlineData *InlineData
}

// InlineData is base64-encoded inline media with its MIME type.
type InlineData struct {
	MIMEType string
	Data     string
}

// Transcription is one incremental transcription fragment.
type Transcription struct {
	Text string
}

// SessionHandle represents an open live session. It is an interface so that
// test code can supply mock implementations without a network connection.
//
// SendMedia is the hot path of the capture pipeline — it must return quickly
// and must tolerate being called from the audio thread. All methods must be
// safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendMedia delivers one or more media chunks to the provider. Returns an
	// error if the session is closed or the transport write fails.
	SendMedia(chunks ...MediaChunk) error

	// Close terminates the session and releases all resources. OnClose fires
	// if it has not already. Calling Close more than once is safe and returns
	// nil.
	Close() error
}

// Provider is the abstraction over any live voice backend.
type Provider interface {
	// Name returns a short stable identifier for the backend, e.g. "gemini".
	Name() string

	// Connect establishes a new live session with the given configuration.
	// It returns once the transport is open; readiness to accept media is
	// signalled separately via Callbacks.OnOpen.
	//
	// The caller owns the SessionHandle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
