// Package capture forwards microphone frames to a live session as encoded
// media chunks.
//
// The pipeline is fire-and-forget by design: the capture tap runs on the
// device's audio thread and must never block, so frames are handed to a
// buffered channel and encoded on a worker goroutine. When the channel is
// full — the transport is slower than the microphone — the oldest pending
// frame is not worth waiting for and the new frame is dropped. Send failures
// are logged, never propagated; a failing transport surfaces through the
// session's own error callback instead.
package capture

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/pcm"
)

// Sink receives one encoded chunk per captured frame.
type Sink func(chunk pcm.Chunk) error

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for drop and send-failure events.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithQueueDepth sets the number of frames buffered between the audio thread
// and the encode worker. Defaults to 16.
func WithQueueDepth(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frames = make(chan []float32, n)
		}
	}
}

// Pipeline connects an input context to a sink. Safe for concurrent use.
type Pipeline struct {
	in   audio.InputContext
	sink Sink
	log  *slog.Logger

	frames chan []float32
	done   chan struct{}

	mu      sync.Mutex
	dropped uint64
	started bool

	closeOnce sync.Once
}

// New creates a Pipeline reading from in and delivering encoded chunks to sink.
func New(in audio.InputContext, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		in:     in,
		sink:   sink,
		log:    slog.Default(),
		frames: make(chan []float32, 16),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start begins capture. Frames flow from the device tap through the encode
// worker to the sink until Close is called.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	go p.encodeLoop()

	return p.in.Start(p.tap)
}

// tap runs on the device's audio thread. The frame is copied because the
// device reuses the slice; the copy is enqueued without blocking.
func (p *Pipeline) tap(samples []float32) {
	frame := make([]float32, len(samples))
	copy(frame, samples)

	select {
	case p.frames <- frame:
	case <-p.done:
	default:
		p.mu.Lock()
		p.dropped++
		n := p.dropped
		p.mu.Unlock()
		p.log.Warn("dropping capture frame, send queue full", "dropped_total", n)
	}
}

// encodeLoop drains the frame queue, encodes each frame, and hands it to the
// sink. Exits when the pipeline closes.
func (p *Pipeline) encodeLoop() {
	rate := p.in.SampleRate()
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.frames:
			chunk := pcm.Encode(frame, rate, 1)
			if err := p.sink(chunk); err != nil {
				p.log.Warn("failed to send capture frame", "error", err)
			}
		}
	}
}

// Dropped reports how many frames were discarded because the queue was full.
func (p *Pipeline) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops forwarding frames. The input context is owned by the caller and
// stays open. Idempotent.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
