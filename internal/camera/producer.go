// Package camera periodically captures still frames and forwards them to a
// live session as inline JPEG media.
//
// Frame acquisition is abstracted behind [Source] so the producer works with
// any capture mechanism; the producer itself only owns the cadence and the
// encoding. Like the audio capture path, delivery is fire-and-forget: a
// failed grab or send skips the frame and the loop carries on.
package camera

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/live"
)

// Source captures one JPEG-encoded frame. It is called at most once per
// interval and never concurrently with itself.
type Source func(ctx context.Context) ([]byte, error)

// Sink receives one encoded media chunk per captured frame.
type Sink func(chunk live.MediaChunk) error

// Option is a functional option for configuring a Producer.
type Option func(*Producer)

// WithLogger sets the logger used for capture and send failures.
func WithLogger(log *slog.Logger) Option {
	return func(p *Producer) { p.log = log }
}

// WithInterval sets the capture cadence. Defaults to 1 second.
func WithInterval(d time.Duration) Option {
	return func(p *Producer) {
		if d > 0 {
			p.interval = d
		}
	}
}

// Producer drives a Source on a ticker and forwards frames to a Sink.
type Producer struct {
	source   Source
	sink     Sink
	log      *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	started bool

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Producer reading frames from source and delivering them to sink.
func New(source Source, sink Sink, opts ...Option) *Producer {
	p := &Producer{
		source:   source,
		sink:     sink,
		log:      slog.Default(),
		interval: time.Second,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start begins the capture loop. Idempotent.
func (p *Producer) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.loop()
}

func (p *Producer) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.done
		cancel()
	}()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.captureOne(ctx)
		}
	}
}

func (p *Producer) captureOne(ctx context.Context) {
	frame, err := p.source(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("failed to capture camera frame", "error", err)
		}
		return
	}
	if len(frame) == 0 {
		return
	}

	chunk := live.MediaChunk{
		MIMEType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(frame),
	}
	if err := p.sink(chunk); err != nil {
		p.log.Warn("failed to send camera frame", "error", err)
	}
}

// Close stops the capture loop. Idempotent.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
