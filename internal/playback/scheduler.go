// Package playback schedules decoded audio buffers on an output device so
// that a stream of arbitrarily sized chunks plays back gaplessly.
//
// The scheduler keeps a cursor — the device-clock offset at which the next
// buffer should start. Each buffer is scheduled at max(cursor, now) and the
// cursor advances by the buffer's duration, so chunks that arrive faster than
// real time queue up seamlessly while a late arrival after a silence gap
// starts immediately instead of in the past.
//
// Interruption (barge-in) stops every in-flight buffer, clears the queue, and
// resets the cursor. An epoch counter guards against the race between an
// interrupt and a chunk still being decoded: callers snapshot the epoch before
// decoding and the scheduler drops any buffer whose epoch is stale.
package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/intervox/pkg/audio"
)

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for scheduling events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// Scheduler owns the playback cursor and the set of in-flight buffers for one
// output device. Safe for concurrent use.
type Scheduler struct {
	out audio.OutputContext
	log *slog.Logger

	// mu guards next, live, epoch, and closed together: the cursor, the live
	// set, and the epoch must always change atomically relative to each other.
	mu     sync.Mutex
	next   float64
	live   map[audio.PlaybackHandle]struct{}
	epoch  uint64
	closed bool
}

// New creates a Scheduler for the given output context.
func New(out audio.OutputContext, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:  out,
		log:  slog.Default(),
		live: make(map[audio.PlaybackHandle]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Epoch returns the current interruption epoch. Callers that decode
// asynchronously snapshot it before decoding and pass it to [Scheduler.ScheduleAt];
// if an interrupt lands in between, the buffer is silently dropped.
func (s *Scheduler) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Schedule queues buf for gapless playback at the current epoch.
func (s *Scheduler) Schedule(buf *audio.Buffer) error {
	return s.ScheduleAt(s.Epoch(), buf)
}

// ScheduleAt queues buf for gapless playback if epoch is still current.
// A stale epoch means an interrupt happened after the chunk was received;
// the buffer belongs to a cancelled response and is dropped without error.
// Nil or empty buffers are ignored.
func (s *Scheduler) ScheduleAt(epoch uint64, buf *audio.Buffer) error {
	if buf == nil || len(buf.Samples) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("playback: scheduler is closed")
	}
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debug("dropping stale audio buffer",
			"epoch", epoch, "current", s.epoch, "duration", buf.Duration())
		return nil
	}

	// Clamp the cursor to the device clock: after a silence gap the next
	// buffer starts now, not at the stale cursor position in the past.
	now := s.out.CurrentTime()
	start := s.next
	if start < now {
		start = now
	}

	handle, err := s.out.Play(buf, start)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("playback: schedule buffer: %w", err)
	}
	s.next = start + buf.Duration()
	s.live[handle] = struct{}{}

	// Registered before mu is released: the callback itself takes mu, so a
	// buffer that finishes immediately deregisters only after the handle is in
	// the live set. Deregistration is a bare map delete, so a handle already
	// removed by Interrupt (backends may fire the ended callback on Stop) is a
	// no-op. Backends invoke the callback on their own goroutine, never from
	// inside OnEnded.
	handle.OnEnded(func() {
		s.mu.Lock()
		delete(s.live, handle)
		s.mu.Unlock()
	})
	s.mu.Unlock()

	s.log.Debug("scheduled audio buffer", "start", start, "duration", buf.Duration())
	return nil
}

// Interrupt stops all in-flight buffers, clears the queue, resets the cursor,
// and advances the epoch so in-flight decodes of the cancelled response are
// dropped on arrival. Idempotent: interrupting an idle scheduler only bumps
// the epoch.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	handles := make([]audio.PlaybackHandle, 0, len(s.live))
	for h := range s.live {
		handles = append(handles, h)
	}
	s.live = make(map[audio.PlaybackHandle]struct{})
	s.next = 0
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}

	if len(handles) > 0 {
		s.log.Debug("interrupted playback", "stopped", len(handles), "epoch", epoch)
	}
}

// Pending reports the number of in-flight buffers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close interrupts playback and rejects further scheduling. Idempotent.
// The output context itself is owned by the caller and stays open.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Interrupt()
	return nil
}
