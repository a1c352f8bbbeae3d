package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// Compile-time assertion that Output satisfies audio.OutputContext.
var _ audio.OutputContext = (*Output)(nil)

// OutputConfig configures a speaker playback context.
type OutputConfig struct {
	// SampleRate is the playback rate in Hz. Defaults to 24000.
	SampleRate int

	// BufferSize is the device buffer length. Smaller values reduce latency
	// at the cost of underrun risk. Defaults to 50ms.
	BufferSize time.Duration
}

// Output is an oto-backed [audio.OutputContext].
//
// oto pulls PCM16LE bytes from an io.Reader; Output's reader walks a queue of
// scheduled segments, emitting silence between them. The device clock is
// derived from the total byte count the player has pulled, so CurrentTime runs
// slightly ahead of the audible position by up to the device buffer length.
// That skew is constant, so relative scheduling (and therefore gaplessness) is
// unaffected.
type Output struct {
	ctx  *oto.Context
	rate int

	mu       sync.Mutex
	player   *oto.Player
	segments []*segment
	clock    int64 // bytes delivered to the device, silence included
	closed   bool
}

// segment is one scheduled buffer in the playback queue.
type segment struct {
	startByte int64
	data      []byte
	pos       int

	hmu      sync.Mutex
	ended    func()
	stopped  bool
	done     bool
	notified bool
}

// OpenOutput initialises the playback backend and starts the output stream.
// The stream plays silence until buffers are scheduled.
func OpenOutput(cfg OutputConfig) (*Output, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50 * time.Millisecond
	}

	octx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("device: init playback context: %w", err)
	}
	<-ready

	o := &Output{ctx: octx, rate: cfg.SampleRate}
	o.player = octx.NewPlayer(o)
	o.player.Play()
	return o, nil
}

// SampleRate implements [audio.OutputContext].
func (o *Output) SampleRate() int { return o.rate }

// CurrentTime implements [audio.OutputContext].
func (o *Output) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return float64(o.clock) / float64(o.rate*2)
}

// Play implements [audio.OutputContext]. The buffer's samples are converted to
// PCM16LE once, up front, and queued at the byte offset corresponding to when.
// A start offset already in the past is clamped to the current clock.
func (o *Output) Play(buf *audio.Buffer, when float64) (audio.PlaybackHandle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, fmt.Errorf("device: playback context is closed")
	}

	data := make([]byte, len(buf.Samples)*2)
	for i, s := range buf.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}

	start := int64(when*float64(o.rate)) * 2
	if start < o.clock {
		start = o.clock
	}
	seg := &segment{startByte: start, data: data}
	o.segments = append(o.segments, seg)
	return &deviceHandle{out: o, seg: seg}, nil
}

// Read implements io.Reader for the oto player. It fills p with scheduled
// segment bytes, silence where nothing is scheduled, advancing the device
// clock by everything delivered. Ended callbacks fire off-lock on a fresh
// goroutine.
func (o *Output) Read(p []byte) (int, error) {
	var finished []*segment

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, fmt.Errorf("device: playback context is closed")
	}

	n := 0
	for n < len(p) {
		seg := o.nextSegmentLocked()
		if seg == nil {
			for i := n; i < len(p); i++ {
				p[i] = 0
			}
			o.clock += int64(len(p) - n)
			n = len(p)
			break
		}
		if o.clock < seg.startByte {
			gap := seg.startByte - o.clock
			if room := int64(len(p) - n); gap > room {
				gap = room
			}
			for i := int64(0); i < gap; i++ {
				p[n+int(i)] = 0
			}
			n += int(gap)
			o.clock += gap
			continue
		}
		c := copy(p[n:], seg.data[seg.pos:])
		seg.pos += c
		n += c
		o.clock += int64(c)
		if seg.pos >= len(seg.data) {
			o.removeLocked(seg)
			finished = append(finished, seg)
		}
	}
	o.mu.Unlock()

	for _, seg := range finished {
		go seg.fireEnded()
	}
	return n, nil
}

// nextSegmentLocked returns the queued segment with the earliest start, or nil
// when the queue is empty. Callers hold o.mu.
func (o *Output) nextSegmentLocked() *segment {
	var best *segment
	for _, seg := range o.segments {
		if best == nil || seg.startByte < best.startByte {
			best = seg
		}
	}
	return best
}

// removeLocked removes seg from the queue. Callers hold o.mu.
func (o *Output) removeLocked(seg *segment) {
	for i, s := range o.segments {
		if s == seg {
			o.segments = append(o.segments[:i], o.segments[i+1:]...)
			return
		}
	}
}

// Close implements [audio.OutputContext]. Idempotent.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.segments = nil
	player := o.player
	o.mu.Unlock()

	if player != nil {
		if err := player.Close(); err != nil {
			return fmt.Errorf("device: close playback stream: %w", err)
		}
	}
	return nil
}

// fireEnded invokes the ended callback exactly once, skipping it entirely if
// the segment was stopped first. A segment that finishes with no callback
// registered yet stays done-but-unnotified; OnEnded delivers the event then.
func (s *segment) fireEnded() {
	s.hmu.Lock()
	if s.stopped || s.done {
		s.hmu.Unlock()
		return
	}
	s.done = true
	fn := s.ended
	if fn != nil {
		s.notified = true
	}
	s.hmu.Unlock()

	if fn != nil {
		fn()
	}
}

// deviceHandle is the [audio.PlaybackHandle] for one queued segment.
type deviceHandle struct {
	out *Output
	seg *segment
}

var _ audio.PlaybackHandle = (*deviceHandle)(nil)

// Stop implements [audio.PlaybackHandle]. Undelivered bytes are dropped from
// the queue; up to one device buffer of already-delivered audio may still
// play out. The ended callback does not fire for a stopped segment.
func (h *deviceHandle) Stop() {
	h.seg.hmu.Lock()
	h.seg.stopped = true
	h.seg.hmu.Unlock()

	h.out.mu.Lock()
	h.out.removeLocked(h.seg)
	h.out.mu.Unlock()
}

// OnEnded implements [audio.PlaybackHandle]. A segment that already finished
// playing gets its callback invoked immediately, still on a fresh goroutine,
// so registration can never race the device reader into a lost event.
func (h *deviceHandle) OnEnded(fn func()) {
	h.seg.hmu.Lock()
	if h.seg.done && !h.seg.notified {
		h.seg.notified = true
		h.seg.hmu.Unlock()
		go fn()
		return
	}
	h.seg.ended = fn
	h.seg.hmu.Unlock()
}
