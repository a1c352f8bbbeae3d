// Package mock provides in-memory mock implementations of the
// [audio.InputContext], [audio.OutputContext], and [audio.PlaybackHandle]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values. The output
// context's clock is manual: it never advances unless the test calls
// [OutputContext.AdvanceTime] or [OutputContext.SetTime].
//
// Typical usage:
//
//	out := &mock.OutputContext{Rate: 24000}
//	out.SetTime(1.5)
//	h, _ := out.Play(buf, 2.0)
//	out.Handles()[0].End() // simulate natural completion
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/intervox/pkg/audio"
)

// ─── InputContext ─────────────────────────────────────────────────────────────

// InputContext is a mock implementation of [audio.InputContext].
// Set the exported fields before use; drive the tap with [InputContext.EmitFrame].
type InputContext struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to 16000 if zero.
	Rate int

	// Frame is returned by FrameSize. Defaults to 4096 if zero.
	Frame int

	// StartError is returned by Start.
	StartError error

	// CloseError is returned by the first Close call.
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	tap    audio.Tap
	closed bool
}

var _ audio.InputContext = (*InputContext)(nil)

// SampleRate implements [audio.InputContext].
func (c *InputContext) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Rate == 0 {
		return 16000
	}
	return c.Rate
}

// FrameSize implements [audio.InputContext].
func (c *InputContext) FrameSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Frame == 0 {
		return 4096
	}
	return c.Frame
}

// Start implements [audio.InputContext]. It records the tap for later
// [InputContext.EmitFrame] calls.
func (c *InputContext) Start(tap audio.Tap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	if c.StartError != nil {
		return c.StartError
	}
	if c.closed {
		return fmt.Errorf("mock input: closed")
	}
	c.tap = tap
	return nil
}

// Close implements [audio.InputContext]. Idempotent.
func (c *InputContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if c.closed {
		return nil
	}
	c.closed = true
	c.tap = nil
	return c.CloseError
}

// Closed reports whether Close has been called at least once.
func (c *InputContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// EmitFrame synchronously invokes the registered tap with samples, simulating
// one device callback. It is a no-op if Start has not been called or the
// context is closed.
func (c *InputContext) EmitFrame(samples []float32) {
	c.mu.Lock()
	tap := c.tap
	c.mu.Unlock()
	if tap != nil {
		tap(samples)
	}
}

// ─── OutputContext ────────────────────────────────────────────────────────────

// Scheduled records one Play call: the buffer and the requested start offset.
type Scheduled struct {
	Buffer *audio.Buffer
	When   float64
}

// OutputContext is a mock implementation of [audio.OutputContext] with a
// manually advanced clock.
type OutputContext struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to 24000 if zero.
	Rate int

	// PlayError is returned by Play.
	PlayError error

	// CloseError is returned by the first Close call.
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	now       float64
	scheduled []Scheduled
	handles   []*Handle
	closed    bool
}

var _ audio.OutputContext = (*OutputContext)(nil)

// SampleRate implements [audio.OutputContext].
func (o *OutputContext) SampleRate() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Rate == 0 {
		return 24000
	}
	return o.Rate
}

// CurrentTime implements [audio.OutputContext]. The mock clock only moves via
// [OutputContext.AdvanceTime] or [OutputContext.SetTime].
func (o *OutputContext) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// AdvanceTime moves the mock clock forward by d seconds.
func (o *OutputContext) AdvanceTime(d float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += d
}

// SetTime sets the mock clock to an absolute value in seconds.
func (o *OutputContext) SetTime(tm float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = tm
}

// Play implements [audio.OutputContext]. Every call is recorded and a new
// [Handle] returned; playback never progresses on its own — tests complete
// handles explicitly via [Handle.End].
func (o *OutputContext) Play(buf *audio.Buffer, when float64) (audio.PlaybackHandle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.PlayError != nil {
		return nil, o.PlayError
	}
	if o.closed {
		return nil, fmt.Errorf("mock output: closed")
	}
	o.scheduled = append(o.scheduled, Scheduled{Buffer: buf, When: when})
	h := &Handle{}
	o.handles = append(o.handles, h)
	return h, nil
}

// Close implements [audio.OutputContext]. Idempotent.
func (o *OutputContext) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClose++
	if o.closed {
		return nil
	}
	o.closed = true
	return o.CloseError
}

// Closed reports whether Close has been called at least once.
func (o *OutputContext) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// ScheduledCalls returns a copy of every recorded Play call, in order.
func (o *OutputContext) ScheduledCalls() []Scheduled {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Scheduled, len(o.scheduled))
	copy(out, o.scheduled)
	return out
}

// Handles returns the handles created by Play, in creation order.
func (o *OutputContext) Handles() []*Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Handle, len(o.handles))
	copy(out, o.handles)
	return out
}

// ─── Handle ───────────────────────────────────────────────────────────────────

// Handle is a mock implementation of [audio.PlaybackHandle].
//
// Stop deliberately fires the registered ended callback as well, mirroring
// backends where stopping a source still emits its ended event. Tests rely on
// this to prove the scheduler never double-deregisters a stopped handle.
type Handle struct {
	mu sync.Mutex

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	ended   func()
	stopped bool
	done    bool
	fired   bool
}

var _ audio.PlaybackHandle = (*Handle)(nil)

// Stop implements [audio.PlaybackHandle]. The first call also fires the
// ended callback, as a Web-Audio-style backend would.
func (h *Handle) Stop() {
	h.mu.Lock()
	h.CallCountStop++
	first := !h.stopped && !h.done
	h.stopped = true
	fn := h.ended
	if first && fn != nil {
		h.fired = true
	}
	h.mu.Unlock()

	if first && fn != nil {
		fn()
	}
}

// OnEnded implements [audio.PlaybackHandle]. Registering on a handle that
// already ended naturally fires fn immediately on a fresh goroutine, matching
// the device backend's late-registration behaviour.
func (h *Handle) OnEnded(fn func()) {
	h.mu.Lock()
	if h.done && !h.fired {
		h.fired = true
		h.mu.Unlock()
		go fn()
		return
	}
	h.ended = fn
	h.mu.Unlock()
}

// End simulates natural end-of-playback, firing the ended callback once.
// It is a no-op on a stopped or already-ended handle.
func (h *Handle) End() {
	h.mu.Lock()
	if h.stopped || h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	fn := h.ended
	if fn != nil {
		h.fired = true
	}
	h.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stopped reports whether Stop was called at least once.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}
