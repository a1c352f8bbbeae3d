// Package device implements the [audio.InputContext] and [audio.OutputContext]
// interfaces on real hardware, using malgo (miniaudio) for microphone capture
// and oto for speaker playback.
//
// Both contexts are opened at a fixed sample rate in signed 16-bit mono and
// expose the normalised float32 sample domain used by the rest of the
// pipeline. Opening a capture context is also where microphone permission is
// acquired — on platforms that gate device access, InitDevice fails and the
// caller surfaces it as a permission error.
package device

import (
	"fmt"
	"sync"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Compile-time assertion that Capture satisfies audio.InputContext.
var _ audio.InputContext = (*Capture)(nil)

// CaptureConfig configures a microphone capture context.
type CaptureConfig struct {
	// SampleRate is the capture rate in Hz. Defaults to 16000.
	SampleRate int

	// FrameSize is the number of samples delivered per tap invocation.
	// Defaults to 4096.
	FrameSize int
}

// Capture is a malgo-backed [audio.InputContext]. The device delivers audio
// at its own period size; Capture re-frames it so the tap always receives
// exactly FrameSize samples per call.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	rate   int
	frame  int

	mu      sync.Mutex
	tap     audio.Tap
	pending []float32
	started bool
	closed  bool
}

// OpenCapture initialises the audio backend and opens the default microphone
// in S16LE mono at the configured rate. The device does not start delivering
// frames until [Capture.Start] is called.
func OpenCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 4096
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("device: init capture context: %w", err)
	}

	c := &Capture{
		ctx:     mctx,
		rate:    cfg.SampleRate,
		frame:   cfg.FrameSize,
		pending: make([]float32, 0, cfg.FrameSize*2),
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(cfg.SampleRate)
	deviceCfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			c.onDeviceData(in)
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceCfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("device: open microphone: %w", err)
	}
	c.device = dev

	return c, nil
}

// SampleRate implements [audio.InputContext].
func (c *Capture) SampleRate() int { return c.rate }

// FrameSize implements [audio.InputContext].
func (c *Capture) FrameSize() int { return c.frame }

// Start implements [audio.InputContext]. The first call starts the device;
// subsequent calls just replace the tap.
func (c *Capture) Start(tap audio.Tap) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("device: capture context is closed")
	}
	c.tap = tap
	needStart := !c.started
	c.started = true
	c.mu.Unlock()

	if needStart {
		if err := c.device.Start(); err != nil {
			return fmt.Errorf("device: start microphone: %w", err)
		}
	}
	return nil
}

// onDeviceData converts one device period of S16LE bytes into normalised
// samples, accumulates them, and flushes complete frames to the tap. Runs on
// the device's audio thread.
func (c *Capture) onDeviceData(in []byte) {
	c.mu.Lock()
	tap := c.tap
	if tap == nil || c.closed {
		c.mu.Unlock()
		return
	}

	for i := 0; i+1 < len(in); i += 2 {
		v := int16(in[i]) | int16(in[i+1])<<8
		c.pending = append(c.pending, float32(v)/32768)
	}

	var frames [][]float32
	for len(c.pending) >= c.frame {
		frame := make([]float32, c.frame)
		copy(frame, c.pending[:c.frame])
		c.pending = c.pending[:copy(c.pending, c.pending[c.frame:])]
		frames = append(frames, frame)
	}
	c.mu.Unlock()

	for _, f := range frames {
		tap(f)
	}
}

// Close implements [audio.InputContext]. Idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.tap = nil
	c.mu.Unlock()

	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
	}
	return nil
}
