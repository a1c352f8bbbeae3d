// Package audio defines the device-facing interfaces and types for the
// intervox media pipeline.
//
// The three primary abstractions are:
//
//   - [InputContext] — an open capture device delivering fixed-size sample
//     frames at the device's natural callback cadence.
//   - [OutputContext] — an open playback device with a monotonic clock against
//     which decoded buffers are scheduled at absolute offsets.
//   - [PlaybackHandle] — one scheduled-but-not-yet-finished output buffer.
//
// Implementations of these interfaces are provided by device-specific adapter
// packages (audio/device for real hardware, audio/mock for tests). The
// interfaces are intentionally narrow to keep the session controller decoupled
// from device details.
//
// This package lives under pkg/ because external code (alternative device
// backends) is expected to implement these interfaces.
package audio

// Tap is the capture callback invoked by an [InputContext] once per captured
// frame. The samples slice is only valid for the duration of the call; taps
// that retain it must copy. Taps are invoked from the device's audio thread
// and must not block.
type Tap func(samples []float32)

// InputContext represents an open audio capture device.
//
// A context is opened at a fixed sample rate and frame size; once started it
// invokes its [Tap] with exactly FrameSize normalised mono samples per
// callback until stopped or closed.
//
// Implementations must be safe for concurrent use.
type InputContext interface {
	// SampleRate returns the fixed capture rate in Hz.
	SampleRate() int

	// FrameSize returns the number of samples delivered per Tap invocation.
	FrameSize() int

	// Start begins capture, invoking tap once per frame. Only one tap may be
	// active at a time; calling Start again replaces it. Returns an error if
	// the context is closed or the device cannot start.
	Start(tap Tap) error

	// Close stops capture and releases the device. Safe to call more than
	// once; subsequent calls are no-ops and return nil.
	Close() error
}

// PlaybackHandle represents one scheduled output buffer. It is done either
// when the buffer finishes playing naturally or when Stop discards it.
type PlaybackHandle interface {
	// Stop immediately and synchronously halts playback of this buffer and
	// discards any unplayed samples. Safe to call more than once. Depending on
	// the backend, stopping may still fire the OnEnded callback afterwards;
	// consumers must tolerate both orders.
	Stop()

	// OnEnded registers fn to be invoked once when the buffer finishes playing
	// naturally. If the buffer already finished before registration, fn is
	// still invoked. Only one callback may be registered; subsequent calls
	// replace it. The callback is invoked on an internal goroutine, never from
	// inside OnEnded itself, and must not block.
	OnEnded(fn func())
}

// OutputContext represents an open audio playback device.
//
// The context exposes a monotonic clock (seconds since the context was
// opened) and schedules buffers at absolute offsets on that clock. Buffers
// scheduled back-to-back (each start = previous start + previous duration)
// must play gaplessly.
//
// Implementations must be safe for concurrent use.
type OutputContext interface {
	// SampleRate returns the fixed playback rate in Hz.
	SampleRate() int

	// CurrentTime returns the device clock in seconds. The clock is monotonic
	// and advances only while the context is open.
	CurrentTime() float64

	// Play schedules buf to start at the absolute device-clock offset when,
	// expressed in seconds. Scheduling in the past starts playback as soon as
	// possible. Returns an error if the context is closed.
	Play(buf *Buffer, when float64) (PlaybackHandle, error)

	// Close stops all playback and releases the device. Safe to call more
	// than once; subsequent calls are no-ops and return nil.
	Close() error
}
