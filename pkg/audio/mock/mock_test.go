package mock_test

import (
	"testing"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/mock"
)

func TestHandle_OnEndedAfterNaturalEndStillFires(t *testing.T) {
	t.Parallel()

	out := &mock.OutputContext{}
	h, err := out.Play(&audio.Buffer{Samples: []float32{0}, SampleRate: 24000, Channels: 1}, 0)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}

	// Playback finishes before anyone registers a callback; the late
	// registration must still observe the event.
	out.Handles()[0].End()

	fired := make(chan struct{})
	h.OnEnded(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("ended callback never fired for an already-finished handle")
	}
}

func TestHandle_EndedFiresAtMostOnce(t *testing.T) {
	t.Parallel()

	out := &mock.OutputContext{}
	if _, err := out.Play(&audio.Buffer{Samples: []float32{0}, SampleRate: 24000, Channels: 1}, 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	h := out.Handles()[0]

	fired := 0
	h.OnEnded(func() { fired++ })
	h.End()
	h.End()
	h.Stop()

	if fired != 1 {
		t.Errorf("ended fired %d times, want 1", fired)
	}
}
