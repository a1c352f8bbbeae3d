package camera_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/camera"
	"github.com/MrWong99/intervox/pkg/provider/live"
)

func TestProducer_ForwardsEncodedFrames(t *testing.T) {
	t.Parallel()

	frame := []byte{0xFF, 0xD8, 0xFF, 0xE0} // JPEG magic
	chunks := make(chan live.MediaChunk, 4)

	p := camera.New(
		func(context.Context) ([]byte, error) { return frame, nil },
		func(c live.MediaChunk) error { chunks <- c; return nil },
		camera.WithInterval(10*time.Millisecond),
	)
	p.Start()
	t.Cleanup(func() { p.Close() })

	select {
	case c := <-chunks:
		if c.MIMEType != "image/jpeg" {
			t.Errorf("MIMEType = %q, want image/jpeg", c.MIMEType)
		}
		got, err := base64.StdEncoding.DecodeString(c.Data)
		if err != nil {
			t.Fatalf("decode base64: %v", err)
		}
		if string(got) != string(frame) {
			t.Errorf("frame = %v, want %v", got, frame)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestProducer_SkipsFailedCaptures(t *testing.T) {
	t.Parallel()

	calls := make(chan struct{}, 8)
	chunks := make(chan live.MediaChunk, 8)
	fail := true

	p := camera.New(
		func(context.Context) ([]byte, error) {
			calls <- struct{}{}
			if fail {
				fail = false
				return nil, fmt.Errorf("camera busy")
			}
			return []byte{0x01}, nil
		},
		func(c live.MediaChunk) error { chunks <- c; return nil },
		camera.WithInterval(10*time.Millisecond),
	)
	p.Start()
	t.Cleanup(func() { p.Close() })

	// The failed first grab must not kill the loop: a frame still arrives.
	select {
	case <-chunks:
	case <-time.After(3 * time.Second):
		t.Fatal("producer stopped after a capture error")
	}
	if len(calls) == 0 {
		t.Fatal("source never called")
	}
}

func TestClose_StopsLoop(t *testing.T) {
	t.Parallel()

	chunks := make(chan live.MediaChunk, 64)
	p := camera.New(
		func(context.Context) ([]byte, error) { return []byte{0x01}, nil },
		func(c live.MediaChunk) error { chunks <- c; return nil },
		camera.WithInterval(10*time.Millisecond),
	)
	p.Start()

	// Wait for at least one frame so we know the loop is running.
	select {
	case <-chunks:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for first frame")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Drain anything in flight, then verify silence.
	time.Sleep(50 * time.Millisecond)
	for len(chunks) > 0 {
		<-chunks
	}
	select {
	case <-chunks:
		t.Error("frame produced after Close")
	case <-time.After(100 * time.Millisecond):
	}
}
