package mediagrid

import (
	"context"
	"io"
	"sync"
	"time"
)

// canvasTrack captures the compositor canvas as a video track at a fixed
// frame rate. Every read returns a fresh RGBA copy of the canvas.
type canvasTrack struct {
	*BaseTrack
	compositor *Compositor
	frameRate  int
	closed     chan struct{}
	once       sync.Once

	mu    sync.Mutex
	pacer pacer
}

func newCanvasTrack(c *Compositor, frameRate int) *canvasTrack {
	return &canvasTrack{
		BaseTrack:  NewBaseTrack("", "canvas", RTPCodecTypeVideo),
		compositor: c,
		frameRate:  frameRate,
		closed:     make(chan struct{}),
		pacer:      pacer{period: time.Second / time.Duration(frameRate), skipLate: true},
	}
}

func (t *canvasTrack) Settings() VideoTrackSettings {
	return VideoTrackSettings{
		Width:     t.compositor.config.Width,
		Height:    t.compositor.config.Height,
		FrameRate: t.frameRate,
	}
}

func (t *canvasTrack) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case <-t.closed:
		return nil, io.EOF
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	ts, err := t.pacer.wait(ctx, t.closed)
	if err != nil {
		return nil, err
	}

	img := t.compositor.Canvas()
	if img == nil {
		return nil, io.EOF
	}
	return NewRGBAFrame(img, ts.Nanoseconds(), t.pacer.period.Nanoseconds()), nil
}

func (t *canvasTrack) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.SetState(TrackStateEnded)
	})
	return nil
}
