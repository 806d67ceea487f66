package mediagrid

import (
	"context"
	"image"
	"image/color"
	"io"
	"sync"
	"testing"
	"time"
)

// surfaceOp is one call recorded by fakeSurface.
type surfaceOp struct {
	kind  string
	rect  Rect
	src   image.Rectangle
	color color.Color
	width float64
	text  string
	x, y  float64
}

// fakeSurface records draw calls instead of rasterizing them.
type fakeSurface struct {
	w, h int

	mu     sync.Mutex
	ops    []surfaceOp
	closed bool
}

func newFakeSurface(w, h int) *fakeSurface {
	return &fakeSurface{w: w, h: h}
}

func (s *fakeSurface) Width() int  { return s.w }
func (s *fakeSurface) Height() int { return s.h }

func (s *fakeSurface) record(op surfaceOp) {
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

func (s *fakeSurface) FillRect(r Rect, c color.Color) {
	s.record(surfaceOp{kind: "fill", rect: r, color: c})
}

func (s *fakeSurface) StrokeRect(r Rect, c color.Color, lineWidth float64) {
	s.record(surfaceOp{kind: "stroke", rect: r, color: c, width: lineWidth})
}

func (s *fakeSurface) DrawImage(img image.Image, src image.Rectangle, dst Rect) {
	s.record(surfaceOp{kind: "image", rect: dst, src: src})
}

func (s *fakeSurface) DrawImageCircle(img image.Image, src image.Rectangle, dst Rect) {
	s.record(surfaceOp{kind: "circle", rect: dst, src: src})
}

func (s *fakeSurface) FillText(str string, x, y, maxWidth float64, c color.Color) {
	s.record(surfaceOp{kind: "text", text: str, x: x, y: y, width: maxWidth, color: c})
}

func (s *fakeSurface) Snapshot() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, s.w, s.h))
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// take returns and clears the recorded calls.
func (s *fakeSurface) take() []surfaceOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.ops
	s.ops = nil
	return ops
}

func opKinds(ops []surfaceOp) []string {
	kinds := make([]string, len(ops))
	for i, op := range ops {
		kinds[i] = op.kind
	}
	return kinds
}

// chanVideoTrack hands out the frames sent on its channel.
type chanVideoTrack struct {
	*BaseTrack
	frames chan *VideoFrame
	closed chan struct{}
	once   sync.Once
}

func newChanVideoTrack(id string) *chanVideoTrack {
	return &chanVideoTrack{
		BaseTrack: NewBaseTrack(id, id, RTPCodecTypeVideo),
		frames:    make(chan *VideoFrame),
		closed:    make(chan struct{}),
	}
}

func (t *chanVideoTrack) Settings() VideoTrackSettings { return VideoTrackSettings{} }

func (t *chanVideoTrack) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, io.EOF
	case f := <-t.frames:
		return f, nil
	}
}

func (t *chanVideoTrack) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.SetState(TrackStateEnded)
	})
	return nil
}

// chanAudioTrack hands out the sample blocks sent on its channel.
type chanAudioTrack struct {
	*BaseTrack
	samples chan *AudioSamples
	closed  chan struct{}
	once    sync.Once
}

func newChanAudioTrack(id string) *chanAudioTrack {
	return &chanAudioTrack{
		BaseTrack: NewBaseTrack(id, id, RTPCodecTypeAudio),
		samples:   make(chan *AudioSamples, 16),
		closed:    make(chan struct{}),
	}
}

func (t *chanAudioTrack) Settings() AudioTrackSettings {
	return AudioTrackSettings{SampleRate: 48000, ChannelCount: 2}
}

func (t *chanAudioTrack) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, io.EOF
	case s := <-t.samples:
		return s, nil
	}
}

func (t *chanAudioTrack) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.SetState(TrackStateEnded)
	})
	return nil
}

func rgbaFrame(w, h int) *VideoFrame {
	return NewRGBAFrame(image.NewRGBA(image.Rect(0, 0, w, h)), 0, 0)
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// manualScheduler runs scheduled callbacks only when fired by the test.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
	delays  []time.Duration
}

type manualTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm := &manualTimer{f: f}
	s.pending = append(s.pending, tm)
	s.delays = append(s.delays, d)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if tm.fired || tm.stopped {
			return false
		}
		tm.stopped = true
		return true
	}
}

// fire runs every callback scheduled so far that has not been stopped and
// returns how many ran.
func (s *manualScheduler) fire() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	var run []func()
	for _, tm := range pending {
		if !tm.stopped {
			tm.fired = true
			run = append(run, tm.f)
		}
	}
	s.mu.Unlock()
	for _, f := range run {
		f()
	}
	return len(run)
}

func (s *manualScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tm := range s.pending {
		if !tm.stopped {
			n++
		}
	}
	return n
}
