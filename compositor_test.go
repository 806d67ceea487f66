package mediagrid

import (
	"context"
	"errors"
	"image"
	"image/color"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCompositor(t *testing.T, mutate func(*CompositorConfig)) (*Compositor, *fakeSurface, *manualScheduler) {
	t.Helper()
	surface := newFakeSurface(1280, 720)
	sched := &manualScheduler{}
	cfg := DefaultCompositorConfig()
	cfg.Surface = surface
	cfg.Scheduler = sched
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCompositor(cfg)
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	t.Cleanup(c.Stop)
	return c, surface, sched
}

func coords(t *testing.T, c *Compositor, id string) TileRect {
	t.Helper()
	r, ok := c.TileCoords(id)
	if !ok {
		t.Fatalf("tile %q is not registered", id)
	}
	return r
}

func TestCompositor_GridWithoutBigTile(t *testing.T) {
	c, _, _ := newTestCompositor(t, func(cfg *CompositorConfig) { cfg.TileGap = 0 })

	for _, id := range []string{"a", "b", "c"} {
		c.AddTile(id, id, Placeholder{}, nil, false)
	}

	want := map[string]TileRect{
		"a": {X: 0, Y: 0, Width: 640, Height: 360},
		"b": {X: 640, Y: 0, Width: 640, Height: 360},
		"c": {X: 320, Y: 360, Width: 640, Height: 360},
	}
	for id, w := range want {
		if got := coords(t, c, id); got != w {
			t.Errorf("%s = %+v, want %+v", id, got, w)
		}
	}
}

func TestCompositor_BigTileWithAlternateGrid(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)

	c.AddTile("big", "Big", Placeholder{}, nil, true)
	for _, id := range []string{"a", "b", "c"} {
		c.AddTile(id, id, Placeholder{}, nil, false)
	}

	if got := c.ActiveIDs(); !slices.Equal(got, []string{"big", "a", "b", "c"}) {
		t.Errorf("ActiveIDs = %v", got)
	}
	want := map[string]TileRect{
		"big": {X: 0, Y: 0, Width: 960, Height: 720},
		"a":   {X: 964, Y: 90, Width: 316, Height: 177},
		"b":   {X: 964, Y: 271, Width: 316, Height: 177},
		"c":   {X: 964, Y: 452, Width: 316, Height: 177},
	}
	for id, w := range want {
		if got := coords(t, c, id); got != w {
			t.Errorf("%s = %+v, want %+v", id, got, w)
		}
	}
}

func TestCompositor_BigTileAloneUsesMainGrid(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)

	c.AddTile("big", "Big", Placeholder{}, nil, true)
	if got := coords(t, c, "big"); got != (TileRect{Width: 1280, Height: 720}) {
		t.Errorf("big = %+v, want whole canvas", got)
	}
}

func TestCompositor_BigTileAspectRatio(t *testing.T) {
	c, _, _ := newTestCompositor(t, func(cfg *CompositorConfig) { cfg.BigTileAspectRatio = 4.0 / 3.0 })

	c.AddTile("big", "Big", Placeholder{}, nil, true)
	c.AddTile("a", "a", Placeholder{}, nil, false)

	if got := coords(t, c, "big"); got != (TileRect{X: 0, Y: 0, Width: 960, Height: 720}) {
		t.Errorf("big = %+v", got)
	}

	c2, _, _ := newTestCompositor(t, func(cfg *CompositorConfig) { cfg.BigTileAspectRatio = 16.0 / 9.0 })
	c2.AddTile("big", "Big", Placeholder{}, nil, true)
	c2.AddTile("a", "a", Placeholder{}, nil, false)
	if got := coords(t, c2, "big"); got != (TileRect{X: 0, Y: 90, Width: 960, Height: 540}) {
		t.Errorf("16:9 big = %+v", got)
	}
}

func TestCompositor_AddRemoveRoundTrip(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)

	c.AddTile("a", "a", Placeholder{}, nil, false)
	c.AddTile("b", "b", Placeholder{}, nil, false)
	beforeIDs := c.ActiveIDs()
	beforeA, beforeB := coords(t, c, "a"), coords(t, c, "b")

	c.AddTile("c", "c", Placeholder{}, nil, false)
	if coords(t, c, "a") == beforeA {
		t.Fatal("adding a tile did not change the layout")
	}
	c.RemoveTile("c")

	if got := c.ActiveIDs(); !slices.Equal(got, beforeIDs) {
		t.Errorf("ActiveIDs = %v, want %v", got, beforeIDs)
	}
	if coords(t, c, "a") != beforeA || coords(t, c, "b") != beforeB {
		t.Error("layout differs after add/remove round trip")
	}
	if _, ok := c.TileCoords("c"); ok {
		t.Error("removed tile still registered")
	}
	c.RemoveTile("never-added")
}

func TestCompositor_SetOrder(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)
	for _, id := range []string{"a", "b", "c"} {
		c.AddTile(id, id, Placeholder{}, nil, false)
	}

	c.SetOrder([]string{"b", "unknown", "b", "a"})
	if got := c.Order(); !slices.Equal(got, []string{"b", "a"}) {
		t.Fatalf("Order = %v, want [b a]", got)
	}
	if got := coords(t, c, "c"); !got.Empty() {
		t.Errorf("unlisted tile c = %+v, want empty", got)
	}
	if coords(t, c, "b").X >= coords(t, c, "a").X {
		t.Error("b should be placed before a")
	}
}

func TestCompositor_BigTileAlwaysDrawn(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)
	c.AddTile("big", "Big", Placeholder{}, nil, true)
	c.AddTile("a", "a", Placeholder{}, nil, false)
	c.AddTile("b", "b", Placeholder{}, nil, false)

	c.SetOrder([]string{"b"})
	if got := c.ActiveIDs(); !slices.Equal(got, []string{"big", "b"}) {
		t.Errorf("ActiveIDs = %v, want [big b]", got)
	}
}

func TestCompositor_NewBigTileReplacesOld(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)
	c.AddTile("first", "first", Placeholder{}, nil, true)
	c.AddTile("second", "second", Placeholder{}, nil, true)

	if c.BigTile() != "second" {
		t.Errorf("BigTile = %q, want second", c.BigTile())
	}
	if got := coords(t, c, "second"); got.Width != 960 {
		t.Errorf("second = %+v, want the big region", got)
	}
}

func TestCompositor_Highlight(t *testing.T) {
	c, surface, _ := newTestCompositor(t, nil)
	c.AddTile("a", "a", Placeholder{}, nil, false)
	c.AddTile("b", "b", Placeholder{}, nil, false)

	c.SetHighlight("b")
	c.SetHighlight("unknown")
	if c.Highlight() != "b" {
		t.Fatalf("Highlight = %q, want b", c.Highlight())
	}

	surface.take()
	c.Draw()
	var highlighted []Rect
	for _, op := range surface.take() {
		if op.kind == "stroke" && op.width == DefaultTileStyle().HighlightWidth {
			highlighted = append(highlighted, op.rect)
		}
	}
	if len(highlighted) != 1 || highlighted[0] != RectFrom(coords(t, c, "b")) {
		t.Errorf("highlighted outlines = %v", highlighted)
	}

	c.SetHighlight("")
	if c.Highlight() != "" {
		t.Errorf("Highlight after clear = %q", c.Highlight())
	}

	c.SetHighlight("a")
	c.RemoveTile("a")
	if c.Highlight() != "" {
		t.Errorf("Highlight after removing tile = %q", c.Highlight())
	}
}

func TestCompositor_MaxTiles(t *testing.T) {
	c, _, _ := newTestCompositor(t, func(cfg *CompositorConfig) { cfg.MaxTiles = 2 })
	for _, id := range []string{"a", "b", "c"} {
		c.AddTile(id, id, Placeholder{}, nil, false)
	}
	if got := c.ActiveIDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("ActiveIDs = %v, want [a b]", got)
	}

	c.AddTile("a", "renamed", Placeholder{}, nil, false)
	if got := c.ActiveIDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("re-adding an id changed the order: %v", got)
	}
}

func TestCompositor_StreamsFeedMixer(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)

	stream := NewMediaStream("alice", newChanAudioTrack("alice-audio"))
	c.AddStream("alice", stream)
	if got := c.Mixer().ConnectedTracks(); !slices.Equal(got, []string{"alice-audio"}) {
		t.Fatalf("ConnectedTracks = %v", got)
	}

	c.AddTile("alice", "Alice", Placeholder{}, nil, false)
	c.RemoveTile("alice")
	if got := c.Mixer().ConnectedTracks(); len(got) != 0 {
		t.Errorf("RemoveTile left tracks connected: %v", got)
	}

	c.AddStream("bob", NewMediaStream("bob", newChanAudioTrack("bob-audio")))
	c.RemoveStream("bob")
	c.RemoveStream("bob")
	if got := c.Mixer().ConnectedTracks(); len(got) != 0 {
		t.Errorf("RemoveStream left tracks connected: %v", got)
	}
}

func TestCompositor_SharedStreamStaysMixed(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)

	stream := NewMediaStream("s", newChanAudioTrack("s-audio"))
	c.AddTile("a", "a", Placeholder{}, stream, false)
	c.AddTile("b", "b", Placeholder{}, stream, false)

	c.RemoveStream("a")
	if got := c.Mixer().ConnectedTracks(); !slices.Equal(got, []string{"s-audio"}) {
		t.Fatalf("after removing one of two ids: ConnectedTracks = %v", got)
	}

	c.AddStream("b", NewMediaStream("other", newChanAudioTrack("other-audio")))
	if got := c.Mixer().ConnectedTracks(); !slices.Equal(got, []string{"other-audio"}) {
		t.Fatalf("after replacing the last holder: ConnectedTracks = %v", got)
	}

	c.AddStream("a", stream)
	c.AddStream("c", stream)
	c.RemoveTile("a")
	got := c.Mixer().ConnectedTracks()
	slices.Sort(got)
	if !slices.Equal(got, []string{"other-audio", "s-audio"}) {
		t.Errorf("after RemoveTile of one holder: ConnectedTracks = %v", got)
	}
}

func TestCompositor_TileShowsRegisteredStream(t *testing.T) {
	c, surface, _ := newTestCompositor(t, nil)

	video := newChanVideoTrack("v")
	c.AddStream("a", NewMediaStream("a", video))
	c.AddTile("a", "a", Placeholder{}, nil, false)
	video.frames <- rgbaFrame(64, 36)

	waitFor(t, "frame to be drawn", func() bool {
		surface.take()
		c.Draw()
		for _, op := range surface.take() {
			if op.kind == "image" {
				return true
			}
		}
		return false
	})
}

func TestCompositor_DrawOrder(t *testing.T) {
	c, surface, _ := newTestCompositor(t, nil)
	c.AddTile("a", "Alice", Placeholder{}, nil, false)
	c.AddTile("b", "Bob", Placeholder{}, nil, false)

	surface.take()
	c.Draw()
	ops := surface.take()

	if ops[0].kind != "fill" || ops[0].rect != (Rect{Width: 1280, Height: 720}) {
		t.Errorf("first op = %+v, want canvas background", ops[0])
	}
	var titles []string
	for _, op := range ops {
		if op.kind == "text" {
			titles = append(titles, op.text)
		}
	}
	if !slices.Equal(titles, []string{"Alice", "Bob"}) {
		t.Errorf("titles drawn = %v", titles)
	}
}

func TestCompositor_RenderLoop(t *testing.T) {
	var draws atomic.Int32
	c, _, sched := newTestCompositor(t, func(cfg *CompositorConfig) {
		cfg.OnDraw = func(time.Duration) { draws.Add(1) }
	})
	initial := draws.Load()

	c.Start()
	c.Start()
	if got := draws.Load() - initial; got != 1 {
		t.Fatalf("draws after Start = %d, want 1", got)
	}
	if sched.scheduled() != 1 {
		t.Fatalf("scheduled ticks = %d, want 1", sched.scheduled())
	}

	sched.fire()
	sched.fire()
	if got := draws.Load() - initial; got != 3 {
		t.Errorf("draws after two ticks = %d, want 3", got)
	}
	for _, d := range sched.delays {
		if d < 0 || d > time.Second/30 {
			t.Errorf("tick delay %v outside [0, frame interval]", d)
		}
	}
	if s := c.DrawStats(); s.Count < 3 {
		t.Errorf("DrawStats.Count = %d", s.Count)
	}

	c.Stop()
	if sched.fire() != 0 {
		t.Error("tick ran after Stop")
	}
}

// slowSurface takes delay to fill a rectangle.
type slowSurface struct {
	*fakeSurface
	delay time.Duration
}

func (s *slowSurface) FillRect(r Rect, c color.Color) {
	time.Sleep(s.delay)
	s.fakeSurface.FillRect(r, c)
}

func TestCompositor_RenderLoopSubtractsDrawTime(t *testing.T) {
	tests := []struct {
		name      string
		frameRate int
		drawTime  time.Duration
		min, max  time.Duration
	}{
		{"draw shorter than interval", 10, 20 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond},
		{"draw longer than interval", 50, 30 * time.Millisecond, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, sched := newTestCompositor(t, func(cfg *CompositorConfig) {
				cfg.FrameRate = tt.frameRate
				cfg.Surface = &slowSurface{fakeSurface: newFakeSurface(1280, 720), delay: tt.drawTime}
			})

			c.Start()
			sched.fire()
			if len(sched.delays) != 2 {
				t.Fatalf("scheduled ticks = %d, want 2", len(sched.delays))
			}
			for i, d := range sched.delays {
				if d < tt.min || d > tt.max {
					t.Errorf("tick %d delay = %v, want within [%v, %v]", i, d, tt.min, tt.max)
				}
			}
		})
	}
}

func TestCompositor_StopIsIdempotent(t *testing.T) {
	c, surface, _ := newTestCompositor(t, nil)
	c.AddTile("a", "a", Placeholder{}, nil, false)

	c.Stop()
	c.Stop()
	if !c.IsStopped() {
		t.Fatal("IsStopped = false after Stop")
	}

	c.AddTile("b", "b", Placeholder{}, nil, false)
	if got := c.ActiveIDs(); len(got) != 0 {
		t.Errorf("ActiveIDs after Stop = %v", got)
	}
	if c.Canvas() == nil {
		t.Error("Canvas after Stop = nil, want final frame")
	}
	if surface.closed {
		t.Error("Stop closed a surface it does not own")
	}
	if c.Mixer().State() != MixerStateClosed {
		t.Errorf("mixer state = %v", c.Mixer().State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	video := c.OutputStream().GetVideoTracks()[0]
	if _, err := video.ReadFrame(ctx); err == nil {
		t.Error("output video still readable after Stop")
	}
}

func TestCompositor_CanvasAfterStopIsCopy(t *testing.T) {
	c, _, _ := newTestCompositor(t, nil)
	c.Stop()

	a := c.Canvas()
	b := c.Canvas()
	if a == nil || b == nil {
		t.Fatal("Canvas after Stop = nil")
	}
	a.Pix[0] = 7
	if b.Pix[0] == 7 {
		t.Error("Canvas after Stop shares pixels between calls")
	}
}

func TestCompositor_NoDrawOnClosedCanvas(t *testing.T) {
	c, surface, _ := newTestCompositor(t, nil)
	c.AddTile("a", "a", Placeholder{}, nil, false)
	surface.take()

	// A Draw that got past the stopped check before Stop took the canvas.
	c.drawMu.Lock()
	c.closed = true
	c.drawMu.Unlock()

	c.Draw()
	if ops := surface.take(); len(ops) != 0 {
		t.Errorf("draw on closed canvas recorded %v", opKinds(ops))
	}
}

func TestCompositor_PendingPlaceholderRedraws(t *testing.T) {
	c, surface, _ := newTestCompositor(t, nil)
	ch := make(chan image.Image, 1)
	c.AddTile("a", "a", PendingPlaceholder(ch), nil, false)
	surface.take()

	ch <- image.NewRGBA(image.Rect(0, 0, 10, 10))
	waitFor(t, "redraw after placeholder resolved", func() bool {
		for _, op := range surface.take() {
			if op.kind == "circle" && op.src == image.Rect(0, 0, 10, 10) {
				return true
			}
		}
		return false
	})
}

func TestCompositor_OutputStream(t *testing.T) {
	c, _, _ := newTestCompositor(t, func(cfg *CompositorConfig) {
		cfg.Width, cfg.Height = 320, 180
		cfg.Surface = newFakeSurface(320, 180)
	})

	out := c.OutputStream()
	if len(out.GetVideoTracks()) != 1 || len(out.GetAudioTracks()) != 1 {
		t.Fatalf("output has %d video and %d audio tracks", len(out.GetVideoTracks()), len(out.GetAudioTracks()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := out.GetVideoTracks()[0].ReadFrame(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Width != 320 || frame.Height != 180 || frame.Format != PixelFormatRGBA32 {
		t.Errorf("frame = %dx%d %v", frame.Width, frame.Height, frame.Format)
	}
}

func TestCompositor_InvalidBigTileShare(t *testing.T) {
	cfg := DefaultCompositorConfig()
	cfg.Surface = newFakeSurface(1280, 720)
	cfg.BigTileShare = 0.999
	if _, err := NewCompositor(cfg); !errors.Is(err, ErrConfiguration) {
		t.Errorf("NewCompositor = %v, want ErrConfiguration", err)
	}
}

func TestCompositor_GGSurface(t *testing.T) {
	cfg := DefaultCompositorConfig()
	cfg.Width, cfg.Height = 160, 90
	cfg.Scheduler = &manualScheduler{}
	c, err := NewCompositor(cfg)
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	defer c.Stop()

	c.AddTile("a", "Alice", Placeholder{}, nil, false)
	c.Draw()
	img := c.Canvas()
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 90 {
		t.Errorf("canvas = %v, want 160x90", b)
	}
}
