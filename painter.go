package mediagrid

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"sync"
)

// TileStyle controls tile decoration.
type TileStyle struct {
	TitleFontSize   float64 // Title font size in points (default: 10)
	TitleFontFile   string  // TrueType font for titles (default: Go Regular)
	TitleHeight     float64 // Height of the title bar (default: 12)
	TitleColor      color.Color
	TitleBackground color.Color
	BorderColor     color.Color
	HighlightColor  color.Color
	HighlightWidth  float64 // Outline width of a highlighted tile (default: 3)
	TileBackground  color.Color
}

// DefaultTileStyle returns the default tile decoration.
func DefaultTileStyle() TileStyle {
	return TileStyle{
		TitleFontSize:   10,
		TitleHeight:     12,
		TitleColor:      color.NRGBA{A: 255},
		TitleBackground: color.NRGBA{R: 200, G: 200, B: 200, A: 128},
		BorderColor:     color.NRGBA{A: 255},
		HighlightColor:  MustParseHexColor("#0af1f1"),
		HighlightWidth:  3,
		TileBackground:  MustParseHexColor("#808080"),
	}
}

// withDefaults fills unset fields from DefaultTileStyle.
func (s TileStyle) withDefaults() TileStyle {
	d := DefaultTileStyle()
	if s.TitleFontSize <= 0 {
		s.TitleFontSize = d.TitleFontSize
	}
	if s.TitleHeight <= 0 {
		s.TitleHeight = d.TitleHeight
	}
	if s.TitleColor == nil {
		s.TitleColor = d.TitleColor
	}
	if s.TitleBackground == nil {
		s.TitleBackground = d.TitleBackground
	}
	if s.BorderColor == nil {
		s.BorderColor = d.BorderColor
	}
	if s.HighlightColor == nil {
		s.HighlightColor = d.HighlightColor
	}
	if s.HighlightWidth <= 0 {
		s.HighlightWidth = d.HighlightWidth
	}
	if s.TileBackground == nil {
		s.TileBackground = d.TileBackground
	}
	return s
}

// TilePainter draws one tile onto a shared surface: the newest frame of
// its stream, or its placeholder, plus title bar and outline.
//
// Setters may be called from any goroutine. Draw must only be called by
// the owner of the surface.
type TilePainter struct {
	surface    DrawSurface
	title      string
	style      TileStyle
	logger     *slog.Logger
	onResolved func()
	done       chan struct{}
	closeOnce  sync.Once

	mu          sync.Mutex
	placeholder image.Image
	coords      TileRect
	highlight   bool
	stream      MediaStream
	unsubscribe func()
	frame       image.Image
	pump        *framePump
}

// framePump reads frames from a video track until cancelled or the track
// ends.
type framePump struct {
	track  VideoTrack
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTilePainter creates a painter for a tile titled title. onResolved, if
// non-nil, is called once a pending placeholder has been resolved.
func NewTilePainter(surface DrawSurface, title string, placeholder Placeholder, style TileStyle, logger *slog.Logger, onResolved func()) *TilePainter {
	if logger == nil {
		logger = slog.Default()
	}
	p := &TilePainter{
		surface:     surface,
		title:       title,
		style:       style.withDefaults(),
		logger:      logger,
		onResolved:  onResolved,
		done:        make(chan struct{}),
		placeholder: DefaultPlaceholder(),
	}

	switch {
	case placeholder.pending != nil:
		go p.awaitPlaceholder(placeholder.pending)
	case placeholder.ready != nil:
		p.placeholder = placeholder.ready
	}
	return p
}

func (p *TilePainter) awaitPlaceholder(ch <-chan image.Image) {
	select {
	case <-p.done:
		return
	case img, ok := <-ch:
		if !ok || img == nil {
			return
		}
		p.mu.Lock()
		p.placeholder = img
		p.mu.Unlock()
		if p.onResolved != nil {
			p.onResolved()
		}
	}
}

// Title returns the tile label.
func (p *TilePainter) Title() string {
	return p.title
}

// SetCoords sets the rectangle the tile is drawn into.
func (p *TilePainter) SetCoords(r TileRect) {
	p.mu.Lock()
	p.coords = r
	p.mu.Unlock()
}

// Coords returns the last rectangle set with SetCoords.
func (p *TilePainter) Coords() TileRect {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coords
}

// SetHighlight toggles the highlight outline.
func (p *TilePainter) SetHighlight(value bool) {
	p.mu.Lock()
	p.highlight = value
	p.mu.Unlock()
}

// SetStream attaches stream as the live source, or detaches the current one
// when stream is nil. Attaching starts a frame pump on the stream's first
// video track; a video track added to the stream later is picked up when no
// pump is running. Removing the pumped track from the stream stops the pump
// and moves it to the next remaining video track, if any.
func (p *TilePainter) SetStream(stream MediaStream) {
	p.mu.Lock()
	if stream == p.stream {
		p.mu.Unlock()
		return
	}
	oldPump, oldUnsub := p.pump, p.unsubscribe
	p.pump, p.unsubscribe, p.frame = nil, nil, nil
	p.stream = stream
	if stream != nil {
		if tracks := stream.GetVideoTracks(); len(tracks) > 0 {
			p.startPumpLocked(tracks[0])
		}
	}
	p.mu.Unlock()

	if oldUnsub != nil {
		oldUnsub()
	}
	if oldPump != nil {
		oldPump.cancel()
	}
	if stream == nil {
		return
	}

	unsubAdd := stream.OnAddTrack(func(track MediaStreamTrack) {
		vt, ok := track.(VideoTrack)
		if !ok {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stream == stream && p.pump == nil {
			p.startPumpLocked(vt)
		}
	})
	unsubRem := stream.OnRemoveTrack(func(track MediaStreamTrack) {
		p.trackRemoved(stream, track)
	})
	unsub := func() {
		unsubAdd()
		unsubRem()
	}

	p.mu.Lock()
	if p.stream == stream {
		p.unsubscribe = unsub
		unsub = nil
	}
	p.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (p *TilePainter) trackRemoved(stream MediaStream, track MediaStreamTrack) {
	remaining := stream.GetVideoTracks()

	p.mu.Lock()
	pump := p.pump
	if p.stream != stream || pump == nil || pump.track.ID() != track.ID() {
		p.mu.Unlock()
		return
	}
	p.pump, p.frame = nil, nil
	for _, vt := range remaining {
		if vt.ID() != track.ID() {
			p.startPumpLocked(vt)
			break
		}
	}
	p.mu.Unlock()

	pump.cancel()
	p.logger.Debug("video track removed", "tile", p.title, "track", track.ID())
}

func (p *TilePainter) startPumpLocked(track VideoTrack) {
	ctx, cancel := context.WithCancel(context.Background())
	pump := &framePump{track: track, cancel: cancel, done: make(chan struct{})}
	p.pump = pump
	go p.runPump(ctx, pump)
}

// runPump keeps only the most recent frame; each new frame replaces the
// previous one.
func (p *TilePainter) runPump(ctx context.Context, pump *framePump) {
	defer close(pump.done)
	defer pump.cancel()

	for {
		frame, err := pump.track.ReadFrame(ctx)
		if err != nil {
			p.mu.Lock()
			if p.pump == pump {
				p.pump = nil
				p.frame = nil
			}
			p.mu.Unlock()

			switch {
			case errors.Is(err, context.Canceled):
			case errors.Is(err, io.EOF):
				p.logger.Debug("frame pump ended", "tile", p.title, "track", pump.track.ID())
			default:
				p.logger.Debug("frame pump failed", "tile", p.title, "track", pump.track.ID(), "error", err)
			}
			return
		}

		img := frame.Clone().Image()
		p.mu.Lock()
		if p.pump != pump {
			p.mu.Unlock()
			return
		}
		p.frame = img
		p.mu.Unlock()
	}
}

// Draw paints the tile at its current coordinates. It does nothing while
// the tile has no area.
func (p *TilePainter) Draw() {
	p.mu.Lock()
	coords := p.coords
	highlight := p.highlight
	frame := p.frame
	placeholder := p.placeholder
	p.mu.Unlock()

	if coords.Empty() {
		return
	}
	r := RectFrom(coords)
	x, y, width, height := r.X, r.Y, r.Width, r.Height

	p.surface.FillRect(r, p.style.TileBackground)

	if frame != nil && frame.Bounds().Dx() > 0 && frame.Bounds().Dy() > 0 {
		fb := frame.Bounds()
		dst := fitRect(r, float64(fb.Dx())/float64(fb.Dy()))
		p.surface.DrawImage(frame, fb, dst)
	} else if placeholder != nil {
		pb := placeholder.Bounds()
		size := math.Min(width/2, height/2)
		srcSize := min(pb.Dx(), pb.Dy())
		src := image.Rect(0, 0, srcSize, srcSize).Add(pb.Min).Add(image.Pt((pb.Dx()-srcSize)/2, (pb.Dy()-srcSize)/2))
		dst := Rect{X: x + (width-size)/2, Y: y + (height-size)/2, Width: size, Height: size}
		p.surface.DrawImageCircle(placeholder, src, dst)
	}

	titleHeight := p.style.TitleHeight
	p.surface.FillRect(Rect{X: x, Y: y + height - titleHeight, Width: width, Height: titleHeight}, p.style.TitleBackground)
	p.surface.FillText(p.title, x+2, y+height-1, width-2, p.style.TitleColor)

	if highlight {
		p.surface.StrokeRect(r, p.style.HighlightColor, p.style.HighlightWidth)
	} else {
		p.surface.StrokeRect(r, p.style.BorderColor, 1)
	}
}

// Close detaches the stream and stops waiting on a pending placeholder.
func (p *TilePainter) Close() {
	p.SetStream(nil)
	p.closeOnce.Do(func() { close(p.done) })
}

// fitRect scales an area with aspect ratio ar to touch the edges of r along
// its binding dimension and centers it.
func fitRect(r Rect, ar float64) Rect {
	w, h := r.Width, r.Height
	if ar >= r.Width/r.Height {
		h = r.Width / ar
	} else {
		w = r.Height * ar
	}
	return Rect{X: r.X + (r.Width-w)/2, Y: r.Y + (r.Height-h)/2, Width: w, Height: h}
}
