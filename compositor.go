package mediagrid

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"
)

// CompositorConfig configures the gallery compositor.
type CompositorConfig struct {
	Width     int // Canvas width (default: 1280)
	Height    int // Canvas height (default: 720)
	FrameRate int // Render and capture rate (default: 30)
	MaxTiles  int // Upper bound on registered tiles, 0 = unlimited

	// BigTileShare is the fraction of the canvas width given to the big
	// tile (default: 0.75).
	BigTileShare float64

	// BigTileAspectRatio fits the big tile inside its region when > 0.
	// Zero fills the whole region.
	BigTileAspectRatio float64

	TileAspectRatio float64 // Regular tile aspect ratio (default: 16/9)
	TileGap         int     // Gap between regular tiles (default: 4)
	BigTileGap      int     // Gap between the big tile region and the rest (default: 4)

	Background color.Color // Canvas background (default: black)
	Style      TileStyle

	Mixer MixerConfig

	// Surface overrides the drawing surface. When nil a GGSurface of
	// Width x Height is created.
	Surface DrawSurface

	// Scheduler drives the render loop (default: ClockScheduler).
	Scheduler Scheduler

	// StatsWindow is the number of draws summarized by DrawStats
	// (default: 100).
	StatsWindow int

	Logger *slog.Logger

	// OnDraw, if set, is called after every draw with its duration.
	OnDraw func(time.Duration)
}

// DefaultCompositorConfig returns a default compositor configuration.
func DefaultCompositorConfig() CompositorConfig {
	return CompositorConfig{
		Width:           1280,
		Height:          720,
		FrameRate:       30,
		BigTileShare:    0.75,
		TileAspectRatio: DefaultTileAspectRatio,
		TileGap:         4,
		BigTileGap:      4,
		Background:      color.NRGBA{A: 255},
		Style:           DefaultTileStyle(),
		Mixer:           DefaultMixerConfig(),
		StatsWindow:     100,
	}
}

type tile struct {
	id      string
	painter *TilePainter
}

// Compositor lays out tiles on a canvas, redraws it periodically and
// exposes the result, together with the mixed audio of every registered
// stream, as a single output stream.
//
// All methods are safe for concurrent use. Every method is a no-op once
// Stop has been called.
type Compositor struct {
	config      CompositorConfig
	logger      *slog.Logger
	surface     DrawSurface
	ownsSurface bool
	scheduler   Scheduler
	interval    time.Duration
	mixer       *AudioMixer
	video       *canvasTrack
	output      *SimpleMediaStream

	// Grid for all tiles, and grid for the non-big tiles when a big tile
	// is shown.
	layout    *TilesLayout
	altLayout *TilesLayout
	bigWidth  int

	drawMu sync.Mutex
	closed bool // set by Stop; no draws happen afterwards
	final  *image.RGBA

	mu          sync.Mutex
	tiles       map[string]*tile
	streams     map[string]MediaStream
	orderedIDs  []string
	bigID       string
	highlightID string
	drawOrder   []*TilePainter
	running     bool
	stopped     bool
	stopTick    func() bool
	timings     *drawTimings
}

// NewCompositor creates a compositor. It fails with ErrConfiguration when
// the drawing surface cannot be created.
func NewCompositor(config CompositorConfig) (*Compositor, error) {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.FrameRate <= 0 {
		config.FrameRate = 30
	}
	if config.BigTileShare <= 0 || config.BigTileShare >= 1 {
		config.BigTileShare = 0.75
	}
	if config.TileAspectRatio <= 0 {
		config.TileAspectRatio = DefaultTileAspectRatio
	}
	config.TileGap = max(config.TileGap, 0)
	config.BigTileGap = max(config.BigTileGap, 0)
	if config.Background == nil {
		config.Background = color.NRGBA{A: 255}
	}
	config.Style = config.Style.withDefaults()
	if config.StatsWindow <= 0 {
		config.StatsWindow = 100
	}
	if config.Scheduler == nil {
		config.Scheduler = ClockScheduler{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Mixer.Logger == nil {
		config.Mixer.Logger = logger
	}

	surface := config.Surface
	ownsSurface := false
	if surface == nil {
		s, err := NewGGSurface(config.Width, config.Height, config.Style.TitleFontSize, config.Style.TitleFontFile)
		if err != nil {
			return nil, fmt.Errorf("create canvas: %w", err)
		}
		surface = s
		ownsSurface = true
	}

	bigWidth := int(math.Floor(float64(config.Width) * config.BigTileShare))
	altWidth := int(math.Floor(float64(config.Width)*(1-config.BigTileShare) - float64(config.BigTileGap)))
	if altWidth < 1 {
		return nil, fmt.Errorf("%w: big tile share %.2f leaves no room for other tiles", ErrConfiguration, config.BigTileShare)
	}

	c := &Compositor{
		config:      config,
		logger:      logger,
		surface:     surface,
		ownsSurface: ownsSurface,
		scheduler:   config.Scheduler,
		interval:    time.Second / time.Duration(config.FrameRate),
		mixer:       NewAudioMixer(config.Mixer),
		layout:      NewTilesLayout(config.Width, config.Height, config.TileGap, config.TileAspectRatio),
		altLayout:   NewTilesLayout(altWidth, config.Height, config.TileGap, config.TileAspectRatio),
		bigWidth:    bigWidth,
		tiles:       make(map[string]*tile),
		streams:     make(map[string]MediaStream),
		timings:     newDrawTimings(config.StatsWindow),
	}
	c.video = newCanvasTrack(c, config.FrameRate)
	c.output = NewMediaStream("", c.video, c.mixer.OutputTrack())

	c.Draw()
	return c, nil
}

// OutputStream returns the composite stream: one canvas video track and one
// mixed audio track. The tracks never change.
func (c *Compositor) OutputStream() MediaStream {
	return c.output
}

// Mixer returns the audio mixer feeding the output audio track.
func (c *Compositor) Mixer() *AudioMixer {
	return c.mixer
}

// IsStopped reports whether Stop has been called.
func (c *Compositor) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// AddTile registers a tile and appends it to the order. A stream passed here,
// or registered earlier under the same id, is attached immediately. A big
// tile replaces any previous big tile. Re-adding an existing id replaces its
// title and placeholder.
func (c *Compositor) AddTile(id, title string, placeholder Placeholder, stream MediaStream, isBig bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	old, exists := c.tiles[id]
	if !exists && c.config.MaxTiles > 0 && len(c.tiles) >= c.config.MaxTiles {
		c.logger.Warn("tile limit reached", "tile", id, "max", c.config.MaxTiles)
		return
	}
	if exists {
		old.painter.Close()
	}

	painter := NewTilePainter(c.surface, title, placeholder, c.config.Style, c.logger, c.placeholderResolved)
	c.tiles[id] = &tile{id: id, painter: painter}
	if !slices.Contains(c.orderedIDs, id) {
		c.orderedIDs = append(c.orderedIDs, id)
	}
	if isBig {
		c.bigID = id
	}

	if stream != nil {
		c.addStreamLocked(id, stream)
	} else if s, ok := c.streams[id]; ok {
		painter.SetStream(s)
	}

	c.logger.Debug("tile added", "tile", id, "big", isBig, "tiles", len(c.tiles))
	c.recomputeLocked()
}

// RemoveTile unregisters a tile and the stream registered under its id.
// Unknown ids are ignored.
func (c *Compositor) RemoveTile(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	t, ok := c.tiles[id]
	if !ok {
		return
	}
	delete(c.tiles, id)
	t.painter.Close()

	if c.bigID == id {
		c.bigID = ""
	}
	if c.highlightID == id {
		c.highlightID = ""
	}
	c.orderedIDs = slices.DeleteFunc(c.orderedIDs, func(s string) bool { return s == id })
	c.removeStreamLocked(id)

	c.logger.Debug("tile removed", "tile", id, "tiles", len(c.tiles))
	c.recomputeLocked()
}

// SetOrder sets the placement order of tiles. Unknown and repeated ids are
// dropped. Tiles missing from ids are not drawn, except the big tile, which
// always comes first.
func (c *Compositor) SetOrder(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	order := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := c.tiles[id]; !ok || slices.Contains(order, id) {
			continue
		}
		order = append(order, id)
	}
	c.orderedIDs = order
	c.recomputeLocked()
}

// Order returns the explicit tile order.
func (c *Compositor) Order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.orderedIDs)
}

// SetHighlight outlines the tile id. An empty id clears the highlight;
// unknown ids are ignored.
func (c *Compositor) SetHighlight(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if _, ok := c.tiles[id]; id != "" && !ok {
		return
	}
	c.highlightID = id
	c.recomputeLocked()
}

// Highlight returns the highlighted tile id, or "".
func (c *Compositor) Highlight() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highlightID
}

// BigTile returns the big tile id, or "".
func (c *Compositor) BigTile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bigID
}

// AddStream registers stream under id, independently of whether a tile with
// that id exists yet, and mixes its audio. A stream already registered under
// id is replaced.
func (c *Compositor) AddStream(id string, stream MediaStream) {
	if stream == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.addStreamLocked(id, stream)
	c.recomputeLocked()
}

func (c *Compositor) addStreamLocked(id string, stream MediaStream) {
	old, replaced := c.streams[id]
	c.streams[id] = stream
	if replaced && old.ID() != stream.ID() {
		c.releaseStreamLocked(old)
	}
	c.mixer.AddStream(stream)
	if t, ok := c.tiles[id]; ok {
		t.painter.SetStream(stream)
	}
}

// RemoveStream unregisters the stream under id. Unknown ids are ignored.
func (c *Compositor) RemoveStream(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.removeStreamLocked(id) {
		c.recomputeLocked()
	}
}

func (c *Compositor) removeStreamLocked(id string) bool {
	stream, ok := c.streams[id]
	if !ok {
		return false
	}
	delete(c.streams, id)
	c.releaseStreamLocked(stream)
	if t, ok := c.tiles[id]; ok {
		t.painter.SetStream(nil)
	}
	return true
}

// releaseStreamLocked unmixes stream unless it is still registered under
// another id. The mixer keys streams by their ID.
func (c *Compositor) releaseStreamLocked(stream MediaStream) {
	for _, s := range c.streams {
		if s.ID() == stream.ID() {
			return
		}
	}
	c.mixer.RemoveStream(stream)
}

// ActiveIDs returns the tile ids in draw order: the big tile, if any, then
// the explicit order.
func (c *Compositor) ActiveIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeIDsLocked()
}

func (c *Compositor) activeIDsLocked() []string {
	if c.bigID != "" && !slices.Contains(c.orderedIDs, c.bigID) {
		return append([]string{c.bigID}, c.orderedIDs...)
	}
	return slices.Clone(c.orderedIDs)
}

// TileCoords returns the rectangle assigned to tile id. Tiles that are not
// drawn have an empty rectangle.
func (c *Compositor) TileCoords(id string) (TileRect, bool) {
	c.mu.Lock()
	t, ok := c.tiles[id]
	c.mu.Unlock()
	if !ok {
		return TileRect{}, false
	}
	return t.painter.Coords(), true
}

// recomputeLocked assigns rectangles to every tile. The big tile gets the
// left share of the canvas and the remaining active tiles are packed into
// the alternate grid to its right; without a big tile, or with it alone,
// all active tiles share the main grid.
func (c *Compositor) recomputeLocked() {
	for id, t := range c.tiles {
		t.painter.SetCoords(TileRect{})
		t.painter.SetHighlight(id == c.highlightID)
	}
	c.drawOrder = c.drawOrder[:0]

	active := c.activeIDsLocked()
	if len(active) == 0 {
		return
	}

	if big, ok := c.tiles[c.bigID]; ok && len(c.tiles) > 1 {
		big.painter.SetCoords(c.bigRect())
		c.drawOrder = append(c.drawOrder, big.painter)

		rest := slices.DeleteFunc(active, func(id string) bool { return id == c.bigID })
		if len(rest) == 0 {
			return
		}
		offset := c.bigWidth + c.config.BigTileGap
		c.altLayout.SetTilesCount(len(rest))
		for i, id := range rest {
			r := c.altLayout.TileCoords(i)
			r.X += offset
			t := c.tiles[id]
			t.painter.SetCoords(r)
			c.drawOrder = append(c.drawOrder, t.painter)
		}
		return
	}

	c.layout.SetTilesCount(len(active))
	for i, id := range active {
		t := c.tiles[id]
		t.painter.SetCoords(c.layout.TileCoords(i))
		c.drawOrder = append(c.drawOrder, t.painter)
	}
}

func (c *Compositor) bigRect() TileRect {
	if ar := c.config.BigTileAspectRatio; ar > 0 {
		p := ComputeGrid(c.bigWidth, c.config.Height, 0, 1, ar)
		return TileRect{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
	}
	return TileRect{Width: c.bigWidth, Height: c.config.Height}
}

// placeholderResolved redraws right away unless the render loop will do so
// on its next tick.
func (c *Compositor) placeholderResolved() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		c.Draw()
	}
}

// Draw renders one composite frame onto the canvas.
func (c *Compositor) Draw() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	painters := slices.Clone(c.drawOrder)
	c.mu.Unlock()

	c.drawMu.Lock()
	if c.closed {
		c.drawMu.Unlock()
		return
	}
	start := time.Now()
	c.surface.FillRect(Rect{Width: float64(c.config.Width), Height: float64(c.config.Height)}, c.config.Background)
	for _, p := range painters {
		p.Draw()
	}
	elapsed := time.Since(start)
	c.drawMu.Unlock()

	c.mu.Lock()
	c.timings.push(elapsed)
	c.mu.Unlock()
	if c.config.OnDraw != nil {
		c.config.OnDraw(elapsed)
	}
}

// Canvas returns a copy of the current canvas. After Stop it returns the
// last frame drawn.
func (c *Compositor) Canvas() *image.RGBA {
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	if c.final != nil {
		img := image.NewRGBA(c.final.Rect)
		copy(img.Pix, c.final.Pix)
		return img
	}
	return c.surface.Snapshot()
}

// DrawStats summarizes recent draw durations.
func (c *Compositor) DrawStats() DrawStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timings.stats()
}

// Start begins the render loop. Each tick draws once and schedules the next
// tick one frame interval after the previous one started, so slow draws do
// not lower the frame rate. Starting a running or stopped compositor does
// nothing.
func (c *Compositor) Start() {
	c.mu.Lock()
	if c.stopped || c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info("render loop started", "width", c.config.Width, "height", c.config.Height, "fps", c.config.FrameRate)
	c.tick()
}

func (c *Compositor) tick() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	start := time.Now()
	c.Draw()
	elapsed := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.stopTick = c.scheduler.AfterFunc(max(0, c.interval-elapsed), c.tick)
}

// ResumeAudio starts audio mixing.
func (c *Compositor) ResumeAudio() {
	if c.IsStopped() {
		return
	}
	c.mixer.Resume()
}

// Stop cancels the render loop, shuts down the mixer, ends the output tracks
// and forgets every tile and stream. A draw already in progress completes.
// Stop is idempotent.
func (c *Compositor) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	wasRunning := c.running
	c.running = false
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
	tiles := c.tiles
	c.tiles = make(map[string]*tile)
	c.streams = make(map[string]MediaStream)
	c.orderedIDs = nil
	c.bigID = ""
	c.highlightID = ""
	c.drawOrder = nil
	c.mu.Unlock()

	c.mixer.Shutdown()
	c.video.Close()
	c.mixer.OutputTrack().Close()
	for _, t := range tiles {
		t.painter.Close()
	}

	c.drawMu.Lock()
	c.closed = true
	c.final = c.surface.Snapshot()
	if closer, ok := c.surface.(interface{ Close() error }); ok && c.ownsSurface {
		if err := closer.Close(); err != nil {
			c.logger.Debug("close canvas", "error", err)
		}
	}
	c.drawMu.Unlock()

	if wasRunning {
		c.logger.Info("render loop stopped")
	}
}
