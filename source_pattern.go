package mediagrid

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// PatternConfig configures a synthetic video track.
type PatternConfig struct {
	ID      string      // Track ID (default: generated)
	Label   string      // Track label
	Width   int         // Frame width (default: 640)
	Height  int         // Frame height (default: 360)
	FPS     int         // Frames per second (default: 30)
	Pattern PatternType // Pattern type (default: ColorBars)

	// For SolidColor pattern
	SolidR, SolidG, SolidB uint8

	// For Checkerboard pattern
	CheckerSize int // Size of each checker square (default: 32)
}

// DefaultPatternConfig returns a default synthetic video configuration.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		Width:       640,
		Height:      360,
		FPS:         30,
		Pattern:     PatternColorBars,
		CheckerSize: 32,
	}
}

// PatternVideoTrack is a VideoTrack producing I420 test patterns in real
// time. The frame returned by ReadFrame is reused by the next call.
type PatternVideoTrack struct {
	*BaseTrack
	config PatternConfig
	closed chan struct{}
	once   sync.Once

	mu         sync.Mutex
	pacer      pacer
	frameCount uint64
	yPlane     []byte
	uPlane     []byte
	vPlane     []byte
}

var _ VideoTrack = (*PatternVideoTrack)(nil)

// NewPatternVideoTrack creates a live synthetic video track.
func NewPatternVideoTrack(config PatternConfig) *PatternVideoTrack {
	if config.Width <= 0 {
		config.Width = 640
	}
	if config.Height <= 0 {
		config.Height = 360
	}
	// I420 needs even dimensions
	config.Width = (config.Width + 1) &^ 1
	config.Height = (config.Height + 1) &^ 1
	if config.FPS <= 0 {
		config.FPS = 30
	}
	if config.CheckerSize <= 0 {
		config.CheckerSize = 32
	}

	ySize := config.Width * config.Height
	uvSize := (config.Width / 2) * (config.Height / 2)
	buf := make([]byte, I420Size(config.Width, config.Height))

	t := &PatternVideoTrack{
		BaseTrack: NewBaseTrack(config.ID, config.Label, RTPCodecTypeVideo),
		config:    config,
		closed:    make(chan struct{}),
		pacer:     pacer{period: time.Second / time.Duration(config.FPS), skipLate: true},
		yPlane:    buf[:ySize],
		uPlane:    buf[ySize : ySize+uvSize],
		vPlane:    buf[ySize+uvSize:],
	}
	t.generate(0)
	return t
}

func (t *PatternVideoTrack) Settings() VideoTrackSettings {
	return VideoTrackSettings{Width: t.config.Width, Height: t.config.Height, FrameRate: t.config.FPS}
}

func (t *PatternVideoTrack) ReadFrame(ctx context.Context) (*VideoFrame, error) {
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

	t.frameCount++
	if t.config.Pattern == PatternMovingBox {
		t.generate(t.frameCount)
	}
	w := t.config.Width
	return &VideoFrame{
		Data:      [][]byte{t.yPlane, t.uPlane, t.vPlane},
		Stride:    []int{w, w / 2, w / 2},
		Width:     w,
		Height:    t.config.Height,
		Format:    PixelFormatI420,
		Timestamp: ts.Nanoseconds(),
		Duration:  t.pacer.period.Nanoseconds(),
	}, nil
}

// Close ends the track.
func (t *PatternVideoTrack) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.SetState(TrackStateEnded)
	})
	return nil
}

func (t *PatternVideoTrack) generate(frameNum uint64) {
	switch t.config.Pattern {
	case PatternCheckerboard:
		t.generateCheckerboard()
	case PatternSolidColor:
		t.generateSolidColor(t.config.SolidR, t.config.SolidG, t.config.SolidB)
	case PatternMovingBox:
		t.generateMovingBox(frameNum)
	default:
		t.generateColorBars()
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (t *PatternVideoTrack) generateColorBars() {
	w, h := t.config.Width, t.config.Height
	barWidth := max(w/8, 1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			barIdx := min(x/barWidth, 7)
			rgb := colorBarsRGB[barIdx]
			yVal, u, v := rgbToYUV(rgb[0], rgb[1], rgb[2])

			t.yPlane[y*w+x] = yVal
			if x%2 == 0 && y%2 == 0 {
				uvIdx := (y/2)*(w/2) + (x / 2)
				t.uPlane[uvIdx] = u
				t.vPlane[uvIdx] = v
			}
		}
	}
}

func (t *PatternVideoTrack) generateCheckerboard() {
	w, h := t.config.Width, t.config.Height
	size := t.config.CheckerSize

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var yVal uint8 = 16
			if ((x/size)+(y/size))%2 == 0 {
				yVal = 235
			}
			t.yPlane[y*w+x] = yVal
		}
	}
	fill(t.uPlane, 128)
	fill(t.vPlane, 128)
}

func (t *PatternVideoTrack) generateSolidColor(r, g, b uint8) {
	yVal, u, v := rgbToYUV(r, g, b)
	fill(t.yPlane, yVal)
	fill(t.uPlane, u)
	fill(t.vPlane, v)
}

func (t *PatternVideoTrack) generateMovingBox(frameNum uint64) {
	w, h := t.config.Width, t.config.Height
	fill(t.yPlane, 16)
	fill(t.uPlane, 128)
	fill(t.vPlane, 128)

	// The box moves in a circle around the center.
	boxSize := min(w, h) / 4
	radius := float64(min(w, h)) / 4
	angle := float64(frameNum) * 0.05
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < boxY+boxSize && y < h; y++ {
		for x := max(boxX, 0); x < boxX+boxSize && x < w; x++ {
			t.yPlane[y*w+x] = 235
		}
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// rgbToYUV converts RGB to YUV (BT.601)
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0

	y = uint8(clampFloat(yf, 16, 235))
	u = uint8(clampFloat(uf, 16, 240))
	v = uint8(clampFloat(vf, 16, 240))
	return
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ToneConfig configures a synthetic audio track.
type ToneConfig struct {
	ID         string  // Track ID (default: generated)
	Label      string  // Track label
	SampleRate int     // Sample rate (default: 48000)
	Channels   int     // Number of channels (default: 2)
	FrameSize  int     // Samples per block (default: 960 = 20ms at 48kHz)
	Frequency  float64 // Tone frequency in Hz (default: 440)
	Amplitude  float64 // Amplitude 0.0-1.0 (default: 0.5)
}

// DefaultToneConfig returns a default synthetic audio configuration.
func DefaultToneConfig() ToneConfig {
	return ToneConfig{
		SampleRate: 48000,
		Channels:   2,
		FrameSize:  960,
		Frequency:  440.0, // A4
		Amplitude:  0.5,
	}
}

// ToneAudioTrack is an AudioTrack producing a sine tone as S16 PCM in real
// time.
type ToneAudioTrack struct {
	*BaseTrack
	config ToneConfig
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	pacer pacer
	phase float64
}

var _ AudioTrack = (*ToneAudioTrack)(nil)

// NewToneAudioTrack creates a live synthetic audio track.
func NewToneAudioTrack(config ToneConfig) *ToneAudioTrack {
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FrameSize <= 0 {
		config.FrameSize = config.SampleRate / 50
	}
	if config.Frequency <= 0 {
		config.Frequency = 440.0
	}
	if config.Amplitude <= 0 {
		config.Amplitude = 0.5
	}
	config.Amplitude = math.Min(config.Amplitude, 1)

	return &ToneAudioTrack{
		BaseTrack: NewBaseTrack(config.ID, config.Label, RTPCodecTypeAudio),
		config:    config,
		closed:    make(chan struct{}),
		pacer:     pacer{period: time.Duration(config.FrameSize) * time.Second / time.Duration(config.SampleRate)},
	}
}

func (t *ToneAudioTrack) Settings() AudioTrackSettings {
	return AudioTrackSettings{SampleRate: t.config.SampleRate, ChannelCount: t.config.Channels}
}

func (t *ToneAudioTrack) ReadSamples(ctx context.Context) (*AudioSamples, error) {
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

	cfg := t.config
	data := make([]byte, cfg.FrameSize*cfg.Channels*2)
	step := 2 * math.Pi * cfg.Frequency / float64(cfg.SampleRate)
	for i := 0; i < cfg.FrameSize; i++ {
		sample := int16(cfg.Amplitude * 32767 * math.Sin(t.phase))
		t.phase += step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
		for c := 0; c < cfg.Channels; c++ {
			binary.LittleEndian.PutUint16(data[(i*cfg.Channels+c)*2:], uint16(sample))
		}
	}

	return &AudioSamples{
		Data:        data,
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
		SampleCount: cfg.FrameSize,
		Format:      AudioFormatS16,
		Timestamp:   ts.Nanoseconds(),
	}, nil
}

// Close ends the track.
func (t *ToneAudioTrack) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.SetState(TrackStateEnded)
	})
	return nil
}
