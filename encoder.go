package mediagrid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
	"time"
)

// MIME types of chunks produced by MJPEGEncoder.
const (
	MimeTypeMJPEG = "video/x-motion-jpeg"
	MimeTypeL16   = "audio/L16"
)

// Chunk is one encoded unit of media.
type Chunk struct {
	Kind      RTPCodecType
	MimeType  string
	Data      []byte
	Timestamp time.Duration // Presentation time relative to the start of encoding
	Keyframe  bool

	// Audio only
	SampleRate int
	Channels   int
}

// Encoder turns a composite stream into encoded chunks.
//
// Chunks are delivered to the OnChunk callback one at a time, in production
// order. After Stop, the OnStop callback fires once all chunks have been
// delivered.
type Encoder interface {
	Start() error
	Stop() error
	OnChunk(callback func(Chunk))
	OnStop(callback func())
}

// EncoderConfig configures the reference encoder.
type EncoderConfig struct {
	Quality   int // JPEG quality 1-100 (default: 75)
	FrameRate int // Maximum encoded frame rate, 0 = every frame read
	Logger    *slog.Logger
}

// DefaultEncoderConfig returns a default encoder configuration.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Quality: 75,
	}
}

// MJPEGEncoder encodes every video frame as a standalone JPEG and passes
// audio through as 16-bit PCM. Every video chunk is a keyframe.
type MJPEGEncoder struct {
	config EncoderConfig
	stream MediaStream
	logger *slog.Logger

	mu       sync.Mutex
	emitMu   sync.Mutex
	onChunk  func(Chunk)
	onStop   func()
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ Encoder = (*MJPEGEncoder)(nil)

// NewMJPEGEncoder creates an encoder for the first video and first audio
// track of stream.
func NewMJPEGEncoder(stream MediaStream, config EncoderConfig) (*MJPEGEncoder, error) {
	if stream == nil {
		return nil, fmt.Errorf("%w: nil stream", ErrConfiguration)
	}
	if config.Quality <= 0 {
		config.Quality = 75
	}
	if config.Quality > 100 {
		config.Quality = 100
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MJPEGEncoder{
		config: config,
		stream: stream,
		logger: logger,
	}, nil
}

func (e *MJPEGEncoder) OnChunk(callback func(Chunk)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChunk = callback
}

func (e *MJPEGEncoder) OnStop(callback func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStop = callback
}

// Start begins reading the stream. Starting twice, or after Stop, is an
// error.
func (e *MJPEGEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return errors.New("encoder already started")
	}
	e.started = true

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	start := time.Now()

	if tracks := e.stream.GetVideoTracks(); len(tracks) > 0 {
		e.wg.Add(1)
		go e.videoLoop(ctx, tracks[0], start)
	}
	if tracks := e.stream.GetAudioTracks(); len(tracks) > 0 {
		e.wg.Add(1)
		go e.audioLoop(ctx, tracks[0], start)
	}
	return nil
}

// Stop ends encoding. It returns immediately; OnStop fires once the
// in-flight chunks have been delivered. Stop is idempotent.
func (e *MJPEGEncoder) Stop() error {
	e.mu.Lock()
	e.stopped = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.stopOnce.Do(func() {
		go func() {
			e.wg.Wait()
			e.mu.Lock()
			cb := e.onStop
			e.mu.Unlock()
			if cb != nil {
				cb()
			}
		}()
	})
	return nil
}

func (e *MJPEGEncoder) emit(c Chunk) {
	e.mu.Lock()
	cb := e.onChunk
	e.mu.Unlock()
	if cb == nil {
		return
	}
	e.emitMu.Lock()
	cb(c)
	e.emitMu.Unlock()
}

func (e *MJPEGEncoder) videoLoop(ctx context.Context, track VideoTrack, start time.Time) {
	defer e.wg.Done()

	var minGap time.Duration
	if e.config.FrameRate > 0 {
		minGap = time.Second / time.Duration(e.config.FrameRate)
	}
	var last time.Duration = -1
	var buf bytes.Buffer

	for {
		frame, err := track.ReadFrame(ctx)
		if err != nil {
			e.logEnd("video", err)
			return
		}
		ts := time.Since(start)
		if last >= 0 && ts-last < minGap {
			continue
		}
		img := frame.Image()
		if img == nil {
			continue
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.config.Quality}); err != nil {
			e.logger.Warn("encode video frame", "error", err)
			continue
		}
		last = ts
		e.emit(Chunk{
			Kind:      RTPCodecTypeVideo,
			MimeType:  MimeTypeMJPEG,
			Data:      bytes.Clone(buf.Bytes()),
			Timestamp: ts,
			Keyframe:  true,
		})
	}
}

func (e *MJPEGEncoder) audioLoop(ctx context.Context, track AudioTrack, start time.Time) {
	defer e.wg.Done()

	for {
		samples, err := track.ReadSamples(ctx)
		if err != nil {
			e.logEnd("audio", err)
			return
		}
		data := samples.Data
		if samples.Format != AudioFormatS16 {
			f := samples.AppendFloat32(nil, samples.Channels)
			data = make([]byte, len(f)*2)
			PutS16(data, f)
		} else {
			data = bytes.Clone(data)
		}
		e.emit(Chunk{
			Kind:       RTPCodecTypeAudio,
			MimeType:   MimeTypeL16,
			Data:       data,
			Timestamp:  time.Since(start),
			Keyframe:   true,
			SampleRate: samples.SampleRate,
			Channels:   samples.Channels,
		})
	}
}

func (e *MJPEGEncoder) logEnd(kind string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return
	}
	e.logger.Warn("encoder input failed", "kind", kind, "error", err)
}
