package mediagrid

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Compositor CompositorConfig
	Encoder    EncoderConfig

	// NewEncoder builds the encoder for the composite stream. When nil an
	// MJPEGEncoder configured by Encoder is used.
	NewEncoder func(stream MediaStream, config EncoderConfig) (Encoder, error)

	// Sink receives the encoded chunks. It may also be set later with
	// SetSink, before Start.
	Sink Sink

	Logger *slog.Logger

	// OnWrite, if set, is called after every sink write with its result.
	OnWrite func(Chunk, error)
}

// DefaultRecorderConfig returns a default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Compositor: DefaultCompositorConfig(),
		Encoder:    DefaultEncoderConfig(),
	}
}

// Recorder encodes the output of a Compositor into a Sink. Chunks reach the
// sink strictly one write at a time and in encoding order.
//
// Recording is started once; after Stop the recorder is finished and every
// further call is a no-op.
type Recorder struct {
	compositor *Compositor
	encoder    Encoder
	logger     *slog.Logger
	onWrite    func(Chunk, error)

	mu       sync.Mutex
	sink     Sink
	chain    *writeChain
	started  bool
	stopped  bool
	stopDone chan struct{}
	stopErr  error
	finish   sync.Once
	drain    sync.Once
}

// NewRecorder creates a recorder and the compositor it records.
func NewRecorder(config RecorderConfig) (*Recorder, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Compositor.Logger == nil {
		config.Compositor.Logger = logger
	}
	if config.Encoder.Logger == nil {
		config.Encoder.Logger = logger
	}

	compositor, err := NewCompositor(config.Compositor)
	if err != nil {
		return nil, err
	}

	newEncoder := config.NewEncoder
	if newEncoder == nil {
		newEncoder = func(stream MediaStream, ec EncoderConfig) (Encoder, error) {
			return NewMJPEGEncoder(stream, ec)
		}
	}
	encoder, err := newEncoder(compositor.OutputStream(), config.Encoder)
	if err != nil {
		compositor.Stop()
		return nil, fmt.Errorf("create encoder: %w", err)
	}

	r := &Recorder{
		compositor: compositor,
		encoder:    encoder,
		logger:     logger,
		onWrite:    config.OnWrite,
		sink:       config.Sink,
		stopDone:   make(chan struct{}),
	}
	encoder.OnChunk(r.handleChunk)
	encoder.OnStop(r.handleEncoderStop)
	return r, nil
}

// SetSink attaches the sink chunks are written to. It is ignored once
// recording has started.
func (r *Recorder) SetSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		r.logger.Warn("sink change ignored after start")
		return
	}
	r.sink = sink
}

// Start starts encoding, then resumes audio and starts the render loop. It
// fails with ErrNoSink when no sink is attached; when the encoder fails to
// start, audio and rendering are left as they were. Starting an already
// started or stopped recorder does nothing.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.sink == nil {
		r.mu.Unlock()
		return ErrNoSink
	}
	if r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.chain = newWriteChain(r.sink, r.logger, r.onWrite)
	r.mu.Unlock()

	if err := r.encoder.Start(); err != nil {
		r.mu.Lock()
		r.started = false
		r.chain = nil
		r.mu.Unlock()
		return fmt.Errorf("start encoder: %w", err)
	}
	r.compositor.ResumeAudio()
	r.compositor.Start()
	r.logger.Info("recording started")
	return nil
}

// StartRendering runs the render loop without recording, for preview.
func (r *Recorder) StartRendering() {
	r.compositor.Start()
}

func (r *Recorder) handleChunk(c Chunk) {
	r.mu.Lock()
	chain := r.chain
	r.mu.Unlock()
	if chain != nil {
		chain.push(c)
	}
}

// handleEncoderStop runs once the encoder has delivered its last chunk. Only
// the first call drains and closes the sink.
func (r *Recorder) handleEncoderStop() {
	r.drain.Do(r.finishWrites)
}

func (r *Recorder) finishWrites() {
	r.mu.Lock()
	chain, sink := r.chain, r.sink
	r.mu.Unlock()

	var err error
	if chain != nil {
		err = chain.drain()
	}
	if sink != nil {
		if cerr := sink.Close(context.Background()); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close sink: %w", cerr))
		}
	}
	r.complete(err)
}

func (r *Recorder) complete(err error) {
	r.finish.Do(func() {
		r.mu.Lock()
		r.stopErr = err
		r.sink = nil
		r.mu.Unlock()
		close(r.stopDone)
		if err != nil {
			r.logger.Error("recording finished with error", "error", err)
		} else {
			r.logger.Info("recording stopped")
		}
	})
}

// Stop ends recording: the encoder is stopped, queued chunks are written,
// the sink is closed and the compositor is stopped. It returns once the sink
// has been closed, or when ctx is done. Every call, including concurrent and
// repeated ones, observes the same result; the sink is closed only once.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	first := !r.stopped
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	if first {
		if started {
			if err := r.encoder.Stop(); err != nil {
				r.logger.Warn("stop encoder", "error", err)
				go r.handleEncoderStop()
			}
		} else {
			go r.handleEncoderStop()
		}
		r.compositor.Stop()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopDone:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.stopErr
	}
}

// IsStopped reports whether Stop has been called.
func (r *Recorder) IsStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Compositor returns the compositor being recorded.
func (r *Recorder) Compositor() *Compositor { return r.compositor }

// OutputStream returns the composite stream being encoded.
func (r *Recorder) OutputStream() MediaStream { return r.compositor.OutputStream() }

func (r *Recorder) AddTile(id, title string, placeholder Placeholder, stream MediaStream, isBig bool) {
	r.compositor.AddTile(id, title, placeholder, stream, isBig)
}

func (r *Recorder) RemoveTile(id string) { r.compositor.RemoveTile(id) }
func (r *Recorder) SetOrder(ids []string) { r.compositor.SetOrder(ids) }
func (r *Recorder) SetHighlight(id string) { r.compositor.SetHighlight(id) }
func (r *Recorder) AddStream(id string, stream MediaStream) { r.compositor.AddStream(id, stream) }
func (r *Recorder) RemoveStream(id string) { r.compositor.RemoveStream(id) }
func (r *Recorder) Draw() { r.compositor.Draw() }
func (r *Recorder) ResumeAudio() { r.compositor.ResumeAudio() }
func (r *Recorder) Canvas() *image.RGBA { return r.compositor.Canvas() }
func (r *Recorder) DrawStats() DrawStats { return r.compositor.DrawStats() }
