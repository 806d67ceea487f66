package mediagrid

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// AudioGraphNode is one input of the mixing graph.
type AudioGraphNode interface {
	// Pull moves up to len(dst) buffered interleaved samples into dst and
	// returns how many were written.
	Pull(dst []float32) int

	// Disconnect detaches the node from its source. Pull returns 0 afterwards.
	Disconnect()
}

// MixerState is the lifecycle state of an AudioMixer.
type MixerState int

const (
	MixerStateSuspended MixerState = iota // Output is silent until Resume
	MixerStateRunning                     // Inputs are mixed into the output
	MixerStateClosed                      // Shut down
)

func (s MixerState) String() string {
	switch s {
	case MixerStateSuspended:
		return "suspended"
	case MixerStateRunning:
		return "running"
	case MixerStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MixerConfig configures the audio mixer.
type MixerConfig struct {
	SampleRate   int // Output sample rate (default: 48000)
	Channels     int // Output channels (default: 2)
	FrameSize    int // Samples per channel per output block (default: 960 = 20ms at 48kHz)
	BufferFrames int // Blocks buffered per input before the oldest are dropped (default: 10)
	Logger       *slog.Logger
}

// DefaultMixerConfig returns a default mixer configuration.
func DefaultMixerConfig() MixerConfig {
	return MixerConfig{
		SampleRate:   48000,
		Channels:     2,
		FrameSize:    960,
		BufferFrames: 10,
	}
}

// AudioMixer merges the audio tracks of any number of streams into a single
// output track. Each distinct track gets exactly one node, shared by every
// registered stream that carries it.
type AudioMixer struct {
	config MixerConfig
	logger *slog.Logger
	output *mixedTrack

	mu      sync.Mutex
	state   MixerState
	streams map[string]*mixerStream
	nodes   map[string]*mixerNode
	scratch []float32
	acc     []float32
}

type mixerStream struct {
	stream   MediaStream
	tracks   map[string]struct{}
	unsubAdd func()
	unsubRem func()
}

// NewAudioMixer creates a suspended mixer.
func NewAudioMixer(config MixerConfig) *AudioMixer {
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.FrameSize <= 0 {
		config.FrameSize = config.SampleRate / 50
	}
	if config.BufferFrames <= 0 {
		config.BufferFrames = 10
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &AudioMixer{
		config:  config,
		logger:  logger,
		streams: make(map[string]*mixerStream),
		nodes:   make(map[string]*mixerNode),
		scratch: make([]float32, config.FrameSize*config.Channels),
		acc:     make([]float32, config.FrameSize*config.Channels),
	}
	m.output = newMixedTrack(m)
	return m
}

// OutputTrack returns the mixed output. It is the same track for the
// lifetime of the mixer.
func (m *AudioMixer) OutputTrack() AudioTrack {
	return m.output
}

// State returns the mixer state.
func (m *AudioMixer) State() MixerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Resume starts mixing. It is a no-op unless the mixer is suspended.
func (m *AudioMixer) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MixerStateSuspended {
		m.state = MixerStateRunning
		m.logger.Debug("audio mixer resumed")
	}
}

// AddStream mixes every audio track of stream, including tracks added to it
// later. Adding a stream that is already registered does nothing.
func (m *AudioMixer) AddStream(stream MediaStream) {
	if stream == nil {
		return
	}
	m.mu.Lock()
	if m.state == MixerStateClosed {
		m.mu.Unlock()
		return
	}
	if _, ok := m.streams[stream.ID()]; ok {
		m.mu.Unlock()
		return
	}
	entry := &mixerStream{stream: stream, tracks: make(map[string]struct{})}
	m.streams[stream.ID()] = entry
	for _, track := range stream.GetAudioTracks() {
		m.attachLocked(entry, track)
	}
	m.mu.Unlock()

	unsubAdd := stream.OnAddTrack(func(track MediaStreamTrack) {
		at, ok := track.(AudioTrack)
		if !ok {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.streams[stream.ID()] == entry {
			m.attachLocked(entry, at)
		}
	})
	unsubRem := stream.OnRemoveTrack(func(track MediaStreamTrack) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.streams[stream.ID()] == entry {
			m.detachLocked(entry, track.ID())
		}
	})

	m.mu.Lock()
	if m.streams[stream.ID()] == entry {
		entry.unsubAdd, entry.unsubRem = unsubAdd, unsubRem
		unsubAdd, unsubRem = nil, nil
	}
	m.mu.Unlock()
	if unsubAdd != nil {
		unsubAdd()
		unsubRem()
	}
}

// RemoveStream stops listening to stream and disconnects the nodes of its
// tracks that no other registered stream carries. Unknown streams are
// ignored.
func (m *AudioMixer) RemoveStream(stream MediaStream) {
	if stream == nil {
		return
	}
	m.mu.Lock()
	entry, ok := m.streams[stream.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.streams, stream.ID())
	for id := range entry.tracks {
		m.detachLocked(entry, id)
	}
	m.mu.Unlock()

	entry.unsubscribe()
}

// Shutdown disconnects every node and forgets every stream. The output
// track keeps producing silence until it is closed. Calling Shutdown more
// than once is safe.
func (m *AudioMixer) Shutdown() {
	m.mu.Lock()
	if m.state == MixerStateClosed {
		m.mu.Unlock()
		return
	}
	m.state = MixerStateClosed
	streams := m.streams
	nodes := m.nodes
	m.streams = make(map[string]*mixerStream)
	m.nodes = make(map[string]*mixerNode)
	m.mu.Unlock()

	for _, entry := range streams {
		entry.unsubscribe()
	}
	for _, node := range nodes {
		node.Disconnect()
	}
	m.logger.Debug("audio mixer shut down", "nodes", len(nodes))
}

// ConnectedTracks returns the IDs of the tracks that currently have a node,
// sorted.
func (m *AudioMixer) ConnectedTracks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *AudioMixer) attachLocked(entry *mixerStream, track AudioTrack) {
	id := track.ID()
	if _, ok := entry.tracks[id]; ok {
		return
	}
	entry.tracks[id] = struct{}{}

	if node, ok := m.nodes[id]; ok {
		node.refs++
		return
	}
	node := newMixerNode(track, m.config.Channels, m.config.FrameSize*m.config.Channels*m.config.BufferFrames, m.logger)
	m.nodes[id] = node
	m.logger.Debug("audio track connected", "track", id, "stream", entry.stream.ID())
}

func (m *AudioMixer) detachLocked(entry *mixerStream, id string) {
	if _, ok := entry.tracks[id]; !ok {
		return
	}
	delete(entry.tracks, id)

	node, ok := m.nodes[id]
	if !ok {
		return
	}
	node.refs--
	if node.refs > 0 {
		return
	}
	delete(m.nodes, id)
	node.Disconnect()
	m.logger.Debug("audio track disconnected", "track", id, "stream", entry.stream.ID())
}

func (e *mixerStream) unsubscribe() {
	if e.unsubAdd != nil {
		e.unsubAdd()
	}
	if e.unsubRem != nil {
		e.unsubRem()
	}
}

// mixFrame sums one block from every node into out as S16 PCM. Suspended or
// closed mixers produce silence.
func (m *AudioMixer) mixFrame(out []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.acc)
	if m.state == MixerStateRunning {
		for _, node := range m.nodes {
			n := node.Pull(m.scratch)
			for i := 0; i < n; i++ {
				m.acc[i] += m.scratch[i]
			}
		}
	}
	PutS16(out, m.acc)
}

// mixerNode buffers the samples of one input track.
type mixerNode struct {
	track    AudioTrack
	channels int
	limit    int
	logger   *slog.Logger
	refs     int

	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	buf          []float32
	disconnected bool
}

func newMixerNode(track AudioTrack, channels, limit int, logger *slog.Logger) *mixerNode {
	ctx, cancel := context.WithCancel(context.Background())
	n := &mixerNode{
		track:    track,
		channels: channels,
		limit:    limit,
		logger:   logger,
		refs:     1,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go n.run(ctx)
	return n
}

func (n *mixerNode) run(ctx context.Context) {
	defer close(n.done)
	for {
		samples, err := n.track.ReadSamples(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				n.logger.Debug("audio input failed", "track", n.track.ID(), "error", err)
			}
			return
		}
		if !n.track.Enabled() {
			continue
		}

		n.mu.Lock()
		if n.disconnected {
			n.mu.Unlock()
			return
		}
		n.buf = samples.AppendFloat32(n.buf, n.channels)
		if over := len(n.buf) - n.limit; over > 0 {
			n.buf = append(n.buf[:0], n.buf[over:]...)
		}
		n.mu.Unlock()
	}
}

func (n *mixerNode) Pull(dst []float32) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.disconnected {
		return 0
	}
	c := copy(dst, n.buf)
	n.buf = append(n.buf[:0], n.buf[c:]...)
	return c
}

func (n *mixerNode) Disconnect() {
	n.mu.Lock()
	n.disconnected = true
	n.buf = nil
	n.mu.Unlock()
	n.cancel()
}

// mixedTrack is the mixer output. Reads are paced to real time, one block
// per FrameSize samples.
type mixedTrack struct {
	*BaseTrack
	mixer  *AudioMixer
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	pacer pacer
}

func newMixedTrack(m *AudioMixer) *mixedTrack {
	return &mixedTrack{
		BaseTrack: NewBaseTrack("", "mixed-audio", RTPCodecTypeAudio),
		mixer:     m,
		closed:    make(chan struct{}),
		pacer:     pacer{period: time.Duration(m.config.FrameSize) * time.Second / time.Duration(m.config.SampleRate)},
	}
}

func (t *mixedTrack) Settings() AudioTrackSettings {
	return AudioTrackSettings{SampleRate: t.mixer.config.SampleRate, ChannelCount: t.mixer.config.Channels}
}

func (t *mixedTrack) ReadSamples(ctx context.Context) (*AudioSamples, error) {
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

	cfg := t.mixer.config
	data := make([]byte, cfg.FrameSize*cfg.Channels*2)
	if t.Enabled() {
		t.mixer.mixFrame(data)
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

func (t *mixedTrack) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.SetState(TrackStateEnded)
	})
	return nil
}
