package mediagrid

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Re-export pion's RTPCodecType for convenience
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeUnknown = webrtc.RTPCodecTypeUnknown
	RTPCodecTypeAudio   = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo   = webrtc.RTPCodecTypeVideo
)

// TrackState represents the state of a track.
type TrackState int

const (
	TrackStateLive  TrackState = iota // Track is active and producing media
	TrackStateEnded                   // Track has ended
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MediaStreamTrack represents a single audio or video track.
// This is similar to the browser's MediaStreamTrack interface.
type MediaStreamTrack interface {
	io.Closer

	// ID returns the unique identifier for this track.
	ID() string

	// Kind returns the track kind (audio or video) - compatible with pion.
	Kind() RTPCodecType

	// Label returns a human-readable label for the track source.
	Label() string

	// State returns the current track state.
	State() TrackState

	// Enabled returns whether the track is enabled.
	Enabled() bool

	// SetEnabled sets the enabled state.
	SetEnabled(enabled bool)

	// OnEnded sets a callback for when the track ends.
	OnEnded(callback func())
}

// VideoTrack is a MediaStreamTrack that produces video frames.
type VideoTrack interface {
	MediaStreamTrack

	// ReadFrame blocks until the next video frame is available.
	// It returns io.EOF once the track has ended.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	// Settings returns the actual video settings.
	Settings() VideoTrackSettings
}

// VideoTrackSettings describes the actual video track settings.
type VideoTrackSettings struct {
	Width     int
	Height    int
	FrameRate int
}

// AudioTrack is a MediaStreamTrack that produces audio samples.
type AudioTrack interface {
	MediaStreamTrack

	// ReadSamples blocks until the next block of samples is available.
	// It returns io.EOF once the track has ended.
	ReadSamples(ctx context.Context) (*AudioSamples, error)

	// Settings returns the actual audio settings.
	Settings() AudioTrackSettings
}

// AudioTrackSettings describes the actual audio track settings.
type AudioTrackSettings struct {
	SampleRate   int
	ChannelCount int
}

// MediaStream is a collection of tracks (like browser's MediaStream).
//
// OnAddTrack and OnRemoveTrack register listeners for tracks that appear or
// disappear after construction. Each returns a function that removes the
// listener; listeners run synchronously on the goroutine that changed the
// track set.
type MediaStream interface {
	io.Closer

	ID() string
	Active() bool
	GetTracks() []MediaStreamTrack
	GetVideoTracks() []VideoTrack
	GetAudioTracks() []AudioTrack
	AddTrack(track MediaStreamTrack)
	RemoveTrack(track MediaStreamTrack)
	OnAddTrack(callback func(track MediaStreamTrack)) (remove func())
	OnRemoveTrack(callback func(track MediaStreamTrack)) (remove func())
}

// BaseTrack provides common functionality for tracks.
type BaseTrack struct {
	id      string
	label   string
	kind    RTPCodecType
	state   atomic.Int32
	enabled atomic.Bool
	endedCb func()
	mu      sync.RWMutex
}

// NewBaseTrack creates a new base track. An empty id is replaced by a
// generated UUID.
func NewBaseTrack(id, label string, kind RTPCodecType) *BaseTrack {
	if id == "" {
		id = uuid.NewString()
	}
	t := &BaseTrack{
		id:    id,
		label: label,
		kind:  kind,
	}
	t.state.Store(int32(TrackStateLive))
	t.enabled.Store(true)
	return t
}

func (t *BaseTrack) ID() string         { return t.id }
func (t *BaseTrack) Kind() RTPCodecType { return t.kind }
func (t *BaseTrack) Label() string      { return t.label }

func (t *BaseTrack) State() TrackState {
	return TrackState(t.state.Load())
}

// SetState updates the track state, firing the ended callback on the first
// transition to TrackStateEnded.
func (t *BaseTrack) SetState(state TrackState) {
	old := TrackState(t.state.Swap(int32(state)))
	if state == TrackStateEnded && old != TrackStateEnded {
		t.mu.RLock()
		cb := t.endedCb
		t.mu.RUnlock()
		if cb != nil {
			go cb()
		}
	}
}

func (t *BaseTrack) Enabled() bool     { return t.enabled.Load() }
func (t *BaseTrack) SetEnabled(e bool) { t.enabled.Store(e) }

func (t *BaseTrack) OnEnded(callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endedCb = callback
}

type trackListener struct {
	id uint64
	fn func(MediaStreamTrack)
}

// SimpleMediaStream is a basic MediaStream implementation.
type SimpleMediaStream struct {
	id       string
	tracks   []MediaStreamTrack
	onAdd    []trackListener
	onRemove []trackListener
	nextID   uint64
	mu       sync.RWMutex
}

// NewMediaStream creates a new media stream holding the given tracks.
// An empty id is replaced by a generated UUID.
func NewMediaStream(id string, tracks ...MediaStreamTrack) *SimpleMediaStream {
	if id == "" {
		id = uuid.NewString()
	}
	s := &SimpleMediaStream{
		id:     id,
		tracks: make([]MediaStreamTrack, 0, len(tracks)),
	}
	s.tracks = append(s.tracks, tracks...)
	return s
}

func (s *SimpleMediaStream) ID() string { return s.id }

func (s *SimpleMediaStream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.State() == TrackStateLive {
			return true
		}
	}
	return false
}

func (s *SimpleMediaStream) GetTracks() []MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]MediaStreamTrack, len(s.tracks))
	copy(result, s.tracks)
	return result
}

func (s *SimpleMediaStream) GetVideoTracks() []VideoTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []VideoTrack
	for _, t := range s.tracks {
		if vt, ok := t.(VideoTrack); ok {
			result = append(result, vt)
		}
	}
	return result
}

func (s *SimpleMediaStream) GetAudioTracks() []AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []AudioTrack
	for _, t := range s.tracks {
		if at, ok := t.(AudioTrack); ok {
			result = append(result, at)
		}
	}
	return result
}

// AddTrack adds a track and notifies add listeners. Adding a track that is
// already part of the stream does nothing.
func (s *SimpleMediaStream) AddTrack(track MediaStreamTrack) {
	s.mu.Lock()
	for _, t := range s.tracks {
		if t.ID() == track.ID() {
			s.mu.Unlock()
			return
		}
	}
	s.tracks = append(s.tracks, track)
	listeners := append([]trackListener(nil), s.onAdd...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(track)
	}
}

// RemoveTrack removes a track and notifies remove listeners.
func (s *SimpleMediaStream) RemoveTrack(track MediaStreamTrack) {
	s.mu.Lock()
	found := false
	for i, t := range s.tracks {
		if t.ID() == track.ID() {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			found = true
			break
		}
	}
	listeners := append([]trackListener(nil), s.onRemove...)
	s.mu.Unlock()

	if !found {
		return
	}
	for _, l := range listeners {
		l.fn(track)
	}
}

func (s *SimpleMediaStream) OnAddTrack(callback func(MediaStreamTrack)) func() {
	return s.addListener(&s.onAdd, callback)
}

func (s *SimpleMediaStream) OnRemoveTrack(callback func(MediaStreamTrack)) func() {
	return s.addListener(&s.onRemove, callback)
}

func (s *SimpleMediaStream) addListener(list *[]trackListener, fn func(MediaStreamTrack)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	*list = append(*list, trackListener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range *list {
				if l.id == id {
					*list = append((*list)[:i], (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

// Close ends every track in the stream.
func (s *SimpleMediaStream) Close() error {
	s.mu.Lock()
	tracks := s.tracks
	s.tracks = nil
	s.mu.Unlock()

	var lastErr error
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
