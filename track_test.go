package mediagrid

import (
	"testing"
	"time"
)

func TestTrackState_String(t *testing.T) {
	tests := []struct {
		state TrackState
		want  string
	}{
		{TrackStateLive, "live"},
		{TrackStateEnded, "ended"},
		{TrackState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBaseTrack(t *testing.T) {
	bt := NewBaseTrack("", "cam", RTPCodecTypeVideo)
	if bt.ID() == "" {
		t.Error("empty id was not replaced")
	}
	if bt.Label() != "cam" || bt.Kind() != RTPCodecTypeVideo {
		t.Errorf("label=%q kind=%v", bt.Label(), bt.Kind())
	}
	if bt.State() != TrackStateLive || !bt.Enabled() {
		t.Error("new track should be live and enabled")
	}

	bt.SetEnabled(false)
	if bt.Enabled() {
		t.Error("SetEnabled(false) had no effect")
	}

	ended := make(chan struct{}, 2)
	bt.OnEnded(func() { ended <- struct{}{} })
	bt.SetState(TrackStateEnded)
	bt.SetState(TrackStateEnded)

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("ended callback not called")
	}
	select {
	case <-ended:
		t.Error("ended callback called twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSimpleMediaStream(t *testing.T) {
	video := newChanVideoTrack("v")
	audio := newChanAudioTrack("a")
	s := NewMediaStream("s", video)

	if s.ID() != "s" || !s.Active() {
		t.Fatalf("id=%q active=%t", s.ID(), s.Active())
	}

	var added, removed []string
	stopAdd := s.OnAddTrack(func(tr MediaStreamTrack) { added = append(added, tr.ID()) })
	s.OnRemoveTrack(func(tr MediaStreamTrack) { removed = append(removed, tr.ID()) })

	s.AddTrack(audio)
	s.AddTrack(audio)
	if len(s.GetTracks()) != 2 || len(s.GetVideoTracks()) != 1 || len(s.GetAudioTracks()) != 1 {
		t.Fatalf("tracks = %d", len(s.GetTracks()))
	}
	if len(added) != 1 || added[0] != "a" {
		t.Errorf("added = %v", added)
	}

	stopAdd()
	stopAdd()
	s.RemoveTrack(audio)
	s.RemoveTrack(audio)
	s.AddTrack(audio)
	if len(added) != 1 {
		t.Errorf("add listener still called after removal: %v", added)
	}
	if len(removed) != 1 || removed[0] != "a" {
		t.Errorf("removed = %v", removed)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Active() || len(s.GetTracks()) != 0 {
		t.Error("stream active after Close")
	}
	if video.State() != TrackStateEnded {
		t.Error("Close did not end the tracks")
	}
}
