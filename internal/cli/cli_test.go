package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thesyncim/mediagrid"
	"github.com/thesyncim/mediagrid/config"
)

func testDeps(t *testing.T) *Dependencies {
	t.Helper()
	cfg := config.Default()
	cfg.Width, cfg.Height = 160, 90
	cfg.FrameRate = 10
	cfg.TitleFontSize = 8
	return &Dependencies{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func execute(t *testing.T, deps *Dependencies, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLayoutCmd(t *testing.T) {
	out, err := execute(t, testDeps(t), "layout", "3", "--width", "1280", "--height", "720", "--gap", "0")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if want := "3 tiles on 1280x720: 2 rows x 2 cols, tile 640x360"; lines[0] != want {
		t.Errorf("summary = %q, want %q", lines[0], want)
	}

	want := [][]string{
		{"TILE", "X", "Y", "WIDTH", "HEIGHT"},
		{"0", "0", "0", "640", "360"},
		{"1", "640", "0", "640", "360"},
		{"2", "320", "360", "640", "360"},
	}
	for i, w := range want {
		if got := strings.Fields(lines[i+1]); strings.Join(got, " ") != strings.Join(w, " ") {
			t.Errorf("line %d = %v, want %v", i+1, got, w)
		}
	}
}

func TestLayoutCmd_ConfigDefaults(t *testing.T) {
	out, err := execute(t, testDeps(t), "layout", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "1 tiles on 160x90:") {
		t.Errorf("output = %q", out)
	}
}

func TestLayoutCmd_InvalidCount(t *testing.T) {
	for _, arg := range []string{"0", "many"} {
		if _, err := execute(t, testDeps(t), "layout", arg); err == nil {
			t.Errorf("layout %s: expected error", arg)
		}
	}
}

func TestRecordAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mgc")
	deps := testDeps(t)

	out, err := execute(t, deps, "record", "-n", "3", "--audio-only", "1", "--big", "--highlight", "2",
		"-d", "300ms", "-o", path)
	if err != nil {
		t.Fatalf("record: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Recorded") || !strings.Contains(out, "Wrote") {
		t.Errorf("record output:\n%s", out)
	}
	if st, err := os.Stat(path); err != nil || st.Size() <= 8 {
		t.Fatalf("recording missing or empty: %v", err)
	}

	out, err = execute(t, deps, "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "video: ") || !strings.Contains(out, "audio: ") {
		t.Errorf("inspect output:\n%s", out)
	}
}

func TestRecordCmd_BadPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mgc")
	if _, err := execute(t, testDeps(t), "record", "--pattern", "plaid", "-d", "10ms", "-o", path); err == nil {
		t.Error("expected error for unknown pattern")
	}
}

func TestInspectCmd_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mgc")
	sink, err := mediagrid.CreateFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(t.Context()); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, testDeps(t), "inspect", path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "empty recording" {
		t.Errorf("output = %q", out)
	}
}

func TestInspectCmd_Verbose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.mgc")
	sink, err := mediagrid.CreateFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := t.Context()
	_ = sink.Write(ctx, mediagrid.Chunk{Kind: mediagrid.RTPCodecTypeVideo, MimeType: mediagrid.MimeTypeMJPEG, Data: []byte{1, 2}, Keyframe: true})
	_ = sink.Write(ctx, mediagrid.Chunk{Kind: mediagrid.RTPCodecTypeVideo, MimeType: mediagrid.MimeTypeMJPEG, Data: []byte{3}, Timestamp: 100 * time.Millisecond})
	if err := sink.Close(ctx); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, testDeps(t), "inspect", "-v", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "video: 2 chunks, 3 bytes, 0s to 100ms") {
		t.Errorf("summary missing:\n%s", out)
	}
	if strings.Count(out, "key=") != 2 {
		t.Errorf("expected one line per chunk:\n%s", out)
	}
}

func TestInspectCmd_NotARecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	if err := os.WriteFile(path, []byte("junk data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, testDeps(t), "inspect", path); err == nil {
		t.Error("expected error")
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		name    string
		want    mediagrid.PatternType
		wantErr bool
	}{
		{"", mediagrid.PatternColorBars, false},
		{"bars", mediagrid.PatternColorBars, false},
		{"Checker", mediagrid.PatternCheckerboard, false},
		{"solid", mediagrid.PatternSolidColor, false},
		{"box", mediagrid.PatternMovingBox, false},
		{"plaid", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePattern(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parsePattern(%q) = %v, %v", tt.name, got, err)
		}
	}
}

func TestNewParticipant(t *testing.T) {
	if _, err := newParticipant(participantOptions{}, 48000, 2); err == nil {
		t.Error("expected error for empty id")
	}

	p, err := newParticipant(participantOptions{ID: "alice", Video: true, Audio: true, Width: 32, Height: 18}, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.title != "alice" {
		t.Errorf("title = %q", p.title)
	}
	video, audio := p.stream.GetVideoTracks(), p.stream.GetAudioTracks()
	if len(video) != 1 || len(audio) != 1 {
		t.Fatalf("tracks: %d video, %d audio", len(video), len(audio))
	}
	if s := video[0].Settings(); s.Width != 32 || s.Height != 18 {
		t.Errorf("video settings = %+v", s)
	}
	if s := audio[0].Settings(); s.SampleRate != 16000 || s.ChannelCount != 1 {
		t.Errorf("audio settings = %+v", s)
	}

	p.Close()
	if p.stream.Active() {
		t.Error("stream active after Close")
	}
}
