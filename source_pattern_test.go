package mediagrid

import (
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"
)

func TestPatternType_String(t *testing.T) {
	tests := []struct {
		p    PatternType
		want string
	}{
		{PatternColorBars, "ColorBars"},
		{PatternCheckerboard, "Checkerboard"},
		{PatternSolidColor, "SolidColor"},
		{PatternMovingBox, "MovingBox"},
		{PatternType(42), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestPatternVideoTrack(t *testing.T) {
	tests := []struct {
		name    string
		pattern PatternType
	}{
		{"bars", PatternColorBars},
		{"checker", PatternCheckerboard},
		{"solid", PatternSolidColor},
		{"box", PatternMovingBox},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := NewPatternVideoTrack(PatternConfig{Width: 63, Height: 35, FPS: 100, Pattern: tt.pattern, SolidG: 255})
			defer track.Close()

			s := track.Settings()
			if s.Width != 64 || s.Height != 36 || s.FrameRate != 100 {
				t.Fatalf("settings = %+v, want even 64x36 at 100 fps", s)
			}

			ctx := context.Background()
			f1, err := track.ReadFrame(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if f1.Format != PixelFormatI420 || f1.Width != 64 || f1.Height != 36 {
				t.Fatalf("frame %v %dx%d", f1.Format, f1.Width, f1.Height)
			}
			if len(f1.Data[0]) != 64*36 || len(f1.Data[1]) != 32*18 || f1.Stride[1] != 32 {
				t.Errorf("plane sizes %d/%d stride %d", len(f1.Data[0]), len(f1.Data[1]), f1.Stride[1])
			}
			ts1 := f1.Timestamp
			f2, err := track.ReadFrame(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if f2.Timestamp <= ts1 {
				t.Errorf("timestamps not increasing: %d then %d", ts1, f2.Timestamp)
			}
			if f2.Image() == nil {
				t.Error("frame has no image")
			}
		})
	}
}

func TestPatternVideoTrack_Close(t *testing.T) {
	track := NewPatternVideoTrack(PatternConfig{Width: 16, Height: 16, FPS: 1})
	if _, err := track.ReadFrame(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := track.ReadFrame(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	track.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("ReadFrame = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the reader")
	}
	if track.State() != TrackStateEnded {
		t.Error("track not ended")
	}
}

func TestRGBToYUV(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		y, u, v uint8
	}{
		{"black", 0, 0, 0, 16, 128, 128},
		{"white", 255, 255, 255, 235, 128, 128},
	}
	for _, tt := range tests {
		y, u, v := rgbToYUV(tt.r, tt.g, tt.b)
		if y != tt.y || u != tt.u || v != tt.v {
			t.Errorf("%s: got (%d, %d, %d), want (%d, %d, %d)", tt.name, y, u, v, tt.y, tt.u, tt.v)
		}
	}
}

func TestToneAudioTrack(t *testing.T) {
	track := NewToneAudioTrack(ToneConfig{SampleRate: 8000, Channels: 2, FrameSize: 80, Frequency: 1000, Amplitude: 0.5})
	defer track.Close()

	if s := track.Settings(); s.SampleRate != 8000 || s.ChannelCount != 2 {
		t.Fatalf("settings = %+v", s)
	}

	ctx := context.Background()
	samples, err := track.ReadSamples(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if samples.Format != AudioFormatS16 || samples.SampleCount != 80 || len(samples.Data) != 80*2*2 {
		t.Fatalf("block: format %v, %d samples, %d bytes", samples.Format, samples.SampleCount, len(samples.Data))
	}

	var peak int16
	for i := 0; i < samples.SampleCount; i++ {
		l := int16(binary.LittleEndian.Uint16(samples.Data[i*4:]))
		r := int16(binary.LittleEndian.Uint16(samples.Data[i*4+2:]))
		if l != r {
			t.Fatalf("sample %d: channels differ (%d, %d)", i, l, r)
		}
		peak = max(peak, l)
	}
	// 1 kHz at 8 kHz hits the crest every 8 samples.
	if peak < 16000 || peak > 16384 {
		t.Errorf("peak = %d, want about half scale", peak)
	}

	next, err := track.ReadSamples(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next.Timestamp-samples.Timestamp != int64(10*time.Millisecond) {
		t.Errorf("timestamp step = %d", next.Timestamp-samples.Timestamp)
	}

	track.Close()
	if _, err := track.ReadSamples(ctx); err != io.EOF {
		t.Errorf("ReadSamples after Close = %v, want io.EOF", err)
	}
}

func TestToneAudioTrack_Defaults(t *testing.T) {
	track := NewToneAudioTrack(ToneConfig{Amplitude: 3})
	defer track.Close()
	if track.config.FrameSize != 960 || track.config.Frequency != 440 || track.config.Amplitude != 1 {
		t.Errorf("config = %+v", track.config)
	}
}
