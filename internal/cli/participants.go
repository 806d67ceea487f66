package cli

import (
	"fmt"
	"strings"

	"github.com/thesyncim/mediagrid"
)

// participant is a synthetic stand-in for a conference participant: an
// optional test pattern and an optional tone.
type participant struct {
	id     string
	title  string
	stream *mediagrid.SimpleMediaStream
}

type participantOptions struct {
	ID        string
	Title     string
	Pattern   string
	Video     bool
	Audio     bool
	Frequency float64
	Width     int
	Height    int
	FPS       int
}

var patterns = map[string]mediagrid.PatternType{
	"bars":    mediagrid.PatternColorBars,
	"checker": mediagrid.PatternCheckerboard,
	"solid":   mediagrid.PatternSolidColor,
	"box":     mediagrid.PatternMovingBox,
}

var solidColors = [][3]uint8{
	{200, 60, 60},
	{60, 160, 90},
	{60, 90, 200},
	{200, 170, 40},
}

func parsePattern(name string) (mediagrid.PatternType, error) {
	if name == "" {
		return mediagrid.PatternColorBars, nil
	}
	p, ok := patterns[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown pattern %q", name)
	}
	return p, nil
}

func newParticipant(opts participantOptions, sampleRate, channels int) (*participant, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("participant id is required")
	}
	if opts.Title == "" {
		opts.Title = opts.ID
	}

	var tracks []mediagrid.MediaStreamTrack
	if opts.Video {
		pattern, err := parsePattern(opts.Pattern)
		if err != nil {
			return nil, err
		}
		pc := mediagrid.DefaultPatternConfig()
		pc.Label = opts.Title
		pc.Pattern = pattern
		if opts.Width > 0 {
			pc.Width = opts.Width
		}
		if opts.Height > 0 {
			pc.Height = opts.Height
		}
		if opts.FPS > 0 {
			pc.FPS = opts.FPS
		}
		c := solidColors[len(opts.ID)%len(solidColors)]
		pc.SolidR, pc.SolidG, pc.SolidB = c[0], c[1], c[2]
		tracks = append(tracks, mediagrid.NewPatternVideoTrack(pc))
	}
	if opts.Audio {
		tc := mediagrid.DefaultToneConfig()
		tc.Label = opts.Title
		tc.SampleRate = sampleRate
		tc.Channels = channels
		tc.FrameSize = sampleRate / 50
		if opts.Frequency > 0 {
			tc.Frequency = opts.Frequency
		}
		tc.Amplitude = 0.2
		tracks = append(tracks, mediagrid.NewToneAudioTrack(tc))
	}

	return &participant{
		id:     opts.ID,
		title:  opts.Title,
		stream: mediagrid.NewMediaStream(opts.ID, tracks...),
	}, nil
}

// Close ends every track of the participant.
func (p *participant) Close() {
	_ = p.stream.Close()
}
