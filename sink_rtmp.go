package mediagrid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

// FLV tag header values
const (
	flvVideoKeyframe   = 1 << 4
	flvVideoInterFrame = 2 << 4
	flvVideoCodecJPEG  = 1
	flvAudioPCMLE      = 3 << 4
	flvAudioRate44k    = 3 << 2
	flvAudio16Bit      = 1 << 1
	flvAudioStereo     = 1

	rtmpAudioChunkStreamID = 4
	rtmpVideoChunkStreamID = 6
	rtmpChunkSize          = 128
)

// RTMPSink publishes chunks to an RTMP server as FLV-tagged video and audio
// messages.
type RTMPSink struct {
	client *rtmp.ClientConn
	stream *rtmp.Stream

	mu     sync.Mutex
	closed bool
}

var _ Sink = (*RTMPSink)(nil)

// DialRTMPSink connects to rawURL (rtmp://host[:port]/app/name) and starts
// publishing under name. logger receives the protocol log of the RTMP
// client; nil discards it.
func DialRTMPSink(ctx context.Context, rawURL string, logger logrus.FieldLogger) (*RTMPSink, error) {
	host, app, name, err := parseRTMPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}

	type result struct {
		sink *RTMPSink
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := dialRTMP(host, app, name, rawURL, logger)
		done <- result{s, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.sink != nil {
				r.sink.client.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		return r.sink, r.err
	}
}

func dialRTMP(host, app, name, tcURL string, logger logrus.FieldLogger) (*RTMPSink, error) {
	client, err := rtmp.Dial("rtmp", host, &rtmp.ConnConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("dial rtmp %s: %w", host, err)
	}
	if err := client.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:   app,
			TCURL: strings.TrimSuffix(tcURL, "/"+name),
		},
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("rtmp connect: %w", err)
	}
	stream, err := client.CreateStream(nil, rtmpChunkSize)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("rtmp create stream: %w", err)
	}
	if err := stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: name,
		PublishingType: "live",
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("rtmp publish %s: %w", name, err)
	}
	return &RTMPSink{client: client, stream: stream}, nil
}

// parseRTMPURL splits rtmp://host[:port]/app/name.
func parseRTMPURL(rawURL string) (host, app, name string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: rtmp url: %v", ErrConfiguration, err)
	}
	if u.Scheme != "rtmp" {
		return "", "", "", fmt.Errorf("%w: rtmp url scheme %q", ErrConfiguration, u.Scheme)
	}
	host = u.Host
	if u.Port() == "" {
		host += ":1935"
	}
	path := strings.Trim(u.Path, "/")
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", "", fmt.Errorf("%w: rtmp url %q needs /app/name", ErrConfiguration, rawURL)
	}
	return host, path[:i], path[i+1:], nil
}

// flvTag prefixes chunk data with its FLV tag header byte.
func flvTag(c Chunk) ([]byte, error) {
	var hdr byte
	switch c.Kind {
	case RTPCodecTypeVideo:
		if c.MimeType != MimeTypeMJPEG {
			return nil, fmt.Errorf("rtmp: unsupported video type %q", c.MimeType)
		}
		hdr = flvVideoInterFrame | flvVideoCodecJPEG
		if c.Keyframe {
			hdr = flvVideoKeyframe | flvVideoCodecJPEG
		}
	case RTPCodecTypeAudio:
		if c.MimeType != MimeTypeL16 {
			return nil, fmt.Errorf("rtmp: unsupported audio type %q", c.MimeType)
		}
		hdr = flvAudioPCMLE | flvAudioRate44k | flvAudio16Bit
		if c.Channels > 1 {
			hdr |= flvAudioStereo
		}
	default:
		return nil, errors.New("rtmp: unknown chunk kind")
	}
	out := make([]byte, 0, len(c.Data)+1)
	out = append(out, hdr)
	return append(out, c.Data...), nil
}

func (s *RTMPSink) Write(_ context.Context, chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	payload, err := flvTag(chunk)
	if err != nil {
		return err
	}
	ts := uint32(chunk.Timestamp.Milliseconds())

	if chunk.Kind == RTPCodecTypeAudio {
		err = s.stream.Write(rtmpAudioChunkStreamID, ts, &rtmpmsg.AudioMessage{Payload: bytes.NewReader(payload)})
	} else {
		err = s.stream.Write(rtmpVideoChunkStreamID, ts, &rtmpmsg.VideoMessage{Payload: bytes.NewReader(payload)})
	}
	if err != nil {
		return fmt.Errorf("rtmp write: %w", err)
	}
	return nil
}

func (s *RTMPSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
