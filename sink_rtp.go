package mediagrid

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// RTP defaults
const (
	DefaultMTU            = 1200
	DefaultVideoPayloadPT = 96
	DefaultAudioPayloadPT = 97
	rtpHeaderSize         = 12
	videoClockRate        = 90000
	defaultAudioClockRate = 48000
)

// RTPSinkConfig configures an RTP sink.
type RTPSinkConfig struct {
	MTU            int   // Maximum packet size including the RTP header (default: 1200)
	VideoPayloadPT uint8 // Payload type of video packets (default: 96)
	AudioPayloadPT uint8 // Payload type of audio packets (default: 97)
}

// RTPSink packetizes chunks into RTP and writes each packet to w. Video and
// audio use separate SSRCs and sequence spaces. L16 audio is sent in network
// byte order.
type RTPSink struct {
	config RTPSinkConfig
	w      io.Writer
	closer io.Closer

	mu     sync.Mutex
	video  rtpStream
	audio  rtpStream
	closed bool
	sent   uint64
}

type rtpStream struct {
	ssrc      uint32
	base      uint32
	sequencer rtp.Sequencer
}

func newRTPStream() rtpStream {
	return rtpStream{
		ssrc:      rand.Uint32(),
		base:      rand.Uint32(),
		sequencer: rtp.NewRandomSequencer(),
	}
}

var _ Sink = (*RTPSink)(nil)

// NewRTPSink creates a sink writing packets to w. If w is an io.Closer it is
// closed with the sink.
func NewRTPSink(w io.Writer, config RTPSinkConfig) *RTPSink {
	if config.MTU <= rtpHeaderSize+1 {
		config.MTU = DefaultMTU
	}
	if config.VideoPayloadPT == 0 {
		config.VideoPayloadPT = DefaultVideoPayloadPT
	}
	if config.AudioPayloadPT == 0 {
		config.AudioPayloadPT = DefaultAudioPayloadPT
	}
	s := &RTPSink{
		config: config,
		w:      w,
		video:  newRTPStream(),
		audio:  newRTPStream(),
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// DialRTPSink sends RTP over UDP to addr.
func DialRTPSink(ctx context.Context, addr string, config RTPSinkConfig) (*RTPSink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial rtp %s: %w", addr, err)
	}
	return NewRTPSink(conn, config), nil
}

// Packetize splits chunk into RTP packets without sending them.
func (s *RTPSink) Packetize(chunk Chunk) []*rtp.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetizeLocked(chunk)
}

func (s *RTPSink) packetizeLocked(chunk Chunk) []*rtp.Packet {
	if len(chunk.Data) == 0 {
		return nil
	}

	stream := &s.video
	pt := s.config.VideoPayloadPT
	clock := videoClockRate
	payload := chunk.Data
	if chunk.Kind == RTPCodecTypeAudio {
		stream = &s.audio
		pt = s.config.AudioPayloadPT
		clock = defaultAudioClockRate
		if chunk.SampleRate > 0 {
			clock = chunk.SampleRate
		}
		if chunk.MimeType == MimeTypeL16 {
			payload = swap16(payload)
		}
	}
	ts := stream.base + uint32(chunk.Timestamp*time.Duration(clock)/time.Second)

	// Audio fragments stay on sample boundaries.
	maxPayload := (s.config.MTU - rtpHeaderSize) &^ 1

	n := (len(payload) + maxPayload - 1) / maxPayload
	packets := make([]*rtp.Packet, 0, n)
	for off := 0; off < len(payload); off += maxPayload {
		end := min(off+maxPayload, len(payload))
		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         end == len(payload),
				PayloadType:    pt,
				SequenceNumber: stream.sequencer.NextSequenceNumber(),
				Timestamp:      ts,
				SSRC:           stream.ssrc,
			},
			Payload: payload[off:end],
		})
	}
	return packets
}

func (s *RTPSink) Write(_ context.Context, chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	for _, pkt := range s.packetizeLocked(chunk) {
		b, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("marshal rtp packet: %w", err)
		}
		if _, err := s.w.Write(b); err != nil {
			return fmt.Errorf("send rtp packet: %w", err)
		}
		s.sent++
	}
	return nil
}

// PacketsSent returns the number of packets written.
func (s *RTPSink) PacketsSent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *RTPSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// swap16 returns a copy of b with every 16-bit word byte-swapped.
func swap16(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i+1 < len(b); i += 2 {
		out[i], out[i+1] = b[i+1], b[i]
	}
	if len(b)%2 == 1 {
		out[len(b)-1] = b[len(b)-1]
	}
	return out
}
