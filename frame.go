// Core frame and sample types used across the mediagrid package.
package mediagrid

import (
	"encoding/binary"
	"image"
	"math"
)

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatRGBA32:
		return "RGBA32"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatRGBA32:
		return 1 // Packed
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM, little-endian
	AudioFormatF32                    // 32-bit float, little-endian
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// VideoFrame represents a raw video frame.
// The Data slices may be reused by the producing track after the next
// ReadFrame call; use Clone to keep a frame beyond that.
type VideoFrame struct {
	Data      [][]byte    // Plane data (1-3 planes depending on format)
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Capture timestamp in nanoseconds
	Duration  int64       // Frame duration in nanoseconds (optional)
}

// NewRGBAFrame wraps an RGBA image as a video frame without copying.
func NewRGBAFrame(img *image.RGBA, timestamp, duration int64) *VideoFrame {
	b := img.Bounds()
	return &VideoFrame{
		Data:      [][]byte{img.Pix},
		Stride:    []int{img.Stride},
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    PixelFormatRGBA32,
		Timestamp: timestamp,
		Duration:  duration,
	}
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// Image returns an image.Image view over the frame planes, or nil when the
// format is unknown or the planes are missing. The view shares memory with f.
func (f *VideoFrame) Image() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case PixelFormatRGBA32:
		if len(f.Data) < 1 || len(f.Stride) < 1 {
			return nil
		}
		return &image.RGBA{Pix: f.Data[0], Stride: f.Stride[0], Rect: rect}
	case PixelFormatI420:
		if len(f.Data) < 3 || len(f.Stride) < 3 {
			return nil
		}
		return &image.YCbCr{
			Y:              f.Data[0],
			Cb:             f.Data[1],
			Cr:             f.Data[2],
			YStride:        f.Stride[0],
			CStride:        f.Stride[1],
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           rect,
		}
	default:
		return nil
	}
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}

// AudioSamples represents raw interleaved audio samples.
type AudioSamples struct {
	Data        []byte      // Sample data
	SampleRate  int         // Sample rate (e.g., 48000)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples (per channel)
	Format      AudioFormat // Sample format
	Timestamp   int64       // Capture timestamp in nanoseconds
}

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := &AudioSamples{
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		SampleCount: s.SampleCount,
		Format:      s.Format,
		Timestamp:   s.Timestamp,
	}
	if s.Data != nil {
		clone.Data = make([]byte, len(s.Data))
		copy(clone.Data, s.Data)
	}
	return clone
}

// AppendFloat32 appends the samples to dst as interleaved floats in [-1, 1],
// up- or down-mixing to the requested channel count.
func (s *AudioSamples) AppendFloat32(dst []float32, channels int) []float32 {
	bps := s.Format.BytesPerSample()
	if bps == 0 || s.Channels <= 0 || channels <= 0 {
		return dst
	}
	frameBytes := bps * s.Channels
	frames := len(s.Data) / frameBytes
	if s.SampleCount > 0 && s.SampleCount < frames {
		frames = s.SampleCount
	}

	for i := 0; i < frames; i++ {
		base := i * frameBytes
		for c := 0; c < channels; c++ {
			src := c
			if src >= s.Channels {
				src = s.Channels - 1
			}
			off := base + src*bps
			var v float32
			switch s.Format {
			case AudioFormatS16:
				v = float32(int16(binary.LittleEndian.Uint16(s.Data[off:]))) / 32768
			case AudioFormatF32:
				v = math.Float32frombits(binary.LittleEndian.Uint32(s.Data[off:]))
			}
			dst = append(dst, v)
		}
	}
	return dst
}

// PutS16 encodes interleaved float samples as little-endian signed 16-bit
// PCM into dst, clamping to [-1, 1]. dst must hold 2*len(samples) bytes.
func PutS16(dst []byte, samples []float32) {
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v*32767)))
	}
}
