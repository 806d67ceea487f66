package mediagrid

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Sink receives encoded chunks. The recorder never calls Write concurrently
// and never calls Close while a Write is outstanding.
type Sink interface {
	Write(ctx context.Context, chunk Chunk) error
	Close(ctx context.Context) error
}

// chunkFileMagic starts every chunk file.
var chunkFileMagic = [8]byte{'M', 'G', 'C', 'H', 'U', 'N', 'K', 1}

const (
	chunkFlagKeyframe = 1 << 0
	maxChunkSize      = 64 << 20
)

// FileSink writes chunks to a file as length-prefixed records. Use
// ChunkReader to read them back.
//
// Record layout, big endian:
//
//	kind u8 | flags u8 | timestamp i64 ns | sample rate u32 | channels u8 |
//	mime length u8 | mime | data length u32 | data
type FileSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	closed bool
	n      int64
}

var _ Sink = (*FileSink)(nil)

// CreateFileSink creates or truncates path.
func CreateFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create chunk file: %w", err)
	}
	s := &FileSink{f: f, w: bufio.NewWriter(f)}
	if _, err := s.w.Write(chunkFileMagic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("write chunk file header: %w", err)
	}
	return s, nil
}

func (s *FileSink) Write(_ context.Context, chunk Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	n, err := writeChunkRecord(s.w, chunk)
	s.n += int64(n)
	return err
}

// Size returns the number of bytes written so far.
func (s *FileSink) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n + int64(len(chunkFileMagic))
}

func (s *FileSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func writeChunkRecord(w io.Writer, c Chunk) (int, error) {
	if len(c.MimeType) > 255 {
		return 0, fmt.Errorf("mime type too long: %d bytes", len(c.MimeType))
	}
	if len(c.Data) > maxChunkSize {
		return 0, fmt.Errorf("chunk too large: %d bytes", len(c.Data))
	}
	var flags byte
	if c.Keyframe {
		flags |= chunkFlagKeyframe
	}

	hdr := make([]byte, 0, 20+len(c.MimeType))
	hdr = append(hdr, byte(c.Kind), flags)
	hdr = binary.BigEndian.AppendUint64(hdr, uint64(c.Timestamp))
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(c.SampleRate))
	hdr = append(hdr, byte(c.Channels), byte(len(c.MimeType)))
	hdr = append(hdr, c.MimeType...)
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(len(c.Data)))

	n, err := w.Write(hdr)
	if err != nil {
		return n, err
	}
	m, err := w.Write(c.Data)
	return n + m, err
}

// ChunkReader reads chunks written by FileSink.
type ChunkReader struct {
	r      *bufio.Reader
	header bool
}

// NewChunkReader returns a reader over r.
func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{r: bufio.NewReader(r)}
}

// Next returns the next chunk, or io.EOF after the last one.
func (cr *ChunkReader) Next() (Chunk, error) {
	if !cr.header {
		var magic [8]byte
		if _, err := io.ReadFull(cr.r, magic[:]); err != nil {
			return Chunk{}, fmt.Errorf("read chunk file header: %w", err)
		}
		if magic != chunkFileMagic {
			return Chunk{}, errors.New("not a chunk file")
		}
		cr.header = true
	}

	var fixed [16]byte
	if _, err := io.ReadFull(cr.r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("read chunk record: %w", err)
	}
	c := Chunk{
		Kind:       RTPCodecType(fixed[0]),
		Keyframe:   fixed[1]&chunkFlagKeyframe != 0,
		Timestamp:  time.Duration(binary.BigEndian.Uint64(fixed[2:10])),
		SampleRate: int(binary.BigEndian.Uint32(fixed[10:14])),
		Channels:   int(fixed[14]),
	}

	mime := make([]byte, fixed[15])
	if _, err := io.ReadFull(cr.r, mime); err != nil {
		return Chunk{}, fmt.Errorf("read chunk mime type: %w", err)
	}
	c.MimeType = string(mime)

	var size [4]byte
	if _, err := io.ReadFull(cr.r, size[:]); err != nil {
		return Chunk{}, fmt.Errorf("read chunk size: %w", err)
	}
	n := binary.BigEndian.Uint32(size[:])
	if n > maxChunkSize {
		return Chunk{}, fmt.Errorf("chunk too large: %d bytes", n)
	}
	c.Data = make([]byte, n)
	if _, err := io.ReadFull(cr.r, c.Data); err != nil {
		return Chunk{}, fmt.Errorf("read chunk data: %w", err)
	}
	return c, nil
}
