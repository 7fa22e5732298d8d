package playback

import (
	"io"
	"time"
)

// FrameDuration is the wall time covered by one PCM frame. Progress is
// counted in served frames, independent of wall-clock drift from network
// jitter.
const FrameDuration = 20 * time.Millisecond

// FrameSize is the byte size of one frame of 48kHz 16-bit stereo PCM.
const FrameSize = 3840

// Stream is a playable audio stream cut into fixed frames.
type Stream interface {
	// ReadFrame returns the next frame, or io.EOF when exhausted.
	ReadFrame() ([]byte, error)
	Close() error
}

// Sink receives served frames; it is the single shared output channel.
type Sink interface {
	WriteFrame(frame []byte) error
}

// PCMStream adapts a raw s16le PCM byte stream into fixed frames.
type PCMStream struct {
	r   io.ReadCloser
	buf [FrameSize]byte
	eof bool
}

// NewPCMStream wraps a reader of raw PCM bytes.
func NewPCMStream(r io.ReadCloser) *PCMStream {
	return &PCMStream{r: r}
}

// ReadFrame returns the next full frame. A trailing partial frame is
// returned as-is; the following call returns io.EOF.
func (s *PCMStream) ReadFrame() ([]byte, error) {
	if s.eof {
		return nil, io.EOF
	}
	n, err := io.ReadFull(s.r, s.buf[:])
	switch {
	case err == io.EOF || n == 0:
		s.eof = true
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		s.eof = true
		return s.buf[:n], nil
	case err != nil:
		return nil, err
	}
	return s.buf[:], nil
}

// Close closes the underlying reader.
func (s *PCMStream) Close() error {
	return s.r.Close()
}
