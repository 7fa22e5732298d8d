//go:build nospeaker

package audio

import "github.com/cockroachdb/errors"

// SpeakerSink is unavailable in nospeaker builds; the beep speaker backend
// needs cgo audio headers.
type SpeakerSink struct{}

func NewSpeakerSink(sampleRate int) (*SpeakerSink, error) {
	return nil, errors.New("speaker output not compiled in, rebuild without the nospeaker tag")
}

func (s *SpeakerSink) WriteFrame(frame []byte) error {
	return errors.New("speaker output not compiled in")
}

func (s *SpeakerSink) Close() error { return nil }
