//go:build !nospeaker

package audio

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// SpeakerSink plays PCM frames through the local audio device. Frames are
// decoded from s16le stereo into beep samples and fed through a buffered
// channel the speaker streamer drains in real time.
type SpeakerSink struct {
	samples chan [2]float64
}

// NewSpeakerSink initializes the speaker at the given sample rate.
func NewSpeakerSink(sampleRate int) (*SpeakerSink, error) {
	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(100*time.Millisecond)); err != nil {
		return nil, errors.Wrap(err, "initializing speaker")
	}

	s := &SpeakerSink{
		// 200ms of headroom absorbs frame pacing jitter.
		samples: make(chan [2]float64, sr.N(200*time.Millisecond)),
	}
	speaker.Play(beep.StreamerFunc(s.stream))
	return s, nil
}

// WriteFrame decodes one s16le stereo frame into the sample channel. Blocks
// when the speaker is behind, which paces the player to real time.
func (s *SpeakerSink) WriteFrame(frame []byte) error {
	for i := 0; i+3 < len(frame); i += 4 {
		s.samples <- [2]float64{
			sampleToFloat(frame[i : i+2]),
			sampleToFloat(frame[i+2 : i+4]),
		}
	}
	return nil
}

// Close silences the speaker.
func (s *SpeakerSink) Close() error {
	speaker.Clear()
	return nil
}

// stream feeds queued samples to the speaker, padding with silence when the
// player has nothing buffered. It never reports drained; gaps between
// tracks are silence, not stream end.
func (s *SpeakerSink) stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		select {
		case v := <-s.samples:
			samples[i] = v
		default:
			samples[i] = [2]float64{}
		}
	}
	return len(samples), true
}

func sampleToFloat(b []byte) float64 {
	return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
}
