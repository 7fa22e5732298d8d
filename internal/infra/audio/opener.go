// Package audio provides playback stream and sink implementations.
package audio

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/bramblewood/jukebox/internal/app/playback"
	"github.com/bramblewood/jukebox/internal/domain/track"
)

// ErrNoSource is returned for tracks without a media source handle.
var ErrNoSource = errors.New("track has no media source")

// SourceOpener opens a track's source and cuts it into PCM frames. Sources
// are expected to carry 48kHz 16-bit stereo PCM; transcoding other formats
// is out of scope here.
type SourceOpener struct{}

// OpenStream materializes the track's media stream.
func (SourceOpener) OpenStream(ctx context.Context, t *track.Track) (playback.Stream, error) {
	if t.Source == nil {
		return nil, errors.Wrapf(ErrNoSource, "track %q", t.Title)
	}
	rc, err := t.Source.Open(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "opening source of %q", t.Title)
	}
	return playback.NewPCMStream(rc), nil
}
