// Package track provides the Track domain entity.
package track

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Source is a handle that resolves to playable media bytes. Handles are
// produced by the track resolver; opening is deferred until the track
// actually starts playing.
type Source interface {
	// Open materializes the media stream.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Location returns the local file path or remote URL backing the source.
	Location() string
	// Local reports whether the media has been preloaded to local disk.
	Local() bool
}

// Submitter identifies the user who queued a track.
type Submitter struct {
	ID          string // Stable user ID from the chat platform
	DisplayName string // Display name
}

// Track represents a single media item accepted into the queue.
// Immutable once created, except for the lazily opened source stream.
// Tracks are identified by their opaque ID, never by pointer identity.
type Track struct {
	ID              string    // Opaque UUID, used as the removal key
	Title           string    // Track title
	DurationSeconds int       // Length in seconds, non-negative
	OriginURL       string    // URL the track was resolved from
	ThumbnailURL    string    // Thumbnail image URL (optional)
	ExtractorName   string    // Resolver extractor that produced the entry
	Submitter       Submitter // Who queued it
	Source          Source    // Playable media handle
	AddedAt         time.Time // Time accepted into the queue
}

// New creates a track with a fresh opaque ID.
func New(title string, durationSeconds int, originURL string, submitter Submitter, source Source) *Track {
	return &Track{
		ID:              uuid.New().String(),
		Title:           title,
		DurationSeconds: durationSeconds,
		OriginURL:       originURL,
		Submitter:       submitter,
		Source:          source,
		AddedAt:         time.Now(),
	}
}

// Duration returns the track length as a time.Duration.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.DurationSeconds) * time.Second
}
