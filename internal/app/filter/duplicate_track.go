package filter

import (
	"context"

	"github.com/bramblewood/jukebox/internal/domain/track"
)

// QueueView is the queue lookup the duplicate filter needs.
type QueueView interface {
	// Contains reports whether a track with the given origin URL is
	// already queued.
	Contains(originURL string) bool
}

// DuplicateTrackFilter rejects tracks whose origin URL is already queued.
type DuplicateTrackFilter struct {
	queue QueueView
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter(queue QueueView) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{queue: queue}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks that are already in the queue"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// AppliesTo returns which origins this filter applies to. Looped tracks are
// exempt: re-appending the just-finished track is the whole point of looping.
func (f *DuplicateTrackFilter) AppliesTo(origin Origin) bool {
	return origin == OriginUser
}

// Check checks if the track is already queued.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req SubmitRequest, t *track.Track) Result {
	if t.OriginURL != "" && f.queue.Contains(t.OriginURL) {
		return Reject("duplicate_track")
	}
	return Accept()
}

// The queue view is injected at construction, so this filter has no
// parameterless factory and is added to the chain directly.
