// Package resolver turns submitted queries into playable track entries.
package resolver

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/bramblewood/jukebox/internal/domain/track"
)

var (
	// ErrNoResults is returned when a query resolves to nothing playable.
	ErrNoResults = errors.New("no playable results")
	// ErrUnsupportedQuery is returned for queries the resolver cannot handle.
	ErrUnsupportedQuery = errors.New("unsupported query")
)

// Entry is one resolved, playable item.
type Entry struct {
	Title           string
	DurationSeconds int
	OriginURL       string
	ThumbnailURL    string
	ExtractorName   string
	Source          track.Source
}

// Result is the outcome of resolving one query. A single video yields one
// entry; a playlist yields one entry per resolvable item, with unresolvable
// items counted rather than failing the whole submission.
type Result struct {
	Entries       []Entry
	PlaylistTitle string // Set when the query was a playlist
	FailedCount   int    // Playlist items that could not be resolved
}

// Candidate is a metadata-only match offered for user selection. It carries
// no source; the chosen candidate's OriginURL is resolved again to play.
type Candidate struct {
	Title           string
	DurationSeconds int
	OriginURL       string
	ThumbnailURL    string
}

// Resolver resolves submitted queries to playable entries.
type Resolver interface {
	// Resolve resolves a single video or playlist URL.
	Resolve(ctx context.Context, query string) (*Result, error)
	// Candidates lists up to limit metadata-only matches for an ambiguous
	// query, for the submitter to pick from.
	Candidates(ctx context.Context, query string, limit int) ([]Candidate, error)
}
