// Package stats records per-user jukebox usage counters.
package stats

// UserStats is the accumulated usage of one user.
type UserStats struct {
	UserID           string
	TracksAdded      int
	TracksListened   int
	DurationListened int    // Total seconds credited
	RecentMonth      string // YYYY-MM of the last update
	MonthlyListened  int    // Seconds credited within RecentMonth
}

// Sink receives usage records. Recording is fire-and-forget from the
// playback path; implementations log failures instead of returning them.
type Sink interface {
	// RecordTrackAdded counts one accepted submission for the user.
	RecordTrackAdded(userID string)
	// RecordListened credits listened seconds to the user.
	RecordListened(userID string, seconds int)
	// Lookup returns the user's stats, or nil if the user has none.
	Lookup(userID string) (*UserStats, error)
	Close() error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordTrackAdded(string)           {}
func (NopSink) RecordListened(string, int)        {}
func (NopSink) Lookup(string) (*UserStats, error) { return nil, nil }
func (NopSink) Close() error                      { return nil }
