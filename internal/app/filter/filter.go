// Package filter provides the filter chain for track submission validation.
package filter

import (
	"context"

	"github.com/bramblewood/jukebox/internal/domain/track"
)

// Origin identifies how a track arrived at the chain.
type Origin int

const (
	// OriginUser is a track a listener submitted directly.
	OriginUser Origin = iota
	// OriginLoop is a track re-appended by looping after it finished.
	OriginLoop
)

// SubmitRequest represents a track submission to be validated.
type SubmitRequest struct {
	SubmitterID string
	Query       string
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duration_limit_exceeded", "duplicate_track"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for submission filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given origin.
	AppliesTo(origin Origin) bool
	// Check performs the filter check.
	Check(ctx context.Context, req SubmitRequest, t *track.Track) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
