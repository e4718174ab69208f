package model

import "time"

// DefaultRecordingName is assigned when a recording is created implicitly
const DefaultRecordingName = "Unnamed project"

// RecordingState is the per-recording continuity state
type RecordingState struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	LastChangedAt time.Time `json:"last_changed_at"`
	NextSegment   int       `json:"next_segment"` // Lowest segment index not yet consumed in order
	Version       int64     `json:"version"`      // Bumped on every counter advance
	Fault         string    `json:"fault,omitempty"`
}
