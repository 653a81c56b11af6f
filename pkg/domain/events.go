package domain

import (
	"context"
	"time"
)

// SessionEvent is emitted at the edges of a session's lifecycle.
type SessionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Status    Status    `json:"status"`

	// Populated on end events.
	Duration    time.Duration `json:"duration,omitempty"`
	Outcome     Outcome       `json:"outcome,omitempty"`
	OutputFiles int           `json:"output_files,omitempty"`
	Err         error         `json:"-"`
}

// SweepEvent summarizes one stale-workspace sweep.
type SweepEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Removed   int       `json:"removed"`
	Kept      int       `json:"kept"`
	Failed    int       `json:"failed"`
}

// LifecycleHooks defines callbacks for service observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnSessionStart func(context.Context, *SessionEvent)
	OnSessionEnd   func(context.Context, *SessionEvent)
	OnSweep        func(context.Context, *SweepEvent)
}
