package domain

import "time"

// Status is the coarse outcome of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// State tracks where a request is in the conversion pipeline.
//
//	Received -> WorkspaceReady -> Staged -> Executed -> OutputResolved -> Delivered
//
// Rejected, StagingFailed, ExecutionFailed and OutputMissing are terminal failures.
type State string

const (
	StateReceived       State = "received"
	StateWorkspaceReady State = "workspace_ready"
	StateStaged         State = "staged"
	StateExecuted       State = "executed"
	StateOutputResolved State = "output_resolved"
	StateDelivered      State = "delivered"

	StateRejected        State = "rejected"
	StateStagingFailed   State = "staging_failed"
	StateExecutionFailed State = "execution_failed"
	StateOutputMissing   State = "output_missing"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateDelivered, StateRejected, StateStagingFailed, StateExecutionFailed, StateOutputMissing:
		return true
	}
	return false
}

// Session represents one conversion request's isolated execution context.
// The session exclusively owns Workspace for its whole lifetime.
type Session struct {
	ID        string
	Workspace string

	// InputPath is the uploaded artifact, copied into Workspace.
	InputPath string

	// OutputDir is the conventionally named subdirectory the executable populates.
	OutputDir string

	// ArchivePath is where a multi-file result is packed. It sits beside the
	// workspace, never inside OutputDir.
	ArchivePath string

	StartedAt time.Time
	Status    Status
	State     State
}

// NewSession creates a pending session in the Received state.
func NewSession(id, workspace, outputDir, archivePath string, startedAt time.Time) *Session {
	return &Session{
		ID:          id,
		Workspace:   workspace,
		OutputDir:   outputDir,
		ArchivePath: archivePath,
		StartedAt:   startedAt,
		Status:      StatusPending,
		State:       StateReceived,
	}
}

// Advance moves the session to next. Terminal failure states also mark the
// session as failed; Delivered marks it as succeeded.
func (s *Session) Advance(next State) {
	s.State = next
	switch next {
	case StateDelivered:
		s.Status = StatusSucceeded
	case StateRejected, StateStagingFailed, StateExecutionFailed, StateOutputMissing:
		s.Status = StatusFailed
	}
}
