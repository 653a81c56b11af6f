package domain

import "time"

// Outcome classifies how an execution ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed" // non-zero exit
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCanceled  Outcome = "canceled"
)

// Command describes one launch of the external converter.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     Environment
	Timeout time.Duration
}

// Result is the outcome of one execution.
type Result struct {
	Outcome  Outcome       `json:"outcome"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`

	// Outputs is filled in once the output directory has been collected.
	Outputs []string `json:"outputs,omitempty"`
}

// Succeeded reports whether the executable exited with status zero.
func (r *Result) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeSucceeded
}
