// Package results holds the outcome of a scenario run.
package results

import (
	"time"
)

// Status is the verdict of one scenario.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Outcome records one scenario execution.
type Outcome struct {
	Scenario string        `json:"scenario"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	// Error is the failure message; empty when the scenario passed.
	Error string `json:"error,omitempty"`
	// Screenshot is the path of the capture taken on failure, if any.
	Screenshot string `json:"screenshot,omitempty"`
	// Degraded counts interactions that only succeeded through a scripted fallback.
	Degraded int64 `json:"degraded"`
}

// Passed reports whether the scenario passed.
func (o Outcome) Passed() bool { return o.Status == StatusPassed }

// Run is one invocation of the runner over a set of scenarios.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Failed reports whether any scenario failed.
func (r *Run) Failed() bool {
	for _, o := range r.Outcomes {
		if !o.Passed() {
			return true
		}
	}
	return false
}

// Duration is the wall clock time of the run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
