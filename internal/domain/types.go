package domain

import "fmt"

// Status represents the lifecycle state of a research job
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusInterrupted Status = "interrupted"
)

// ParseStatus maps the remote agent's status vocabulary onto Status.
// Unrecognized values default to running, since the remote API may grow
// new transient states.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(s)
	default:
		return StatusRunning
	}
}

// Transition validates a status change and returns the new status.
// The machine is pending -> running -> {completed, failed, cancelled,
// interrupted}; interrupted re-enters running on resume.
func Transition(from, to Status) (Status, error) {
	if from == to {
		return to, nil
	}
	switch from {
	case StatusPending:
		if to == StatusRunning || to.IsTerminal() {
			return to, nil
		}
	case StatusRunning:
		if to.IsTerminal() {
			return to, nil
		}
	case StatusInterrupted:
		// Resume re-polls the same job
		if to == StatusRunning || to.IsTerminal() {
			return to, nil
		}
	case StatusFailed, StatusCancelled:
		// Terminal for the run; a killed process may still re-poll
		if to == StatusRunning {
			return to, nil
		}
	}
	return from, fmt.Errorf("invalid status transition %s -> %s", from, to)
}

// IsTerminal reports whether the status ends the current invocation.
// Interrupted is terminal for this invocation only; the run can be
// re-entered via resume.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusInterrupted:
		return true
	}
	return false
}
