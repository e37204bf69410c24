package remotejob

import "strings"

// State is the lifecycle state of a remote extraction job.
type State int

const (
	StateSubmitted State = iota
	StateProcessing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further status checks are needed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Job is the transient handle for one submission.
type Job struct {
	ID     string
	State  State
	Status string // raw JobStatus reported by the service
	Polls  int
}

// advance moves the job to the state implied by a raw JobStatus.
// "Processing" keeps polling, "Success" is done, anything else is failed.
func (j *Job) advance(status string) {
	j.Status = status
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "processing", "incomplete":
		j.State = StateProcessing
	case "success":
		j.State = StateDone
	default:
		j.State = StateFailed
	}
}
