package progress

import "time"

type EventKind string

const (
	KindProgress EventKind = "progress"
	KindComplete EventKind = "complete"
	KindError    EventKind = "error"
)

// Event is one frame of push-delivered status information about a job
// run. Events are transient: the persisted job row remains the source
// of truth, delivery here is best effort.
type Event struct {
	JobID      string     `json:"job_id"`
	Kind       EventKind  `json:"event_type"`
	Phase      string     `json:"phase"`
	Percent    int        `json:"percent"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Activities []Activity `json:"activities,omitempty"`
}

// Activity is one line of per-agent activity attached to a progress
// payload.
type Activity struct {
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
