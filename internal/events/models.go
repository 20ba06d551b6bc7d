package events

import "time"

// JobEvent is published on every job lifecycle change so downstream
// dashboards stay in sync without polling.
type JobEvent struct {
	JobID          string    `json:"job_id"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	FailedSections []string  `json:"failed_sections,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SectionEvent reports a single section outcome within a run.
type SectionEvent struct {
	JobID     string    `json:"job_id"`
	SectionID string    `json:"section_id"`
	Success   bool      `json:"success"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
