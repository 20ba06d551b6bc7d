// Package v1alpha1 holds the wire types of the audit job API.
package v1alpha1

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending        JobStatus = "pending"
	JobStatusRunning        JobStatus = "running"
	JobStatusAuditComplete  JobStatus = "audit_complete"
	JobStatusGenerating     JobStatus = "generating"
	JobStatusWaitingForUser JobStatus = "waiting_for_user"
	JobStatusReview         JobStatus = "review"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusFailed         JobStatus = "failed"
	JobStatusCancelled      JobStatus = "cancelled"
)

type Job struct {
	Id             uuid.UUID        `json:"id"`
	Type           string           `json:"type"`
	TargetUrl      string           `json:"targetUrl"`
	Status         JobStatus        `json:"status"`
	Progress       int              `json:"progress"`
	CurrentStep    string           `json:"currentStep,omitempty"`
	ErrorMessage   *string          `json:"errorMessage,omitempty"`
	Sections       []SectionOutcome `json:"sections,omitempty"`
	FailedSections []string         `json:"failedSections,omitempty"`
	StartedAt      *time.Time       `json:"startedAt,omitempty"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

type JobList []Job

type SectionOutcome struct {
	SectionId string          `json:"sectionId"`
	Success   bool            `json:"success"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type CreateJobRequest struct {
	Type      string   `json:"type" validate:"omitempty,job_type"`
	TargetUrl string   `json:"targetUrl" validate:"required,url"`
	Sections  []string `json:"sections" validate:"omitempty,unique,dive,section"`
}

type CancelJobRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=512"`
}

type RetryJobRequest struct {
	// FromPhase restarts the whole named phase instead of just the
	// failed sections. Empty means retry the failed subset.
	FromPhase string `json:"fromPhase" validate:"omitempty,retry_phase"`
}

type ProgressFrame struct {
	JobId      string     `json:"jobId"`
	Kind       string     `json:"kind"`
	Phase      string     `json:"phase,omitempty"`
	Percent    int        `json:"percent"`
	Message    string     `json:"message,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Activities []Activity `json:"activities,omitempty"`
}

type Activity struct {
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}
