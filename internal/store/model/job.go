package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/auditkit/website-audit/internal/jobs"
)

// Job is the persisted record of one orchestration run. The engine owns
// it for the duration of a run; between runs it lives here.
type Job struct {
	gorm.Model
	ID              uuid.UUID   `gorm:"primaryKey;"`
	Type            jobs.Type   `gorm:"type:VARCHAR(32);not null"`
	Status          jobs.Status `gorm:"type:VARCHAR(32);not null;index"`
	TargetURL       string
	Progress        int
	CurrentStep     string
	ErrorMessage    *string
	Sections        []byte `gorm:"type:jsonb"`
	FailedSections  []byte `gorm:"type:jsonb"`
	Report          []byte `gorm:"type:jsonb"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	StatusUpdatedAt time.Time
}

type JobList []Job

// SectionOutcome is the persisted per-section result of a run.
type SectionOutcome struct {
	SectionID string          `json:"section_id"`
	Success   bool            `json:"success"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewJob(jobType jobs.Type, targetURL string) *Job {
	return &Job{
		ID:              uuid.New(),
		Type:            jobType,
		Status:          jobs.StatusPending,
		TargetURL:       targetURL,
		StatusUpdatedAt: time.Now().UTC(),
	}
}

func NewJobFromID(id uuid.UUID) *Job {
	return &Job{ID: id}
}

// TransitionTo applies the status transition table to the job. Only the
// status field and the transition timestamp are touched; persisting and
// event emission stay with the caller.
func (j *Job) TransitionTo(target jobs.Status) error {
	next, err := jobs.Transition(j.Status, target)
	if err != nil {
		return err
	}
	j.Status = next
	j.StatusUpdatedAt = time.Now().UTC()
	return nil
}

// SetSectionOutcomes marshals outcomes and the derived failed-section
// list into the job's JSON columns.
func (j *Job) SetSectionOutcomes(outcomes []SectionOutcome) error {
	data, err := json.Marshal(outcomes)
	if err != nil {
		return err
	}

	failed := make([]string, 0)
	for _, o := range outcomes {
		if !o.Success {
			failed = append(failed, o.SectionID)
		}
	}
	failedData, err := json.Marshal(failed)
	if err != nil {
		return err
	}

	j.Sections = data
	j.FailedSections = failedData
	return nil
}

func (j *Job) SectionOutcomes() ([]SectionOutcome, error) {
	if len(j.Sections) == 0 {
		return nil, nil
	}
	var outcomes []SectionOutcome
	if err := json.Unmarshal(j.Sections, &outcomes); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (j *Job) FailedSectionIDs() ([]string, error) {
	if len(j.FailedSections) == 0 {
		return nil, nil
	}
	var failed []string
	if err := json.Unmarshal(j.FailedSections, &failed); err != nil {
		return nil, err
	}
	return failed, nil
}

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
