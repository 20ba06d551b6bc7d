package orchestrator

import (
	"fmt"
	"sync"

	"github.com/auditkit/website-audit/internal/agents"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/store/model"
)

// runState is the single writer of all shared progress for one run.
// Concurrent section tasks funnel their outcomes through record, so the
// job's progress counter and the outcome map never race.
type runState struct {
	lock sync.Mutex

	job       *model.Job
	sections  []string
	outcomes  map[string]Outcome
	succeeded int
	lastStep  string

	activities *progress.ActivityLog
}

func newRunState(job *model.Job, sections []string, activityCap int) *runState {
	return &runState{
		job:        job,
		sections:   sections,
		outcomes:   make(map[string]Outcome, len(sections)),
		activities: progress.NewActivityLog(activityCap),
	}
}

// record folds one agent result into the run, bumping the section's
// attempt count, and returns the updated outcome.
func (s *runState) record(sectionID string, res agents.Result) Outcome {
	s.lock.Lock()
	defer s.lock.Unlock()

	outcome := s.outcomes[sectionID]
	outcome.SectionID = sectionID
	outcome.Attempts++
	outcome.Success = res.Success
	outcome.Error = res.Error
	if res.Success {
		outcome.Data = res.Data
		s.succeeded++
	}
	s.outcomes[sectionID] = outcome

	verb := "failed"
	if res.Success {
		verb = "succeeded"
	}
	s.lastStep = fmt.Sprintf("section %s %s (attempt %d)", sectionID, verb, outcome.Attempts)
	s.activities.Append(sectionID, s.lastStep)

	return outcome
}

// progress returns the monotonic percent for the audit phase plus the
// last step label. Succeeded sections only: a failed attempt never
// moves the bar, so retries cannot make it go backwards.
func (s *runState) progress() (int, string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(s.sections) == 0 {
		return auditPhaseShare, s.lastStep
	}
	return s.succeeded * auditPhaseShare / len(s.sections), s.lastStep
}

func (s *runState) failedSections() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return failedOf(s.sections, s.outcomes)
}

func (s *runState) result() *Result {
	s.lock.Lock()
	defer s.lock.Unlock()

	failed := failedOf(s.sections, s.outcomes)
	outcomes := make(map[string]Outcome, len(s.outcomes))
	for k, v := range s.outcomes {
		outcomes[k] = v
	}
	return &Result{
		Success:        len(failed) == 0 && len(s.outcomes) == len(s.sections),
		FailedSections: failed,
		Outcomes:       outcomes,
	}
}
