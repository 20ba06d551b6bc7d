package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auditkit/website-audit/internal/agents"
	"github.com/auditkit/website-audit/internal/jobs"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/service/mappers"
	"github.com/auditkit/website-audit/internal/store"
	"github.com/auditkit/website-audit/internal/store/model"
)

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Status jobs.Status
	Type   jobs.Type
	Limit  int
}

// CreateJob persists a new pending job and kicks off its run in the
// background. The returned row reflects the pending state; progress is
// observed via GetJob or the progress stream.
func (s *AuditJobService) CreateJob(ctx context.Context, form mappers.JobCreateForm) (*model.Job, error) {
	for _, sectionID := range form.Sections {
		if !agents.KnownSection(sectionID) {
			return nil, NewErrInvalidSections(form.Sections)
		}
	}

	job, err := s.store.Job().Create(ctx, *form.ToJob())
	if err != nil {
		return nil, err
	}

	s.logger.Infow("job created", "job_id", job.ID, "type", job.Type, "target_url", job.TargetURL)
	s.emitJobEvent(ctx, job)

	s.startRun(*job, form.Sections)
	return job, nil
}

func (s *AuditJobService) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (s *AuditJobService) ListJobs(ctx context.Context, filter *JobFilter) (model.JobList, error) {
	storeFilter := store.NewJobQueryFilter()
	opts := store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime)

	if filter != nil {
		if filter.Status != "" {
			storeFilter = storeFilter.ByStatus(filter.Status)
		}
		if filter.Type != "" {
			storeFilter = storeFilter.ByType(filter.Type)
		}
		if filter.Limit > 0 {
			opts = opts.WithLimit(filter.Limit)
		}
	}

	return s.store.Job().List(ctx, storeFilter, opts)
}

// CancelJob stops a job. An in-flight run observes the cancellation at
// its next round boundary; the row is moved to cancelled right away.
func (s *AuditJobService) CancelJob(ctx context.Context, id uuid.UUID, reason string) (*model.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		return nil, NewErrJobAlreadyFinal(id, job.Status)
	}
	if !job.Status.CanTransitionTo(jobs.StatusCancelled) {
		return nil, NewErrJobNotCancellable(id, job.Status)
	}

	s.cancelRun(id)

	if err := job.TransitionTo(jobs.StatusCancelled); err != nil {
		return nil, err
	}

	message := "job cancelled"
	if reason != "" {
		message = fmt.Sprintf("job cancelled: %s", reason)
	}
	now := time.Now().UTC()
	job.ErrorMessage = &message
	job.CompletedAt = &now

	updated, err := s.store.Job().Update(ctx, *job)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("job cancelled", "job_id", id, "reason", reason)
	s.publishFrame(updated, progress.KindError, "", message)
	s.emitJobEvent(ctx, updated)

	return updated, nil
}

// RetryJob re-runs a failed job. By default only the sections that
// failed last time are re-executed and earlier successful outcomes are
// kept; fromPhase "audit" re-runs the full catalog from scratch.
func (s *AuditJobService) RetryJob(ctx context.Context, id uuid.UUID, fromPhase string) (*model.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status != jobs.StatusFailed {
		return nil, NewErrJobNotRetryable(id, job.Status)
	}

	sections, err := s.retrySections(job, fromPhase)
	if err != nil {
		return nil, err
	}

	if err := job.TransitionTo(jobs.StatusPending); err != nil {
		return nil, err
	}
	job.ErrorMessage = nil
	job.CompletedAt = nil

	updated, err := s.store.Job().Update(ctx, *job)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("job retried", "job_id", id, "from_phase", fromPhase, "sections", sections)
	s.emitJobEvent(ctx, updated)

	s.startRun(*updated, sections)
	return updated, nil
}

// retrySections picks the catalog of the retry run: the failed subset
// for a plain retry, the full recorded catalog for fromPhase=audit.
func (s *AuditJobService) retrySections(job *model.Job, fromPhase string) ([]string, error) {
	outcomes, err := job.SectionOutcomes()
	if err != nil {
		return nil, err
	}

	if fromPhase == "audit" || len(outcomes) == 0 {
		if len(outcomes) == 0 {
			return agents.DefaultCatalog, nil
		}
		all := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			all = append(all, o.SectionID)
		}
		return all, nil
	}

	failed, err := job.FailedSectionIDs()
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		// failed status without failed sections means the run itself
		// broke (timeout, generation error), re-run everything
		all := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			all = append(all, o.SectionID)
		}
		return all, nil
	}
	return failed, nil
}

// ApproveJob accepts a report sitting in review and completes the job.
func (s *AuditJobService) ApproveJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status != jobs.StatusReview {
		return nil, NewErrJobNotApprovable(id, job.Status)
	}

	if err := job.TransitionTo(jobs.StatusCompleted); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job.Progress = 100
	job.CurrentStep = "report approved"
	job.CompletedAt = &now

	updated, err := s.store.Job().Update(ctx, *job)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("job approved", "job_id", id)
	s.publishFrame(updated, progress.KindComplete, "review", "report approved")
	s.emitJobEvent(ctx, updated)
	s.observeDuration(updated)

	return updated, nil
}

// ResumeJob releases a job parked at the planning gate and carries it
// through report generation in the background.
func (s *AuditJobService) ResumeJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status != jobs.StatusWaitingForUser {
		return nil, NewErrJobNotResumable(id, job.Status)
	}

	if err := job.TransitionTo(jobs.StatusRunning); err != nil {
		return nil, err
	}

	updated, err := s.store.Job().Update(ctx, *job)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("job resumed", "job_id", id)
	s.emitJobEvent(ctx, updated)

	runCtx, release := s.registerRun(updated.ID)
	go func() {
		defer release()
		s.resumeAfterGate(runCtx, *updated)
	}()

	return updated, nil
}

// SubscribeProgress attaches a live handle to the job's event flow and
// returns the current persisted row for the initial snapshot.
func (s *AuditJobService) SubscribeProgress(ctx context.Context, id uuid.UUID) (*model.Job, *progress.Subscription, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return job, s.stream.Subscribe(id.String()), nil
}

func (s *AuditJobService) UnsubscribeProgress(sub *progress.Subscription) {
	s.stream.Unsubscribe(sub)
}
