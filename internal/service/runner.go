package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/auditkit/website-audit/internal/events"
	"github.com/auditkit/website-audit/internal/jobs"
	"github.com/auditkit/website-audit/internal/orchestrator"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/store/model"
	"github.com/auditkit/website-audit/pkg/metrics"
)

// startRun launches the background lifecycle of one job. The run
// context is owned by the service so CancelJob can reach it.
func (s *AuditJobService) startRun(job model.Job, sections []string) {
	ctx, release := s.registerRun(job.ID)
	go func() {
		defer release()
		s.runJob(ctx, job, sections)
	}()
}

func (s *AuditJobService) runJob(ctx context.Context, job model.Job, sections []string) {
	if err := job.TransitionTo(jobs.StatusRunning); err != nil {
		s.logger.Errorw("cannot start run", "job_id", job.ID, "error", err)
		return
	}
	now := time.Now().UTC()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.CurrentStep = "audit started"

	updated, err := s.store.Job().Update(ctx, job)
	if err != nil {
		s.logger.Errorw("failed to persist running status", "job_id", job.ID, "error", err)
		return
	}
	job = *updated
	s.publishFrame(&job, progress.KindProgress, "audit", "audit started")
	s.emitJobEvent(ctx, &job)

	res, runErr := s.orch.Run(ctx, &job, sections)

	// the run context may be cancelled by now; persistence uses its own
	persistCtx := context.Background()

	fresh, err := s.store.Job().Get(persistCtx, job.ID)
	if err != nil {
		s.logger.Errorw("failed to reload job after run", "job_id", job.ID, "error", err)
		return
	}

	if res != nil {
		merged, mergeErr := s.mergeOutcomes(fresh, orchestrator.ModelOutcomes(res, sections))
		if mergeErr != nil {
			s.logger.Errorw("failed to merge section outcomes", "job_id", job.ID, "error", mergeErr)
		} else if setErr := fresh.SetSectionOutcomes(merged); setErr != nil {
			s.logger.Errorw("failed to encode section outcomes", "job_id", job.ID, "error", setErr)
		}
	}
	job = *fresh

	// a concurrent cancel owns the status row; keep the outcomes, drop
	// the rest of the pipeline
	if job.Status == jobs.StatusCancelled || errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		if _, err := s.store.Job().Update(persistCtx, job); err != nil {
			s.logger.Errorw("failed to persist outcomes of cancelled run", "job_id", job.ID, "error", err)
		}
		return
	}

	switch {
	case errors.Is(runErr, orchestrator.ErrRunTimeout):
		s.failJob(persistCtx, job, "job exceeded maximum duration")
		return
	case runErr != nil:
		s.failJob(persistCtx, job, runErr.Error())
		return
	}

	if !res.Success {
		s.failJob(persistCtx, job, fmt.Sprintf("%d of %d sections failed after retries: %v",
			len(res.FailedSections), len(sections), res.FailedSections))
		return
	}

	if err := job.TransitionTo(jobs.StatusAuditComplete); err != nil {
		s.logger.Errorw("cannot finish audit phase", "job_id", job.ID, "error", err)
		return
	}
	job.CurrentStep = "audit complete"
	updated, err = s.store.Job().Update(persistCtx, job)
	if err != nil {
		s.logger.Errorw("failed to persist audit completion", "job_id", job.ID, "error", err)
		return
	}
	job = *updated
	s.publishFrame(&job, progress.KindProgress, "audit", "audit complete")
	s.emitJobEvent(persistCtx, &job)

	// planning gate: the run parks here until the user resumes it
	if !s.cfg.Orchestrator.SkipPlanning {
		if err := job.TransitionTo(jobs.StatusWaitingForUser); err != nil {
			s.logger.Errorw("cannot park job for user input", "job_id", job.ID, "error", err)
			return
		}
		job.CurrentStep = "waiting for report plan approval"
		updated, err = s.store.Job().Update(persistCtx, job)
		if err != nil {
			s.logger.Errorw("failed to park job", "job_id", job.ID, "error", err)
			return
		}
		job = *updated
		s.publishFrame(&job, progress.KindProgress, "planning", "waiting for report plan approval")
		s.emitJobEvent(persistCtx, &job)
		return
	}

	s.generateReport(ctx, job)
}

// resumeAfterGate carries a resumed job from running back through the
// audit-complete edge and into report generation. The audit itself is
// not re-run.
func (s *AuditJobService) resumeAfterGate(ctx context.Context, job model.Job) {
	if err := job.TransitionTo(jobs.StatusAuditComplete); err != nil {
		s.logger.Errorw("cannot resume job", "job_id", job.ID, "error", err)
		return
	}
	updated, err := s.store.Job().Update(context.Background(), job)
	if err != nil {
		s.logger.Errorw("failed to persist resume", "job_id", job.ID, "error", err)
		return
	}
	s.generateReport(ctx, *updated)
}

// generateReport runs the generation phase: assemble the report from
// the persisted section outcomes and finish the job, or hand it to
// review when evaluation is enabled.
func (s *AuditJobService) generateReport(ctx context.Context, job model.Job) {
	persistCtx := context.Background()

	if err := job.TransitionTo(jobs.StatusGenerating); err != nil {
		s.logger.Errorw("cannot enter generation phase", "job_id", job.ID, "error", err)
		return
	}
	job.Progress = 90
	job.CurrentStep = "generating report"
	updated, err := s.store.Job().Update(persistCtx, job)
	if err != nil {
		s.logger.Errorw("failed to persist generation phase", "job_id", job.ID, "error", err)
		return
	}
	job = *updated
	s.publishFrame(&job, progress.KindProgress, "generating", "generating report")
	s.emitJobEvent(persistCtx, &job)

	// phase boundary cancellation check
	if ctx.Err() != nil {
		return
	}

	report, err := buildReport(&job)
	if err != nil {
		s.failJob(persistCtx, job, fmt.Sprintf("report generation failed: %v", err))
		return
	}
	job.Report = report

	if s.cfg.Orchestrator.EnableEvaluation {
		if err := job.TransitionTo(jobs.StatusReview); err != nil {
			s.logger.Errorw("cannot enter review phase", "job_id", job.ID, "error", err)
			return
		}
		job.Progress = 95
		job.CurrentStep = "report ready for review"
		updated, err = s.store.Job().Update(persistCtx, job)
		if err != nil {
			s.logger.Errorw("failed to persist review phase", "job_id", job.ID, "error", err)
			return
		}
		job = *updated
		s.publishFrame(&job, progress.KindProgress, "review", "report ready for review")
		s.emitJobEvent(persistCtx, &job)
		return
	}

	s.completeJob(persistCtx, job)
}

func (s *AuditJobService) completeJob(ctx context.Context, job model.Job) {
	if err := job.TransitionTo(jobs.StatusCompleted); err != nil {
		s.logger.Errorw("cannot complete job", "job_id", job.ID, "error", err)
		return
	}
	now := time.Now().UTC()
	job.Progress = 100
	job.CurrentStep = "report ready"
	job.CompletedAt = &now

	updated, err := s.store.Job().Update(ctx, job)
	if err != nil {
		s.logger.Errorw("failed to persist completion", "job_id", job.ID, "error", err)
		return
	}

	s.logger.Infow("job completed", "job_id", job.ID)
	s.publishFrame(updated, progress.KindComplete, "generating", "report ready")
	s.emitJobEvent(ctx, updated)
	s.observeDuration(updated)
}

func (s *AuditJobService) failJob(ctx context.Context, job model.Job, message string) {
	if err := job.TransitionTo(jobs.StatusFailed); err != nil {
		s.logger.Errorw("cannot fail job", "job_id", job.ID, "status", job.Status, "error", err)
		return
	}
	now := time.Now().UTC()
	job.ErrorMessage = &message
	job.CompletedAt = &now

	updated, err := s.store.Job().Update(ctx, job)
	if err != nil {
		s.logger.Errorw("failed to persist failure", "job_id", job.ID, "error", err)
		return
	}

	s.logger.Warnw("job failed", "job_id", job.ID, "reason", message)
	s.publishFrame(updated, progress.KindError, "", message)
	s.emitJobEvent(ctx, updated)
	s.observeDuration(updated)
}

// mergeOutcomes folds the outcomes of the latest run over the persisted
// ones, so a retry of the failed subset keeps earlier successes.
func (s *AuditJobService) mergeOutcomes(job *model.Job, latest []model.SectionOutcome) ([]model.SectionOutcome, error) {
	prior, err := job.SectionOutcomes()
	if err != nil {
		return nil, err
	}
	if len(prior) == 0 {
		return latest, nil
	}

	byID := make(map[string]model.SectionOutcome, len(latest))
	for _, o := range latest {
		byID[o.SectionID] = o
	}

	merged := make([]model.SectionOutcome, 0, len(prior)+len(latest))
	for _, o := range prior {
		if replacement, ok := byID[o.SectionID]; ok {
			merged = append(merged, replacement)
			delete(byID, o.SectionID)
			continue
		}
		merged = append(merged, o)
	}
	// sections not seen before go at the end, run order preserved
	for _, o := range latest {
		if _, pending := byID[o.SectionID]; pending {
			merged = append(merged, o)
		}
	}
	return merged, nil
}

func (s *AuditJobService) publishFrame(job *model.Job, kind progress.EventKind, phase string, message string) {
	s.stream.Publish(job.ID.String(), progress.Event{
		JobID:     job.ID.String(),
		Kind:      kind,
		Phase:     phase,
		Percent:   job.Progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (s *AuditJobService) emitJobEvent(ctx context.Context, job *model.Job) {
	if s.producer == nil {
		return
	}

	ev := events.JobEvent{
		JobID:     job.ID.String(),
		Type:      string(job.Type),
		Status:    string(job.Status),
		Progress:  job.Progress,
		Timestamp: time.Now().UTC(),
	}
	if job.ErrorMessage != nil {
		ev.ErrorMessage = *job.ErrorMessage
	}
	if failed, err := job.FailedSectionIDs(); err == nil {
		ev.FailedSections = failed
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.producer.Write(ctx, events.JobMessageKind, bytes.NewReader(payload)); err != nil {
		s.logger.Errorw("failed to emit job event", "job_id", job.ID, "error", err)
	}
}

func (s *AuditJobService) observeDuration(job *model.Job) {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return
	}
	metrics.ObserveAuditDuration(string(job.Type), job.CompletedAt.Sub(*job.StartedAt))
}

// RefreshJobStatusMetrics recomputes the per-status job gauge. Called
// periodically from the metrics loop.
func (s *AuditJobService) RefreshJobStatusMetrics(ctx context.Context) error {
	jobList, err := s.store.Job().List(ctx, nil, nil)
	if err != nil {
		return err
	}

	counts := map[jobs.Status]int{
		jobs.StatusPending:        0,
		jobs.StatusRunning:        0,
		jobs.StatusAuditComplete:  0,
		jobs.StatusGenerating:     0,
		jobs.StatusWaitingForUser: 0,
		jobs.StatusReview:         0,
		jobs.StatusCompleted:      0,
		jobs.StatusFailed:         0,
		jobs.StatusCancelled:      0,
	}
	for _, job := range jobList {
		counts[job.Status]++
	}
	for status, count := range counts {
		metrics.SetJobStatusCount(string(status), count)
	}
	return nil
}
