// Package watchdog enforces the maximum wall-clock duration of a job
// run. The orchestrator consults Exceeded at round boundaries; the
// background sweep catches runs whose process died mid-flight.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/auditkit/website-audit/internal/jobs"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/store"
	"github.com/auditkit/website-audit/internal/store/model"
)

const sweepInterval = time.Minute

type Watchdog struct {
	store       store.Store
	stream      *progress.Stream
	maxDuration time.Duration
}

func New(s store.Store, stream *progress.Stream, maxDuration time.Duration) *Watchdog {
	return &Watchdog{store: s, stream: stream, maxDuration: maxDuration}
}

// Exceeded reports whether the job has been running longer than the
// configured maximum.
func (w *Watchdog) Exceeded(job *model.Job) bool {
	if job.StartedAt == nil {
		return false
	}
	return time.Since(*job.StartedAt) > w.maxDuration
}

// TimeoutMessage is the error message written on jobs failed by the
// watchdog.
func (w *Watchdog) TimeoutMessage() string {
	return fmt.Sprintf("job exceeded maximum duration of %s", w.maxDuration)
}

// Run sweeps for over-deadline running jobs until ctx is cancelled. The
// ticker is jittered so multiple replicas do not stampede the table.
func (w *Watchdog) Run(ctx context.Context) {
	logger := zap.S().Named("watchdog")

	ticker := jitterbug.New(sweepInterval, &jitterbug.Norm{Stdev: 5 * time.Second})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watchdog stopped")
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				logger.Errorw("sweep failed", "error", err)
			}
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.maxDuration)
	stale, err := w.store.Job().List(ctx,
		store.NewJobQueryFilter().ByStatus(jobs.StatusRunning).StartedBefore(cutoff),
		store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime),
	)
	if err != nil {
		return err
	}

	logger := zap.S().Named("watchdog")
	for i := range stale {
		job := stale[i]
		if err := job.TransitionTo(jobs.StatusFailed); err != nil {
			// raced with the run finishing; leave it alone
			logger.Debugw("skipping job", "job_id", job.ID, "error", err)
			continue
		}

		msg := w.TimeoutMessage()
		job.ErrorMessage = &msg
		now := time.Now().UTC()
		job.CompletedAt = &now

		if _, err := w.store.Job().Update(ctx, job); err != nil {
			logger.Errorw("failed to mark job as timed out", "job_id", job.ID, "error", err)
			continue
		}

		w.stream.Publish(job.ID.String(), progress.Event{
			JobID:     job.ID.String(),
			Kind:      progress.KindError,
			Phase:     string(jobs.StatusFailed),
			Percent:   job.Progress,
			Message:   msg,
			Timestamp: now,
		})
		logger.Warnw("job timed out", "job_id", job.ID, "started_at", job.StartedAt)
	}

	return nil
}
