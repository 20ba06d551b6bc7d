// Package orchestrator drives the section rounds of one audit run:
// every section goes through the bounded workqueue once, then failing
// sections are re-submitted, subset only, until they succeed or the
// retry budget is spent. Section failures are data in the result;
// only structural problems surface as errors.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/auditkit/website-audit/internal/agents"
	"github.com/auditkit/website-audit/internal/events"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/store"
	"github.com/auditkit/website-audit/internal/store/model"
	"github.com/auditkit/website-audit/internal/workqueue"
	"github.com/auditkit/website-audit/pkg/metrics"
)

var (
	ErrInvalidConcurrency = errors.New("orchestrator: max concurrency must be >= 1")
	ErrRunTimeout         = errors.New("orchestrator: run exceeded maximum duration")
)

// auditPhaseShare is the slice of the progress bar owned by the section
// rounds; report generation fills the rest.
const auditPhaseShare = 80

type Config struct {
	SkipPlanning     bool
	EnableEvaluation bool
	MaxRetries       int
	MaxConcurrency   int
	ActivityLogCap   int
}

// Outcome is the final per-section result of a run.
type Outcome struct {
	SectionID string
	Success   bool
	Attempts  int
	Error     string
	Data      json.RawMessage
}

// Result aggregates one run. Success is true iff no section is left
// failing after the retry rounds.
type Result struct {
	Success        bool
	FailedSections []string
	Outcomes       map[string]Outcome
}

// DurationGuard is consulted at round boundaries; the watchdog
// implements it.
type DurationGuard interface {
	Exceeded(job *model.Job) bool
	TimeoutMessage() string
}

type Orchestrator struct {
	store    store.Store
	stream   *progress.Stream
	producer *events.EventProducer
	agent    agents.SectionAgent
	guard    DurationGuard
	cfg      Config

	logger *zap.SugaredLogger
}

func New(s store.Store, stream *progress.Stream, producer *events.EventProducer, agent agents.SectionAgent, guard DurationGuard, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    s,
		stream:   stream,
		producer: producer,
		agent:    agent,
		guard:    guard,
		cfg:      cfg,
		logger:   zap.S().Named("orchestrator"),
	}
}

// Run executes the section rounds for job. The returned Result carries
// the per-section outcomes even when err is non-nil (cancellation or
// timeout), so callers can persist partial state.
//
// Run mutates nothing but the job's progress columns; status
// transitions stay with the caller.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job, sections []string) (*Result, error) {
	if o.cfg.MaxConcurrency < 1 {
		return nil, ErrInvalidConcurrency
	}

	state := newRunState(job, sections, o.cfg.ActivityLogCap)

	pending := sections
	for round := 0; len(pending) > 0; round++ {
		if round > 0 {
			for _, sectionID := range pending {
				metrics.IncreaseSectionRetries(sectionID)
			}
			o.logger.Infow("retrying failed sections", "job_id", job.ID, "round", round, "sections", pending)
		}

		_, err := workqueue.Run(ctx, pending, o.cfg.MaxConcurrency, func(taskCtx context.Context, sectionID string, _ int) struct{} {
			o.executeSection(taskCtx, job, state, sectionID)
			return struct{}{}
		})
		if err != nil {
			// only ErrInvalidLimit can land here and the guard above
			// already rejected it, but do not swallow it silently
			return state.result(), err
		}

		pending = state.failedSections()
		if len(pending) == 0 {
			break
		}

		// round boundary: cooperative cancellation and timeout checks.
		// In-flight agent calls of the finished round have settled.
		if err := ctx.Err(); err != nil {
			o.logger.Infow("run cancelled", "job_id", job.ID, "round", round)
			return state.result(), err
		}
		if o.guard != nil && o.guard.Exceeded(job) {
			o.logger.Warnw("run timed out", "job_id", job.ID, "round", round)
			return state.result(), ErrRunTimeout
		}

		if round == o.cfg.MaxRetries {
			break
		}
	}

	res := state.result()
	o.logger.Infow("run finished",
		"job_id", job.ID,
		"success", res.Success,
		"failed_sections", res.FailedSections,
	)
	return res, nil
}

// executeSection performs one agent call and records its outcome. Any
// panic or error from the agent becomes a failed outcome; nothing
// propagates out of the task.
func (o *Orchestrator) executeSection(ctx context.Context, job *model.Job, state *runState, sectionID string) {
	var res agents.Result

	func() {
		defer func() {
			if r := recover(); r != nil {
				res = agents.Result{Success: false, Error: fmt.Sprintf("agent panic: %v", r)}
			}
		}()

		var err error
		res, err = o.agent.Execute(ctx, job.TargetURL, sectionID, agents.Options{
			SkipPlanning:     o.cfg.SkipPlanning,
			EnableEvaluation: o.cfg.EnableEvaluation,
		})
		if err != nil {
			res = agents.Result{Success: false, Error: err.Error()}
		}
	}()

	outcome := state.record(sectionID, res)
	metrics.IncreaseSectionOutcome(sectionID, outcome.Success)
	o.publishSectionProgress(ctx, job, state, outcome)
}

// publishSectionProgress persists the progress counter and pushes a
// frame to subscribers. record() already serialized the state change;
// percent is monotonic because it counts succeeded sections only.
func (o *Orchestrator) publishSectionProgress(ctx context.Context, job *model.Job, state *runState, outcome Outcome) {
	percent, step := state.progress()

	if err := o.store.Job().UpdateProgress(ctx, job.ID, percent, step); err != nil {
		o.logger.Errorw("failed to persist progress", "job_id", job.ID, "error", err)
	}

	o.stream.Publish(job.ID.String(), progress.Event{
		JobID:      job.ID.String(),
		Kind:       progress.KindProgress,
		Phase:      "audit",
		Percent:    percent,
		Message:    step,
		Timestamp:  time.Now().UTC(),
		Activities: state.activities.Snapshot(),
	})

	o.emitSectionEvent(ctx, job, outcome)
}

func (o *Orchestrator) emitSectionEvent(ctx context.Context, job *model.Job, outcome Outcome) {
	if o.producer == nil {
		return
	}

	payload, err := json.Marshal(events.SectionEvent{
		JobID:     job.ID.String(),
		SectionID: outcome.SectionID,
		Success:   outcome.Success,
		Attempts:  outcome.Attempts,
		Error:     outcome.Error,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := o.producer.Write(ctx, events.SectionMessageKind, bytes.NewReader(payload)); err != nil {
		o.logger.Errorw("failed to emit section event", "job_id", job.ID, "error", err)
	}
}

// ModelOutcomes converts a result into the persisted representation,
// catalog order preserved.
func ModelOutcomes(res *Result, sections []string) []model.SectionOutcome {
	out := make([]model.SectionOutcome, 0, len(res.Outcomes))
	for _, sectionID := range sections {
		o, ok := res.Outcomes[sectionID]
		if !ok {
			continue
		}
		out = append(out, model.SectionOutcome{
			SectionID: o.SectionID,
			Success:   o.Success,
			Attempts:  o.Attempts,
			Error:     o.Error,
			Data:      o.Data,
		})
	}
	return out
}

// failedOf filters the catalog down to sections whose current outcome
// is a failure, preserving catalog order.
func failedOf(sections []string, outcomes map[string]Outcome) []string {
	return funk.FilterString(sections, func(sectionID string) bool {
		o, ok := outcomes[sectionID]
		return ok && !o.Success
	})
}
