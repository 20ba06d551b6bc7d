package mappers

import (
	apiv1 "github.com/auditkit/website-audit/api/v1alpha1"
	"github.com/auditkit/website-audit/internal/jobs"
	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/store/model"
)

func JobToApi(job model.Job) apiv1.Job {
	out := apiv1.Job{
		Id:          job.ID,
		Type:        string(job.Type),
		TargetUrl:   job.TargetURL,
		Status:      apiv1.StringToJobStatus(string(job.Status)),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}

	if job.ErrorMessage != nil {
		out.ErrorMessage = job.ErrorMessage
	}

	// json columns decode best effort, a corrupted column must not make
	// the whole job unreadable
	if outcomes, err := job.SectionOutcomes(); err == nil {
		for _, o := range outcomes {
			out.Sections = append(out.Sections, apiv1.SectionOutcome{
				SectionId: o.SectionID,
				Success:   o.Success,
				Attempts:  o.Attempts,
				Error:     o.Error,
				Data:      o.Data,
			})
		}
	}
	if failed, err := job.FailedSectionIDs(); err == nil {
		out.FailedSections = failed
	}

	return out
}

func JobListToApi(jobList model.JobList) apiv1.JobList {
	out := make(apiv1.JobList, 0, len(jobList))
	for _, job := range jobList {
		out = append(out, JobToApi(job))
	}
	return out
}

func ProgressFrameToApi(ev progress.Event) apiv1.ProgressFrame {
	frame := apiv1.ProgressFrame{
		JobId:     ev.JobID,
		Kind:      string(ev.Kind),
		Phase:     ev.Phase,
		Percent:   ev.Percent,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
	}
	for _, a := range ev.Activities {
		frame.Activities = append(frame.Activities, apiv1.Activity{
			Agent:     a.Agent,
			Message:   a.Message,
			Timestamp: a.Timestamp,
		})
	}
	return frame
}

// JobToProgressFrame renders the persisted row as a frame, used as the
// snapshot sent to a subscriber before live events start flowing.
func JobToProgressFrame(job model.Job) apiv1.ProgressFrame {
	kind := progress.KindProgress
	switch job.Status {
	case jobs.StatusCompleted:
		kind = progress.KindComplete
	case jobs.StatusFailed, jobs.StatusCancelled:
		kind = progress.KindError
	}

	frame := apiv1.ProgressFrame{
		JobId:     job.ID.String(),
		Kind:      string(kind),
		Percent:   job.Progress,
		Message:   job.CurrentStep,
		Timestamp: job.StatusUpdatedAt,
	}
	if job.ErrorMessage != nil && frame.Message == "" {
		frame.Message = *job.ErrorMessage
	}
	return frame
}
