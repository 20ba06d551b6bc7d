package mappers

import (
	apiv1 "github.com/auditkit/website-audit/api/v1alpha1"
	"github.com/auditkit/website-audit/internal/agents"
	"github.com/auditkit/website-audit/internal/jobs"
	"github.com/auditkit/website-audit/internal/store/model"
)

// JobCreateForm is the validated input of job creation.
type JobCreateForm struct {
	Type      jobs.Type
	TargetURL string
	Sections  []string
}

func JobCreateFormFromApi(req apiv1.CreateJobRequest) JobCreateForm {
	jobType := jobs.Type(req.Type)
	if jobType == "" {
		jobType = jobs.TypeDeepScan
	}

	sections := req.Sections
	if len(sections) == 0 {
		sections = agents.DefaultCatalog
	}

	return JobCreateForm{
		Type:      jobType,
		TargetURL: req.TargetUrl,
		Sections:  sections,
	}
}

func (f JobCreateForm) ToJob() *model.Job {
	return model.NewJob(f.Type, f.TargetURL)
}
