package service

import (
	"encoding/json"
	"time"

	"github.com/auditkit/website-audit/internal/store/model"
)

type reportSummary struct {
	Total          int      `json:"total"`
	Succeeded      int      `json:"succeeded"`
	Failed         int      `json:"failed"`
	FailedSections []string `json:"failed_sections,omitempty"`
}

type auditReport struct {
	JobID       string                     `json:"job_id"`
	TargetURL   string                     `json:"target_url"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Summary     reportSummary              `json:"summary"`
	Sections    map[string]json.RawMessage `json:"sections"`
}

// buildReport assembles the final report document from the persisted
// section outcomes.
func buildReport(job *model.Job) ([]byte, error) {
	outcomes, err := job.SectionOutcomes()
	if err != nil {
		return nil, err
	}

	report := auditReport{
		JobID:       job.ID.String(),
		TargetURL:   job.TargetURL,
		GeneratedAt: time.Now().UTC(),
		Sections:    make(map[string]json.RawMessage, len(outcomes)),
	}

	for _, o := range outcomes {
		report.Summary.Total++
		if o.Success {
			report.Summary.Succeeded++
			report.Sections[o.SectionID] = o.Data
			continue
		}
		report.Summary.Failed++
		report.Summary.FailedSections = append(report.Summary.FailedSections, o.SectionID)
	}

	return json.Marshal(report)
}
