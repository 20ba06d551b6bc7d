package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	websiteAudit = "website_audit"

	jobStatusCount       = "job_status_count"
	sectionOutcomesTotal = "section_outcomes_total"
	sectionRetriesTotal  = "section_retries_total"
	auditDurationSeconds = "audit_duration_seconds"

	jobStatusLabel      = "status"
	sectionLabel        = "section"
	sectionOutcomeLabel = "outcome"
	jobTypeLabel        = "type"
)

var jobStatusCountMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: websiteAudit,
		Name:      jobStatusCount,
		Help:      "number of jobs currently in each lifecycle status",
	},
	[]string{jobStatusLabel},
)

var sectionOutcomesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: websiteAudit,
		Name:      sectionOutcomesTotal,
		Help:      "per-section agent call outcomes",
	},
	[]string{sectionLabel, sectionOutcomeLabel},
)

var sectionRetriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: websiteAudit,
		Name:      sectionRetriesTotal,
		Help:      "number of section re-submissions across retry rounds",
	},
	[]string{sectionLabel},
)

var auditDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: websiteAudit,
		Name:      auditDurationSeconds,
		Help:      "wall clock duration of completed orchestration runs",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800},
	},
	[]string{jobTypeLabel},
)

func SetJobStatusCount(status string, count int) {
	jobStatusCountMetric.With(prometheus.Labels{jobStatusLabel: status}).Set(float64(count))
}

func IncreaseSectionOutcome(section string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	sectionOutcomesTotalMetric.With(prometheus.Labels{sectionLabel: section, sectionOutcomeLabel: outcome}).Inc()
}

func IncreaseSectionRetries(section string) {
	sectionRetriesTotalMetric.With(prometheus.Labels{sectionLabel: section}).Inc()
}

func ObserveAuditDuration(jobType string, d time.Duration) {
	auditDurationMetric.With(prometheus.Labels{jobTypeLabel: jobType}).Observe(d.Seconds())
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobStatusCountMetric)
	prometheus.MustRegister(sectionOutcomesTotalMetric)
	prometheus.MustRegister(sectionRetriesTotalMetric)
	prometheus.MustRegister(auditDurationMetric)
}
