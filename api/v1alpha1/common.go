package v1alpha1

func StringToJobStatus(s string) JobStatus {
	switch s {
	case string(JobStatusPending):
		return JobStatusPending
	case string(JobStatusRunning):
		return JobStatusRunning
	case string(JobStatusAuditComplete):
		return JobStatusAuditComplete
	case string(JobStatusGenerating):
		return JobStatusGenerating
	case string(JobStatusWaitingForUser):
		return JobStatusWaitingForUser
	case string(JobStatusReview):
		return JobStatusReview
	case string(JobStatusCompleted):
		return JobStatusCompleted
	case string(JobStatusFailed):
		return JobStatusFailed
	case string(JobStatusCancelled):
		return JobStatusCancelled
	default:
		return JobStatusPending
	}
}
