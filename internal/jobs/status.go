package jobs

import "fmt"

// Status is the lifecycle state of an audit job. Values are persisted
// as-is in the jobs table, so they must stay stable.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusAuditComplete  Status = "audit_complete"
	StatusGenerating     Status = "generating"
	StatusWaitingForUser Status = "waiting_for_user"
	StatusReview         Status = "review"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// Type classifies the workload carried by a job.
type Type string

const (
	TypeDeepScan         Type = "deep-scan"
	TypeTeamNotification Type = "team-notification"
	TypeCleanup          Type = "cleanup"
)

// transitions holds the allowed edges of the lifecycle. completed and
// cancelled are terminal; failed may only go back to pending (retry).
var transitions = map[Status][]Status{
	StatusPending:        {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning:        {StatusAuditComplete, StatusWaitingForUser, StatusFailed, StatusCancelled},
	StatusAuditComplete:  {StatusGenerating, StatusWaitingForUser, StatusFailed, StatusCancelled},
	StatusGenerating:     {StatusReview, StatusCompleted, StatusFailed, StatusCancelled},
	StatusWaitingForUser: {StatusRunning, StatusCancelled},
	StatusReview:         {StatusCompleted, StatusCancelled},
	StatusCompleted:      {},
	StatusFailed:         {StatusPending},
	StatusCancelled:      {},
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job status transition from %q to %q", e.From, e.To)
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing edges.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0 && s.IsValid()
}

// CanTransitionTo reports whether the edge s -> target is in the table.
// Self transitions are not listed and therefore rejected.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Transition validates the edge from -> to and returns the new status.
// It is a pure function of the pair; persisting and event emission are
// the caller's responsibility.
func Transition(from, to Status) (Status, error) {
	if !from.IsValid() {
		return from, &InvalidTransitionError{From: from, To: to}
	}
	if !from.CanTransitionTo(to) {
		return from, &InvalidTransitionError{From: from, To: to}
	}
	return to, nil
}
