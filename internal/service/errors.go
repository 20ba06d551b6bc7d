package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/auditkit/website-audit/internal/jobs"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %s not found", id)}
}

type ErrJobAlreadyFinal struct {
	error
}

func NewErrJobAlreadyFinal(id uuid.UUID, status jobs.Status) *ErrJobAlreadyFinal {
	return &ErrJobAlreadyFinal{fmt.Errorf("job %s is already %s", id, status)}
}

type ErrJobNotCancellable struct {
	error
}

func NewErrJobNotCancellable(id uuid.UUID, status jobs.Status) *ErrJobNotCancellable {
	return &ErrJobNotCancellable{fmt.Errorf("job %s cannot be cancelled from status %s", id, status)}
}

type ErrJobNotRetryable struct {
	error
}

func NewErrJobNotRetryable(id uuid.UUID, status jobs.Status) *ErrJobNotRetryable {
	return &ErrJobNotRetryable{fmt.Errorf("job %s cannot be retried from status %s, only failed jobs are retryable", id, status)}
}

type ErrJobNotApprovable struct {
	error
}

func NewErrJobNotApprovable(id uuid.UUID, status jobs.Status) *ErrJobNotApprovable {
	return &ErrJobNotApprovable{fmt.Errorf("job %s is not awaiting review, current status is %s", id, status)}
}

type ErrJobNotResumable struct {
	error
}

func NewErrJobNotResumable(id uuid.UUID, status jobs.Status) *ErrJobNotResumable {
	return &ErrJobNotResumable{fmt.Errorf("job %s is not waiting for user input, current status is %s", id, status)}
}

type ErrInvalidSections struct {
	error
}

func NewErrInvalidSections(sections []string) *ErrInvalidSections {
	return &ErrInvalidSections{fmt.Errorf("unknown audit sections: %v", sections)}
}
