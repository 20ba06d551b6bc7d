package validator

import (
	"github.com/go-playground/validator/v10"

	"github.com/auditkit/website-audit/internal/agents"
	"github.com/auditkit/website-audit/internal/jobs"
)

func jobTypeValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	switch jobs.Type(val) {
	case jobs.TypeDeepScan, jobs.TypeTeamNotification, jobs.TypeCleanup:
		return true
	default:
		return false
	}
}

func sectionValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return agents.KnownSection(val)
}

func retryPhaseValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return val == "audit" || val == "generating"
}
