// Package v1alpha1 exposes the audit job API over HTTP.
package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apiv1 "github.com/auditkit/website-audit/api/v1alpha1"
	"github.com/auditkit/website-audit/internal/handlers/validator"
	"github.com/auditkit/website-audit/internal/service"
	"github.com/auditkit/website-audit/pkg/requestid"
)

type JobHandler struct {
	srv       *service.AuditJobService
	validator *validator.Validator
}

func NewJobHandler(srv *service.AuditJobService) *JobHandler {
	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules()...)
	return &JobHandler{srv: srv, validator: v}
}

func (h *JobHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/v1alpha1/jobs", func(r chi.Router) {
		r.Post("/", h.CreateJob)
		r.Get("/", h.ListJobs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Get("/progress", h.StreamProgress)
			r.Post("/cancel", h.CancelJob)
			r.Post("/retry", h.RetryJob)
			r.Post("/approve", h.ApproveJob)
			r.Post("/resume", h.ResumeJob)
		})
	})
}

func renderError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, apiv1.Error{Message: message, RequestId: requestid.FromContextPtr(r.Context())})
}
