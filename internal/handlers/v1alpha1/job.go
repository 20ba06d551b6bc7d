package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apiv1 "github.com/auditkit/website-audit/api/v1alpha1"
	"github.com/auditkit/website-audit/internal/jobs"
	"github.com/auditkit/website-audit/internal/service"
	"github.com/auditkit/website-audit/internal/service/mappers"
)

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	logger := zap.S().Named("job_handler")

	var req apiv1.CreateJobRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode request body: %v", err))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	job, err := h.srv.CreateJob(r.Context(), mappers.JobCreateFormFromApi(req))
	if err != nil {
		logger.Errorw("failed to create job", "error", err)
		switch err.(type) {
		case *service.ErrInvalidSections:
			renderError(w, r, http.StatusBadRequest, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to create job: %v", err))
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := &service.JobFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		if !jobs.Status(status).IsValid() {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
			return
		}
		filter.Status = jobs.Status(status)
	}
	if jobType := r.URL.Query().Get("type"); jobType != "" {
		filter.Type = jobs.Type(jobType)
	}

	jobList, err := h.srv.ListJobs(r.Context(), filter)
	if err != nil {
		zap.S().Named("job_handler").Errorw("failed to list jobs", "error", err)
		renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
		return
	}

	render.JSON(w, r, mappers.JobListToApi(jobList))
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.srv.GetJob(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
		}
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	var req apiv1.CancelJobRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode request body: %v", err))
			return
		}
		if err := h.validator.Struct(req); err != nil {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}
	}

	job, err := h.srv.CancelJob(r.Context(), id, req.Reason)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrJobAlreadyFinal, *service.ErrJobNotCancellable:
			renderError(w, r, http.StatusConflict, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to cancel job: %v", err))
		}
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	var req apiv1.RetryJobRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode request body: %v", err))
			return
		}
		if err := h.validator.Struct(req); err != nil {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}
	}

	job, err := h.srv.RetryJob(r.Context(), id, req.FromPhase)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrJobNotRetryable:
			renderError(w, r, http.StatusConflict, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to retry job: %v", err))
		}
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *JobHandler) ApproveJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.srv.ApproveJob(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrJobNotApprovable:
			renderError(w, r, http.StatusConflict, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to approve job: %v", err))
		}
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *JobHandler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.srv.ResumeJob(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrJobNotResumable:
			renderError(w, r, http.StatusConflict, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to resume job: %v", err))
		}
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *JobHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid job id: %v", err))
		return uuid.Nil, false
	}
	return id, true
}
