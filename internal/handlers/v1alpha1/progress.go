package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/auditkit/website-audit/internal/progress"
	"github.com/auditkit/website-audit/internal/service"
	"github.com/auditkit/website-audit/internal/service/mappers"
)

// StreamProgress pushes job progress as server-sent events. The first
// frame is a snapshot of the persisted row, there is no backlog replay;
// afterwards live events flow until the job reaches a terminal frame or
// the client goes away.
func (h *JobHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	logger := zap.S().Named("progress_handler")

	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		renderError(w, r, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	job, sub, err := h.srv.SubscribeProgress(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to subscribe: %v", err))
		}
		return
	}
	defer h.srv.UnsubscribeProgress(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot := mappers.JobToProgressFrame(*job)
	if !writeFrame(w, flusher, snapshot) {
		return
	}
	if snapshot.Kind != string(progress.KindProgress) {
		// already terminal, nothing more will ever arrive
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if !writeFrame(w, flusher, mappers.ProgressFrameToApi(ev)) {
				logger.Debugw("client write failed, closing stream", "job_id", id)
				return
			}
			if ev.Kind == progress.KindComplete || ev.Kind == progress.KindError {
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, frame any) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
