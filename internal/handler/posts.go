package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/postreach/postreach/internal/model"
	"github.com/postreach/postreach/internal/service"
)

// PostBatchResponse is returned after a batch has been stored
type PostBatchResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	BatchNumber int    `json:"batch_number"`
	model.BatchResult
}

// ReceivePosts stores a batch of scraped posts, skipping ones already known
func (h *Handler) ReceivePosts(w http.ResponseWriter, r *http.Request) {
	var req model.PostBatch
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.storage.ProcessBatch(r.Context(), req.BatchNumber, req.Posts)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoStorageBackend):
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
		case errors.Is(err, service.ErrInvalidBatch):
			writeError(w, http.StatusBadRequest, "invalid_batch", err.Error())
		case errors.Is(err, service.ErrStorageWrite):
			var details map[string]interface{}
			if result != nil && len(result.BackendErrors) > 0 {
				details = map[string]interface{}{"backend_errors": result.BackendErrors}
			}
			writeErrorWithDetails(w, r, http.StatusInternalServerError, "storage_failed", "Failed to store posts", details)
		default:
			h.log.Error().Err(err).Int("batch_number", req.BatchNumber).Msg("failed to process batch")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to process batch")
		}
		return
	}

	msg := fmt.Sprintf("Batch %d processed successfully.", req.BatchNumber)
	if len(req.Posts) == 0 {
		msg = "Empty batch received — nothing to process."
	}

	writeJSON(w, http.StatusOK, PostBatchResponse{
		Status:      "ok",
		Message:     msg,
		BatchNumber: req.BatchNumber,
		BatchResult: *result,
	})
}
