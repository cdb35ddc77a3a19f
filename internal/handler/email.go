package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/postreach/postreach/internal/email"
	"github.com/postreach/postreach/internal/model"
	"github.com/postreach/postreach/internal/repository"
	"github.com/postreach/postreach/internal/service"
)

// SendEmailResponse reports the outcome of a synchronous send
type SendEmailResponse struct {
	Status string `json:"status"`
	model.SendResult
}

// SendEmails mails the template to an explicit list of recipients
func (h *Handler) SendEmails(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.dispatcher.Send(r.Context(), req)
	if err != nil {
		var transportErr *service.TransportError
		switch {
		case errors.Is(err, service.ErrMailNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "mail_not_configured", err.Error())
		case errors.As(err, &transportErr):
			writeErrorWithDetails(w, r, http.StatusInternalServerError, "mail_transport_failed", transportErr.Error(), map[string]interface{}{
				"sent":           transportErr.Result.Sent,
				"failed":         transportErr.Result.Failed,
				"failed_details": transportErr.Result.FailedDetails,
			})
		case errors.Is(err, email.ErrTemplateUnavailable):
			writeError(w, http.StatusInternalServerError, "template_unavailable", err.Error())
		default:
			h.log.Error().Err(err).Msg("failed to send emails")
			writeError(w, http.StatusInternalServerError, "send_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, SendEmailResponse{Status: "ok", SendResult: *result})
}

// TriggerEmails starts the background job over every stored post
func (h *Handler) TriggerEmails(w http.ResponseWriter, r *http.Request) {
	if err := h.job.Trigger(r.Context()); err != nil {
		switch {
		case errors.Is(err, service.ErrJobRunning):
			writeError(w, http.StatusConflict, "job_running",
				"An email job is already running. Check GET /email-job-status for progress.")
		case errors.Is(err, service.ErrMailNotConfigured), errors.Is(err, service.ErrNoStorageBackend):
			writeError(w, http.StatusServiceUnavailable, "not_configured", err.Error())
		default:
			h.log.Error().Err(err).Msg("failed to start email job")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to start email job")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Email job started in background. Check GET /email-job-status for progress.",
	})
}

// EmailJobStatus returns the progress of the current or last job
func (h *Handler) EmailJobStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := h.job.Status()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "idle",
			"message": "No email job has been triggered yet. Use POST /trigger-emails to start.",
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// EmailStatusResponse confirms a recorded delivery state
type EmailStatusResponse struct {
	RecipientEmail string `json:"recipient_email"`
	Status         string `json:"status"`
	StoredInDB     bool   `json:"stored_in_db"`
	StoredInCSV    bool   `json:"stored_in_csv"`
}

// RecordEmailStatus stores a delivery state reported by an outside sender
func (h *Handler) RecordEmailStatus(w http.ResponseWriter, r *http.Request) {
	var req model.EmailStatusUpdate
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	rec, err := h.storage.RecordEmailStatus(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStatusStoreDisabled):
			writeError(w, http.StatusServiceUnavailable, "status_store_disabled", err.Error())
		case errors.Is(err, service.ErrInvalidEmailStatus):
			writeError(w, http.StatusBadRequest, "invalid_email_status", err.Error())
		default:
			h.log.Error().Err(err).Str("recipient", req.RecipientEmail).Msg("failed to record email status")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to record email status")
		}
		return
	}

	writeJSON(w, http.StatusOK, EmailStatusResponse{
		RecipientEmail: rec.RecipientEmail,
		Status:         rec.Status,
		StoredInDB:     true,
		StoredInCSV:    false,
	})
}

// GetEmailStatus returns the recorded delivery state of one recipient
func (h *Handler) GetEmailStatus(w http.ResponseWriter, r *http.Request) {
	if h.statuses == nil {
		writeError(w, http.StatusServiceUnavailable, "status_store_disabled", service.ErrStatusStoreDisabled.Error())
		return
	}

	recipient := strings.ToLower(strings.TrimSpace(r.PathValue("email")))
	rec, err := h.statuses.GetByRecipient(r.Context(), recipient)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "No status recorded for "+recipient)
			return
		}
		h.log.Error().Err(err).Str("recipient", recipient).Msg("failed to read email status")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read email status")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
