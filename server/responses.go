package server

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/jrsteele09/go-verification-handoff/verification"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CreateSessionResponse is returned to the desktop once. It is the only time
// the session token leaves the server.
type CreateSessionResponse struct {
	SessionID    string    `json:"sessionId"`
	SessionToken string    `json:"sessionToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	QRURL        string    `json:"qrUrl"`
	QRCode       string    `json:"qrCode,omitempty"`
}

type StatusResponse struct {
	SessionID      string     `json:"sessionId"`
	Status         string     `json:"status"`
	CompletedSteps []string   `json:"completedSteps"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

type DescriptorResponse struct {
	SessionID      string    `json:"sessionId"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expiresAt"`
	RequiredSteps  []string  `json:"requiredSteps"`
	CompletedSteps []string  `json:"completedSteps"`
}

type StepResponse struct {
	SessionID      string   `json:"sessionId"`
	Step           string   `json:"step"`
	Status         string   `json:"status"`
	CompletedSteps []string `json:"completedSteps"`
}

type CompleteResponse struct {
	SessionID   string     `json:"sessionId"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type CancelResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	LiveSessions int    `json:"liveSessions"`
}

// ErrorResponse follows the error/error_description shape used across the API.
type ErrorResponse struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description"`
	MissingSteps     []string `json:"missingSteps,omitempty"`
	Status           string   `json:"status,omitempty"`
}

func stepNames(steps []sessions.StepKind) []string {
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, string(s))
	}
	return names
}

func newDescriptorResponse(d verification.Descriptor) DescriptorResponse {
	return DescriptorResponse{
		SessionID:      d.SessionID,
		Status:         string(d.Status),
		ExpiresAt:      d.ExpiresAt,
		RequiredSteps:  stepNames(d.RequiredSteps),
		CompletedSteps: stepNames(d.CompletedSteps),
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes an error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Error: errorCode, ErrorDescription: description})
}

// writeDomainError maps the error taxonomy onto HTTP. Session failures always
// carry the same body so callers cannot tell unknown, expired, finished and
// wrong-token sessions apart.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var incomplete *verification.IncompleteStepsError
	switch {
	case errors.As(err, &incomplete):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:            "incomplete_steps",
			ErrorDescription: "required steps are missing",
			MissingSteps:     stepNames(incomplete.Missing),
		})
	case apperrors.Is(err, apperrors.ErrInvalidSession):
		writeJSONError(w, "invalid_session", apperrors.ErrInvalidSession.Error(), http.StatusNotFound)
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		writeJSONError(w, "unauthorized", "authentication required", http.StatusUnauthorized)
	case apperrors.Is(err, apperrors.ErrInvalidStep):
		writeJSONError(w, "invalid_step", "unknown verification step", http.StatusBadRequest)
	case apperrors.Is(err, apperrors.ErrPayloadTooLarge):
		writeJSONError(w, "payload_too_large", "artifact exceeds the upload limit", http.StatusRequestEntityTooLarge)
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		writeJSONError(w, "invalid_request", "malformed request", http.StatusBadRequest)
	case apperrors.Is(err, apperrors.ErrProcessing):
		writeJSONError(w, "processing_failed", "artifact processing failed, retry the upload", http.StatusBadGateway)
	case apperrors.Is(err, apperrors.ErrVerificationRecord):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:            "verification_record_failed",
			ErrorDescription: "session completed but the account could not be updated, retry complete",
			Status:           string(sessions.StatusCompleted),
		})
	case apperrors.Is(err, apperrors.ErrResourceExhausted):
		w.Header().Set("Retry-After", "5")
		writeJSONError(w, "unavailable", "no capacity for new sessions", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Str("request_id", requestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("unhandled error")
		writeJSONError(w, "internal_error", "internal server error", http.StatusInternalServerError)
	}
}
