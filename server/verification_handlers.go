package server

import (
	"io"
	"mime"
	"net/http"

	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// multipartOverhead is the slack allowed on top of the artifact for form framing.
const multipartOverhead = 1 << 20

// CreateSessionHandler opens a handoff session for the authenticated desktop user
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := userIDFromContext(r.Context())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		handoff, err := s.services.Manager.CreateSession(r.Context(), ownerID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		link := s.services.QR.Link(handoff)
		qrCode, err := s.services.QR.DataURL(link)
		if err != nil {
			// The link alone is enough for the desktop to render its own code.
			log.Warn().Err(err).Str("session_id", handoff.SessionID).Msg("qr code rendering failed")
		}

		writeJSON(w, http.StatusCreated, CreateSessionResponse{
			SessionID:    handoff.SessionID,
			SessionToken: handoff.SessionToken,
			ExpiresAt:    handoff.ExpiresAt,
			QRURL:        link,
			QRCode:       qrCode,
		})
	}
}

// SessionStatusHandler is polled by the desktop while the phone works through the steps
func (s *Server) SessionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := userIDFromContext(r.Context())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		status, err := s.services.Manager.Status(r.Context(), r.PathValue("id"), ownerID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{
			SessionID:      status.SessionID,
			Status:         string(status.Status),
			CompletedSteps: stepNames(status.CompletedSteps),
			ExpiresAt:      status.ExpiresAt,
			CompletedAt:    status.CompletedAt,
		})
	}
}

func (s *Server) CancelSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := userIDFromContext(r.Context())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		sessionID := r.PathValue("id")
		status, err := s.services.Manager.Cancel(r.Context(), sessionID, ownerID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CancelResponse{SessionID: sessionID, Status: string(status)})
	}
}

// DescribeSessionHandler is the first call the phone makes after scanning the QR code
func (s *Server) DescribeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, sessionToken := sessionCredentials(r)
		descriptor, err := s.services.Manager.Describe(r.Context(), sessionID, sessionToken)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newDescriptorResponse(descriptor))
	}
}

// UploadStepHandler accepts a multipart "file" field or a raw request body
func (s *Server) UploadStepHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, sessionToken := sessionCredentials(r)
		step, err := sessions.ParseStepKind(r.PathValue("step"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		// Reject bad credentials before reading a potentially large body.
		if _, err := s.services.Manager.Validate(r.Context(), sessionID, sessionToken); err != nil {
			writeDomainError(w, r, err)
			return
		}

		data, err := readArtifact(w, r, s.services.Uploader.MaxBytes())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		descriptor, err := s.services.Uploader.Upload(r.Context(), sessionID, sessionToken, step, data)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, StepResponse{
			SessionID:      descriptor.SessionID,
			Step:           string(step),
			Status:         string(descriptor.Status),
			CompletedSteps: stepNames(descriptor.CompletedSteps),
		})
	}
}

func (s *Server) CompleteSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, sessionToken := sessionCredentials(r)
		session, err := s.services.Manager.Complete(r.Context(), sessionID, sessionToken)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CompleteResponse{
			SessionID:   session.ID,
			Status:      string(session.Status),
			CompletedAt: session.CompletedAt,
		})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", LiveSessions: s.services.LiveSessions()})
	}
}

func (s *Server) preflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// readArtifact reads at most maxBytes+1 bytes of the artifact so an oversized
// upload is detected without buffering all of it.
func readArtifact(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	var data []byte
	var err error
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		data, err = readMultipartFile(r, maxBytes)
	} else {
		data, err = readLimited(r.Body, maxBytes)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[readArtifact] empty artifact")
	}
	return data, nil
}

func readMultipartFile(r *http.Request, maxBytes int64) ([]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidRequest, "[readMultipartFile] %v", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.Wrapf(apperrors.ErrInvalidRequest, "[readMultipartFile] missing %q field", formFileField)
		}
		if err != nil {
			return nil, classifyReadError(err)
		}
		if part.FormName() != formFileField {
			_ = part.Close()
			continue
		}
		data, err := readLimited(part, maxBytes)
		_ = part.Close()
		return data, err
	}
}

func readLimited(rd io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, maxBytes+1))
	if err != nil {
		return nil, classifyReadError(err)
	}
	return data, nil
}

func classifyReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errors.Wrap(apperrors.ErrPayloadTooLarge, "[readArtifact]")
	}
	return errors.Wrapf(apperrors.ErrInvalidRequest, "[readArtifact] %v", err)
}
