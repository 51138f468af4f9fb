package server

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUserID stores the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
	// ContextKeyRequestID stores the request correlation ID
	ContextKeyRequestID ContextKey = "request_id"
)

// PrimaryVerifier checks the desktop user's primary credential and returns the
// user id it was issued to. Failures wrap ErrUnauthorized.
type PrimaryVerifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

// RequireAuth is middleware that validates a Bearer primary token
// Used for routes only the session owner may call
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="verification"`)
				writeJSONError(w, "unauthorized", "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="verification"`)
				writeJSONError(w, "unauthorized", "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			userID, err := s.services.Verifier.Verify(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil || userID == "" {
				log.Debug().Err(err).Str("request_id", requestIDFromContext(r.Context())).Msg("primary token rejected")
				w.Header().Set("WWW-Authenticate", `Bearer realm="verification", error="invalid_token"`)
				writeJSONError(w, "unauthorized", "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			next(w, r.WithContext(ctx))
		}
	}
}

func userIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(ContextKeyUserID).(string)
	if !ok || userID == "" {
		return "", apperrors.ErrUnauthorized
	}
	return userID, nil
}

func requestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(ContextKeyRequestID).(string)
	return requestID
}

// sessionCredentials reads the phone's (session id, session token) pair. The
// header wins over the query parameter used by the QR link.
func sessionCredentials(r *http.Request) (string, string) {
	sessionToken := r.Header.Get(headerSessionToken)
	if sessionToken == "" {
		sessionToken = r.URL.Query().Get(queryToken)
	}
	return r.PathValue("id"), sessionToken
}
