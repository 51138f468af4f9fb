package users

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// VerificationRecord persists the outcome of a completed identity verification
// on the user account. MarkVerified must be idempotent: finalization may call
// it more than once for the same user.
type VerificationRecord interface {
	MarkVerified(ctx context.Context, userID string) error
}

// VerifiedEvent is the payload describing a verified user.
type VerifiedEvent struct {
	UserID     string    `json:"user_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

// LogRecord only logs the verification. Used in development when no user store
// is configured.
type LogRecord struct{}

var _ VerificationRecord = LogRecord{}

func (LogRecord) MarkVerified(_ context.Context, userID string) error {
	log.Info().Str("user_id", userID).Msg("user identity verified")
	return nil
}
