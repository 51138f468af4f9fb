package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the verification handoff service
var (
	// Caller credential errors
	ErrUnauthorized = errors.New("unauthorized")

	// Session errors. Unknown, mismatched, expired and terminal sessions all
	// collapse to ErrInvalidSession so a caller cannot tell them apart.
	ErrInvalidSession     = errors.New("session invalid or expired")
	ErrIncompleteSteps    = errors.New("required verification steps missing")
	ErrInvalidStep        = errors.New("invalid verification step")
	ErrVerificationRecord = errors.New("verification record update failed")

	// Upload errors
	ErrProcessing      = errors.New("artifact processing failed")
	ErrPayloadTooLarge = errors.New("payload too large")

	// Store errors
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrResourceExhausted = errors.New("resource exhausted")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
