package verification

import (
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
)

// IncompleteStepsError carries the steps still missing when completion is refused.
type IncompleteStepsError struct {
	Missing []sessions.StepKind
}

func (e *IncompleteStepsError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = string(m)
	}
	return fmt.Sprintf("%s: %s", apperrors.ErrIncompleteSteps, strings.Join(names, ", "))
}

func (e *IncompleteStepsError) Unwrap() error {
	return apperrors.ErrIncompleteSteps
}
