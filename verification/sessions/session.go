package sessions

import (
	"time"

	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/pkg/errors"
)

// StepKind is one discrete capture a phone uploads during verification.
type StepKind string

const (
	StepDocumentFront    StepKind = "document_front"
	StepDocumentBack     StepKind = "document_back"
	StepFaceVerification StepKind = "face_verification"
)

var requiredSteps = []StepKind{StepDocumentFront, StepDocumentBack, StepFaceVerification}

// RequiredSteps returns every step that must be recorded before completion.
func RequiredSteps() []StepKind {
	steps := make([]StepKind, len(requiredSteps))
	copy(steps, requiredSteps)
	return steps
}

// ParseStepKind maps a wire value onto the closed StepKind set.
func ParseStepKind(s string) (StepKind, error) {
	for _, k := range requiredSteps {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.Wrapf(apperrors.ErrInvalidStep, "unknown step %q", s)
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further step writes may be accepted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// CompletedStep records the artifact stored for one step.
type CompletedStep struct {
	Step        StepKind
	ArtifactRef string
	CompletedAt time.Time
}

// Session is the state of one desktop-to-phone verification handoff.
// Only a digest of the session token is held, the plain token exists solely in
// the create response and on the phone.
type Session struct {
	ID          string
	TokenDigest string
	OwnerUserID string
	Status      Status
	Steps       []CompletedStep // unique per StepKind, in first-recorded order
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time

	// RecordAcknowledged is set once the user verification record accepted the
	// completion. Until then a completed session may retry finalization.
	RecordAcknowledged bool
}

// ActiveAt reports whether now lies within [CreatedAt, ExpiresAt].
func (s Session) ActiveAt(now time.Time) bool {
	return !now.Before(s.CreatedAt) && !now.After(s.ExpiresAt)
}

// UpsertStep records or replaces the artifact for step.
func (s *Session) UpsertStep(step StepKind, artifactRef string, at time.Time) {
	for i := range s.Steps {
		if s.Steps[i].Step == step {
			s.Steps[i].ArtifactRef = artifactRef
			s.Steps[i].CompletedAt = at
			return
		}
	}
	s.Steps = append(s.Steps, CompletedStep{Step: step, ArtifactRef: artifactRef, CompletedAt: at})
}

// Step returns the recorded entry for kind.
func (s Session) Step(kind StepKind) (CompletedStep, bool) {
	for _, cs := range s.Steps {
		if cs.Step == kind {
			return cs, true
		}
	}
	return CompletedStep{}, false
}

// StepKinds lists recorded step kinds without their artifact references.
func (s Session) StepKinds() []StepKind {
	kinds := make([]StepKind, 0, len(s.Steps))
	for _, cs := range s.Steps {
		kinds = append(kinds, cs.Step)
	}
	return kinds
}

// MissingSteps lists required steps that have not been recorded.
func (s Session) MissingSteps() []StepKind {
	var missing []StepKind
	for _, k := range requiredSteps {
		if _, ok := s.Step(k); !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Clone returns a deep copy safe to hand outside the store.
func (s Session) Clone() Session {
	c := s
	if s.Steps != nil {
		c.Steps = make([]CompletedStep, len(s.Steps))
		copy(c.Steps, s.Steps)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
