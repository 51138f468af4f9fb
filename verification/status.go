package verification

import (
	"context"
	"time"

	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
)

// ProjectedStatus is the owner's polling view. It carries neither
// the session token nor artifact references.
type ProjectedStatus struct {
	SessionID      string
	Status         sessions.Status
	CompletedSteps []sessions.StepKind
	ExpiresAt      time.Time
	CompletedAt    *time.Time
}

// Descriptor is the minimal view the phone needs to drive its capture UI.
type Descriptor struct {
	SessionID      string
	Status         sessions.Status
	ExpiresAt      time.Time
	RequiredSteps  []sessions.StepKind
	CompletedSteps []sessions.StepKind
}

// Status returns the projected state of a session to its owner.
func (m *Manager) Status(ctx context.Context, sessionID, ownerUserID string) (ProjectedStatus, error) {
	session, err := m.ownedSession("Status", sessionID, ownerUserID)
	if err != nil {
		return ProjectedStatus{}, err
	}
	return ProjectedStatus{
		SessionID:      session.ID,
		Status:         m.projectedStatus(session),
		CompletedSteps: session.StepKinds(),
		ExpiresAt:      session.ExpiresAt,
		CompletedAt:    session.CompletedAt,
	}, nil
}

// Describe validates the phone's credentials and returns its session descriptor.
func (m *Manager) Describe(ctx context.Context, sessionID, sessionToken string) (Descriptor, error) {
	session, err := m.Validate(ctx, sessionID, sessionToken)
	if err != nil {
		return Descriptor{}, err
	}
	return describe(session), nil
}

func describe(s sessions.Session) Descriptor {
	return Descriptor{
		SessionID:      s.ID,
		Status:         s.Status,
		ExpiresAt:      s.ExpiresAt,
		RequiredSteps:  sessions.RequiredSteps(),
		CompletedSteps: s.StepKinds(),
	}
}
