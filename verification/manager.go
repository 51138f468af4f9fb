package verification

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/jrsteele09/go-verification-handoff/internal/utils"
	"github.com/jrsteele09/go-verification-handoff/metrics"
	"github.com/jrsteele09/go-verification-handoff/token"
	"github.com/jrsteele09/go-verification-handoff/users"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSessionTTL = 10 * time.Minute

	createAttempts       = 3
	defaultFinalizeTries = 3
)

// Handoff is what the desktop receives on creation and encodes into the QR code.
type Handoff struct {
	SessionID    string
	SessionToken string
	ExpiresAt    time.Time
}

// Manager owns every state transition of a verification session.
//
// The desktop owner authenticates with its primary login; the phone only holds
// the (session id, session token) pair. The two credentials are checked
// independently and neither grants anything the other can do.
type Manager struct {
	repo          sessions.Repo
	tokens        *token.Generator
	record        users.VerificationRecord
	ttl           time.Duration
	finalizeTries uint
	newBackOff    func() backoff.BackOff
	metrics       *metrics.Metrics
	nowTime       func() time.Time
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithTTL sets how long a session stays valid after creation.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMetrics records lifecycle events on m.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithFinalizeRetry bounds the attempts made to update the user verification
// record on completion. newBackOff may be nil for the default exponential policy.
func WithFinalizeRetry(maxTries uint, newBackOff func() backoff.BackOff) ManagerOption {
	return func(m *Manager) {
		if maxTries > 0 {
			m.finalizeTries = maxTries
		}
		if newBackOff != nil {
			m.newBackOff = newBackOff
		}
	}
}

// NewManager initializes a new Manager with required dependencies.
func NewManager(repo sessions.Repo, tokens *token.Generator, record users.VerificationRecord, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] session repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewManager] token generator is required")
	}
	if record == nil {
		return nil, errors.New("[NewManager] verification record is required")
	}

	m := &Manager{
		repo:          repo,
		tokens:        tokens,
		record:        record,
		ttl:           DefaultSessionTTL,
		finalizeTries: defaultFinalizeTries,
		newBackOff:    defaultBackOff,
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// CreateSession opens a new pending session owned by ownerUserID. The caller
// must already have verified the owner's primary credential.
func (m *Manager) CreateSession(ctx context.Context, ownerUserID string) (Handoff, error) {
	if ownerUserID == "" {
		return Handoff{}, errors.Wrap(apperrors.ErrUnauthorized, "[Manager CreateSession] owner is required")
	}

	sessionToken, err := m.tokens.NewSessionToken()
	if err != nil {
		return Handoff{}, errors.Wrapf(apperrors.ErrResourceExhausted, "[Manager CreateSession] %v", err)
	}

	now := m.nowTime()
	session := sessions.Session{
		TokenDigest: token.Digest(sessionToken),
		OwnerUserID: ownerUserID,
		Status:      sessions.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}

	// Id collisions are retried with a fresh id.
	for attempt := 1; attempt <= createAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Handoff{}, err
		}

		session.ID, err = m.tokens.NewSessionID()
		if err != nil {
			return Handoff{}, errors.Wrapf(apperrors.ErrResourceExhausted, "[Manager CreateSession] %v", err)
		}

		err = m.repo.Put(session)
		if err == nil {
			m.metrics.SessionCreated()
			log.Info().Str("session_id", session.ID).Str("owner", ownerUserID).Time("expires_at", session.ExpiresAt).Msg("verification session created")
			return Handoff{SessionID: session.ID, SessionToken: sessionToken, ExpiresAt: session.ExpiresAt}, nil
		}
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			return Handoff{}, errors.Wrap(err, "[Manager CreateSession]")
		}
		log.Warn().Int("attempt", attempt).Msg("session id collision, regenerating")
	}
	return Handoff{}, errors.Wrap(apperrors.ErrResourceExhausted, "[Manager CreateSession] could not allocate a unique session id")
}

// Validate is the gate for every phone originated call. Unknown ids, wrong
// tokens, terminal and expired sessions all fail with the same ErrInvalidSession.
func (m *Manager) Validate(ctx context.Context, sessionID, sessionToken string) (sessions.Session, error) {
	session, err := m.repo.Get(sessionID)
	if err != nil {
		return sessions.Session{}, invalidSession("Validate", sessionID, err.Error())
	}
	if err := m.checkMobileAccess(session, sessionToken); err != nil {
		return sessions.Session{}, err
	}
	return session, nil
}

// RecordStep upserts the artifact reference for step. The first step moves the
// session from pending to in_progress. Re-recording a step replaces its reference.
func (m *Manager) RecordStep(ctx context.Context, sessionID, sessionToken string, step sessions.StepKind, artifactRef string) (sessions.Session, error) {
	if _, err := sessions.ParseStepKind(string(step)); err != nil {
		return sessions.Session{}, err
	}
	if artifactRef == "" {
		return sessions.Session{}, errors.Wrap(apperrors.ErrInvalidRequest, "[Manager RecordStep] artifact reference is required")
	}

	updated, err := m.repo.Update(sessionID, func(s *sessions.Session) error {
		if err := m.checkMobileAccess(*s, sessionToken); err != nil {
			return err
		}
		now := m.nowTime()
		s.UpsertStep(step, artifactRef, now)
		if s.Status == sessions.StatusPending {
			s.Status = sessions.StatusInProgress
		}
		return nil
	})
	if err != nil {
		return sessions.Session{}, asInvalidSession("RecordStep", sessionID, err)
	}

	m.metrics.StepRecorded(string(step))
	log.Info().Str("session_id", sessionID).Str("step", string(step)).Int("recorded", len(updated.Steps)).Msg("verification step recorded")
	return updated, nil
}

// Complete finalizes a session once every required step is present, then marks
// the owner verified. The session stays completed even if that downstream call
// fails; the error is returned so the phone can call Complete again, which then
// only retries the downstream update.
func (m *Manager) Complete(ctx context.Context, sessionID, sessionToken string) (sessions.Session, error) {
	retryOnly := false
	completed, err := m.repo.Update(sessionID, func(s *sessions.Session) error {
		if s.Status == sessions.StatusCompleted && !s.RecordAcknowledged &&
			token.Matches(s.TokenDigest, sessionToken) && s.ActiveAt(m.nowTime()) {
			retryOnly = true
			return nil
		}
		if err := m.checkMobileAccess(*s, sessionToken); err != nil {
			return err
		}
		if missing := s.MissingSteps(); len(missing) > 0 {
			return &IncompleteStepsError{Missing: missing}
		}
		s.Status = sessions.StatusCompleted
		s.CompletedAt = utils.Ptr(m.nowTime())
		return nil
	})
	if err != nil {
		var incomplete *IncompleteStepsError
		if errors.As(err, &incomplete) {
			return sessions.Session{}, err
		}
		return sessions.Session{}, asInvalidSession("Complete", sessionID, err)
	}

	if !retryOnly {
		m.metrics.SessionCompleted()
		log.Info().Str("session_id", sessionID).Msg("verification session completed")
	}

	if err := m.finalize(ctx, completed.OwnerUserID); err != nil {
		m.metrics.FinalizeFailed()
		log.Error().Err(err).Str("session_id", sessionID).Str("owner", completed.OwnerUserID).Msg("failed to mark user verified")
		return completed, errors.Wrapf(apperrors.ErrVerificationRecord, "[Manager Complete] %v", err)
	}

	acknowledged, err := m.repo.Update(sessionID, func(s *sessions.Session) error {
		s.RecordAcknowledged = true
		return nil
	})
	if err != nil {
		// The session expired or was removed after finalization; the user record is already updated.
		log.Warn().Err(err).Str("session_id", sessionID).Msg("could not flag verification record acknowledged")
		completed.RecordAcknowledged = true
		return completed, nil
	}
	return acknowledged, nil
}

func (m *Manager) finalize(ctx context.Context, userID string) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := m.record.MarkVerified(ctx, userID)
		if errors.Is(err, apperrors.ErrNotFound) {
			// an unknown user will not appear on retry
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(m.newBackOff()), backoff.WithMaxTries(m.finalizeTries))
	return err
}

// Cancel tears a session down early on behalf of its owner and removes it from
// the store. Returns the status the session ended in.
func (m *Manager) Cancel(ctx context.Context, sessionID, ownerUserID string) (sessions.Status, error) {
	session, err := m.ownedSession("Cancel", sessionID, ownerUserID)
	if err != nil {
		return "", err
	}

	final := m.projectedStatus(session)
	if !final.IsTerminal() {
		updated, err := m.repo.Update(sessionID, func(s *sessions.Session) error {
			if !s.Status.IsTerminal() {
				s.Status = sessions.StatusCancelled
			}
			return nil
		})
		if err == nil {
			final = updated.Status
		}
	}

	m.repo.Delete(sessionID)
	if final == sessions.StatusCancelled {
		m.metrics.SessionCancelled()
	}
	log.Info().Str("session_id", sessionID).Str("status", string(final)).Msg("verification session cancelled")
	return final, nil
}

// ownedSession returns a session only to its owner. A different user gets the
// same ErrInvalidSession as for an unknown id.
func (m *Manager) ownedSession(op, sessionID, ownerUserID string) (sessions.Session, error) {
	if ownerUserID == "" {
		return sessions.Session{}, errors.Wrapf(apperrors.ErrUnauthorized, "[Manager %s] owner is required", op)
	}
	session, err := m.repo.Snapshot(sessionID)
	if err != nil {
		return sessions.Session{}, invalidSession(op, sessionID, err.Error())
	}
	if session.OwnerUserID != ownerUserID {
		return sessions.Session{}, invalidSession(op, sessionID, "owner mismatch")
	}
	return session, nil
}

// checkMobileAccess applies the session token, state and expiry rules.
func (m *Manager) checkMobileAccess(s sessions.Session, sessionToken string) error {
	switch {
	case !token.Matches(s.TokenDigest, sessionToken):
		return invalidSession("checkMobileAccess", s.ID, "token mismatch")
	case s.Status.IsTerminal():
		return invalidSession("checkMobileAccess", s.ID, "terminal status "+string(s.Status))
	case !s.ActiveAt(m.nowTime()):
		return invalidSession("checkMobileAccess", s.ID, "outside validity window")
	}
	return nil
}

// projectedStatus reports expired for sessions past ExpiresAt that the sweep
// has not reached yet.
func (m *Manager) projectedStatus(s sessions.Session) sessions.Status {
	if !s.Status.IsTerminal() && m.nowTime().After(s.ExpiresAt) {
		return sessions.StatusExpired
	}
	return s.Status
}

// invalidSession logs the real reason server side and returns the generic error.
func invalidSession(op, sessionID, reason string) error {
	log.Debug().Str("op", op).Str("session_id", sessionID).Str("reason", reason).Msg("session rejected")
	return errors.Wrapf(apperrors.ErrInvalidSession, "[Manager %s]", op)
}

func asInvalidSession(op, sessionID string, err error) error {
	if errors.Is(err, apperrors.ErrInvalidSession) {
		return err
	}
	return invalidSession(op, sessionID, err.Error())
}
