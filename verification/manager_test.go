package verification_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/go-verification-handoff/artifacts/repofake"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/jrsteele09/go-verification-handoff/token"
	fakerecord "github.com/jrsteele09/go-verification-handoff/users/repofake"
	"github.com/jrsteele09/go-verification-handoff/verification"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/stretchr/testify/require"
)

const (
	testOwnerID = "user-1"
	otherUserID = "user-2"
	testTTL     = 10 * time.Minute
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testFixture holds all test dependencies
type testFixture struct {
	clock     *testClock
	repo      *sessions.InMemoryRepo
	record    *fakerecord.FakeVerificationRecord
	processor *repofake.FakeProcessor
	manager   *verification.Manager
	uploader  *verification.Uploader
}

func setupTestFixture(t *testing.T, options ...verification.ManagerOption) *testFixture {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo := sessions.NewInMemoryRepo(sessions.WithNowTime(clock.Now))
	record := fakerecord.NewFakeVerificationRecord()
	processor := repofake.NewFakeProcessor()

	opts := append([]verification.ManagerOption{
		verification.WithNowTime(clock.Now),
		verification.WithTTL(testTTL),
		verification.WithFinalizeRetry(3, func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}, options...)

	manager, err := verification.NewManager(repo, token.NewGenerator(32), record, opts...)
	require.NoError(t, err)

	uploader, err := verification.NewUploader(manager, processor, verification.WithMaxUploadBytes(1024))
	require.NoError(t, err)

	return &testFixture{
		clock:     clock,
		repo:      repo,
		record:    record,
		processor: processor,
		manager:   manager,
		uploader:  uploader,
	}
}

func (f *testFixture) create(t *testing.T) verification.Handoff {
	t.Helper()
	h, err := f.manager.CreateSession(context.Background(), testOwnerID)
	require.NoError(t, err)
	return h
}

func (f *testFixture) recordAll(t *testing.T, h verification.Handoff) {
	t.Helper()
	for _, step := range sessions.RequiredSteps() {
		_, err := f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, step, "ref-"+string(step))
		require.NoError(t, err)
	}
}

func flipFirstChar(s string) string {
	if strings.HasPrefix(s, "A") {
		return "B" + s[1:]
	}
	return "A" + s[1:]
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	repo := sessions.NewInMemoryRepo()
	gen := token.NewGenerator(32)
	rec := fakerecord.NewFakeVerificationRecord()

	_, err := verification.NewManager(nil, gen, rec)
	require.Error(t, err)
	_, err = verification.NewManager(repo, nil, rec)
	require.Error(t, err)
	_, err = verification.NewManager(repo, gen, nil)
	require.Error(t, err)
}

func TestCreateSession(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	require.NotEmpty(t, h.SessionID)
	require.NotEmpty(t, h.SessionToken)
	require.NotEqual(t, h.SessionID, h.SessionToken)
	require.Equal(t, f.clock.Now().Add(testTTL), h.ExpiresAt)

	stored, err := f.repo.Get(h.SessionID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusPending, stored.Status)
	require.Equal(t, testOwnerID, stored.OwnerUserID)
	require.NotContains(t, stored.TokenDigest, h.SessionToken)
}

func TestCreateSession_RequiresOwner(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.manager.CreateSession(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestCreateSession_GeneratorFailureIsResourceExhausted(t *testing.T) {
	repo := sessions.NewInMemoryRepo()
	manager, err := verification.NewManager(repo, token.NewGenerator(32, token.WithSource(brokenReader{})), fakerecord.NewFakeVerificationRecord())
	require.NoError(t, err)

	_, err = manager.CreateSession(context.Background(), testOwnerID)
	require.ErrorIs(t, err, apperrors.ErrResourceExhausted)
}

type repeatingReader struct{ b byte }

func (r repeatingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	return len(p), nil
}

func TestCreateSession_IDCollisionRetriesThenGivesUp(t *testing.T) {
	repo := sessions.NewInMemoryRepo()
	// every value drawn is identical, so the second session always collides
	gen := token.NewGenerator(32, token.WithSource(repeatingReader{b: 7}))
	manager, err := verification.NewManager(repo, gen, fakerecord.NewFakeVerificationRecord())
	require.NoError(t, err)

	_, err = manager.CreateSession(context.Background(), testOwnerID)
	require.NoError(t, err)

	_, err = manager.CreateSession(context.Background(), testOwnerID)
	require.ErrorIs(t, err, apperrors.ErrResourceExhausted)
	require.Equal(t, 1, repo.Len())
}

func TestCreateSession_StoreFull(t *testing.T) {
	repo := sessions.NewInMemoryRepo(sessions.WithMaxLive(1))
	manager, err := verification.NewManager(repo, token.NewGenerator(32), fakerecord.NewFakeVerificationRecord())
	require.NoError(t, err)

	_, err = manager.CreateSession(context.Background(), testOwnerID)
	require.NoError(t, err)
	_, err = manager.CreateSession(context.Background(), testOwnerID)
	require.ErrorIs(t, err, apperrors.ErrResourceExhausted)
}

func TestValidate_ExactPairOnly(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)
	other := f.create(t)

	_, err := f.manager.Validate(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)

	rejected := []struct {
		name, id, token string
	}{
		{"one char different", h.SessionID, flipFirstChar(h.SessionToken)},
		{"truncated", h.SessionID, h.SessionToken[:len(h.SessionToken)-1]},
		{"empty token", h.SessionID, ""},
		{"session id as token", h.SessionID, h.SessionID},
		{"other session's token", h.SessionID, other.SessionToken},
		{"unknown id", "unknown", h.SessionToken},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Validate(context.Background(), tt.id, tt.token)
			require.ErrorIs(t, err, apperrors.ErrInvalidSession)
		})
	}
}

func TestValidate_FailsAfterExpiry(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	f.clock.Advance(testTTL)
	_, err := f.manager.Validate(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.manager.Validate(context.Background(), h.SessionID, h.SessionToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)

	_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, "ref")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestValidate_ErrorsIndistinguishable(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)
	expired := f.create(t)
	cancelled := f.create(t)
	_, err := f.manager.Cancel(context.Background(), cancelled.SessionID, testOwnerID)
	require.NoError(t, err)

	_, errWrongToken := f.manager.Validate(context.Background(), h.SessionID, "nope")
	_, errUnknown := f.manager.Validate(context.Background(), "unknown", "nope")
	_, errCancelled := f.manager.Validate(context.Background(), cancelled.SessionID, cancelled.SessionToken)
	f.clock.Advance(testTTL + time.Second)
	_, errExpired := f.manager.Validate(context.Background(), expired.SessionID, expired.SessionToken)

	for _, err := range []error{errWrongToken, errUnknown, errCancelled, errExpired} {
		require.ErrorIs(t, err, apperrors.ErrInvalidSession)
		require.False(t, errors.Is(err, apperrors.ErrNotFound), "the cause never leaks")
	}
}

func TestRecordStep_TransitionsAndIdempotency(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	s, err := f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, "front-1")
	require.NoError(t, err)
	require.Equal(t, sessions.StatusInProgress, s.Status)

	s, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, "front-2")
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)
	step, ok := s.Step(sessions.StepDocumentFront)
	require.True(t, ok)
	require.Equal(t, "front-2", step.ArtifactRef)
}

func TestRecordStep_RejectsBadInput(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	_, err := f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, "passport", "ref")
	require.ErrorIs(t, err, apperrors.ErrInvalidStep)

	_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentBack, "")
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	_, err = f.manager.RecordStep(context.Background(), h.SessionID, "wrong", sessions.StepDocumentBack, "ref")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestComplete_RequiresAllSteps(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	_, err := f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.ErrorIs(t, err, apperrors.ErrIncompleteSteps)

	_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, "f")
	require.NoError(t, err)
	_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepFaceVerification, "x")
	require.NoError(t, err)

	_, err = f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	var incomplete *verification.IncompleteStepsError
	require.ErrorAs(t, err, &incomplete)
	require.Equal(t, []sessions.StepKind{sessions.StepDocumentBack}, incomplete.Missing)

	_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentBack, "b")
	require.NoError(t, err)

	s, err := f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)
	require.Equal(t, f.clock.Now(), *s.CompletedAt)
	require.True(t, s.RecordAcknowledged)
	require.True(t, f.record.IsVerified(testOwnerID))
	require.Equal(t, 1, f.record.Calls())
}

func TestComplete_TerminalAfterwards(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)
	f.recordAll(t, h)

	first, err := f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, "again")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
	_, err = f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)

	st, err := f.manager.Status(context.Background(), h.SessionID, testOwnerID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCompleted, st.Status)
	require.Equal(t, *first.CompletedAt, *st.CompletedAt, "completedAt is immutable")
	require.Equal(t, 1, f.record.Calls())
}

func TestComplete_DownstreamFailureKeepsCompletedAndAllowsRetry(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)
	f.recordAll(t, h)

	f.record.FailNext(3)
	s, err := f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.ErrorIs(t, err, apperrors.ErrVerificationRecord)
	require.Equal(t, sessions.StatusCompleted, s.Status)
	require.False(t, s.RecordAcknowledged)
	require.Equal(t, 3, f.record.Calls())
	completedAt := *s.CompletedAt

	_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, "late")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)

	_, err = f.manager.Complete(context.Background(), h.SessionID, "wrong-token")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)

	f.clock.Advance(time.Second)
	s, err = f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)
	require.True(t, s.RecordAcknowledged)
	require.Equal(t, completedAt, *s.CompletedAt)
	require.True(t, f.record.IsVerified(testOwnerID))

	_, err = f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestComplete_RetriesTransientDownstreamFailure(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)
	f.recordAll(t, h)

	f.record.FailNext(2)
	s, err := f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)
	require.True(t, s.RecordAcknowledged)
	require.Equal(t, 3, f.record.Calls())
}

func TestComplete_UnknownUserIsNotRetried(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)
	f.recordAll(t, h)

	f.record.FailNextWith(3, errors.Join(apperrors.ErrNotFound, errors.New("user row missing")))
	s, err := f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.ErrorIs(t, err, apperrors.ErrVerificationRecord)
	require.Equal(t, sessions.StatusCompleted, s.Status)
	require.False(t, s.RecordAcknowledged)
	require.Equal(t, 1, f.record.Calls())
}

func TestStatus_OwnerOnlyAndProjected(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	_, err := f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepFaceVerification, "secret-ref")
	require.NoError(t, err)

	st, err := f.manager.Status(context.Background(), h.SessionID, testOwnerID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusInProgress, st.Status)
	require.Equal(t, []sessions.StepKind{sessions.StepFaceVerification}, st.CompletedSteps)
	require.Nil(t, st.CompletedAt)

	_, err = f.manager.Status(context.Background(), h.SessionID, otherUserID)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
	_, err = f.manager.Status(context.Background(), h.SessionID, "")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = f.manager.Status(context.Background(), "unknown", testOwnerID)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestStatus_ReportsExpiredUntilSwept(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	f.clock.Advance(testTTL + time.Second)
	st, err := f.manager.Status(context.Background(), h.SessionID, testOwnerID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusExpired, st.Status)

	require.Equal(t, 1, f.repo.SweepExpired())
	_, err = f.manager.Status(context.Background(), h.SessionID, testOwnerID)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestCancel(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	_, err := f.manager.Cancel(context.Background(), h.SessionID, otherUserID)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
	_, err = f.manager.Validate(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err, "a non-owner cannot tear the session down")

	status, err := f.manager.Cancel(context.Background(), h.SessionID, testOwnerID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCancelled, status)
	require.Equal(t, 0, f.repo.Len())

	_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, "ref")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)

	_, err = f.manager.Cancel(context.Background(), h.SessionID, testOwnerID)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestCancel_CompletedSessionKeepsStatus(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)
	f.recordAll(t, h)
	_, err := f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)

	status, err := f.manager.Cancel(context.Background(), h.SessionID, testOwnerID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCompleted, status)
	require.Equal(t, 0, f.repo.Len())
}

func TestDescribe(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	_, err := f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentBack, "b")
	require.NoError(t, err)

	d, err := f.manager.Describe(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)
	require.Equal(t, h.SessionID, d.SessionID)
	require.Equal(t, sessions.StatusInProgress, d.Status)
	require.Equal(t, sessions.RequiredSteps(), d.RequiredSteps)
	require.Equal(t, []sessions.StepKind{sessions.StepDocumentBack}, d.CompletedSteps)

	_, err = f.manager.Describe(context.Background(), h.SessionID, "bad")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestScenario_FullHandoff(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	h := f.create(t)

	_, err := f.uploader.Upload(ctx, h.SessionID, h.SessionToken, sessions.StepDocumentFront, []byte("front"))
	require.NoError(t, err)
	_, err = f.uploader.Upload(ctx, h.SessionID, h.SessionToken, sessions.StepFaceVerification, []byte("face"))
	require.NoError(t, err)

	st, err := f.manager.Status(ctx, h.SessionID, testOwnerID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusInProgress, st.Status)
	require.Len(t, st.CompletedSteps, 2)

	_, err = f.uploader.Upload(ctx, h.SessionID, h.SessionToken, sessions.StepDocumentBack, []byte("back"))
	require.NoError(t, err)

	s, err := f.manager.Complete(ctx, h.SessionID, h.SessionToken)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCompleted, s.Status)

	_, err = f.manager.RecordStep(ctx, h.SessionID, h.SessionToken, sessions.StepDocumentFront, "ref")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestScenario_ExpiryAndSweep(t *testing.T) {
	f := setupTestFixture(t, verification.WithTTL(time.Second))
	ctx := context.Background()
	h := f.create(t)

	f.clock.Advance(2 * time.Second)

	_, err := f.manager.Validate(ctx, h.SessionID, h.SessionToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
	_, err = f.uploader.Upload(ctx, h.SessionID, h.SessionToken, sessions.StepDocumentFront, []byte("front"))
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)

	require.Equal(t, 1, f.repo.SweepExpired())
	_, err = f.repo.Snapshot(h.SessionID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
