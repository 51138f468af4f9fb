package verification_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-verification-handoff/artifacts"
	"github.com/jrsteele09/go-verification-handoff/artifacts/repofake"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/jrsteele09/go-verification-handoff/verification"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/stretchr/testify/require"
)

func TestNewUploader_RequiresDependencies(t *testing.T) {
	f := setupTestFixture(t)

	_, err := verification.NewUploader(nil, repofake.NewFakeProcessor())
	require.Error(t, err)
	_, err = verification.NewUploader(f.manager, nil)
	require.Error(t, err)

	u, err := verification.NewUploader(f.manager, repofake.NewFakeProcessor())
	require.NoError(t, err)
	require.Equal(t, verification.DefaultMaxUploadBytes, u.MaxBytes())
}

func TestUpload_RecordsProcessorReference(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	d, err := f.uploader.Upload(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, []byte("jpeg"))
	require.NoError(t, err)
	require.Equal(t, sessions.StatusInProgress, d.Status)
	require.Equal(t, []sessions.StepKind{sessions.StepDocumentFront}, d.CompletedSteps)

	calls := f.processor.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, h.SessionID, calls[0].SessionID)
	require.Equal(t, []byte("jpeg"), calls[0].Data)

	stored, err := f.repo.Get(h.SessionID)
	require.NoError(t, err)
	step, ok := stored.Step(sessions.StepDocumentFront)
	require.True(t, ok)
	require.Equal(t, fmt.Sprintf("%s/%s-1", h.SessionID, sessions.StepDocumentFront), step.ArtifactRef)
}

func TestUpload_RejectsBeforeProcessing(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	tests := []struct {
		name    string
		token   string
		step    sessions.StepKind
		data    []byte
		wantErr error
	}{
		{"unknown step", h.SessionToken, "selfie", []byte("x"), apperrors.ErrInvalidStep},
		{"wrong token", "wrong", sessions.StepDocumentFront, []byte("x"), apperrors.ErrInvalidSession},
		{"too large", h.SessionToken, sessions.StepDocumentFront, make([]byte, 1025), apperrors.ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uploader.Upload(context.Background(), h.SessionID, tt.token, tt.step, tt.data)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	require.Empty(t, f.processor.Calls())
}

func TestUpload_ProcessingFailureLeavesSessionUntouched(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	f.processor.SetFail(true)
	_, err := f.uploader.Upload(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentBack, []byte("x"))
	require.ErrorIs(t, err, apperrors.ErrProcessing)

	stored, err := f.repo.Get(h.SessionID)
	require.NoError(t, err)
	require.Equal(t, sessions.StatusPending, stored.Status)
	require.Empty(t, stored.Steps)

	f.processor.SetFail(false)
	_, err = f.uploader.Upload(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentBack, []byte("x"))
	require.NoError(t, err)
}

type plainFailureProcessor struct{}

func (plainFailureProcessor) Process(context.Context, artifacts.Request) (string, error) {
	return "", fmt.Errorf("connection reset")
}

func TestUpload_WrapsForeignProcessorErrors(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	u, err := verification.NewUploader(f.manager, plainFailureProcessor{})
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentBack, []byte("x"))
	require.ErrorIs(t, err, apperrors.ErrProcessing)
}

func TestUpload_ExpiryDuringProcessing(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	f.processor.BeforeReturn = func(artifacts.Request) {
		f.clock.Advance(testTTL + time.Second)
	}

	_, err := f.uploader.Upload(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, []byte("x"))
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)

	snapshot, err := f.repo.Snapshot(h.SessionID)
	require.NoError(t, err)
	require.Empty(t, snapshot.Steps)
}

func TestUpload_CancelDuringProcessing(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	f.processor.BeforeReturn = func(artifacts.Request) {
		_, err := f.manager.Cancel(context.Background(), h.SessionID, testOwnerID)
		require.NoError(t, err)
	}

	_, err := f.uploader.Upload(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, []byte("x"))
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
	require.Equal(t, 0, f.repo.Len())
}

func TestUpload_SessionUsableWhileProcessing(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	// The session must stay readable and writable while an artifact is in
	// flight, otherwise this hook would deadlock.
	f.processor.BeforeReturn = func(req artifacts.Request) {
		if req.Step != sessions.StepFaceVerification {
			return
		}
		_, err := f.manager.Status(context.Background(), h.SessionID, testOwnerID)
		require.NoError(t, err)
		_, err = f.manager.RecordStep(context.Background(), h.SessionID, h.SessionToken, sessions.StepDocumentFront, "front")
		require.NoError(t, err)
	}

	d, err := f.uploader.Upload(context.Background(), h.SessionID, h.SessionToken, sessions.StepFaceVerification, []byte("face"))
	require.NoError(t, err)
	require.ElementsMatch(t, []sessions.StepKind{sessions.StepDocumentFront, sessions.StepFaceVerification}, d.CompletedSteps)
}

func TestUpload_ConcurrentStepsAreAllRecorded(t *testing.T) {
	f := setupTestFixture(t)
	h := f.create(t)

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 10; i++ {
		for _, step := range sessions.RequiredSteps() {
			wg.Add(1)
			go func(step sessions.StepKind) {
				defer wg.Done()
				_, err := f.uploader.Upload(context.Background(), h.SessionID, h.SessionToken, step, []byte("data"))
				errs <- err
			}(step)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.repo.Get(h.SessionID)
	require.NoError(t, err)
	require.Len(t, stored.Steps, len(sessions.RequiredSteps()))
	require.Empty(t, stored.MissingSteps())

	_, err = f.manager.Complete(context.Background(), h.SessionID, h.SessionToken)
	require.NoError(t, err)
}
