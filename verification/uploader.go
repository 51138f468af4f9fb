package verification

import (
	"context"

	"github.com/jrsteele09/go-verification-handoff/artifacts"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/jrsteele09/go-verification-handoff/metrics"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultMaxUploadBytes int64 = 10 << 20

// Uploader coordinates one step upload from the phone: validate, forward the
// artifact, record the resulting reference.
//
// No session lock is held while the processor runs. If the session expires or
// is cancelled meanwhile, the final RecordStep fails with ErrInvalidSession.
type Uploader struct {
	manager   *Manager
	processor artifacts.Processor
	maxBytes  int64
	metrics   *metrics.Metrics
}

// UploaderOption defines a function type to modify the Uploader instance.
type UploaderOption func(*Uploader)

// WithMaxUploadBytes bounds a single artifact.
func WithMaxUploadBytes(n int64) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.maxBytes = n
		}
	}
}

// WithUploadMetrics records processing failures on m.
func WithUploadMetrics(m *metrics.Metrics) UploaderOption {
	return func(u *Uploader) {
		u.metrics = m
	}
}

func NewUploader(manager *Manager, processor artifacts.Processor, options ...UploaderOption) (*Uploader, error) {
	if manager == nil {
		return nil, errors.New("[NewUploader] manager is required")
	}
	if processor == nil {
		return nil, errors.New("[NewUploader] processor is required")
	}
	u := &Uploader{
		manager:   manager,
		processor: processor,
		maxBytes:  DefaultMaxUploadBytes,
	}
	for _, opt := range options {
		opt(u)
	}
	return u, nil
}

// MaxBytes is the largest artifact Upload accepts.
func (u *Uploader) MaxBytes() int64 {
	return u.maxBytes
}

// Upload records step for the session identified by the phone's credentials.
// A processing failure leaves the session untouched and may simply be retried.
func (u *Uploader) Upload(ctx context.Context, sessionID, sessionToken string, step sessions.StepKind, data []byte) (Descriptor, error) {
	if _, err := sessions.ParseStepKind(string(step)); err != nil {
		return Descriptor{}, err
	}
	if _, err := u.manager.Validate(ctx, sessionID, sessionToken); err != nil {
		return Descriptor{}, err
	}
	if int64(len(data)) > u.maxBytes {
		return Descriptor{}, errors.Wrapf(apperrors.ErrPayloadTooLarge, "[Uploader Upload] %d bytes", len(data))
	}

	ref, err := u.processor.Process(ctx, artifacts.Request{SessionID: sessionID, Step: step, Data: data})
	if err != nil {
		u.metrics.ProcessingFailed(string(step))
		log.Warn().Err(err).Str("session_id", sessionID).Str("step", string(step)).Msg("artifact processing failed")
		if !errors.Is(err, apperrors.ErrProcessing) {
			err = errors.Wrapf(apperrors.ErrProcessing, "[Uploader Upload] %v", err)
		}
		return Descriptor{}, err
	}

	session, err := u.manager.RecordStep(ctx, sessionID, sessionToken, step, ref)
	if err != nil {
		return Descriptor{}, err
	}
	return describe(session), nil
}
