package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Request is one captured artifact to hand to document/face processing.
type Request struct {
	SessionID string
	Step      sessions.StepKind
	Data      []byte
}

// Processor forwards an artifact and returns a stable reference to it.
// Implementations may be slow and may fail; failures must wrap ErrProcessing.
type Processor interface {
	Process(ctx context.Context, req Request) (string, error)
}

// ObjectStore persists artifact bytes under a key.
type ObjectStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// StoringProcessor hands artifacts to an ObjectStore and uses the object key as
// the artifact reference. No bytes are retained after Process returns.
type StoringProcessor struct {
	store ObjectStore
	newID func() string
}

var _ Processor = (*StoringProcessor)(nil)

// NewStoringProcessor creates a processor writing to store
func NewStoringProcessor(store ObjectStore) *StoringProcessor {
	return &StoringProcessor{
		store: store,
		newID: func() string { return uuid.New().String() },
	}
}

func (p *StoringProcessor) Process(ctx context.Context, req Request) (string, error) {
	if len(req.Data) == 0 {
		return "", errors.Wrap(apperrors.ErrProcessing, "[StoringProcessor Process] empty artifact")
	}

	contentType := http.DetectContentType(req.Data)
	ext, ok := extensions[contentType]
	if !ok {
		ext = ".bin"
	}
	key := fmt.Sprintf("%s/%s-%s%s", req.SessionID, req.Step, p.newID(), ext)

	if err := p.store.Save(ctx, key, bytes.NewReader(req.Data), int64(len(req.Data)), contentType); err != nil {
		return "", errors.Wrapf(apperrors.ErrProcessing, "[StoringProcessor Process] save %s: %v", key, err)
	}

	log.Debug().
		Str("session_id", req.SessionID).
		Str("step", string(req.Step)).
		Str("content_type", contentType).
		Int("bytes", len(req.Data)).
		Msg("artifact stored")
	return key, nil
}
