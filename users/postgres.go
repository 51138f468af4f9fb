package users

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/pkg/errors"
)

const markVerifiedSQL = `
	UPDATE users
	SET is_verified = TRUE,
	    verified_at = COALESCE(verified_at, NOW())
	WHERE id = $1
`

// execer is the subset of *pgxpool.Pool used here.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresRecord flags the user row as verified.
type PostgresRecord struct {
	db execer
}

var _ VerificationRecord = (*PostgresRecord)(nil)

// NewPostgresRecord accepts a *pgxpool.Pool (or anything with its Exec).
func NewPostgresRecord(db execer) *PostgresRecord {
	return &PostgresRecord{db: db}
}

func (p *PostgresRecord) MarkVerified(ctx context.Context, userID string) error {
	tag, err := p.db.Exec(ctx, markVerifiedSQL, userID)
	if err != nil {
		return errors.Wrap(err, "[PostgresRecord MarkVerified]")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(apperrors.ErrNotFound, "[PostgresRecord MarkVerified] user %s", userID)
	}
	return nil
}
