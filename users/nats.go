package users

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// publisher is the subset of *nats.Conn used here.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NATSRecord announces verified users on a subject for the account service to apply.
type NATSRecord struct {
	conn    publisher
	subject string
	nowTime func() time.Time
}

var _ VerificationRecord = (*NATSRecord)(nil)

func NewNATSRecord(conn publisher, subject string) *NATSRecord {
	return &NATSRecord{
		conn:    conn,
		subject: subject,
		nowTime: time.Now,
	}
}

func (n *NATSRecord) MarkVerified(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(VerifiedEvent{UserID: userID, VerifiedAt: n.nowTime().UTC()})
	if err != nil {
		return errors.Wrap(err, "[NATSRecord MarkVerified] marshal")
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return errors.Wrap(err, "[NATSRecord MarkVerified] publish")
	}

	log.Debug().Str("user_id", userID).Str("subject", n.subject).Msg("verified event published")
	return nil
}
