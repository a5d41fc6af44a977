package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/google/uuid"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const (
	qNotifInsert = `
INSERT INTO notifications (id, endpoint_tag, channel, kind, recipient, sent_at, payload)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), $7)
RETURNING sent_at;`

	qNotifByEndpoint = `
SELECT id, endpoint_tag, channel, kind, recipient, sent_at, payload
FROM notifications
WHERE endpoint_tag = $1
ORDER BY sent_at DESC
LIMIT $2;`
)

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qNotifInsert,
		n.ID,
		n.EndpointTag,
		string(n.Channel),
		string(n.Kind),
		n.Recipient,
		nullTime(n.SentAt),
		n.Payload,
	).Scan(&n.SentAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListByEndpoint(ctx context.Context, tag string, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifByEndpoint, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0, limit)
	for rows.Next() {
		var (
			n       notification.Notification
			channel string
			kind    string
		)
		if err := rows.Scan(&n.ID, &n.EndpointTag, &channel, &kind, &n.Recipient, &n.SentAt, &n.Payload); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Channel = notification.Channel(channel)
		n.Kind = notification.Kind(kind)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
