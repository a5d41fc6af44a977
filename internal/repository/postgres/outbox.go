package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/outbox"
	"github.com/jackc/pgx/v5"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

// OutboxRepo stores watch events in the outbox table. Rows are claimed with
// SKIP LOCKED so several runners can drain one table.
type OutboxRepo struct{ db *DB }

func NewOutboxRepo(db *DB) *OutboxRepo { return &OutboxRepo{db: db} }

const (
	qOutboxInsert = `
INSERT INTO outbox (idempotency_key, kind, data, traceparent, tracestate, baggage)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (idempotency_key) DO NOTHING`

	// Claims pending rows and rows whose claim is older than $2 seconds.
	qOutboxClaim = `
UPDATE outbox o
SET status = 'IN_PROGRESS', attempts = o.attempts + 1, updated_at = now()
WHERE o.idempotency_key IN (
    SELECT idempotency_key FROM outbox
    WHERE status = 'CREATED'
       OR (status = 'IN_PROGRESS' AND updated_at < now() - make_interval(secs => $2))
    ORDER BY created_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
RETURNING o.idempotency_key, o.kind, o.data, o.status, o.attempts,
          o.created_at, o.updated_at, o.traceparent, o.tracestate, o.baggage`

	qOutboxDone = `
UPDATE outbox SET status = 'SUCCESS', updated_at = now()
WHERE idempotency_key = ANY($1)`

	qOutboxPurge = `
DELETE FROM outbox WHERE status = 'SUCCESS' AND updated_at < $1`
)

// Enqueue stores a message together with the trace context of ctx. Inside
// a transaction started by the Transactor the insert joins that transaction.
func (r *OutboxRepo) Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error {
	tc := outbox.TraceFrom(ctx)

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qOutboxInsert, key, int(kind), data,
		tc.Traceparent, tc.Tracestate, tc.Baggage)
	if err != nil {
		return fmt.Errorf("outbox enqueue: %w", err)
	}
	return nil
}

func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errors.New("outbox pick: batch must be > 0")
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qOutboxClaim, batch, inProgressTTL.Seconds())
	if err != nil {
		return nil, fmt.Errorf("outbox pick: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, scanOutbox)
	if err != nil {
		return nil, fmt.Errorf("outbox pick: %w", err)
	}
	return msgs, nil
}

func scanOutbox(row pgx.CollectableRow) (outbox.Message, error) {
	var (
		m      outbox.Message
		kind   int
		status string
	)
	err := row.Scan(&m.IdempotencyKey, &kind, &m.Data, &status, &m.Attempts,
		&m.CreatedAt, &m.UpdatedAt, &m.Traceparent, &m.Tracestate, &m.Baggage)
	m.Kind = outbox.Kind(kind)
	m.Status = outbox.Status(status)
	return m, err
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.Pool.Exec(ctx, qOutboxDone, keys); err != nil {
		return fmt.Errorf("outbox mark success: %w", err)
	}
	return nil
}

func (r *OutboxRepo) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Pool.Exec(ctx, qOutboxPurge, olderThan)
	if err != nil {
		return 0, fmt.Errorf("outbox purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
