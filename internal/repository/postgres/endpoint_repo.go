package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
)

var _ endpoint.OverrideRepo = (*EndpointRepo)(nil)

type EndpointRepo struct {
	db *DB
	tx Transactor
}

func NewEndpointRepo(db *DB, tx Transactor) *EndpointRepo { return &EndpointRepo{db: db, tx: tx} }

const (
	qOverrideGet = `SELECT doc FROM endpoint_overrides WHERE tag = $1;`

	// Serializes writers of one tag even before its row exists.
	qOverrideLockTag = `SELECT pg_advisory_xact_lock(hashtext($1));`

	qOverrideGetForUpdate = `SELECT doc FROM endpoint_overrides WHERE tag = $1 FOR UPDATE;`

	qOverrideTags = `SELECT tag FROM endpoint_overrides ORDER BY tag;`

	qOverridePut = `
INSERT INTO endpoint_overrides (tag, doc, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (tag) DO UPDATE
SET doc = EXCLUDED.doc, updated_at = now();`

	qOverrideDelete = `DELETE FROM endpoint_overrides WHERE tag = $1;`

	qActiveList = `SELECT tag FROM active_endpoints ORDER BY seq;`

	qActiveAdd = `
INSERT INTO active_endpoints (tag) VALUES ($1)
ON CONFLICT (tag) DO NOTHING;`

	qActiveRemove = `DELETE FROM active_endpoints WHERE tag = $1;`
)

func (r *EndpointRepo) GetOverride(ctx context.Context, tag string) ([]byte, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var doc []byte
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qOverrideGet, tag).Scan(&doc); err != nil {
		return nil, notFound(err, endpoint.ErrNotFound, "get override")
	}
	return doc, nil
}

func (r *EndpointRepo) ListOverrideTags(ctx context.Context) ([]string, error) {
	return r.listTags(ctx, qOverrideTags)
}

func (r *EndpointRepo) PutOverride(ctx context.Context, tag string, doc []byte) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qOverridePut, tag, doc); err != nil {
		return fmt.Errorf("put override: %w", err)
	}
	return nil
}

func (r *EndpointRepo) UpdateOverride(ctx context.Context, tag string, fn func([]byte) ([]byte, error)) error {
	var fnErr error
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.execQueryer(ctx)
		if _, err := q.Exec(ctx, qOverrideLockTag, tag); err != nil {
			return fmt.Errorf("lock override: %w", err)
		}
		var cur []byte
		if err := q.QueryRow(ctx, qOverrideGetForUpdate, tag).Scan(&cur); err != nil {
			if err = notFound(err, endpoint.ErrNotFound, "get override"); !errors.Is(err, endpoint.ErrNotFound) {
				return err
			}
			cur = nil
		}
		next, err := fn(cur)
		if err != nil {
			fnErr = err
			return err
		}
		return r.PutOverride(ctx, tag, next)
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

func (r *EndpointRepo) DeleteOverride(ctx context.Context, tag string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qOverrideDelete, tag); err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

func (r *EndpointRepo) Purge(ctx context.Context, tag string) error {
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := r.DeleteOverride(ctx, tag); err != nil {
			return err
		}
		return r.RemoveActive(ctx, tag)
	})
}

func (r *EndpointRepo) ActiveTags(ctx context.Context) ([]string, error) {
	return r.listTags(ctx, qActiveList)
}

func (r *EndpointRepo) AddActive(ctx context.Context, tag string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qActiveAdd, tag); err != nil {
		return fmt.Errorf("add active: %w", err)
	}
	return nil
}

func (r *EndpointRepo) RemoveActive(ctx context.Context, tag string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qActiveRemove, tag); err != nil {
		return fmt.Errorf("remove active: %w", err)
	}
	return nil
}

func (r *EndpointRepo) listTags(ctx context.Context, q string) ([]string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
