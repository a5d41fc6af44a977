package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Feedwatch/internal/domain/state"
)

var _ state.Store = (*StateRepo)(nil)

type StateRepo struct{ db *DB }

func NewStateRepo(db *DB) *StateRepo { return &StateRepo{db: db} }

const (
	// Inserted rows are not visible to the outer SELECT, hence the UNION.
	qStateLoad = `
WITH ins AS (
   INSERT INTO endpoint_state (tag, state)
   VALUES ($1, $2)
   ON CONFLICT (tag) DO NOTHING
   RETURNING state
)
SELECT state FROM ins
UNION ALL
SELECT state FROM endpoint_state WHERE tag = $1
LIMIT 1;`

	qStateSave = `
INSERT INTO endpoint_state (tag, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (tag) DO UPDATE
SET state = EXCLUDED.state, updated_at = now();`

	qStateDelete = `DELETE FROM endpoint_state WHERE tag = $1;`
)

func (r *StateRepo) Load(ctx context.Context, tag string) (*state.EndpointState, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	def, err := json.Marshal(state.New())
	if err != nil {
		return nil, fmt.Errorf("encode default state: %w", err)
	}

	var raw []byte
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qStateLoad, tag, def).Scan(&raw); err != nil {
		return nil, notFound(err, state.ErrNotFound, "load state")
	}
	var st state.EndpointState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode state %q: %w", tag, err)
	}
	return st.Normalize(), nil
}

func (r *StateRepo) Save(ctx context.Context, tag string, st *state.EndpointState) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	raw, err := json.Marshal(st.Clone().Normalize())
	if err != nil {
		return fmt.Errorf("encode state %q: %w", tag, err)
	}
	if _, err := r.db.execQueryer(ctx).Exec(ctx, qStateSave, tag, raw); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (r *StateRepo) Delete(ctx context.Context, tag string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qStateDelete, tag); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
