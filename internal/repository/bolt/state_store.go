package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Feedwatch/internal/domain/state"
	bbolt "go.etcd.io/bbolt"
)

var _ state.Store = (*StateStore)(nil)

// StateStore keeps one JSON value per tag; each write is its own bolt
// transaction.
type StateStore struct{ d *DB }

func NewStateStore(d *DB) *StateStore { return &StateStore{d: d} }

func (s *StateStore) Load(_ context.Context, tag string) (*state.EndpointState, error) {
	var out *state.EndpointState
	err := s.d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		if raw := b.Get([]byte(tag)); raw != nil {
			var st state.EndpointState
			if err := json.Unmarshal(raw, &st); err != nil {
				return fmt.Errorf("decode state %q: %w", tag, err)
			}
			out = st.Normalize()
			return nil
		}
		out = state.New()
		return putJSON(b, tag, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *StateStore) Save(_ context.Context, tag string, st *state.EndpointState) error {
	return s.d.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketState), tag, st.Clone().Normalize())
	})
}

func (s *StateStore) Delete(_ context.Context, tag string) error {
	return s.d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Delete([]byte(tag))
	})
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return b.Put([]byte(key), raw)
}
