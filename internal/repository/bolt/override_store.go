package bolt

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	bbolt "go.etcd.io/bbolt"
)

var _ endpoint.OverrideRepo = (*OverrideStore)(nil)

// OverrideStore keeps override documents keyed by tag and the active set as
// tag -> activation sequence.
type OverrideStore struct{ d *DB }

func NewOverrideStore(d *DB) *OverrideStore { return &OverrideStore{d: d} }

func (s *OverrideStore) GetOverride(_ context.Context, tag string) ([]byte, error) {
	var out []byte
	err := s.d.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketOverrides).Get([]byte(tag))
		if raw == nil {
			return endpoint.ErrNotFound
		}
		out = append([]byte(nil), raw...)
		return nil
	})
	return out, err
}

func (s *OverrideStore) ListOverrideTags(_ context.Context) ([]string, error) {
	var out []string
	err := s.d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOverrides).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (s *OverrideStore) PutOverride(_ context.Context, tag string, doc []byte) error {
	return s.d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOverrides).Put([]byte(tag), doc)
	})
}

func (s *OverrideStore) UpdateOverride(_ context.Context, tag string, fn func([]byte) ([]byte, error)) error {
	return s.d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketOverrides)
		var cur []byte
		if raw := b.Get([]byte(tag)); raw != nil {
			cur = append([]byte(nil), raw...)
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		return b.Put([]byte(tag), next)
	})
}

func (s *OverrideStore) DeleteOverride(_ context.Context, tag string) error {
	return s.d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOverrides).Delete([]byte(tag))
	})
}

func (s *OverrideStore) Purge(_ context.Context, tag string) error {
	return s.d.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketOverrides).Delete([]byte(tag)); err != nil {
			return err
		}
		return tx.Bucket(bucketActive).Delete([]byte(tag))
	})
}

func (s *OverrideStore) ActiveTags(_ context.Context) ([]string, error) {
	type entry struct {
		tag string
		seq uint64
	}
	var list []entry
	err := s.d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketActive).ForEach(func(k, v []byte) error {
			var seq uint64
			if len(v) == 8 {
				seq = binary.BigEndian.Uint64(v)
			}
			list = append(list, entry{tag: string(k), seq: seq})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.tag)
	}
	return out, nil
}

func (s *OverrideStore) AddActive(_ context.Context, tag string) error {
	return s.d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketActive)
		if b.Get([]byte(tag)) != nil {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put([]byte(tag), u64(seq))
	})
}

func (s *OverrideStore) RemoveActive(_ context.Context, tag string) error {
	return s.d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketActive).Delete([]byte(tag))
	})
}
