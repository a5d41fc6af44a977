package file

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
)

var _ endpoint.OverrideRepo = (*OverrideStore)(nil)

type overrideDocument struct {
	ActiveEndpointTags []string                   `json:"activeEndpointTags"`
	EndpointOverrides  map[string]json.RawMessage `json:"endpointOverrides"`
}

// OverrideStore keeps endpoint overrides and the active tag set in one JSON
// file.
type OverrideStore struct {
	path string
	mu   sync.Mutex
}

func NewOverrideStore(path string) *OverrideStore {
	return &OverrideStore{path: path}
}

func (s *OverrideStore) GetOverride(_ context.Context, tag string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	raw, ok := doc.EndpointOverrides[tag]
	if !ok {
		return nil, endpoint.ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *OverrideStore) ListOverrideTags(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(doc.EndpointOverrides))
	for tag := range doc.EndpointOverrides {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

func (s *OverrideStore) PutOverride(_ context.Context, tag string, raw []byte) error {
	return s.update(func(doc *overrideDocument) bool {
		doc.EndpointOverrides[tag] = append(json.RawMessage(nil), raw...)
		return true
	})
}

func (s *OverrideStore) UpdateOverride(_ context.Context, tag string, fn func([]byte) ([]byte, error)) error {
	var fnErr error
	err := s.update(func(doc *overrideDocument) bool {
		var cur []byte
		if raw, ok := doc.EndpointOverrides[tag]; ok {
			cur = append([]byte(nil), raw...)
		}
		next, err := fn(cur)
		if err != nil {
			fnErr = err
			return false
		}
		doc.EndpointOverrides[tag] = next
		return true
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

func (s *OverrideStore) DeleteOverride(_ context.Context, tag string) error {
	return s.update(func(doc *overrideDocument) bool {
		if _, ok := doc.EndpointOverrides[tag]; !ok {
			return false
		}
		delete(doc.EndpointOverrides, tag)
		return true
	})
}

func (s *OverrideStore) Purge(_ context.Context, tag string) error {
	return s.update(func(doc *overrideDocument) bool {
		delete(doc.EndpointOverrides, tag)
		doc.ActiveEndpointTags = without(doc.ActiveEndpointTags, tag)
		return true
	})
}

func (s *OverrideStore) ActiveTags(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return append([]string{}, doc.ActiveEndpointTags...), nil
}

func (s *OverrideStore) AddActive(_ context.Context, tag string) error {
	return s.update(func(doc *overrideDocument) bool {
		for _, t := range doc.ActiveEndpointTags {
			if t == tag {
				return false
			}
		}
		doc.ActiveEndpointTags = append(doc.ActiveEndpointTags, tag)
		return true
	})
}

func (s *OverrideStore) RemoveActive(_ context.Context, tag string) error {
	return s.update(func(doc *overrideDocument) bool {
		n := len(doc.ActiveEndpointTags)
		doc.ActiveEndpointTags = without(doc.ActiveEndpointTags, tag)
		return len(doc.ActiveEndpointTags) != n
	})
}

func (s *OverrideStore) update(fn func(doc *overrideDocument) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if !fn(doc) {
		return nil
	}
	return writeJSON(s.path, doc)
}

func (s *OverrideStore) read() (*overrideDocument, error) {
	var doc overrideDocument
	if err := readJSON(s.path, &doc); err != nil {
		return nil, err
	}
	if doc.EndpointOverrides == nil {
		doc.EndpointOverrides = map[string]json.RawMessage{}
	}
	if doc.ActiveEndpointTags == nil {
		doc.ActiveEndpointTags = []string{}
	}
	return &doc, nil
}

func without(list []string, tag string) []string {
	out := list[:0]
	for _, t := range list {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}
