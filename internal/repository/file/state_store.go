package file

import (
	"context"
	"sync"

	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"go.uber.org/zap"
)

var _ state.Store = (*StateStore)(nil)

// stateDocument is the on-disk layout: per-tag states under "endpoints" and
// the single-endpoint fields of older deployments at the top level.
type stateDocument struct {
	state.EndpointState
	Endpoints map[string]*state.EndpointState `json:"endpoints"`
}

// StateStore keeps every endpoint state in one JSON file. Writes replace the
// whole file atomically and are serialized in-process.
type StateStore struct {
	path      string
	legacyTag string
	mu        sync.Mutex
	log       *zap.Logger
}

// NewStateStore opens a store at path. When legacyTag is set, the first load
// of that tag adopts the top-level legacy fields if present.
func NewStateStore(path, legacyTag string) *StateStore {
	return &StateStore{
		path:      path,
		legacyTag: legacyTag,
		log:       zap.L().With(zap.String("component", "file.state")),
	}
}

func (s *StateStore) WithLogger(l *zap.Logger) *StateStore {
	if l == nil {
		return s
	}
	s.log = l.With(zap.String("component", "file.state"), zap.String("path", s.path))
	return s
}

func (s *StateStore) Load(_ context.Context, tag string) (*state.EndpointState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if st, ok := doc.Endpoints[tag]; ok && st != nil {
		return st.Clone().Normalize(), nil
	}

	st := state.New()
	if tag != "" && tag == s.legacyTag && doc.LastAPIStatus != "" {
		st = doc.EndpointState.Clone().Normalize()
		s.log.Info("adopted legacy state", zap.String("tag", tag))
	}
	doc.Endpoints[tag] = st
	if err := writeJSON(s.path, doc); err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

func (s *StateStore) Save(_ context.Context, tag string, st *state.EndpointState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Endpoints[tag] = st.Clone().Normalize()
	return writeJSON(s.path, doc)
}

func (s *StateStore) Delete(_ context.Context, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Endpoints[tag]; !ok {
		return nil
	}
	delete(doc.Endpoints, tag)
	return writeJSON(s.path, doc)
}

func (s *StateStore) read() (*stateDocument, error) {
	var doc stateDocument
	if err := readJSON(s.path, &doc); err != nil {
		return nil, err
	}
	if doc.Endpoints == nil {
		doc.Endpoints = map[string]*state.EndpointState{}
	}
	return &doc, nil
}
