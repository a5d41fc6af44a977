// Package registry resolves endpoint configurations from immutable base
// definitions and persisted overrides.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/tagmu"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

var _ endpoint.Registry = (*Registry)(nil)

// Fields callers may never set through an update.
var derivedFields = []string{"smsEndpoint", "emailEndpoint", "tag", "updatedAt"}

type Registry struct {
	repo   endpoint.OverrideRepo
	global endpoint.GlobalSettings
	schema *jsonschema.Schema
	now    func() time.Time
	log    *zap.Logger
	locks  *tagmu.Locks

	mu   sync.RWMutex
	base map[string]*endpoint.Config
}

func New(repo endpoint.OverrideRepo, global endpoint.GlobalSettings, base map[string]endpoint.Config) (*Registry, error) {
	sch, err := compilePartialSchema()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		repo:   repo,
		global: global,
		schema: sch,
		now:    time.Now,
		log:    zap.L().With(zap.String("component", "registry")),
		locks:  tagmu.New(),
	}
	r.SetBase(base)
	return r, nil
}

func (r *Registry) WithLogger(l *zap.Logger) *Registry {
	if l != nil {
		r.log = l.With(zap.String("component", "registry"))
	}
	return r
}

// WithClock replaces the time source used for updatedAt.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	if now != nil {
		r.now = now
	}
	return r
}

// SetBase swaps the base definitions, e.g. after a config reload. A
// definition's own tag wins over its map key.
func (r *Registry) SetBase(base map[string]endpoint.Config) {
	next := make(map[string]*endpoint.Config, len(base))
	for key, cfg := range base {
		c := cfg
		tag := strings.TrimSpace(c.Tag)
		if tag == "" {
			tag = key
		}
		c.Tag = tag
		next[tag] = c.Clone()
	}
	r.mu.Lock()
	r.base = next
	r.mu.Unlock()
}

func (r *Registry) HasBase(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.base[tag]
	return ok
}

func (r *Registry) Get(ctx context.Context, tag string) (*endpoint.Config, error) {
	doc, err := r.repo.GetOverride(ctx, tag)
	switch {
	case err == nil:
		var cfg endpoint.Config
		if err := json.Unmarshal(doc, &cfg); err != nil {
			return nil, fmt.Errorf("decode override %q: %w", tag, err)
		}
		return r.finish(tag, &cfg), nil
	case errors.Is(err, endpoint.ErrNotFound):
	default:
		return nil, fmt.Errorf("get override: %w", err)
	}

	r.mu.RLock()
	b, ok := r.base[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", endpoint.ErrNotFound, tag)
	}
	return r.finish(tag, b.Clone()), nil
}

func (r *Registry) ListTags(ctx context.Context) ([]string, error) {
	overrides, err := r.repo.ListOverrideTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	seen := make(map[string]struct{}, len(overrides))
	r.mu.RLock()
	for tag := range r.base {
		seen[tag] = struct{}{}
	}
	r.mu.RUnlock()
	for _, tag := range overrides {
		seen[tag] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

// Upsert merges partial over the existing override over the base definition
// and stores the result as the new override. Updates of one tag are
// serialized so concurrent partial updates never drop each other's fields.
func (r *Registry) Upsert(ctx context.Context, tag string, partial map[string]any) (*endpoint.Config, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag", endpoint.ErrInvalidConfig)
	}
	if err := validatePartial(r.schema, partial); err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(tag)
	defer unlock()

	var cfg endpoint.Config
	err := r.repo.UpdateOverride(ctx, tag, func(current []byte) ([]byte, error) {
		doc, err := r.merge(tag, current, partial)
		if err != nil {
			return nil, err
		}
		cfg = endpoint.Config{}
		if err := json.Unmarshal(doc, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", endpoint.ErrInvalidConfig, err)
		}
		if strings.TrimSpace(cfg.APIEndpoint) == "" {
			return nil, fmt.Errorf("%w: apiEndpoint is required", endpoint.ErrInvalidConfig)
		}
		return doc, nil
	})
	if err != nil {
		if errors.Is(err, endpoint.ErrInvalidConfig) || errors.Is(err, endpoint.ErrImmutableField) {
			return nil, err
		}
		return nil, fmt.Errorf("update override: %w", err)
	}
	r.log.Info("endpoint override saved", zap.String("tag", tag), zap.Int("fields", len(partial)))
	return r.finish(tag, &cfg), nil
}

// merge layers base, the current override document and partial into the
// next override document.
func (r *Registry) merge(tag string, current []byte, partial map[string]any) ([]byte, error) {
	merged, err := r.baseDocument(tag)
	if err != nil {
		return nil, err
	}
	if current != nil {
		existing, err := decodeDocument(current)
		if err != nil {
			return nil, err
		}
		for k, v := range existing {
			merged[k] = v
		}
	}

	if prev, ok := merged["apiEndpoint"].(string); ok && prev != "" {
		if next, ok := partial["apiEndpoint"].(string); ok && next != prev {
			return nil, fmt.Errorf("%w: apiEndpoint cannot change once set", endpoint.ErrImmutableField)
		}
	}
	for k, v := range partial {
		merged[k] = v
	}
	for _, k := range derivedFields {
		delete(merged, k)
	}

	merged["tag"] = tag
	merged["smsEndpoint"] = r.global.SMSEndpoint
	merged["emailEndpoint"] = r.global.EmailEndpoint
	merged["updatedAt"] = r.now().UTC()

	doc, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode override: %w", err)
	}
	return doc, nil
}

// Remove clears the override. Tags without a base definition disappear
// entirely, including their active flag.
func (r *Registry) Remove(ctx context.Context, tag string) (endpoint.RemoveResult, error) {
	unlock := r.locks.Lock(tag)
	defer unlock()

	if r.HasBase(tag) {
		if err := r.repo.DeleteOverride(ctx, tag); err != nil {
			return endpoint.RemoveResult{}, fmt.Errorf("delete override: %w", err)
		}
		r.log.Info("endpoint reverted to base", zap.String("tag", tag))
		return endpoint.RemoveResult{Deleted: false}, nil
	}

	if _, err := r.repo.GetOverride(ctx, tag); err != nil {
		if errors.Is(err, endpoint.ErrNotFound) {
			return endpoint.RemoveResult{}, fmt.Errorf("%w: %s", endpoint.ErrNotFound, tag)
		}
		return endpoint.RemoveResult{}, fmt.Errorf("get override: %w", err)
	}
	if err := r.repo.Purge(ctx, tag); err != nil {
		return endpoint.RemoveResult{}, fmt.Errorf("purge endpoint: %w", err)
	}
	r.log.Info("endpoint deleted", zap.String("tag", tag))
	return endpoint.RemoveResult{Deleted: true}, nil
}

func (r *Registry) ActiveTags(ctx context.Context) ([]string, error) {
	tags, err := r.repo.ActiveTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("active tags: %w", err)
	}
	return tags, nil
}

func (r *Registry) SetActive(ctx context.Context, tag string, active bool) error {
	if !active {
		return r.repo.RemoveActive(ctx, tag)
	}
	if _, err := r.Get(ctx, tag); err != nil {
		return err
	}
	return r.repo.AddActive(ctx, tag)
}

func (r *Registry) finish(tag string, cfg *endpoint.Config) *endpoint.Config {
	cfg.Tag = tag
	cfg.SMSEndpoint = r.global.SMSEndpoint
	cfg.EmailEndpoint = r.global.EmailEndpoint
	return cfg
}

func (r *Registry) baseDocument(tag string) (map[string]any, error) {
	r.mu.RLock()
	b, ok := r.base[tag]
	r.mu.RUnlock()
	if !ok {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode base %q: %w", tag, err)
	}
	return decodeDocument(raw)
}

func decodeDocument(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
