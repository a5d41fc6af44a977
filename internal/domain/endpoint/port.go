package endpoint

import "context"

type RemoveResult struct {
	// Deleted is true when the endpoint is gone entirely, false when it
	// reverted to its base definition.
	Deleted bool
}

type Registry interface {
	Get(ctx context.Context, tag string) (*Config, error)
	ListTags(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, tag string, partial map[string]any) (*Config, error)
	Remove(ctx context.Context, tag string) (RemoveResult, error)

	ActiveTags(ctx context.Context) ([]string, error)
	SetActive(ctx context.Context, tag string, active bool) error
}

// OverrideRepo persists per-tag override documents and the active tag set.
// Overrides are opaque JSON documents.
type OverrideRepo interface {
	GetOverride(ctx context.Context, tag string) ([]byte, error)
	ListOverrideTags(ctx context.Context) ([]string, error)
	PutOverride(ctx context.Context, tag string, doc []byte) error
	// UpdateOverride replaces the override of tag with fn(current) as one
	// atomic read-modify-write. current is nil when tag has no override. An
	// error from fn aborts the update and is returned as is.
	UpdateOverride(ctx context.Context, tag string, fn func(current []byte) ([]byte, error)) error
	// Purge drops the override and the active flag of tag together.
	Purge(ctx context.Context, tag string) error
	DeleteOverride(ctx context.Context, tag string) error

	ActiveTags(ctx context.Context) ([]string, error)
	AddActive(ctx context.Context, tag string) error
	RemoveActive(ctx context.Context, tag string) error
}
