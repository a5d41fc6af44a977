package state

import "context"

type Store interface {
	// Load returns the state of tag, creating and persisting the default
	// state on first access.
	Load(ctx context.Context, tag string) (*EndpointState, error)
	Save(ctx context.Context, tag string, s *EndpointState) error
	Delete(ctx context.Context, tag string) error
}
