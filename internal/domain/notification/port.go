package notification

import "context"

// Repo keeps the delivery history shown by the control API.
type Repo interface {
	Create(ctx context.Context, n *Notification) error
	// ListByEndpoint returns the newest notifications for tag first.
	ListByEndpoint(ctx context.Context, tag string, limit int) ([]*Notification, error)
}
