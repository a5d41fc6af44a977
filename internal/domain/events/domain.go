package events

import (
	"context"
	"time"
)

type Kind string

const (
	KindItemsNotified Kind = "items_notified"
	KindAPIFailure    Kind = "api_failure"
	KindAPIRecovered  Kind = "api_recovered"
	KindAutoUnmuted   Kind = "auto_unmuted"
	KindMuted         Kind = "muted"
	KindUnmuted       Kind = "unmuted"
)

// Event describes something that happened to an endpoint during a tick or
// through the control surface.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Tag        string         `json:"tag"`
	At         time.Time      `json:"at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
