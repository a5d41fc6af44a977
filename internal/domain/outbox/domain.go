// Package outbox describes the transactional outbox: events are written next
// to the state change that caused them and relayed to kafka by a runner.
package outbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

type Kind int

const KindWatchEvent Kind = 1

func (k Kind) String() string {
	if k == KindWatchEvent {
		return "watch_event"
	}
	return "unknown"
}

// TraceContext is the W3C trace context stored with a message.
type TraceContext struct {
	Traceparent string
	Tracestate  string
	Baggage     string
}

// TraceFrom captures the trace context of ctx.
func TraceFrom(ctx context.Context) TraceContext {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return TraceContext{Traceparent: c.Get("traceparent"), Tracestate: c.Get("tracestate"), Baggage: c.Get("baggage")}
}

// Context returns a background context carrying the stored trace, so relaying
// a message continues the trace that enqueued it.
func (t TraceContext) Context() context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), propagation.MapCarrier{
		"traceparent": t.Traceparent,
		"tracestate":  t.Tracestate,
		"baggage":     t.Baggage,
	})
}

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	// Attempts counts claims, including the current one.
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	TraceContext
}

type Repository interface {
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error
	// PickBatch claims up to batch pending messages, reclaiming ones stuck in
	// progress for longer than inProgressTTL.
	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)
	MarkSuccess(ctx context.Context, keys []string) error
	// Purge deletes delivered messages last updated before olderThan.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
