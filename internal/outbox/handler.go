package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"github.com/NordCoder/Feedwatch/internal/domain/outbox"
	"github.com/NordCoder/Feedwatch/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind outbox.Kind, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind.String()
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle",
			trace.WithAttributes(attribute.String("outbox.kind", kind.String())))
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind.String()).Inc()
		}
		return err
	}
}

// MakeGlobalOutboxHandler routes stored watch events to pub.
func MakeGlobalOutboxHandler(pub events.Publisher, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindWatchEvent:
			base := func(ctx context.Context, data []byte) error {
				var ev events.Event
				if err := json.Unmarshal(data, &ev); err != nil {
					return fmt.Errorf("unmarshal watch event: %w", err)
				}
				return pub.Publish(ctx, ev)
			}
			return instrument(kind, base, pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}

// Publisher stores events in the outbox instead of sending them, keyed by
// event id so a replayed enqueue is a no-op.
type Publisher struct {
	repo outbox.Repository
}

func NewPublisher(repo outbox.Repository) *Publisher { return &Publisher{repo: repo} }

var _ events.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal watch event: %w", err)
	}
	return p.repo.Enqueue(ctx, ev.ID, outbox.KindWatchEvent, data)
}
