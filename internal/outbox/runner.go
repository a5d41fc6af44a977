package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/outbox"
	"github.com/NordCoder/Feedwatch/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	mPicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedwatch_outbox_picked_total", Help: "Messages claimed by outbox workers.",
	})
	mDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedwatch_outbox_delivered_total", Help: "Messages relayed and marked delivered.",
	})
	mErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedwatch_outbox_errors_total", Help: "Outbox failures by stage.",
	}, []string{"stage"})
	mPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedwatch_outbox_purged_total", Help: "Delivered messages removed after retention.",
	})
	mTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "feedwatch_outbox_tick_duration_seconds", Help: "Time spent on one picked batch.",
		Buckets: prometheus.DefBuckets,
	})
)

type Config struct {
	Workers       int
	BatchSize     int
	WaitTime      time.Duration
	InProgressTTL time.Duration
	// Retention is how long delivered messages are kept; zero keeps them.
	Retention time.Duration
}

// Runner drains the outbox: each worker picks a batch on every tick,
// dispatches messages by kind and marks the delivered ones.
type Runner struct {
	log      *zap.Logger
	repo     outbox.Repository
	dispatch outbox.GlobalHandler
	cfg      Config
	wg       sync.WaitGroup
}

func NewOutboxRunner(log *zap.Logger, repo outbox.Repository, dispatch outbox.GlobalHandler, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = time.Second
	}
	if cfg.InProgressTTL <= 0 {
		cfg.InProgressTTL = 30 * time.Second
	}
	if log == nil {
		log = zap.L()
	}
	return &Runner{
		log:      log.With(zap.String("component", "outbox.runner")),
		repo:     repo,
		dispatch: dispatch,
		cfg:      cfg,
	}
}

// Start launches the workers and returns; Wait blocks until they exit
// after ctx is done.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	if r.cfg.Retention > 0 {
		r.wg.Add(1)
		go r.janitor(ctx)
	}
}

func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	r.log.Info("outbox worker started", zap.Duration("wait", r.cfg.WaitTime))

	ticker := time.NewTicker(r.cfg.WaitTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox worker stop")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// janitor purges delivered messages once per retention/10, at most hourly.
func (r *Runner) janitor(ctx context.Context) {
	defer r.wg.Done()
	every := min(r.cfg.Retention/10, time.Hour)
	ticker := time.NewTicker(max(every, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.purge(ctx)
		}
	}
}

func (r *Runner) purge(ctx context.Context) int64 {
	n, err := r.repo.Purge(ctx, time.Now().Add(-r.cfg.Retention))
	if err != nil {
		mErrors.WithLabelValues("purge").Inc()
		r.log.Warn("outbox purge failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		mPurged.Add(float64(n))
		r.log.Debug("outbox purged", zap.Int64("rows", n))
	}
	return n
}

// tick processes one batch and reports how many messages were delivered.
func (r *Runner) tick(ctx context.Context) int {
	t0 := time.Now()
	defer func() { mTickDur.Observe(time.Since(t0).Seconds()) }()

	ctx, span := otel.Tracer("outbox.runner").Start(ctx, "outbox.tick",
		trace.WithAttributes(
			attribute.Int("batch.limit", r.cfg.BatchSize),
			attribute.String("in_progress_ttl", r.cfg.InProgressTTL.String()),
		),
	)
	defer span.End()

	messages, err := r.repo.PickBatch(ctx, r.cfg.BatchSize, r.cfg.InProgressTTL)
	if err != nil {
		span.RecordError(err)
		mErrors.WithLabelValues("pick").Inc()
		obs.WithTrace(ctx, r.log).Error("outbox pick error", zap.Error(err))
		return 0
	}
	mPicked.Add(float64(len(messages)))
	span.SetAttributes(attribute.Int("batch.size", len(messages)))
	if len(messages) == 0 {
		return 0
	}

	okKeys := make([]string, 0, len(messages))
	for _, m := range messages {
		if r.deliver(m) {
			okKeys = append(okKeys, m.IdempotencyKey)
		}
	}
	if len(okKeys) == 0 {
		return 0
	}
	if err := r.repo.MarkSuccess(ctx, okKeys); err != nil {
		span.RecordError(err)
		mErrors.WithLabelValues("mark").Inc()
		obs.WithTrace(ctx, r.log).Error("mark success error", zap.Error(err))
		return 0
	}
	return len(okKeys)
}

// deliver continues the trace stored with the message, not the tick's.
func (r *Runner) deliver(m outbox.Message) bool {
	ctx, span := otel.Tracer("outbox.runner").Start(m.TraceContext.Context(), "outbox.dispatch",
		trace.WithAttributes(
			attribute.String("outbox.key", m.IdempotencyKey),
			attribute.String("outbox.kind", m.Kind.String()),
			attribute.Int("outbox.attempt", m.Attempts),
		),
	)
	defer span.End()
	log := obs.WithTrace(ctx, r.log).With(zap.String("key", m.IdempotencyKey), zap.Stringer("kind", m.Kind), zap.Int("attempt", m.Attempts))

	handler, err := r.dispatch(m.Kind)
	if err != nil {
		span.RecordError(err)
		mErrors.WithLabelValues("dispatch").Inc()
		log.Error("no handler for kind", zap.Error(err))
		return false
	}
	if err := handler(ctx, m.Data); err != nil {
		span.RecordError(err)
		mErrors.WithLabelValues("handler").Inc()
		log.Error("handler error", zap.Error(err))
		return false
	}
	mDelivered.Inc()
	return true
}
