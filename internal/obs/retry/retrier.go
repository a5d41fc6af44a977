package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Backoff interface {
	Next(attempt int) time.Duration
}

// ExpoJitter doubles Base per attempt up to Max and spreads the result by
// +/- Jitter.
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(2, float64(max(attempt, 0)))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	return time.Duration(d)
}

type Policy struct {
	Name      string
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
}

const (
	outcomeOK        = "ok"
	outcomeExhausted = "exhausted"
	outcomeAborted   = "aborted"
	outcomeCanceled  = "canceled"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedwatch_retry_attempts_total",
		Help: "Calls made inside retry.Do, first try included.",
	}, []string{"name"})
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedwatch_retry_outcomes_total",
		Help: "Finished retry.Do calls by outcome (ok, exhausted, aborted, canceled).",
	}, []string{"name", "outcome"})
	durationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedwatch_retry_duration_seconds",
		Help:    "Wall time of a retry.Do call including backoff.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

func (p Policy) withDefaults() Policy {
	if p.Name == "" {
		p.Name = "default"
	}
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return err != nil }
	}
	if p.Backoff == nil {
		p.Backoff = ExpoJitter{Base: 100 * time.Millisecond, Max: 5 * time.Second}
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error from fn is returned unchanged.
func Do(ctx context.Context, fn func() error, p Policy) error {
	p = p.withDefaults()
	start := time.Now()
	span := trace.SpanFromContext(ctx)

	finish := func(outcome string, err error) error {
		outcomesTotal.WithLabelValues(p.Name, outcome).Inc()
		durationSeconds.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
		return err
	}

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return finish(outcomeCanceled, err)
		}

		err := fn()
		attemptsTotal.WithLabelValues(p.Name).Inc()
		if err == nil {
			return finish(outcomeOK, nil)
		}
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		if span.IsRecording() {
			span.AddEvent("retry.attempt", trace.WithAttributes(
				attribute.String("retry.name", p.Name),
				attribute.Int("retry.attempt", i+1),
				attribute.String("retry.error", err.Error()),
			))
		}

		retryable := p.Retryable(err)
		if !retryable || i == p.Attempts-1 {
			if p.OnExhaust != nil {
				p.OnExhaust(err)
			}
			if !retryable {
				return finish(outcomeAborted, err)
			}
			return finish(outcomeExhausted, err)
		}

		t := time.NewTimer(p.Backoff.Next(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return finish(outcomeCanceled, ctx.Err())
		case <-t.C:
		}
	}
}
