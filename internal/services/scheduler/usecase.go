package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"github.com/NordCoder/Feedwatch/internal/domain/item"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"github.com/NordCoder/Feedwatch/internal/mapper"
	"github.com/NordCoder/Feedwatch/internal/obs"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/NordCoder/Feedwatch/internal/services/dispatcher"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeInvalid  Outcome = "invalid_config"
	OutcomeFailure  Outcome = "api_failure"
	OutcomeMuted    Outcome = "muted"
	OutcomeIdle     Outcome = "idle"
	OutcomeNotified Outcome = "notified"
)

// Notifier delivers the three kinds of alerts a tick can raise.
type Notifier interface {
	NotifyItems(ctx context.Context, cfg *endpoint.Config, items []item.Item) []dispatcher.Result
	NotifyFailure(ctx context.Context, cfg *endpoint.Config, status int, errText string) []dispatcher.Result
	NotifyRecovery(ctx context.Context, cfg *endpoint.Config, previous string) []dispatcher.Result
}

type Usecase struct {
	Registry endpoint.Registry
	States   state.Store
	Source   datasource.Fetcher
	Notifier Notifier
	Events   events.Publisher
	Map      mapper.Func
	Clock    clock.Clock
	Log      *zap.Logger
}

func NewUC(reg endpoint.Registry, states state.Store, src datasource.Fetcher, n Notifier) *Usecase {
	return &Usecase{
		Registry: reg,
		States:   states,
		Source:   src,
		Notifier: n,
		Events:   events.Nop{},
		Map:      mapper.Map,
		Clock:    clock.New(),
		Log:      zap.L().With(zap.String("component", "scheduler.uc")),
	}
}

// CheckEndpoint runs one tick for tag: fetch, failure and recovery
// handling, mute evaluation, dispatch and bookkeeping. Only config errors
// are returned; everything else is logged and folded into the outcome.
func (u *Usecase) CheckEndpoint(ctx context.Context, tag string) (Outcome, error) {
	ctx, span := otel.Tracer("scheduler.uc").Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.String("endpoint.tag", tag)))
	defer span.End()
	log := obs.WithTrace(ctx, u.Log).With(zap.String("tag", tag))

	cfg, err := u.Registry.Get(ctx, tag)
	if err != nil {
		span.RecordError(err)
		return OutcomeInvalid, fmt.Errorf("get endpoint: %w", err)
	}
	if err := cfg.ValidateForPolling(); err != nil {
		log.Warn("skipping tick", zap.Error(err))
		return OutcomeInvalid, err
	}

	st := u.load(ctx, log, tag)

	res := u.Source.Fetch(ctx, datasource.RequestFor(cfg))
	span.SetAttributes(attribute.Bool("fetch.ok", res.OK), attribute.Int("fetch.status", res.Status))
	if !res.OK {
		return u.onFailure(ctx, log, cfg, st, res), nil
	}

	if st.LastAPIStatus == state.StatusFailure {
		prev := st.MarkRecovered()
		u.save(ctx, log, tag, st)
		log.Info("api recovered", zap.String("previous_error", prev))
		u.publish(ctx, events.KindAPIRecovered, tag, map[string]any{"previousError": prev})
		if cfg.EnableRecoveryEmail {
			u.Notifier.NotifyRecovery(ctx, cfg, prev)
		}
	}

	items := u.Map(res.Data, cfg.Mapping)
	keys := item.Keys(items)
	span.SetAttributes(attribute.Int("items.mapped", len(items)))

	if st.MuteItems {
		newIDs := 0
		for _, k := range keys {
			if !st.IsMuted(k) {
				newIDs++
			}
		}
		switch {
		case newIDs > 0:
			u.autoUnmute(ctx, log, tag, st, "new item(s) detected")
		case st.MuteItemsUntil != nil && !u.Clock.Now().Before(*st.MuteItemsUntil):
			u.autoUnmute(ctx, log, tag, st, "mute timer expired")
		}
	}

	if st.MuteItems {
		st.AddMuted(keys...)
		u.save(ctx, log, tag, st)
		log.Debug("item alerts muted, skipping notification", zap.Int("items", len(items)))
		return OutcomeMuted, nil
	}

	pending := make([]item.Item, 0, len(items))
	for _, it := range items {
		if k, ok := it.Key(); ok && st.IsMuted(k) {
			continue
		}
		pending = append(pending, it)
	}
	if len(pending) == 0 {
		u.save(ctx, log, tag, st)
		return OutcomeIdle, nil
	}

	results := u.Notifier.NotifyItems(ctx, cfg, pending)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	notified := item.Keys(pending)
	st.AddProcessed(notified...)
	u.save(ctx, log, tag, st)

	log.Info("items notified",
		zap.Int("items", len(pending)),
		zap.Int("deliveries", len(results)),
		zap.Int("delivery_errors", failed),
	)
	u.publish(ctx, events.KindItemsNotified, tag, map[string]any{
		"count": len(pending),
		"ids":   anySlice(notified),
	})
	return OutcomeNotified, nil
}

func (u *Usecase) onFailure(ctx context.Context, log *zap.Logger, cfg *endpoint.Config, st *state.EndpointState, res datasource.Result) Outcome {
	msg := res.FailureText()
	st.MarkFailure(msg)
	u.save(ctx, log, cfg.Tag, st)
	log.Warn("api failure", zap.Int("status", res.Status), zap.String("error", msg))
	u.publish(ctx, events.KindAPIFailure, cfg.Tag, map[string]any{"status": res.Status, "error": msg})

	if st.MuteAPI {
		log.Info("api alerts muted, skipping failure notification")
		return OutcomeFailure
	}
	u.Notifier.NotifyFailure(ctx, cfg, res.Status, msg)
	return OutcomeFailure
}

func (u *Usecase) autoUnmute(ctx context.Context, log *zap.Logger, tag string, st *state.EndpointState, reason string) {
	st.Unmute()
	log.Info("item alerts auto-unmuted", zap.String("reason", reason))
	u.publish(ctx, events.KindAutoUnmuted, tag, map[string]any{"reason": reason})
}

// load falls back to a fresh state when the store cannot be read.
func (u *Usecase) load(ctx context.Context, log *zap.Logger, tag string) *state.EndpointState {
	st, err := u.States.Load(ctx, tag)
	if err != nil || st == nil {
		log.Error("load state, using defaults", zap.Error(err))
		return state.New()
	}
	return st.Normalize()
}

func (u *Usecase) save(ctx context.Context, log *zap.Logger, tag string, st *state.EndpointState) {
	if err := u.States.Save(ctx, tag, st); err != nil {
		log.Error("save state", zap.Error(err))
	}
}

func (u *Usecase) publish(ctx context.Context, kind events.Kind, tag string, attrs map[string]any) {
	ev := events.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Tag:        tag,
		At:         u.Clock.Now().UTC().Truncate(time.Millisecond),
		Attributes: attrs,
	}
	if err := u.Events.Publish(ctx, ev); err != nil {
		u.Log.Warn("publish event", zap.String("tag", tag), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
