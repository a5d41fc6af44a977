package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/tagmu"
	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Checker runs a single tick for a tag.
type Checker interface {
	CheckEndpoint(ctx context.Context, tag string) (Outcome, error)
}

// IntervalSource reports the live polling interval of a tag.
type IntervalSource interface {
	Get(ctx context.Context, tag string) (*endpoint.Config, error)
}

type handle struct {
	tag      string
	ctx      context.Context
	interval time.Duration
	ticker   *clock.Ticker
	stop     chan struct{}
}

// Info describes one running timer.
type Info struct {
	Tag      string        `json:"tag"`
	Interval time.Duration `json:"interval"`
}

// Manager owns one timer goroutine per running tag.
type Manager struct {
	checker Checker
	configs IntervalSource
	clock   clock.Clock
	locks   *tagmu.Locks
	log     *zap.Logger

	mu      sync.Mutex
	handles map[string]*handle
	wg      sync.WaitGroup
}

func NewManager(checker Checker, configs IntervalSource) *Manager {
	return &Manager{
		checker: checker,
		configs: configs,
		clock:   clock.New(),
		locks:   tagmu.New(),
		log:     zap.L().With(zap.String("component", "scheduler.manager")),
		handles: make(map[string]*handle),
	}
}

func (m *Manager) WithLogger(l *zap.Logger) *Manager {
	if l != nil {
		m.log = l.With(zap.String("component", "scheduler.manager"))
	}
	return m
}

func (m *Manager) WithClock(c clock.Clock) *Manager {
	m.clock = c
	return m
}

// Lock serializes the caller with ticks of tag.
func (m *Manager) Lock(tag string) (unlock func()) {
	return m.locks.Lock(tag)
}

// Start arms the timer of tag and runs the first tick right away. Starting
// a running tag is a no-op.
func (m *Manager) Start(ctx context.Context, tag string) error {
	cfg, err := m.configs.Get(ctx, tag)
	if err != nil {
		return fmt.Errorf("start %s: %w", tag, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handles[tag]; ok {
		return nil
	}
	h := &handle{
		tag:      tag,
		ctx:      detach(ctx),
		interval: cfg.Interval(),
		ticker:   m.clock.Ticker(cfg.Interval()),
		stop:     make(chan struct{}),
	}
	m.handles[tag] = h
	mActive.Inc()

	m.wg.Add(1)
	go m.loop(h)

	m.log.Info("scheduler started", zap.String("tag", tag), zap.Duration("interval", h.interval))
	return nil
}

// detach keeps the values of ctx for the lifetime of a timer but drops its
// cancellation and its span, so every tick starts a root trace.
func detach(ctx context.Context) context.Context {
	return trace.ContextWithSpanContext(context.WithoutCancel(ctx), trace.SpanContext{})
}

// Stop clears the timer of tag. A tick already in flight finishes on its
// own. Reports whether tag was running.
func (m *Manager) Stop(tag string) bool {
	m.mu.Lock()
	h, ok := m.handles[tag]
	if ok {
		delete(m.handles, tag)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	h.ticker.Stop()
	close(h.stop)
	mActive.Dec()
	m.log.Info("scheduler stopped", zap.String("tag", tag))
	return true
}

func (m *Manager) Restart(ctx context.Context, tag string) error {
	m.Stop(tag)
	return m.Start(ctx, tag)
}

// RestartRunning restarts every running tag, picking up changed configs.
func (m *Manager) RestartRunning(ctx context.Context) {
	for _, info := range m.Schedulers() {
		if err := m.Restart(ctx, info.Tag); err != nil {
			m.log.Warn("restart failed", zap.String("tag", info.Tag), zap.Error(err))
		}
	}
}

func (m *Manager) Running(tag string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handles[tag]
	return ok
}

func (m *Manager) Schedulers() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, Info{Tag: h.tag, Interval: h.interval})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Run starts every active tag from reg and blocks until ctx is done, then
// stops all timers and waits for in-flight ticks.
func (m *Manager) Run(ctx context.Context, reg endpoint.Registry) error {
	tags, err := reg.ActiveTags(ctx)
	if err != nil {
		return fmt.Errorf("active tags: %w", err)
	}
	for _, tag := range tags {
		if err := m.Start(ctx, tag); err != nil {
			m.log.Warn("skip active endpoint", zap.String("tag", tag), zap.Error(err))
		}
	}

	<-ctx.Done()
	m.Shutdown()
	return ctx.Err()
}

func (m *Manager) Shutdown() {
	for _, info := range m.Schedulers() {
		m.Stop(info.Tag)
	}
	m.wg.Wait()
}

func (m *Manager) loop(h *handle) {
	defer m.wg.Done()

	m.tick(h)
	for {
		select {
		case <-h.stop:
			return
		case <-h.ticker.C:
			select {
			case <-h.stop:
				return
			default:
			}
			m.tick(h)
		}
	}
}

func (m *Manager) tick(h *handle) {
	start := time.Now()
	log := m.log.With(zap.String("tag", h.tag))

	func() {
		unlock := m.locks.Lock(h.tag)
		defer unlock()
		defer func() {
			if r := recover(); r != nil {
				mPanics.Inc()
				log.Error("tick panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()

		outcome, err := m.checker.CheckEndpoint(h.ctx, h.tag)
		if err != nil {
			log.Warn("tick error", zap.Error(err))
		}
		mTicks.WithLabelValues(string(outcome)).Inc()
	}()
	mTickDur.Observe(time.Since(start).Seconds())

	m.rescheduleIfChanged(h)
}

// rescheduleIfChanged re-arms the timer when the configured interval no
// longer matches the one it was armed with.
func (m *Manager) rescheduleIfChanged(h *handle) bool {
	cfg, err := m.configs.Get(h.ctx, h.tag)
	if err != nil {
		return false
	}
	next := cfg.Interval()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[h.tag] != h || h.interval == next {
		return false
	}
	h.ticker.Reset(next)
	m.log.Info("interval changed, rescheduled",
		zap.String("tag", h.tag),
		zap.Duration("from", h.interval),
		zap.Duration("to", next),
	)
	h.interval = next
	mReschedules.Inc()
	return true
}
