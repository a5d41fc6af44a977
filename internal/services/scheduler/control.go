package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"github.com/NordCoder/Feedwatch/internal/domain/item"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"go.uber.org/zap"
)

var (
	ErrManualMuteDisabled = errors.New("manual mute is disabled for this endpoint")
	ErrNoHistory          = errors.New("notification history is not configured")
)

const (
	DefaultMuteMinutes = 30
	// MaxMuteMinutes caps a manual mute at 30 days.
	MaxMuteMinutes   = 30 * 24 * 60
	TestFetchTimeout = 10 * time.Second
)

// Service is the control surface over registry, state and timers. Every
// state mutation holds the tag lock shared with ticks.
type Service struct {
	uc      *Usecase
	mgr     *Manager
	history notification.Repo
	log     *zap.Logger
}

func NewService(uc *Usecase, mgr *Manager) *Service {
	return &Service{
		uc:  uc,
		mgr: mgr,
		log: zap.L().With(zap.String("component", "scheduler.control")),
	}
}

func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l == nil {
		return s
	}
	cp := *s
	cp.log = l.With(zap.String("component", "scheduler.control"))
	return &cp
}

func (s *Service) WithHistory(r notification.Repo) *Service {
	cp := *s
	cp.history = r
	return &cp
}

// MuteItems suppresses item alerts for minutes (DefaultMuteMinutes when not
// positive, MaxMuteMinutes at most) and seeds the muted set with every currently visible id.
func (s *Service) MuteItems(ctx context.Context, tag string, minutes int) (*state.EndpointState, error) {
	cfg, err := s.uc.Registry.Get(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !cfg.EnableManualMute {
		return nil, ErrManualMuteDisabled
	}
	if minutes <= 0 {
		minutes = DefaultMuteMinutes
	}
	minutes = min(minutes, MaxMuteMinutes)
	until := s.uc.Clock.Now().Add(time.Duration(minutes) * time.Minute)

	unlock := s.mgr.Lock(tag)
	defer unlock()

	st, err := s.uc.States.Load(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	st.Normalize().Mute(until)

	res := s.uc.Source.Fetch(ctx, datasource.RequestFor(cfg))
	if res.OK {
		st.AddMuted(item.Keys(s.uc.Map(res.Data, cfg.Mapping))...)
	} else {
		s.log.Warn("mute seed fetch failed", zap.String("tag", tag), zap.String("error", res.FailureText()))
	}

	if err := s.uc.States.Save(ctx, tag, st); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	s.uc.publish(ctx, events.KindMuted, tag, map[string]any{
		"target":  "items",
		"minutes": minutes,
		"until":   until.UTC().Format(time.RFC3339),
		"seeded":  len(st.MutedIDs),
	})
	return st, nil
}

func (s *Service) UnmuteItems(ctx context.Context, tag string) (*state.EndpointState, error) {
	st, err := s.mutate(ctx, tag, func(st *state.EndpointState) { st.Unmute() })
	if err != nil {
		return nil, err
	}
	s.uc.publish(ctx, events.KindUnmuted, tag, map[string]any{"target": "items"})
	return st, nil
}

func (s *Service) MuteAPI(ctx context.Context, tag string) (*state.EndpointState, error) {
	cfg, err := s.uc.Registry.Get(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !cfg.EnableManualMute {
		return nil, ErrManualMuteDisabled
	}
	st, err := s.mutate(ctx, tag, func(st *state.EndpointState) { st.MuteAPI = true })
	if err != nil {
		return nil, err
	}
	s.uc.publish(ctx, events.KindMuted, tag, map[string]any{"target": "api"})
	return st, nil
}

// UnmuteAPI also resets the API status to success.
func (s *Service) UnmuteAPI(ctx context.Context, tag string) (*state.EndpointState, error) {
	st, err := s.mutate(ctx, tag, func(st *state.EndpointState) {
		st.MuteAPI = false
		st.LastAPIStatus = state.StatusSuccess
		st.LastFailureMessage = ""
	})
	if err != nil {
		return nil, err
	}
	s.uc.publish(ctx, events.KindUnmuted, tag, map[string]any{"target": "api"})
	return st, nil
}

// ResetItems lifts any item mute and forgets every processed id.
func (s *Service) ResetItems(ctx context.Context, tag string) (*state.EndpointState, error) {
	return s.mutate(ctx, tag, func(st *state.EndpointState) {
		st.Unmute()
		st.ProcessedIDs = []string{}
	})
}

func (s *Service) GetState(ctx context.Context, tag string) (*state.EndpointState, error) {
	if _, err := s.uc.Registry.Get(ctx, tag); err != nil {
		return nil, err
	}
	st, err := s.uc.States.Load(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return st.Normalize(), nil
}

func (s *Service) mutate(ctx context.Context, tag string, fn func(*state.EndpointState)) (*state.EndpointState, error) {
	if _, err := s.uc.Registry.Get(ctx, tag); err != nil {
		return nil, err
	}
	unlock := s.mgr.Lock(tag)
	defer unlock()

	st, err := s.uc.States.Load(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	fn(st.Normalize())
	if err := s.uc.States.Save(ctx, tag, st); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	return st, nil
}

func (s *Service) GetEndpoint(ctx context.Context, tag string) (*endpoint.Config, error) {
	return s.uc.Registry.Get(ctx, tag)
}

func (s *Service) ListEndpoints(ctx context.Context) ([]string, error) {
	return s.uc.Registry.ListTags(ctx)
}

// UpsertEndpoint merges partial into tag and restarts its timer when it is
// running.
func (s *Service) UpsertEndpoint(ctx context.Context, tag string, partial map[string]any) (*endpoint.Config, error) {
	cfg, err := s.uc.Registry.Upsert(ctx, tag, partial)
	if err != nil {
		return nil, err
	}
	if s.mgr.Running(tag) {
		if err := s.mgr.Restart(ctx, tag); err != nil {
			return cfg, fmt.Errorf("restart: %w", err)
		}
	}
	return cfg, nil
}

// RemoveEndpoint stops the timer and drops the state when the endpoint is
// gone for good; a tag reverting to its base definition keeps both.
func (s *Service) RemoveEndpoint(ctx context.Context, tag string) (endpoint.RemoveResult, error) {
	res, err := s.uc.Registry.Remove(ctx, tag)
	if err != nil {
		return res, err
	}
	if !res.Deleted {
		if s.mgr.Running(tag) {
			if err := s.mgr.Restart(ctx, tag); err != nil {
				return res, fmt.Errorf("restart: %w", err)
			}
		}
		return res, nil
	}
	s.mgr.Stop(tag)
	unlock := s.mgr.Lock(tag)
	defer unlock()
	if err := s.uc.States.Delete(ctx, tag); err != nil && !errors.Is(err, state.ErrNotFound) {
		return res, fmt.Errorf("delete state: %w", err)
	}
	return res, nil
}

func (s *Service) Activate(ctx context.Context, tag string) error {
	if err := s.uc.Registry.SetActive(ctx, tag, true); err != nil {
		return err
	}
	return s.mgr.Start(ctx, tag)
}

func (s *Service) Deactivate(ctx context.Context, tag string) error {
	if err := s.uc.Registry.SetActive(ctx, tag, false); err != nil {
		return err
	}
	s.mgr.Stop(tag)
	return nil
}

func (s *Service) ActiveEndpoints(ctx context.Context) ([]string, error) {
	return s.uc.Registry.ActiveTags(ctx)
}

// Report compares running timers with the persisted active set.
type Report struct {
	Schedulers          []Info   `json:"schedulers"`
	Active              []string `json:"active"`
	ShouldRunButNot     []string `json:"shouldRunButNot"`
	RunningButShouldNot []string `json:"runningButShouldNot"`
}

func (s *Service) Schedulers(ctx context.Context) (Report, error) {
	active, err := s.uc.Registry.ActiveTags(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("active tags: %w", err)
	}
	rep := Report{
		Schedulers:          s.mgr.Schedulers(),
		Active:              append([]string{}, active...),
		ShouldRunButNot:     []string{},
		RunningButShouldNot: []string{},
	}
	running := make(map[string]bool, len(rep.Schedulers))
	for _, in := range rep.Schedulers {
		running[in.Tag] = true
	}
	want := make(map[string]bool, len(active))
	for _, tag := range active {
		want[tag] = true
		if !running[tag] {
			rep.ShouldRunButNot = append(rep.ShouldRunButNot, tag)
		}
	}
	for _, in := range rep.Schedulers {
		if !want[in.Tag] {
			rep.RunningButShouldNot = append(rep.RunningButShouldNot, in.Tag)
		}
	}
	return rep, nil
}

// StartScheduler arms the timer of tag without touching the active set.
func (s *Service) StartScheduler(ctx context.Context, tag string) error {
	return s.mgr.Start(ctx, tag)
}

// StopScheduler clears the timer of tag and reports whether one was running.
// The active set is left as is.
func (s *Service) StopScheduler(_ context.Context, tag string) bool {
	return s.mgr.Stop(tag)
}

func (s *Service) RestartScheduler(ctx context.Context, tag string) error {
	return s.mgr.Restart(ctx, tag)
}

// CleanupSchedulers stops every timer whose tag is not in the active set
// and returns the stopped tags.
func (s *Service) CleanupSchedulers(ctx context.Context) ([]string, error) {
	rep, err := s.Schedulers(ctx)
	if err != nil {
		return nil, err
	}
	stopped := []string{}
	for _, tag := range rep.RunningButShouldNot {
		if s.mgr.Stop(tag) {
			stopped = append(stopped, tag)
		}
	}
	if len(stopped) > 0 {
		s.log.Info("stopped stray schedulers", zap.Strings("tags", stopped))
	}
	return stopped, nil
}

// TestResult is an ad-hoc fetch plus the items it maps to.
type TestResult struct {
	Fetch datasource.Result `json:"fetch"`
	Items []item.Item       `json:"items"`
}

// TestMap fetches req once with a bounded timeout and previews the mapping.
// No state is read or written.
func (s *Service) TestMap(ctx context.Context, req datasource.Request, m endpoint.Mapping) TestResult {
	ctx, cancel := context.WithTimeout(ctx, TestFetchTimeout)
	defer cancel()

	res := s.uc.Source.Fetch(ctx, req)
	out := TestResult{Fetch: res, Items: []item.Item{}}
	if res.OK {
		out.Items = s.uc.Map(res.Data, m)
	}
	return out
}

func (s *Service) History(ctx context.Context, tag string, limit int) ([]*notification.Notification, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	if limit <= 0 {
		limit = 50
	}
	return s.history.ListByEndpoint(ctx, tag, limit)
}
