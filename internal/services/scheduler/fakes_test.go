package scheduler

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"github.com/NordCoder/Feedwatch/internal/domain/item"
	"github.com/NordCoder/Feedwatch/internal/repository/file"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/NordCoder/Feedwatch/internal/services/dispatcher"
	"github.com/benbjohnson/clock"
)

type memRegistry struct {
	mu     sync.Mutex
	cfgs   map[string]*endpoint.Config
	active []string
}

func newMemRegistry(cfgs ...*endpoint.Config) *memRegistry {
	r := &memRegistry{cfgs: map[string]*endpoint.Config{}}
	for _, c := range cfgs {
		r.cfgs[c.Tag] = c
	}
	return r
}

func (r *memRegistry) Get(_ context.Context, tag string) (*endpoint.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cfgs[tag]
	if !ok {
		return nil, endpoint.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *memRegistry) setInterval(tag string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs[tag].CheckIntervalMs = d.Milliseconds()
}

func (r *memRegistry) ListTags(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.cfgs))
	for t := range r.cfgs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (r *memRegistry) Upsert(_ context.Context, tag string, partial map[string]any) (*endpoint.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cfgs[tag]
	if !ok {
		c = &endpoint.Config{Tag: tag}
		r.cfgs[tag] = c
	}
	if v, ok := partial["checkInterval"].(int); ok {
		c.CheckIntervalMs = int64(v)
	}
	return c.Clone(), nil
}

func (r *memRegistry) Remove(_ context.Context, tag string) (endpoint.RemoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cfgs[tag]; !ok {
		return endpoint.RemoveResult{}, endpoint.ErrNotFound
	}
	delete(r.cfgs, tag)
	return endpoint.RemoveResult{Deleted: true}, nil
}

func (r *memRegistry) ActiveTags(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.active...), nil
}

func (r *memRegistry) SetActive(_ context.Context, tag string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cfgs[tag]; !ok {
		return endpoint.ErrNotFound
	}
	if active {
		r.active = append(r.active, tag)
	}
	return nil
}

type fakeSource struct {
	mu    sync.Mutex
	res   datasource.Result
	calls int
}

func (f *fakeSource) Fetch(context.Context, datasource.Request) datasource.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res
}

func (f *fakeSource) set(res datasource.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res = res
}

type recNotifier struct {
	mu        sync.Mutex
	items     [][]item.Item
	failures  []string
	recovered []string
}

func (n *recNotifier) NotifyItems(_ context.Context, _ *endpoint.Config, items []item.Item) []dispatcher.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, items)
	return nil
}

func (n *recNotifier) NotifyFailure(_ context.Context, _ *endpoint.Config, _ int, errText string) []dispatcher.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, errText)
	return nil
}

func (n *recNotifier) NotifyRecovery(_ context.Context, _ *endpoint.Config, previous string) []dispatcher.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recovered = append(n.recovered, previous)
	return nil
}

type recEvents struct {
	mu   sync.Mutex
	list []events.Event
}

func (r *recEvents) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, ev)
	return nil
}

func (r *recEvents) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.list))
	for _, ev := range r.list {
		out = append(out, ev.Kind)
	}
	return out
}

func testEndpoint(tag string) *endpoint.Config {
	return &endpoint.Config{
		Tag:              tag,
		APIEndpoint:      "https://x/y",
		Mapping:          endpoint.Mapping{ItemsPath: "data", IDPath: "id"},
		EnableSMS:        true,
		EnableManualMute: true,
		PhoneNumbers:     []string{"111"},
		SMSEndpoint:      "http://gw/sms",
		CheckIntervalMs:  60_000,
	}
}

func okData(ids ...string) datasource.Result {
	list := make([]any, 0, len(ids))
	for _, id := range ids {
		list = append(list, map[string]any{"id": id})
	}
	return datasource.Result{OK: true, Status: 200, Data: map[string]any{"data": list}}
}

type fixture struct {
	reg    *memRegistry
	states *file.StateStore
	src    *fakeSource
	notif  *recNotifier
	events *recEvents
	clock  *clock.Mock
	uc     *Usecase
}

func newFixture(t *testing.T, cfgs ...*endpoint.Config) *fixture {
	t.Helper()
	f := &fixture{
		reg:    newMemRegistry(cfgs...),
		states: file.NewStateStore(filepath.Join(t.TempDir(), "state.json"), ""),
		src:    &fakeSource{},
		notif:  &recNotifier{},
		events: &recEvents{},
		clock:  clock.NewMock(),
	}
	f.clock.Set(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	f.uc = NewUC(f.reg, f.states, f.src, f.notif)
	f.uc.Events = f.events
	f.uc.Clock = f.clock
	return f
}
