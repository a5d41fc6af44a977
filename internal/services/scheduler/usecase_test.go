package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"github.com/NordCoder/Feedwatch/internal/domain/item"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"github.com/NordCoder/Feedwatch/internal/mapper"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/NordCoder/Feedwatch/internal/services/dispatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) seed(t *testing.T, tag string, st *state.EndpointState) {
	t.Helper()
	require.NoError(t, f.states.Save(context.Background(), tag, st))
}

func (f *fixture) state(t *testing.T, tag string) *state.EndpointState {
	t.Helper()
	st, err := f.states.Load(context.Background(), tag)
	require.NoError(t, err)
	return st
}

func TestCheckEndpoint_InvalidConfigSkipsFetch(t *testing.T) {
	cfg := testEndpoint("pro")
	cfg.EnableSMS = false
	f := newFixture(t, cfg)

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")

	assert.ErrorIs(t, err, endpoint.ErrInvalidConfig)
	assert.Equal(t, OutcomeInvalid, out)
	assert.Zero(t, f.src.calls)
}

func TestCheckEndpoint_UnknownTag(t *testing.T) {
	f := newFixture(t)
	out, err := f.uc.CheckEndpoint(context.Background(), "nope")
	assert.ErrorIs(t, err, endpoint.ErrNotFound)
	assert.Equal(t, OutcomeInvalid, out)
}

func TestCheckEndpoint_AutoUnmuteOnNewItem(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.Mute(f.clock.Now().Add(time.Hour))
	st.AddMuted("x")
	f.seed(t, "pro", st)
	f.src.set(okData("x", "y"))

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)

	got := f.state(t, "pro")
	assert.Equal(t, OutcomeNotified, out)
	assert.False(t, got.MuteItems)
	assert.Nil(t, got.MuteItemsUntil)
	assert.Empty(t, got.MutedIDs)
	assert.ElementsMatch(t, []string{"x", "y"}, got.ProcessedIDs)
	require.Len(t, f.notif.items, 1)
	assert.Len(t, f.notif.items[0], 2)
	assert.Contains(t, f.events.kinds(), events.KindAutoUnmuted)
}

func TestCheckEndpoint_AutoUnmuteOnExpiry(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.Mute(f.clock.Now().Add(-time.Second))
	st.AddMuted("x")
	f.seed(t, "pro", st)
	f.src.set(okData("x"))

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)

	got := f.state(t, "pro")
	assert.Equal(t, OutcomeNotified, out)
	assert.False(t, got.MuteItems)
	assert.Empty(t, got.MutedIDs)
	assert.Len(t, f.notif.items, 1)
}

func TestCheckEndpoint_MuteStaysEngaged(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.Mute(f.clock.Now().Add(time.Hour))
	st.AddMuted("x")
	f.seed(t, "pro", st)
	f.src.set(okData("x"))

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)

	got := f.state(t, "pro")
	assert.Equal(t, OutcomeMuted, out)
	assert.True(t, got.MuteItems)
	assert.Equal(t, []string{"x"}, got.MutedIDs)
	assert.Empty(t, f.notif.items)
}

func TestCheckEndpoint_MutedWithoutTimerAddsEveryVisibleID(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.MuteItems = true
	f.seed(t, "pro", st)
	f.src.set(datasource.Result{OK: true, Data: map[string]any{"data": []any{}}})

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMuted, out)
	assert.True(t, f.state(t, "pro").MuteItems)
}

func TestCheckEndpoint_FailureSkipsMapping(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.AddProcessed("old")
	f.seed(t, "pro", st)
	f.src.set(datasource.Result{OK: false, Status: 503})

	mapped := 0
	f.uc.Map = func(raw any, m endpoint.Mapping) []item.Item {
		mapped++
		return mapper.Map(raw, m)
	}

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)

	got := f.state(t, "pro")
	assert.Equal(t, OutcomeFailure, out)
	assert.Zero(t, mapped)
	assert.Equal(t, []string{"old"}, got.ProcessedIDs)
	assert.Equal(t, state.StatusFailure, got.LastAPIStatus)
	assert.Equal(t, "request failed with status code 503", got.LastFailureMessage)
	assert.Equal(t, []string{"request failed with status code 503"}, f.notif.failures)
}

func TestCheckEndpoint_FailureWithAPIMuted(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.MuteAPI = true
	f.seed(t, "pro", st)
	f.src.set(datasource.Result{OK: false, Error: "timeout of 10000ms exceeded"})

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailure, out)
	assert.Empty(t, f.notif.failures)
	assert.Equal(t, "timeout of 10000ms exceeded", f.state(t, "pro").LastFailureMessage)
}

func TestCheckEndpoint_RecoverySendsOneEmail(t *testing.T) {
	cfg := testEndpoint("pro")
	cfg.EnableRecoveryEmail = true
	f := newFixture(t, cfg)
	st := state.New()
	st.MarkFailure("boom")
	st.MuteAPI = true
	f.seed(t, "pro", st)
	f.src.set(okData())

	_, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)

	got := f.state(t, "pro")
	assert.Equal(t, state.StatusSuccess, got.LastAPIStatus)
	assert.Empty(t, got.LastFailureMessage)
	assert.False(t, got.MuteAPI)
	assert.Equal(t, []string{"boom"}, f.notif.recovered)
	assert.Contains(t, f.events.kinds(), events.KindAPIRecovered)
}

func TestCheckEndpoint_RecoveryWithoutRecoveryEmail(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.MarkFailure("boom")
	f.seed(t, "pro", st)
	f.src.set(okData())

	_, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)

	assert.Empty(t, f.notif.recovered)
	assert.Equal(t, state.StatusSuccess, f.state(t, "pro").LastAPIStatus)
}

func TestCheckEndpoint_EmptyResponseIsIdle(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	f.src.set(okData())

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, out)
	assert.Empty(t, f.notif.items)
}

func TestCheckEndpoint_NotifiesEveryTickUntilMuted(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	f.src.set(okData("a"))

	for i := 0; i < 2; i++ {
		out, err := f.uc.CheckEndpoint(context.Background(), "pro")
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotified, out)
	}
	assert.Len(t, f.notif.items, 2)
	assert.Equal(t, []string{"a"}, f.state(t, "pro").ProcessedIDs)
}

type smsRecorder struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func (r *smsRecorder) SendSMS(_ context.Context, phone, msg, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[phone] = append(r.msgs[phone], msg)
	return nil
}

type noEmail struct{}

func (noEmail) SendEmail(context.Context, notification.Email, string) error { return nil }

func TestCheckEndpoint_Scenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{
			map[string]any{"id": 1}, map[string]any{"id": 2},
		}})
	}))
	defer srv.Close()

	cfg := testEndpoint("pro")
	cfg.APIEndpoint = srv.URL + "/y"
	cfg.PhoneNumbers = []string{"111", "222"}
	f := newFixture(t, cfg)

	sms := &smsRecorder{msgs: map[string][]string{}}
	d, err := dispatcher.New(sms, noEmail{}, dispatcher.Config{Timezone: "UTC"})
	require.NoError(t, err)
	f.uc.Source = datasource.New(datasource.Config{Timeout: 2 * time.Second})
	f.uc.Notifier = d

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotified, out)

	assert.ElementsMatch(t, []string{"1", "2"}, f.state(t, "pro").ProcessedIDs)
	for _, phone := range []string{"111", "222"} {
		require.Len(t, sms.msgs[phone], 1)
		assert.Contains(t, sms.msgs[phone][0], "2 item(s) detected")
	}
}

type brokenStore struct {
	mu    sync.Mutex
	saves int
}

func (s *brokenStore) Load(context.Context, string) (*state.EndpointState, error) {
	return nil, errors.New("disk gone")
}

func (s *brokenStore) Save(context.Context, string, *state.EndpointState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return errors.New("disk gone")
}

func (s *brokenStore) Delete(context.Context, string) error { return nil }

func TestCheckEndpoint_StoreErrorsFallBackToDefaults(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	store := &brokenStore{}
	f.uc.States = store
	ctx := context.Background()

	f.src.set(okData("a"))
	out, err := f.uc.CheckEndpoint(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotified, out)
	require.Len(t, f.notif.items, 1)

	f.src.set(datasource.Result{OK: false, Status: 503, Error: "unavailable"})
	out, err = f.uc.CheckEndpoint(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, out)
	assert.Len(t, f.notif.failures, 1)
	assert.Equal(t, 2, store.saves)
}
