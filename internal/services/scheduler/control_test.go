package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(f *fixture) *Service {
	mgr := NewManager(f.uc, f.reg).WithClock(f.clock)
	return NewService(f.uc, mgr)
}

func TestMuteItems_SeedsVisibleIDs(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	f.src.set(okData("a", "b"))
	svc := newTestService(f)

	st, err := svc.MuteItems(context.Background(), "pro", 0)
	require.NoError(t, err)

	assert.True(t, st.MuteItems)
	require.NotNil(t, st.MuteItemsUntil)
	assert.True(t, st.MuteItemsUntil.Equal(f.clock.Now().Add(DefaultMuteMinutes*time.Minute)))
	assert.ElementsMatch(t, []string{"a", "b"}, st.MutedIDs)
	assert.Contains(t, f.events.kinds(), events.KindMuted)

	out, err := f.uc.CheckEndpoint(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMuted, out)
	assert.Empty(t, f.notif.items)
}

func TestMuteItems_RequiresManualMute(t *testing.T) {
	cfg := testEndpoint("pro")
	cfg.EnableManualMute = false
	f := newFixture(t, cfg)
	svc := newTestService(f)

	_, err := svc.MuteItems(context.Background(), "pro", 10)
	assert.ErrorIs(t, err, ErrManualMuteDisabled)
	_, err = svc.MuteAPI(context.Background(), "pro")
	assert.ErrorIs(t, err, ErrManualMuteDisabled)
}

func TestUnmuteItems(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.Mute(f.clock.Now().Add(time.Hour))
	st.AddMuted("a")
	f.seed(t, "pro", st)

	got, err := newTestService(f).UnmuteItems(context.Background(), "pro")
	require.NoError(t, err)
	assert.False(t, got.MuteItems)
	assert.Nil(t, got.MuteItemsUntil)
	assert.Empty(t, got.MutedIDs)
}

func TestMuteAndUnmuteAPI(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.MarkFailure("down")
	f.seed(t, "pro", st)
	svc := newTestService(f)

	got, err := svc.MuteAPI(context.Background(), "pro")
	require.NoError(t, err)
	assert.True(t, got.MuteAPI)

	got, err = svc.UnmuteAPI(context.Background(), "pro")
	require.NoError(t, err)
	assert.False(t, got.MuteAPI)
	assert.Equal(t, state.StatusSuccess, got.LastAPIStatus)
}

func TestResetItems(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	st := state.New()
	st.AddProcessed("a", "b")
	st.MuteItems = true
	f.seed(t, "pro", st)

	got, err := newTestService(f).ResetItems(context.Background(), "pro")
	require.NoError(t, err)
	assert.Empty(t, got.ProcessedIDs)
	assert.False(t, got.MuteItems)
}

func TestGetState_UnknownEndpoint(t *testing.T) {
	f := newFixture(t)
	_, err := newTestService(f).GetState(context.Background(), "ghost")
	assert.ErrorIs(t, err, endpoint.ErrNotFound)
}

func TestActivateAndRemove(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	f.src.set(okData())
	svc := newTestService(f)
	defer svc.mgr.Shutdown()

	require.NoError(t, svc.Activate(context.Background(), "pro"))
	assert.True(t, svc.mgr.Running("pro"))

	res, err := svc.RemoveEndpoint(context.Background(), "pro")
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.False(t, svc.mgr.Running("pro"))

	assert.ErrorIs(t, svc.Activate(context.Background(), "pro"), endpoint.ErrNotFound)
}

func TestTestMap(t *testing.T) {
	f := newFixture(t)
	f.src.set(okData("a", "b"))

	res := newTestService(f).TestMap(context.Background(), datasource.Request{URL: "https://x"},
		endpoint.Mapping{ItemsPath: "data", IDPath: "id"})

	assert.True(t, res.Fetch.OK)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "a", res.Items[0].ID)
}

func TestHistoryNotConfigured(t *testing.T) {
	f := newFixture(t)
	_, err := newTestService(f).History(context.Background(), "pro", 10)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestMuteItems_ClampsMinutes(t *testing.T) {
	f := newFixture(t, testEndpoint("pro"))
	f.src.set(okData("a"))
	svc := newTestService(f)

	st, err := svc.MuteItems(context.Background(), "pro", int(^uint(0)>>1))
	require.NoError(t, err)
	require.NotNil(t, st.MuteItemsUntil)
	assert.True(t, st.MuteItemsUntil.Equal(f.clock.Now().Add(MaxMuteMinutes*time.Minute)))
}

func TestSchedulers_ReportsDrift(t *testing.T) {
	f := newFixture(t, testEndpoint("a"), testEndpoint("b"), testEndpoint("c"))
	f.reg.active = []string{"a", "b"}
	svc := newTestService(f)
	defer svc.mgr.Shutdown()
	ctx := context.Background()

	require.NoError(t, svc.StartScheduler(ctx, "a"))
	require.NoError(t, svc.StartScheduler(ctx, "c"))

	rep, err := svc.Schedulers(ctx)
	require.NoError(t, err)
	assert.Len(t, rep.Schedulers, 2)
	assert.Equal(t, []string{"a", "b"}, rep.Active)
	assert.Equal(t, []string{"b"}, rep.ShouldRunButNot)
	assert.Equal(t, []string{"c"}, rep.RunningButShouldNot)

	stopped, err := svc.CleanupSchedulers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, stopped)
	assert.True(t, svc.mgr.Running("a"))
	assert.False(t, svc.mgr.Running("c"))

	stopped, err = svc.CleanupSchedulers(ctx)
	require.NoError(t, err)
	assert.Empty(t, stopped)
}

func TestSchedulerStartStopRestart(t *testing.T) {
	f := newFixture(t, testEndpoint("a"))
	svc := newTestService(f)
	defer svc.mgr.Shutdown()
	ctx := context.Background()

	assert.ErrorIs(t, svc.StartScheduler(ctx, "ghost"), endpoint.ErrNotFound)
	require.NoError(t, svc.StartScheduler(ctx, "a"))
	require.NoError(t, svc.RestartScheduler(ctx, "a"))
	assert.True(t, svc.mgr.Running("a"))
	assert.True(t, svc.StopScheduler(ctx, "a"))
	assert.False(t, svc.StopScheduler(ctx, "a"))

	active, err := svc.ActiveEndpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
