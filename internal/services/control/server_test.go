package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/item"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/NordCoder/Feedwatch/internal/services/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	cfgs    map[string]*endpoint.Config
	states  map[string]*state.EndpointState
	minutes int
	partial map[string]any
	testReq datasource.Request
	running map[string]bool
}

func newFakeController() *fakeController {
	return &fakeController{
		cfgs: map[string]*endpoint.Config{
			"pro": {Tag: "pro", APIEndpoint: "https://x/y", EnableManualMute: true},
			"dev": {Tag: "dev", APIEndpoint: "https://x/z"},
		},
		states:  map[string]*state.EndpointState{"pro": state.New(), "dev": state.New()},
		running: map[string]bool{"pro": true},
	}
}

func (f *fakeController) lookup(tag string) (*state.EndpointState, error) {
	st, ok := f.states[tag]
	if !ok {
		return nil, endpoint.ErrNotFound
	}
	return st, nil
}

func (f *fakeController) MuteItems(_ context.Context, tag string, minutes int) (*state.EndpointState, error) {
	st, err := f.lookup(tag)
	if err != nil {
		return nil, err
	}
	if !f.cfgs[tag].EnableManualMute {
		return nil, scheduler.ErrManualMuteDisabled
	}
	f.minutes = minutes
	st.Mute(time.Now().Add(time.Hour))
	st.AddMuted("a", "b")
	return st, nil
}

func (f *fakeController) UnmuteItems(_ context.Context, tag string) (*state.EndpointState, error) {
	st, err := f.lookup(tag)
	if err != nil {
		return nil, err
	}
	st.Unmute()
	return st, nil
}

func (f *fakeController) MuteAPI(_ context.Context, tag string) (*state.EndpointState, error) {
	st, err := f.lookup(tag)
	if err != nil {
		return nil, err
	}
	if !f.cfgs[tag].EnableManualMute {
		return nil, scheduler.ErrManualMuteDisabled
	}
	st.MuteAPI = true
	return st, nil
}

func (f *fakeController) UnmuteAPI(_ context.Context, tag string) (*state.EndpointState, error) {
	st, err := f.lookup(tag)
	if err != nil {
		return nil, err
	}
	st.MuteAPI = false
	return st, nil
}

func (f *fakeController) ResetItems(_ context.Context, tag string) (*state.EndpointState, error) {
	return f.lookup(tag)
}

func (f *fakeController) GetState(_ context.Context, tag string) (*state.EndpointState, error) {
	return f.lookup(tag)
}

func (f *fakeController) GetEndpoint(_ context.Context, tag string) (*endpoint.Config, error) {
	c, ok := f.cfgs[tag]
	if !ok {
		return nil, endpoint.ErrNotFound
	}
	return c, nil
}

func (f *fakeController) ListEndpoints(context.Context) ([]string, error) {
	return []string{"dev", "pro"}, nil
}

func (f *fakeController) UpsertEndpoint(_ context.Context, tag string, partial map[string]any) (*endpoint.Config, error) {
	if _, ok := partial["apiEndpoint"]; ok {
		return nil, endpoint.ErrImmutableField
	}
	f.partial = partial
	return f.cfgs[tag], nil
}

func (f *fakeController) RemoveEndpoint(_ context.Context, tag string) (endpoint.RemoveResult, error) {
	return endpoint.RemoveResult{Deleted: tag == "dev"}, nil
}

func (f *fakeController) Activate(_ context.Context, tag string) error {
	if _, ok := f.cfgs[tag]; !ok {
		return endpoint.ErrNotFound
	}
	return nil
}

func (f *fakeController) Deactivate(context.Context, string) error { return nil }

func (f *fakeController) ActiveEndpoints(context.Context) ([]string, error) {
	return []string{"pro"}, nil
}

func (f *fakeController) Schedulers(context.Context) (scheduler.Report, error) {
	return scheduler.Report{
		Schedulers:          []scheduler.Info{{Tag: "pro", Interval: 90 * time.Second}, {Tag: "old", Interval: time.Minute}},
		Active:              []string{"pro", "dev"},
		ShouldRunButNot:     []string{"dev"},
		RunningButShouldNot: []string{"old"},
	}, nil
}

func (f *fakeController) StartScheduler(_ context.Context, tag string) error {
	if _, ok := f.cfgs[tag]; !ok {
		return endpoint.ErrNotFound
	}
	f.running[tag] = true
	return nil
}

func (f *fakeController) StopScheduler(_ context.Context, tag string) bool {
	was := f.running[tag]
	delete(f.running, tag)
	return was
}

func (f *fakeController) RestartScheduler(ctx context.Context, tag string) error {
	f.StopScheduler(ctx, tag)
	return f.StartScheduler(ctx, tag)
}

func (f *fakeController) CleanupSchedulers(context.Context) ([]string, error) {
	return []string{"old"}, nil
}

func (f *fakeController) TestMap(_ context.Context, req datasource.Request, _ endpoint.Mapping) scheduler.TestResult {
	f.testReq = req
	return scheduler.TestResult{Fetch: datasource.Result{OK: true, Status: 200}, Items: []item.Item{{ID: "1"}}}
}

func (f *fakeController) History(context.Context, string, int) ([]*notification.Notification, error) {
	return nil, scheduler.ErrNoHistory
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeController) {
	t.Helper()
	ctl := newFakeController()
	srv := httptest.NewServer(NewServer(Config{}, ctl, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, ctl
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestMuteItemsAPI(t *testing.T) {
	srv, ctl := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/endpoints/pro/mute/items", `{"minutes":15}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["mutePayment"])
	assert.Equal(t, []any{"a", "b"}, body["mutedPaymentIds"])
	assert.NotEmpty(t, body["mutePaymentRemaining"])
	assert.Equal(t, 15, ctl.minutes)
}

func TestMuteItemsAPI_NoBodyUsesDefault(t *testing.T) {
	srv, ctl := newTestServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/api/endpoints/pro/mute/items", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, ctl.minutes)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"unknown state", http.MethodGet, "/api/endpoints/ghost/state", "", http.StatusNotFound},
		{"mute disabled", http.MethodPost, "/api/endpoints/dev/mute/api", "", http.StatusForbidden},
		{"immutable", http.MethodPut, "/api/endpoints/pro", `{"apiEndpoint":"https://other"}`, http.StatusBadRequest},
		{"bad json", http.MethodPut, "/api/endpoints/pro", `{`, http.StatusBadRequest},
		{"no history", http.MethodGet, "/api/endpoints/pro/history", "", http.StatusNotImplemented},
		{"activate unknown", http.MethodPost, "/api/endpoints/ghost/activate", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, tc.method, srv.URL+tc.path, tc.body)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestUpsertAndRemove(t *testing.T) {
	srv, ctl := newTestServer(t)

	resp := do(t, http.MethodPut, srv.URL+"/api/endpoints/pro", `{"checkInterval":5000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5000), ctl.partial["checkInterval"])

	resp = do(t, http.MethodDelete, srv.URL+"/api/endpoints/dev", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out["deleted"])
}

func TestSchedulers(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/api/schedulers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out schedulersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, schedulerView{Tag: "pro", IntervalMs: 90000, Every: "1m30s"}, out.Schedulers[0])
	assert.Equal(t, []string{"dev"}, out.ShouldRunButNot)
	assert.Equal(t, []string{"old"}, out.RunningButShouldNot)
}

func TestSchedulerRoutes(t *testing.T) {
	srv, ctl := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/schedulers/dev/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, ctl.running["dev"])

	resp = do(t, http.MethodPost, srv.URL+"/api/schedulers/ghost/start", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/schedulers/pro/restart", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, ctl.running["pro"])

	resp = do(t, http.MethodPost, srv.URL+"/api/schedulers/pro/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stop map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stop))
	assert.Equal(t, true, stop["stopped"])
	assert.False(t, ctl.running["pro"])

	resp = do(t, http.MethodPost, srv.URL+"/api/schedulers/pro/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stop = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stop))
	assert.Equal(t, false, stop["stopped"])

	resp = do(t, http.MethodPost, srv.URL+"/api/schedulers/cleanup", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var clean map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&clean))
	assert.Equal(t, []string{"old"}, clean["stopped"])
}

func TestTestMapRoute(t *testing.T) {
	srv, ctl := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/test-map",
		`{"apiEndpoint":"https://api.local/tx","method":"post","authType":"bearer","authToken":"t","itemsPath":"data","idPath":"id"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, endpoint.MethodPost, ctl.testReq.Method)
	assert.Equal(t, endpoint.AuthBearer, ctl.testReq.AuthType)

	resp = do(t, http.MethodPost, srv.URL+"/api/test-map", `{"itemsPath":"data"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMuteLinks(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/mute/items/ui?endpoint=pro", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp = do(t, http.MethodGet, srv.URL+"/mute/items/ui?endpoint=dev", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/mute/items?endpoint=pro&minutes=10", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/mute/api?endpoint=pro", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/unmute/api?endpoint=ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
