package control

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// stateView is EndpointState plus a human readable mute deadline.
type stateView struct {
	*state.EndpointState
	MuteItemsRemaining string `json:"mutePaymentRemaining,omitempty"`
}

func viewOf(st *state.EndpointState) stateView {
	v := stateView{EndpointState: st}
	if st.MuteItems && st.MuteItemsUntil != nil {
		v.MuteItemsRemaining = humanize.Time(*st.MuteItemsUntil)
	}
	return v
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("control request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, code, err.Error())
}

func (s *Server) listEndpoints(w http.ResponseWriter, r *http.Request) {
	tags, err := s.ctl.ListEndpoints(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) activeEndpoints(w http.ResponseWriter, r *http.Request) {
	tags, err := s.ctl.ActiveEndpoints(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) getEndpoint(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ctl.GetEndpoint(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) upsertEndpoint(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := s.ctl.UpsertEndpoint(r.Context(), chi.URLParam(r, "tag"), partial)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) removeEndpoint(w http.ResponseWriter, r *http.Request) {
	res, err := s.ctl.RemoveEndpoint(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": res.Deleted})
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Activate(r.Context(), chi.URLParam(r, "tag")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Deactivate(r.Context(), chi.URLParam(r, "tag")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.GetState(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

type muteRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) muteItems(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	st, err := s.ctl.MuteItems(r.Context(), chi.URLParam(r, "tag"), req.Minutes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

type stateFunc func(ctx context.Context, tag string) (*state.EndpointState, error)

func (s *Server) stateOp(fn stateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := fn(r.Context(), chi.URLParam(r, "tag"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(st))
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.ctl.History(r.Context(), chi.URLParam(r, "tag"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type schedulerView struct {
	Tag        string `json:"tag"`
	IntervalMs int64  `json:"intervalMs"`
	Every      string `json:"every"`
}

type schedulersResponse struct {
	Schedulers          []schedulerView `json:"schedulers"`
	Count               int             `json:"count"`
	Active              []string        `json:"active"`
	ShouldRunButNot     []string        `json:"shouldRunButNot"`
	RunningButShouldNot []string        `json:"runningButShouldNot"`
}

func (s *Server) schedulers(w http.ResponseWriter, r *http.Request) {
	rep, err := s.ctl.Schedulers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := schedulersResponse{
		Schedulers:          make([]schedulerView, 0, len(rep.Schedulers)),
		Count:               len(rep.Schedulers),
		Active:              rep.Active,
		ShouldRunButNot:     rep.ShouldRunButNot,
		RunningButShouldNot: rep.RunningButShouldNot,
	}
	for _, in := range rep.Schedulers {
		out.Schedulers = append(out.Schedulers, schedulerView{
			Tag:        in.Tag,
			IntervalMs: in.Interval.Milliseconds(),
			Every:      in.Interval.Round(time.Millisecond).String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) schedulerOp(fn func(ctx context.Context, tag string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag := chi.URLParam(r, "tag")
		if err := fn(r.Context(), tag); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "running": true})
	}
}

func (s *Server) stopScheduler(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	stopped := s.ctl.StopScheduler(r.Context(), tag)
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "stopped": stopped})
}

func (s *Server) cleanupSchedulers(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.ctl.CleanupSchedulers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// testMap accepts an endpoint-shaped body and previews the mapping without
// touching any stored state.
func (s *Server) testMap(w http.ResponseWriter, r *http.Request) {
	var cfg endpoint.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cfg.APIEndpoint == "" {
		writeError(w, http.StatusBadRequest, "apiEndpoint is required")
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.TestMap(r.Context(), datasource.RequestFor(&cfg), cfg.Mapping))
}
