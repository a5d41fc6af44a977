// Package control exposes the mute surface and endpoint management over
// HTTP and over a kafka command topic.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/domain/state"
	"github.com/NordCoder/Feedwatch/internal/obs"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/NordCoder/Feedwatch/internal/services/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Controller is the control surface the server drives.
type Controller interface {
	MuteItems(ctx context.Context, tag string, minutes int) (*state.EndpointState, error)
	UnmuteItems(ctx context.Context, tag string) (*state.EndpointState, error)
	MuteAPI(ctx context.Context, tag string) (*state.EndpointState, error)
	UnmuteAPI(ctx context.Context, tag string) (*state.EndpointState, error)
	ResetItems(ctx context.Context, tag string) (*state.EndpointState, error)
	GetState(ctx context.Context, tag string) (*state.EndpointState, error)

	GetEndpoint(ctx context.Context, tag string) (*endpoint.Config, error)
	ListEndpoints(ctx context.Context) ([]string, error)
	UpsertEndpoint(ctx context.Context, tag string, partial map[string]any) (*endpoint.Config, error)
	RemoveEndpoint(ctx context.Context, tag string) (endpoint.RemoveResult, error)
	Activate(ctx context.Context, tag string) error
	Deactivate(ctx context.Context, tag string) error
	ActiveEndpoints(ctx context.Context) ([]string, error)

	Schedulers(ctx context.Context) (scheduler.Report, error)
	StartScheduler(ctx context.Context, tag string) error
	StopScheduler(ctx context.Context, tag string) bool
	RestartScheduler(ctx context.Context, tag string) error
	CleanupSchedulers(ctx context.Context) ([]string, error)

	TestMap(ctx context.Context, req datasource.Request, m endpoint.Mapping) scheduler.TestResult
	History(ctx context.Context, tag string, limit int) ([]*notification.Notification, error)
}

var _ Controller = (*scheduler.Service)(nil)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg  Config
	ctl  Controller
	log  *zap.Logger
	http *http.Server
}

func NewServer(cfg Config, ctl Controller, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L()
	}
	return &Server{
		cfg: cfg,
		ctl: ctl,
		log: log.With(zap.String("component", "control.http")),
	}
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router(), "control")
}

func (s *Server) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Links embedded in alert emails.
	r.Get("/mute/items/ui", s.muteItemsPage)
	r.Get("/mute/items", s.muteItemsLink)
	r.Get("/mute/api", s.muteAPILink)
	r.Get("/unmute/api", s.unmuteAPILink)

	r.Route("/api", func(r chi.Router) {
		r.Get("/endpoints", s.listEndpoints)
		r.Get("/endpoints/active", s.activeEndpoints)
		r.Get("/endpoints/{tag}", s.getEndpoint)
		r.Put("/endpoints/{tag}", s.upsertEndpoint)
		r.Delete("/endpoints/{tag}", s.removeEndpoint)
		r.Post("/endpoints/{tag}/activate", s.activate)
		r.Post("/endpoints/{tag}/deactivate", s.deactivate)

		r.Get("/endpoints/{tag}/state", s.getState)
		r.Post("/endpoints/{tag}/mute/items", s.muteItems)
		r.Post("/endpoints/{tag}/unmute/items", s.stateOp(s.ctl.UnmuteItems))
		r.Post("/endpoints/{tag}/mute/api", s.stateOp(s.ctl.MuteAPI))
		r.Post("/endpoints/{tag}/unmute/api", s.stateOp(s.ctl.UnmuteAPI))
		r.Post("/endpoints/{tag}/reset", s.stateOp(s.ctl.ResetItems))
		r.Get("/endpoints/{tag}/history", s.history)

		r.Get("/schedulers", s.schedulers)
		r.Post("/schedulers/cleanup", s.cleanupSchedulers)
		r.Post("/schedulers/{tag}/start", s.schedulerOp(s.ctl.StartScheduler))
		r.Post("/schedulers/{tag}/restart", s.schedulerOp(s.ctl.RestartScheduler))
		r.Post("/schedulers/{tag}/stop", s.stopScheduler)
		r.Post("/test-map", s.testMap)
	})
	return r
}

func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.Info("control server listening", zap.String("addr", s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := append(obs.TraceFields(r.Context()),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
			log.Info("request", fields...)
		})
	}
}
