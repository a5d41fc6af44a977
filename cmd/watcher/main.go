package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	config "github.com/NordCoder/Feedwatch/internal/config/watcher"
	"github.com/NordCoder/Feedwatch/internal/obs"
	"github.com/NordCoder/Feedwatch/internal/registry"
	"github.com/NordCoder/Feedwatch/internal/services/control"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/NordCoder/Feedwatch/internal/services/scheduler"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:          "watcher",
		Short:        "Polls API endpoints and notifies about new items",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", envOr("FEEDWATCH_CONFIG", "config/watcher.yaml"), "path to config file")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	// init
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	// logger
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting watcher",
		zap.String("config", configPath),
		zap.String("storage", string(cfg.Storage.Driver)),
		zap.Int("endpoints", len(cfg.Endpoints)),
		zap.String("control_addr", cfg.Server.ControlAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	} else {
		defer func() { _ = otelCloser.Shutdown(context.Background()) }()
	}

	// storage
	st, err := initStorage(rootCtx, cfg, l)
	if err != nil {
		l.Error("storage init", zap.Error(err))
		return err
	}
	defer st.close()

	// wiring
	reg, err := registry.New(st.overrides, cfg.Notify.AsGlobalSettings(), cfg.BaseEndpoints())
	if err != nil {
		return err
	}
	reg = reg.WithLogger(l)

	src := datasource.New(datasource.Config{
		Timeout:         cfg.Fetch.Timeout,
		UserAgent:       cfg.Fetch.UserAgent,
		FollowRedirects: cfg.Fetch.FollowRedirects,
		VerifyTLS:       cfg.Fetch.VerifyTLS,
	}).WithLogger(l)

	disp, err := initDispatcher(cfg, st.history, l)
	if err != nil {
		return err
	}

	sink := initEvents(rootCtx, cfg, st.db, l)
	defer sink.close()

	uc := scheduler.NewUC(reg, st.states, src, disp)
	uc.Events = sink.pub
	uc.Log = l.With(zap.String("component", "scheduler.uc"))

	mgr := scheduler.NewManager(uc, reg).WithLogger(l)
	svc := scheduler.NewService(uc, mgr).WithLogger(l)
	if st.history != nil {
		svc = svc.WithHistory(st.history)
	}

	srv := control.NewServer(control.Config{
		Addr:         cfg.Server.ControlAddr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, svc, l)

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, st.health, l)

	// base definitions are reloaded in place; running timers pick up new
	// intervals and settings on restart.
	loader.Watch(func(next *config.Config, ev fsnotify.Event, err error) {
		if err != nil {
			l.Warn("config reload rejected", zap.String("file", ev.Name), zap.Error(err))
			return
		}
		reg.SetBase(next.BaseEndpoints())
		mgr.RestartRunning(rootCtx)
		l.Info("config reloaded", zap.String("file", ev.Name), zap.Int("endpoints", len(next.Endpoints)))
	})

	// run
	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() { errCh <- mgr.Run(ctx, reg) }()
	go func() { errCh <- srv.Start() }()

	if sink.runner != nil {
		sink.runner.Start(ctx)
	}

	cons := initControlConsumer(ctx, cfg, l)
	if cons != nil {
		defer func() { _ = cons.Close() }()
		go func() { errCh <- cons.Consume(ctx, control.NewCommands(svc, l).Handler()) }()
	}

	l.Info("watcher started")

	// loop
	var runErr error
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case runErr = <-errCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			l.Error("component failed", zap.Error(runErr))
		}
	}

	// graceful shutdown
	cancel()
	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	mgr.Shutdown()
	if sink.runner != nil {
		sink.runner.Wait()
	}
	l.Info("bye")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
