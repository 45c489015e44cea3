package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/api"
	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/config"
	"github.com/gautamrajesh007/Interceptor/internal/metrics"
	"github.com/gautamrajesh007/Interceptor/internal/reconcile"
	"github.com/gautamrajesh007/Interceptor/internal/session"
	"github.com/gautamrajesh007/Interceptor/internal/transport"
)

// runtime is the wired sync layer shared by every subcommand.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	bus       *bus.Bus
	session   *session.Store
	api       *api.Client
	transport *transport.Client
	reconcile *reconcile.Reconciler

	closers []func() error
}

func openStorage(cfg config.SessionConfig) (session.Storage, func() error, error) {
	switch cfg.Storage {
	case "redis":
		s, err := session.NewRedisStorage(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting session redis: %w", err)
		}
		return s, s.Close, nil
	default:
		return session.NewFileStorage(cfg.Path), nil, nil
	}
}

func newRuntime(ctx context.Context, cfg *config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: log, metrics: metrics.New("interceptor_console")}

	storage, closeStorage, err := openStorage(cfg.Session)
	if err != nil {
		return nil, err
	}
	if closeStorage != nil {
		rt.closers = append(rt.closers, closeStorage)
	}

	rt.session = session.NewStore(storage, nil, log)
	if err := rt.session.Load(ctx); err != nil {
		// A damaged session file only means signing in again.
		log.Warn("loading stored session", zap.Error(err))
	}

	rt.bus = bus.New(log, rt.metrics)
	rt.api = api.NewClient(cfg.Server.BaseURL, rt.session, rt.bus,
		api.WithLogger(log),
		api.WithMetrics(rt.metrics),
		api.WithTimeout(cfg.Sync.RequestTimeout),
	)
	rt.transport = transport.New(transport.Config{
		URL:               cfg.Server.PushURL,
		ReconnectInterval: cfg.Sync.ReconnectInterval,
		HandshakeTimeout:  cfg.Sync.HandshakeTimeout,
	}, rt.session, rt.bus,
		transport.WithLogger(log),
		transport.WithMetrics(rt.metrics),
	)
	rt.reconcile = reconcile.New(rt.api, rt.transport, rt.session, rt.bus,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(rt.metrics),
		reconcile.WithConfig(reconcile.Config{
			PollInterval:   cfg.Sync.PollInterval,
			SearchDebounce: cfg.Sync.SearchDebounce,
			TimelineSize:   cfg.Sync.TimelineSize,
			ActionRetries:  cfg.Sync.ActionRetries,
			VoteCacheTTL:   cfg.Sync.VoteCacheTTL,
		}),
	)
	return rt, nil
}

// serveMetrics exposes the client telemetry when metrics.addr is set.
func (rt *runtime) serveMetrics() {
	addr := rt.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics endpoint", zap.Error(err))
		}
	}()
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	rt.logger.Info("serving metrics", zap.String("addr", addr))
}

// Close stops the sync layer and releases storage.
func (rt *runtime) Close() {
	rt.reconcile.Close()
	rt.transport.Disconnect()
	rt.reconcile.Wait()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("shutdown", zap.Error(err))
		}
	}
	rt.bus.Close()
}
