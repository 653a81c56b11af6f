// Package cli wires the service from configuration for the command-line entry points.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"time"

	"github.com/aretw0/xrkconv"
	"github.com/aretw0/xrkconv/internal/config"
	"github.com/aretw0/xrkconv/pkg/adapters/process"
	"github.com/aretw0/xrkconv/pkg/adapters/redis"
	"github.com/aretw0/xrkconv/pkg/environment"
	"github.com/aretw0/xrkconv/pkg/observability"
	"github.com/aretw0/xrkconv/pkg/results"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App bundles the service with the resources it owns.
type App struct {
	Config   config.Config
	Service  *xrkconv.Service
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger

	closers []func() error
}

// NewApp validates cfg and builds the service. With redis.addr set, live
// sessions and the sweep lock are shared through Redis, otherwise they stay in
// process memory.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	app := &App{Config: cfg, Metrics: metrics, Registry: reg, Logger: logger}

	opts := []xrkconv.Option{
		xrkconv.WithLogger(logger),
		xrkconv.WithLifecycleHooks(metrics.Hooks()),
	}

	sessionTTL := cfg.Redis.SessionTTL
	if cfg.Redis.Addr != "" {
		registry := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithPrefix(cfg.Redis.Prefix))
		if err := registry.Client().Ping(ctx).Err(); err != nil {
			registry.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		opts = append(opts,
			xrkconv.WithRegistry(registry),
			xrkconv.WithLocker(redis.NewLocker(registry.Client(), cfg.Redis.Prefix)),
		)
		app.closers = append(app.closers, registry.Close)
		logger.Info("using redis session registry", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	} else {
		// A single process never loses track of its own sessions.
		sessionTTL = 0
	}

	if cfg.Results.Dir != "" {
		opts = append(opts, xrkconv.WithResults(results.NewStore(cfg.Results.Dir)))
	}

	svc, err := xrkconv.New(ServiceConfig(cfg, sessionTTL), opts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = svc
	return app, nil
}

// ServiceConfig maps the file configuration onto the service.
func ServiceConfig(cfg config.Config, sessionTTL time.Duration) xrkconv.Config {
	var roots []string
	if cfg.Runtime.Root != "" {
		paths := cfg.Runtime.Paths
		if len(paths) == 0 {
			paths = environment.DefaultRuntimePaths(goruntime.GOOS)
		}
		roots = environment.ResolveRoots(cfg.Runtime.Root, paths)
	}

	return xrkconv.Config{
		WorkspaceRoot: cfg.Workspace.Root,
		OutputDir:     cfg.Workspace.OutputDir,
		Executable: process.Template{
			Command: cfg.Executable.Path,
			Args:    cfg.Executable.Args,
		},
		AssetRoot:     cfg.Executable.Root,
		Assets:        cfg.Executable.Assets,
		RuntimeRoots:  roots,
		SearchVar:     cfg.Runtime.SearchVar,
		FixedEnv:      cfg.Runtime.Env,
		Timeout:       cfg.Timeout,
		MaxConcurrent: cfg.MaxConcurrent,
		SessionTTL:    sessionTTL,
	}
}

// Close waits for pending teardowns and releases shared connections.
func (a *App) Close() error {
	var errs []error
	if a.Service != nil {
		errs = append(errs, a.Service.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
