package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/PipeOpsHQ/segb/audit"
	auditfactory "github.com/PipeOpsHQ/segb/audit/factory"
	"github.com/PipeOpsHQ/segb/auth"
	"github.com/PipeOpsHQ/segb/internal/config"
	"github.com/PipeOpsHQ/segb/lock"
	redislock "github.com/PipeOpsHQ/segb/lock/redis"
	"github.com/PipeOpsHQ/segb/metrics"
	"github.com/PipeOpsHQ/segb/observe"
	otelsink "github.com/PipeOpsHQ/segb/observe/otel"
	"github.com/PipeOpsHQ/segb/query"
	"github.com/PipeOpsHQ/segb/query/sparql"
	"github.com/PipeOpsHQ/segb/service"
	"github.com/PipeOpsHQ/segb/state"
	statefactory "github.com/PipeOpsHQ/segb/state/factory"
)

// app is everything one process needs to serve or inspect the log.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      state.Store
	backend    audit.Backend
	service    *service.Service
	authorizer *auth.Authorizer
	metrics    *metrics.Prometheus
	sink       *observe.AsyncSink
	redis      *goredis.Client
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = strings.ToLower(opts.logLevel)
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = statefactory.FromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	a.backend, err = auditfactory.FromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open audit backend: %w", err)
	}
	policy, err := audit.ParseDeletionPolicy(cfg.Audit.DeletionRecord)
	if err != nil {
		return nil, err
	}
	trail := audit.NewTrail(a.backend, audit.WithDeletionPolicy(policy), audit.WithLogger(logger))

	locker, err := a.newLocker(ctx)
	if err != nil {
		return nil, fmt.Errorf("writer lock: %w", err)
	}

	var engine query.Engine
	if strings.TrimSpace(cfg.SPARQL.QueryURL) != "" {
		client, err := sparql.New(cfg.SPARQL.QueryURL, sparql.WithDefaultGraph(cfg.SPARQL.Graph))
		if err != nil {
			return nil, fmt.Errorf("sparql query endpoint: %w", err)
		}
		engine = client
	}

	var collector metrics.Collector = metrics.Noop{}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewPrometheus()
		collector = a.metrics
	}

	a.sink = observe.NewAsyncSink(observe.NewMultiSink(
		observe.NewLogSink(logger.With("component", "events")),
		otelsink.NewSink(otel.GetTracerProvider()),
	), 256, observe.WithErrorLogger(logger))

	a.authorizer = auth.NewAuthorizer(auth.Secrets{
		Shared:  cfg.Secrets.Shared,
		Readers: cfg.Secrets.Readers,
		Loggers: cfg.Secrets.Loggers,
		Admins:  cfg.Secrets.Admins,
	})

	a.service = service.New(a.store, trail,
		service.WithLocker(locker),
		service.WithGate(query.NewGate(engine, cfg.SPARQL.Timeout)),
		service.WithSink(a.sink),
		service.WithMetrics(collector),
		service.WithLogger(logger),
		service.WithHistoryLimit(cfg.Audit.HistoryLimit),
	)
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.Lock.Backend != "redis" {
		return lock.NewMemory(), nil
	}
	a.redis = goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", a.cfg.Redis.Addr, err)
	}
	return redislock.New(a.redis, a.cfg.Redis.Prefix, a.cfg.Lock.TTL,
		redislock.WithLogger(a.logger.With("component", "lock")))
}

// warnSecurity logs the fail-open situations once at startup.
func (a *app) warnSecurity() {
	if a.authorizer.Disabled() {
		a.logger.Warn("SECURITY DISABLED: no secret configured, every request is granted every role")
		return
	}
	if open := a.authorizer.OpenRoles(); len(open) > 0 {
		a.logger.Warn("routes requiring these roles are open, no secret can verify them", "roles", open)
	}
}

func (a *app) Close() error {
	var errs []error
	if a.sink != nil {
		a.sink.Close()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
