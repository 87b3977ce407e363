package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/PipeOpsHQ/segb/api"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, addr, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SEGB_ADDR)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr string, errOut io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	logger := newLogger(cfg.Log, errOut)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close resources", "error", err)
		}
	}()
	a.warnSecurity()

	apiCfg := api.Config{
		Addr:       cfg.Addr,
		Service:    a.service,
		Authorizer: a.authorizer,
		Logger:     logger,
		Sink:       a.sink,
	}
	var metricsServer *http.Server
	if a.metrics != nil {
		apiCfg.Metrics = a.metrics
		if cfg.Metrics.Addr == "" {
			apiCfg.MetricsHandler = a.metrics.Handler()
		} else {
			mux := http.NewServeMux()
			mux.Handle("/metrics", a.metrics.Handler())
			metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		}
	}
	server := api.NewServer(apiCfg)

	logger.Info("segb listening",
		"addr", cfg.Addr,
		"version", Version,
		"state_backend", cfg.State.Backend,
		"audit_backend", cfg.Audit.Backend,
		"deletion_record", cfg.Audit.DeletionRecord)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(gctx) })
	if metricsServer != nil {
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
		g.Go(func() error {
			err := metricsServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
