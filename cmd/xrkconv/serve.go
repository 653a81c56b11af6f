package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aretw0/xrkconv/internal/cli"
	"github.com/aretw0/xrkconv/internal/config"
	httpAdapter "github.com/aretw0/xrkconv/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP conversion server",
	Long: `Serves POST /convert, GET /health and GET /metrics.

Stale workspaces left by a previous run are swept before the listener opens
unless workspace.sweep_on_start is false. The first SIGINT or SIGTERM drains
in-flight conversions; a second one closes the listener immediately.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Address to listen on (overrides the config file)")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "How long to wait for in-flight conversions on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	grace, _ := cmd.Flags().GetDuration("shutdown-timeout")

	var current atomic.Pointer[http.Server]
	interrupts := cli.WatchInterrupts(cmd.Context(), func() {
		if s := current.Load(); s != nil {
			s.Close()
		}
	})
	defer interrupts.Stop()

	app, err := setup(interrupts, cmd, func(c *config.Config) {
		if listen != "" {
			c.Listen = listen
		}
	})
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.Logger

	if app.Config.Workspace.SweepOnStart {
		if _, err := app.Service.Sweep(interrupts, app.Config.Workspace.MinAge); err != nil {
			logger.Warn("startup sweep failed", "err", err)
		}
	}

	handler := httpAdapter.NewHandler(app.Service,
		httpAdapter.WithMaxUploadBytes(app.Config.MaxUploadBytes),
		httpAdapter.WithMetrics(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})),
		httpAdapter.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:              app.Config.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	current.Store(srv)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "workspace_root", app.Config.Workspace.Root)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-interrupts.Done():
		logger.Info("shutting down", "signal", interrupts.Signal())

		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", grace, "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("close server: %w", err)
			}
		}
		logger.Info("server stopped")
		return nil
	}
}
