package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fileverse/ddocs-stack/ddocs/internal/handlers"
	"github.com/fileverse/ddocs-stack/ddocs/internal/mcp"
	"github.com/fileverse/ddocs-stack/ddocs/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, MCP endpoint and sync workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the sync workers",
	Long: `Runs the submit and resolve triggers without the HTTP surface. With NATS
enabled the worker also joins the sync queue group and answers remote triggers.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}

// startWorkers starts the schedulers and the remote trigger subscriber.
// The returned stop function undoes both.
func startWorkers(ctx context.Context, a *app) (func(), error) {
	triggers, err := a.triggerHandler(ctx)
	if err != nil {
		return nil, err
	}
	if a.cfg.Sync.Enabled {
		go a.scheduler.Start(ctx)
	}
	return func() {
		if triggers != nil {
			_ = triggers.Stop()
		}
		if a.cfg.Sync.Enabled {
			a.scheduler.Stop()
		}
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	stopWorkers, err := startWorkers(ctx, a)
	if err != nil {
		return err
	}
	defer stopWorkers()

	h := handlers.NewHandler(a.svc, a.catalog, logger)
	if a.broker != nil {
		h.WithBroker(a.broker)
	}
	mcpHandler := mcp.NewHandler(a.dispatcher(), cfg.Auth.APIKey, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(h, mcpHandler, a.resolver, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ddocs listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.Sync.Enabled && a.broker == nil {
		return errors.New("nothing to run: sync.enabled is false and NATS is disabled")
	}
	stopWorkers, err := startWorkers(ctx, a)
	if err != nil {
		return err
	}
	defer stopWorkers()

	<-ctx.Done()
	logger.Info("worker stopping")
	return nil
}
