package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shorts-creator/internal/server"
)

const shutdownGrace = 10 * time.Second

// Run starts the HTTP API and blocks until SIGINT/SIGTERM. In-flight
// requests get a grace period; a running job keeps its own context and
// is cancelled explicitly.
func (a *App) Run() error {
	addr := a.Settings.ListenAddr
	if env := os.Getenv("APP_ADDR"); env != "" {
		addr = env
	}

	srv := &http.Server{
		Addr:        addr,
		Handler:     server.New(a.logger, a),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	if err := a.Cancel(); err != nil {
		a.logger.Debug("no job to cancel on shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
