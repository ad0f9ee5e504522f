package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// shutdownTimeout bounds how long in-flight requests get after a stop signal.
const shutdownTimeout = 10 * time.Second

// startHTTPServer serves router until ctx is canceled or the listener fails,
// then shuts down gracefully and releases application resources.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("Starting server", slog.Int("port", app.config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("Server failed", slog.String("error", err.Error()))
			errCh <- err
			cancelServer()
		}
	}()

	<-serverCtx.Done()
	app.logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Server shutdown failed", slog.String("error", err.Error()))
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.cleanup()
	app.logger.Info("Server shutdown completed")

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
