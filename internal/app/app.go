// Package app provides application lifecycle management for the users API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/synthetic-users-api/internal/config"
	"github.com/stacklok/synthetic-users-api/internal/dataset"
)

// UsersApp encapsulates all components needed to run the users API server
// It provides lifecycle management and graceful shutdown capabilities
type UsersApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start serves HTTP and, with eager startup, kicks off dataset generation.
// It blocks until the HTTP server stops or fails.
func (app *UsersApp) Start() error {
	g, ctx := errgroup.WithContext(app.ctx)

	if app.config.Dataset.Startup == config.StartupEager {
		g.Go(func() error {
			slog.Info("Starting dataset generation eagerly", "size", app.components.Dataset.Size())
			err := app.components.Dataset.EnsureGeneration(ctx)
			switch {
			case err == nil,
				errors.Is(err, context.Canceled),
				errors.Is(err, dataset.ErrClosed),
				errors.Is(err, dataset.ErrInterrupted):
				// Shutdown interrupted generation; the HTTP server reports its own errors
				return nil
			default:
				return fmt.Errorf("dataset generation failed: %w", err)
			}
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// The HTTP server drains first, then generation stops and telemetry is flushed.
func (app *UsersApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	if err := app.components.Dataset.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop dataset generation: %w", err))
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if app.components.Telemetry != nil {
		if err := app.components.Telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *UsersApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *UsersApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the wired components
func (app *UsersApp) GetComponents() *AppComponents {
	return app.components
}
