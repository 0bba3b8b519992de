package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CTAG07/markovnet/pkg/markov"
)

// serve runs the API server until ctx is cancelled or the process receives
// SIGINT or SIGTERM, then shuts it down gracefully.
func serve(ctx context.Context, addr string, db *sql.DB, store *markov.Store, config *Config, logger *slog.Logger) error {
	authAPI := NewAuthAPI(db, logger)
	markovAPI := NewMarkovAPI(store, config, logger)
	apiHttpServer := &http.Server{
		Addr:              addr,
		Handler:           newAPIMux(authAPI, markovAPI),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	osSignalChan := make(chan os.Signal, 1)
	signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(osSignalChan)

	select {
	case err, ok := <-serverErr:
		if ok {
			logger.Error("Api server failed", "error", err)
			return err
		}
		return nil
	case sig := <-osSignalChan:
		logger.Info("OS signal received, initiating shutdown.", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
		return err
	}
	logger.Info("HTTP server stopped.")
	return nil
}
