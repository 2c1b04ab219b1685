package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"openbank-cache/internal/app"
)

const shutdownTimeout = 10 * time.Second

func main() {
	runtime, err := app.Build(app.Options{LoadDotEnv: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	logger := runtime.Logger

	server := &http.Server{
		Addr:              runtime.Config.Addr(),
		Handler:           runtime.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server_start", map[string]any{"addr": server.Addr})
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", map[string]any{"error": err.Error()})
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("server_shutdown", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server_shutdown_failed", map[string]any{"error": err.Error()})
			exitCode = 1
		}
		cancel()
	}

	if err := runtime.Close(); err != nil {
		logger.Error("close_runtime_failed", map[string]any{"error": err.Error()})
	}
	os.Exit(exitCode)
}
