package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"buildrelay/internal/api"
	"buildrelay/internal/logger"
	"buildrelay/internal/storage"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and Jenkins callback receiver.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, client, notifier, err := loadClient()
		if err != nil {
			return err
		}
		logger.Info("Starting buildrelay service", "jenkins", client.URL(), "callback", client.CallbackURL())

		store, err := storage.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close database connection", "error", err)
			}
		}()

		router := api.NewRouter(*cfg, client, store, notifier)
		client.SetApp(router)

		server := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		var g run.Group
		g.Add(func() error {
			logger.Info("Server listening", "addr", server.Addr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			logger.Info("Initiating graceful shutdown", "timeout", shutdownTimeout.String())
			if err := server.Shutdown(ctx); err != nil {
				logger.Error("Server forced to shutdown", "error", err, "timeout", shutdownTimeout.String())
				return
			}
			logger.Info("Server shutdown gracefully")
		})
		g.Add(run.SignalHandler(cmd.Context(), syscall.SIGINT, syscall.SIGTERM))

		err = g.Run()
		var sigErr run.SignalError
		if errors.As(err, &sigErr) {
			logger.Info("Received signal", "signal", sigErr.Signal.String())
			return nil
		}
		return err
	},
}
