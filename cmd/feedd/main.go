// feedd serves the Optimist Daily feed API.
//
// Usage:
//
//	feedd [--config optimist.yaml]
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RobinCoderZhao/optimist-daily/internal/api"
	"github.com/RobinCoderZhao/optimist-daily/internal/appconfig"
	"github.com/RobinCoderZhao/optimist-daily/internal/feed"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "feedd",
		Short:         "Optimist Daily feed API server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", appconfig.DefaultPath, "path to the YAML config file")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("feedd failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	slog.SetDefault(cfg.Log.NewLogger(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := cfg.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	adapters := feed.BuildAdapters(cfg.Feed.Providers)
	if len(adapters) == 0 {
		slog.Warn("no news provider is active; every fetch will fail until an API key is configured")
	}
	var ids []feed.ProviderID
	for _, a := range adapters {
		ids = append(ids, a.ID())
	}
	aggregator := feed.NewAggregator(adapters, feed.NewExecutor(adapters, cfg.Feed.ExecutorOptions()...))

	server := api.NewServer(stores.Users, stores.Prefs, aggregator, cfg.Server.JWTSecret,
		api.WithSessionTTL(cfg.Server.SessionTTL),
		api.WithProviders(ids),
	)
	defer server.Close()
	go server.RunReaper(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           corsMiddleware(cfg.Server.CORSOrigin, server.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting feed API server", "addr", cfg.Server.Addr, "providers", ids)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

// corsMiddleware allows the mobile web client to call the API from origin.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if origin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
