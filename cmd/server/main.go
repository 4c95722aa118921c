// Package main is the entry point for the msgcore gateway server binary.
// It dispatches three subcommands (serve, migrate and version) via a switch on os.Args.
// The serve command runs migrations on startup so a fresh deployment needs no separate
// migration step. Prometheus metrics are served on their own port, outside the API router.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/msgcore/msgcore-sub001/internal/api"
	"github.com/msgcore/msgcore-sub001/internal/auth"
	"github.com/msgcore/msgcore-sub001/internal/config"
	"github.com/msgcore/msgcore-sub001/internal/db"
	"github.com/msgcore/msgcore-sub001/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("msgcore v%s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Without a secret only API keys and external tokens are accepted
	if err := auth.ValidateJWTSecret(); err != nil && !errors.Is(err, auth.ErrJWTNotConfigured) {
		return fmt.Errorf("security configuration error: %w", err)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "user", cfg.Database.User, "ssl_mode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(database)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices, err := api.NewRouter(cfg, database)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", server.Addr,
			"base_url", cfg.Server.BaseURL,
			"tls", cfg.Security.TLS.Enabled,
			"queue", cfg.Queue.Enabled,
			"redis", cfg.Redis.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		bgServices.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}

	// Stops the retention job and rate limiters, drains the audit recorder and closes the broker
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}
