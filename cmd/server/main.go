package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/botarena/botarena/internal/api"
	"github.com/botarena/botarena/internal/config"
	"github.com/botarena/botarena/internal/db"
	"github.com/botarena/botarena/internal/safego"
	"github.com/botarena/botarena/internal/telemetry"
)

const version = "0.1.0"

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		if err := serve(); err != nil {
			slog.Error("Server exited with error", "error", err)
			os.Exit(1)
		}
	case "migrate":
		direction := "up"
		if len(os.Args) > 2 {
			direction = os.Args[2]
		}
		if err := runMigrations(direction); err != nil {
			slog.Error("Migration failed", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("BotArena v%s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(os.Stderr, "Usage: botarena-server [serve|migrate [up|down]|version]")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, configPath, nil
}

func serve() error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	slog.Info("Starting BotArena server", "version", version)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Watch the config file so operators can flip the log level without a
	// restart.
	config.WatchLogLevel(configPath, telemetry.SetLogLevel)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	telemetry.StartDBStatsCollector(database)

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if migrationVersion, dirty, verr := db.GetMigrationVersion(database); verr == nil {
		slog.Info("Database schema ready", "migration_version", migrationVersion, "dirty", dirty)
	}

	if cfg.Telemetry.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.PrometheusPort)
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:         metricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		safego.GoNamed("metrics-server", func() {
			slog.Info("Metrics server listening", "addr", metricsAddr)
			if merr := metricsServer.ListenAndServe(); merr != nil && merr != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", merr)
			}
		})
	}

	router, bgServices := api.NewRouter(cfg, database)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	safego.GoNamed("http-server", func() {
		slog.Info("HTTP server listening", "addr", server.Addr)
		if serr := server.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			errChan <- serr
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	bgServices.Shutdown()

	slog.Info("Server stopped")
	return nil
}

func runMigrations(direction string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, direction); err != nil {
		return err
	}

	migrationVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	slog.Info("Migrations applied", "direction", direction, "migration_version", migrationVersion, "dirty", dirty)
	return nil
}
