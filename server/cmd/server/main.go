// Package main is the entry point for the statix-server binary.
// It wires every internal component together and starts the HTTP listener.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Open the database (migrations apply automatically)
//  4. Build Store → Identity → NodeAuth → Ingest → LiveRoster
//  5. Run the prestart bootstrap routine (seed permissions, shell admin)
//  6. Start the MQTT ingest subscriber and the live roster broadcaster
//  7. Start the HTTP server
//  8. Block until SIGINT/SIGTERM, then graceful shutdown
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/api"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/db"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/ingest"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/liveroster"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr string
	dbDriver string
	dbDSN    string
	logLevel string

	brokerURL      string
	brokerHost     string
	brokerPort     int
	brokerUsername string
	brokerPassword string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "statix-server",
		Short: "Statix server — fleet telemetry server",
		Long: `Statix server is the central component of the Statix fleet
telemetry system. It exposes an HTTP API for operators and agents,
subscribes to node telemetry over MQTT, and broadcasts live roster
updates over a WebSocket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("STATIX_HTTP_ADDR", ":8080"), "HTTP API listen address")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("STATIX_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("STATIX_DB_DSN", "./statix.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("STATIX_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	root.PersistentFlags().StringVar(&cfg.brokerURL, "broker-url", envOrDefault("STATIX_BROKER_URL", "tcp://localhost:1883"), "MQTT broker URL the server subscribes to")
	root.PersistentFlags().StringVar(&cfg.brokerHost, "broker-host", envOrDefault("STATIX_BROKER_HOST", "localhost"), "MQTT broker host handed to agents on exchange")
	root.PersistentFlags().IntVar(&cfg.brokerPort, "broker-port", envIntOrDefault("STATIX_BROKER_PORT", 1883), "MQTT broker port handed to agents on exchange")
	root.PersistentFlags().StringVar(&cfg.brokerUsername, "broker-username", envOrDefault("STATIX_BROKER_USERNAME", ""), "MQTT broker username handed to agents on exchange")
	root.PersistentFlags().StringVar(&cfg.brokerPassword, "broker-password", envOrDefault("STATIX_BROKER_PASSWORD", ""), "MQTT broker password handed to agents on exchange")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("statix-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting statix server",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
	)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- Components ---
	store := repositories.New(gormDB)
	identitySvc := identity.New(store, logger)
	nodeAuthSvc := nodeauth.New(store, logger, nodeauth.BrokerConfig{
		Host:     cfg.brokerHost,
		Port:     cfg.brokerPort,
		Username: cfg.brokerUsername,
		Password: cfg.brokerPassword,
	})
	roster := liveroster.NewHub(store, logger)
	ingestSvc := ingest.New(store, roster, logger, cfg.brokerURL)

	// --- Prestart: seed static permissions, maintain the shell admin ---
	bootstrapToken, err := identitySvc.Prestart(ctx)
	if err != nil {
		return fmt.Errorf("failed to run prestart routine: %w", err)
	}
	if bootstrapToken != "" {
		logger.Warn("bootstrap claim token issued — use this once to claim the first admin account",
			zap.String("bootstrap_token", bootstrapToken),
		)
	}

	// --- Ingest subscriber ---
	if err := ingestSvc.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	// --- Live roster broadcaster ---
	go roster.Run(ctx)

	// --- HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Identity: identitySvc,
		NodeAuth: nodeAuthSvc,
		Store:    store,
		Roster:   roster,
		Logger:   logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down statix server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("statix server stopped")
	return nil
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return parsed
}
