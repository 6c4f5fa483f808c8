// Package main is the entry point for the statix-agent binary.
// It wires the session runner together and starts it.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Build the session runner (API client + collector + MQTT session loop)
//  4. Block until SIGINT/SIGTERM, then graceful shutdown
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GustavPetterssonBjorklund/Statix/agent/internal/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	apiBaseURL string
	nodeID     string
	nodeToken  string
	logLevel   string

	reconnectDelayMs            int
	connectTimeoutMs            int
	publishIntervalMs           int
	systemInfoCheckIntervalMs   int
	systemInfoRepublishInterval int
	exchangeIntervalMs          int
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
		Use:   "statix-agent",
		Short: "Statix agent — fleet telemetry agent",
		Long: `Statix agent runs on each monitored machine.
It exchanges node credentials with the Statix server, connects to the
message broker, and publishes periodic resource metrics and inventory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.apiBaseURL, "api-base-url", envOrDefault("STATIX_API_BASE_URL", "http://localhost:8080"), "Statix server HTTP base URL")
	root.PersistentFlags().StringVar(&cfg.nodeID, "node-id", envOrDefault("STATIX_NODE_ID", ""), "This node's id, issued at registration")
	root.PersistentFlags().StringVar(&cfg.nodeToken, "node-token", envOrDefault("STATIX_NODE_TOKEN", ""), "This node's long-lived bearer token, issued at registration")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("STATIX_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	root.PersistentFlags().IntVar(&cfg.reconnectDelayMs, "reconnect-delay-ms", envIntOrDefault("STATIX_RECONNECT_DELAY_MS", 3000), "Delay before reconnecting after a dropped session")
	root.PersistentFlags().IntVar(&cfg.connectTimeoutMs, "connect-timeout-ms", envIntOrDefault("STATIX_CONNECT_TIMEOUT_MS", 8000), "Broker connect timeout")
	root.PersistentFlags().IntVar(&cfg.publishIntervalMs, "publish-interval-ms", envIntOrDefault("STATIX_PUBLISH_INTERVAL_MS", 5000), "Metrics publish interval")
	root.PersistentFlags().IntVar(&cfg.systemInfoCheckIntervalMs, "system-info-check-interval-ms", envIntOrDefault("STATIX_SYSTEM_INFO_CHECK_INTERVAL_MS", 600000), "Inventory change-check interval")
	root.PersistentFlags().IntVar(&cfg.systemInfoRepublishInterval, "system-info-republish-interval-ms", envIntOrDefault("STATIX_SYSTEM_INFO_REPUBLISH_INTERVAL_MS", 86400000), "Force inventory republish after this long even if unchanged")
	root.PersistentFlags().IntVar(&cfg.exchangeIntervalMs, "exchange-interval-ms", envIntOrDefault("STATIX_EXCHANGE_INTERVAL_MS", 900000), "Credential re-exchange interval")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("statix-agent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.nodeID == "" || cfg.nodeToken == "" {
		return fmt.Errorf("STATIX_NODE_ID and STATIX_NODE_TOKEN are required (see the envFile returned by node creation)")
	}

	logger.Info("starting statix agent",
		zap.String("version", version),
		zap.String("api_base_url", cfg.apiBaseURL),
		zap.String("node_id", cfg.nodeID),
	)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner := session.New(session.Config{
		APIBaseURL:   cfg.apiBaseURL,
		NodeID:       cfg.nodeID,
		NodeToken:    cfg.nodeToken,
		AgentVersion: version,
		AgentCommit:  commit,
		AgentBuiltAt: date,

		ReconnectDelay:              time.Duration(cfg.reconnectDelayMs) * time.Millisecond,
		ConnectTimeout:              time.Duration(cfg.connectTimeoutMs) * time.Millisecond,
		PublishInterval:             time.Duration(cfg.publishIntervalMs) * time.Millisecond,
		SystemInfoCheckInterval:     time.Duration(cfg.systemInfoCheckIntervalMs) * time.Millisecond,
		SystemInfoRepublishInterval: time.Duration(cfg.systemInfoRepublishInterval) * time.Millisecond,
		ExchangeInterval:            time.Duration(cfg.exchangeIntervalMs) * time.Millisecond,

		Logger: logger,
	})

	// Run blocks until ctx is cancelled (SIGINT/SIGTERM).
	runner.Run(ctx)

	logger.Info("statix agent stopped")
	return nil
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
	var parsed int
	if _, err := fmt.Sscanf(v, "%d", &parsed); err != nil {
		return defaultVal
	}
	return parsed
}
