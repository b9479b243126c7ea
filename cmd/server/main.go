package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/relay/internal/api"
	"github.com/knowledge-engine/relay/internal/config"
	"github.com/knowledge-engine/relay/internal/provider"
	"github.com/knowledge-engine/relay/internal/relay"
)

func main() {
	// .env never overrides variables already set in the environment
	envErr := godotenv.Load()

	// 1. Config
	cfg := config.Load()

	// 2. Logging
	logger := newLogger(cfg.Log)
	entry := logger.WithField("service", "kb-relay")

	if envErr != nil {
		entry.Debug("No .env file loaded, using process environment only")
	}
	if err := cfg.Validate(); err != nil {
		entry.Fatal(err)
	}
	if cfg.KnowledgeBase.ID == "" {
		entry.Warn("KNOWLEDGE_BASE_ID is not set; every chat request will fail upstream")
	}

	entry.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"region":      cfg.AWS.Region,
		"model":       cfg.KnowledgeBase.ModelID,
	}).Info("Starting Knowledge Base Relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Provider
	client, err := provider.NewBedrockClient(ctx, cfg.AWS)
	if err != nil {
		entry.Fatalf("Failed to initialize Bedrock client: %v", err)
	}
	gen := provider.NewBedrockProvider(client)

	// 4. Relay
	r := relay.NewRelay(cfg.KnowledgeBase, entry, gen)

	// 5. API Server
	server := api.NewServer(cfg, r, entry)
	if err := server.Start(ctx); err != nil {
		entry.Fatal(err)
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetReportCaller(cfg.ReportCaller)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("Unknown LOG_LEVEL %q, falling back to info", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
