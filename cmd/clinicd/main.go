package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinic-ai/clinicd/internal/api"
	"github.com/clinic-ai/clinicd/internal/config"
	"github.com/clinic-ai/clinicd/internal/consultation"
	"github.com/clinic-ai/clinicd/internal/events"
	"github.com/clinic-ai/clinicd/internal/intake"
	"github.com/clinic-ai/clinicd/internal/openai"
	"github.com/clinic-ai/clinicd/internal/policy"
	"github.com/clinic-ai/clinicd/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("clinicd starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Patient store
	db, err := store.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		slog.Error("failed to connect to mongo", "uri", cfg.MongoURI, "error", err)
		os.Exit(1)
	}
	defer db.Close(context.Background())
	slog.Info("mongo connected", "db", cfg.MongoDB)

	// OpenAI client
	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	llm := openai.NewClient(cfg.OpenAIAPIKey, cfg.ChatModel)
	slog.Info("openai client ready", "model", cfg.ChatModel)

	// NATS is optional; without it clinicd runs with no lifecycle events.
	var publisher *events.Publisher
	if cfg.NatsURL != "" {
		publisher, err = events.NewPublisher(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without lifecycle events")
	}

	// Intake engine
	planner := policy.New(llm, time.Duration(cfg.PolicyTimeoutSeconds)*time.Second, slog.Default())
	engine := intake.NewEngine(planner, db, slog.Default())

	// Consultation flow
	consult := consultation.NewService(db, llm, cfg.WhisperModel, publisher, slog.Default())

	// HTTP API
	srv := api.NewServer(cfg.Port, engine, db, consult, publisher, cfg.PhoneRegion, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("clinicd ready", "port", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("clinicd stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
