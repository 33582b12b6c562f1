// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ai-chat-session-manager/internal/config"
	"ai-chat-session-manager/internal/domain/ports/adapter"
	"ai-chat-session-manager/internal/domain/ports/repository"
	aiclient "ai-chat-session-manager/internal/infra/ai"
	"ai-chat-session-manager/internal/infra/api"
	pg "ai-chat-session-manager/internal/infra/db/postgres"
	"ai-chat-session-manager/internal/infra/logging"
	"ai-chat-session-manager/internal/infra/metrics"
	red "ai-chat-session-manager/internal/infra/redis"
	"ai-chat-session-manager/internal/infra/sched"
	"ai-chat-session-manager/internal/infra/security"
	"ai-chat-session-manager/internal/infra/worker"
	"ai-chat-session-manager/internal/usecase"
)

// Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("Developer mode enabled")
	}

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool)

	// ---- Redis (optional cache) ----
	var cache *red.SessionCache
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connect failed")
		}
		defer redisClient.Close()
		cache = red.NewSessionCache(redisClient, cfg.Redis.TTL)
		logger.Info().Str("addr", cfg.Redis.URL).Msg("Transcript cache enabled")
	}

	// ---- Encryption (optional, at-rest) ----
	var encSvc *security.EncryptionService
	if cfg.Storage.EncryptMessages {
		encSvc, err = security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption init failed")
		}
	}

	// ---- Store ----
	repo := pg.NewSessionRepo(pool, cache, encSvc, cfg.Storage.EncryptMessages)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	var store repository.SessionRepository = repo
	if cfg.Storage.WriteBehind {
		wb := worker.NewWriteBehindStore(repo, cfg.Storage.QueueSize, logger, func(op, id string, err error) {
			metrics.IncFault("persistence")
		})
		wb.Start(ctx)
		defer wb.Stop()
		store = wb
		logger.Info().Int("queue_size", cfg.Storage.QueueSize).Msg("Write-behind store enabled")
	}

	// ---- AI client (explicit provider, else picked by key presence) ----
	provider := strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if provider == "" {
		switch {
		case cfg.AI.GeminiKey != "":
			provider = "gemini"
		case cfg.AI.OpenAIKey != "":
			provider = "openai"
		default:
			provider = "noop"
			logger.Warn().Msg("No AI provider configured; falling back to noop replies")
		}
	}
	var ai adapter.CompletionService
	switch provider {
	case "gemini":
		ai, err = aiclient.NewGeminiClient(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.Model, cfg.AI.MaxOutputTokens, cfg.AI.SystemPrompt, logger)
	case "openai":
		ai, err = aiclient.NewOpenAIClient(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.Model, cfg.AI.MaxOutputTokens, cfg.AI.SystemPrompt, logger)
	case "noop":
		ai = aiclient.NewNoopClient(logger)
	default:
		logger.Fatal().Str("provider", provider).Msg("unknown ai.provider")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("provider", provider).Msg("ai client init failed")
	}
	logger.Info().Str("provider", provider).Str("model", cfg.AI.Model).Msg("AI client ready")

	// ---- Use case ----
	uc := usecase.NewSessionUseCase(store, ai, logger, func(f usecase.Fault) {
		metrics.IncFault(string(f.Kind))
	})

	// ---- HTTP API ----
	srv := api.NewServer(uc, logger)
	handler := api.Chain(srv.Routes(),
		api.TraceID(logger),
		api.RequestLog(logger),
		api.Recover(logger),
		api.Timeout(2*time.Minute),
	)
	server := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("HTTP API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Retention worker ----
	if cfg.Retention.MaxAge > 0 {
		w := sched.NewRetentionWorker(cfg.Retention.SweepInterval, cfg.Retention.MaxAge, store, logger)
		go func() { _ = w.Run(ctx) }()
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
