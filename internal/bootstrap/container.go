package bootstrap

import (
	"context"
	"log"
	"time"

	"compliance-agent-be/internal/config"
	"compliance-agent-be/internal/handler"
	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/internal/service"
	"compliance-agent-be/internal/session"
	"compliance-agent-be/pkg/agent"
	"compliance-agent-be/pkg/llm/factory"
	"compliance-agent-be/pkg/tokenizer"
	"compliance-agent-be/pkg/tools"

	"github.com/redis/go-redis/v9"
)

type Container struct {
	ChatHandler *handler.ChatHandler
	Logger      logger.ILogger
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. LLM Provider
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.LLMBaseURL,
		cfg.Ai.LLMAPIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	estimator := tokenizer.NewTiktokenEstimator(cfg.Ai.TokenizerName)

	// 3. Redis (durable session snapshots)
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: cfg.Redis.URL}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	snapshotTTL := time.Duration(cfg.Agent.SnapshotTTLSeconds) * time.Second
	snapshots := session.NewRedisSnapshotStore(rdb, snapshotTTL)

	// 4. Sessions
	store := session.NewStore()
	sessions := session.NewManager(snapshots, sysLogger)

	// 5. Backend collaborator
	backend := service.NewBackendService(cfg.Backend.BaseURL, cfg.Backend.InternalAPIKey, sysLogger)

	// 6. Agent core
	registry := tools.NewRegistry(backend, sysLogger)
	dispatcher := agent.NewDispatcher(registry, sysLogger)
	prompts := agent.NewPromptBuilder(registry, cfg.Agent.MemoryWindowSize)
	graph := agent.NewGraph(
		llmProvider, estimator,
		cfg.Ai.LLMModel, cfg.Ai.Temperature,
		registry, dispatcher, prompts,
		sysLogger, cfg.Agent.StepLimit,
	)
	processor := agent.NewProcessor(store, graph, backend, sysLogger)

	// 7. Handler
	chatHandler := handler.NewChatHandler(cfg, backend, store, sessions, processor, sysLogger)

	return &Container{
		ChatHandler: chatHandler,
		Logger:      sysLogger,
	}
}
