package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/activities"
	"github.com/kestrel-ops/kestrel/internal/agents"
	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
	"github.com/kestrel-ops/kestrel/internal/config"
	"github.com/kestrel-ops/kestrel/internal/constants"
	"github.com/kestrel-ops/kestrel/internal/db"
	"github.com/kestrel-ops/kestrel/internal/health"
	"github.com/kestrel-ops/kestrel/internal/httpapi"
	"github.com/kestrel-ops/kestrel/internal/llm"
	"github.com/kestrel-ops/kestrel/internal/memory"
	_ "github.com/kestrel-ops/kestrel/internal/metrics" // register collectors
	"github.com/kestrel-ops/kestrel/internal/planner"
	"github.com/kestrel-ops/kestrel/internal/policy"
	"github.com/kestrel-ops/kestrel/internal/session"
	"github.com/kestrel-ops/kestrel/internal/streaming"
	"github.com/kestrel-ops/kestrel/internal/temporal"
	"github.com/kestrel-ops/kestrel/internal/tools"
	"github.com/kestrel-ops/kestrel/internal/tracing"
	"github.com/kestrel-ops/kestrel/internal/workflows"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	circuitbreaker.StartMetricsCollection()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	// Redis backs sessions, memory, and the investigation circuit breakers.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	redisWrapper := circuitbreaker.NewRedisWrapper(redisClient, "redis", logger)

	memoryStore := memory.NewStore(redisWrapper, logger,
		memory.WithTTL(cfg.Memory.TTL),
		memory.WithMaxRecords(cfg.Memory.MaxRecords),
	)
	conversation := memory.NewConversationManager(memoryStore, cfg.Memory.MaxMessageLen, logger)
	sessions := session.NewManager(redisWrapper, logger,
		session.WithTTL(cfg.Session.TTL),
		session.WithMaxHistory(cfg.Session.MaxHistory),
	)

	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, logger,
		llm.WithModel(cfg.LLM.Model),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithRateLimit(cfg.LLM.RequestsPerSec, cfg.LLM.Burst),
	)
	toolGateway := tools.NewClient(cfg.Tools.BaseURL, logger)
	registry := agents.NewRegistry(cfg.Tools.SharedTools)
	plan := planner.New(llmClient, logger)

	policyEngine, err := policy.NewOPAEngine(&policy.Config{
		Enabled:     cfg.Policy.Enabled,
		Mode:        policy.Mode(cfg.Policy.Mode),
		Path:        cfg.Policy.Path,
		FailClosed:  cfg.Policy.FailClosed,
		Environment: cfg.Policy.Environment,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize policy engine", zap.Error(err))
	}

	var dbClient *db.Client
	if cfg.Database.Enabled {
		dbClient, err = db.NewClient(&db.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxConnections:  cfg.Database.MaxConnections,
			IdleConnections: cfg.Database.IdleConnections,
			MaxLifetime:     cfg.Database.MaxLifetime,
		}, logger)
		if err != nil {
			// History persistence is best-effort; investigations still run.
			logger.Warn("Database unavailable, running without history persistence", zap.Error(err))
			dbClient = nil
		} else {
			defer func() { _ = dbClient.Close() }()
		}
	}

	streams := streaming.NewManager(cfg.Streaming.RingCapacity)

	// Hot-reload for config and .rego policy files.
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}
	if cfgMgr, err := config.NewManager(configDir, logger); err != nil {
		logger.Warn("Config manager init failed", zap.Error(err))
	} else {
		cfgMgr.RegisterValidator("kestrel.yaml", config.ValidateKestrelConfig)
		cfgMgr.RegisterPolicyHandler(policyEngine.LoadPolicies)
		if err := cfgMgr.Start(ctx); err != nil {
			logger.Warn("Config manager start failed", zap.Error(err))
		} else {
			defer func() { _ = cfgMgr.Stop() }()
		}
	}

	// Wait for Temporal before dialing the SDK; compose brings it up in
	// parallel with this service.
	waitForTCP(cfg.Temporal.HostPort, logger)
	var temporalClient client.Client
	for attempt := 1; ; attempt++ {
		temporalClient, err = client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporal.NewZapAdapter(logger),
		})
		if err == nil {
			break
		}
		if attempt >= 10 {
			logger.Fatal("Temporal unreachable", zap.Error(err))
		}
		delay := time.Duration(attempt) * time.Second
		logger.Warn("Temporal not ready, retrying",
			zap.Int("attempt", attempt), zap.Duration("sleep", delay), zap.Error(err))
		time.Sleep(delay)
	}
	defer temporalClient.Close()

	acts := activities.New(activities.Dependencies{
		Logger:       logger,
		MemoryStore:  memoryStore,
		Conversation: conversation,
		Sessions:     sessions,
		LLM:          llmClient,
		Planner:      plan,
		Registry:     registry,
		Tools:        toolGateway,
		Policy:       policyEngine,
		DB:           dbClient,
		Streams:      streams,
	})

	wk := worker.New(temporalClient, constants.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})
	wk.RegisterWorkflow(workflows.InvestigationWorkflow)
	wk.RegisterActivity(acts)

	go func() {
		logger.Info("Temporal worker started", zap.String("queue", constants.TaskQueue))
		if err := wk.Run(worker.InterruptCh()); err != nil {
			logger.Error("Temporal worker exited with error", zap.Error(err))
		}
	}()

	healthMgr := health.NewManager(logger)
	if cfg.Health.Enabled {
		_ = healthMgr.RegisterChecker(health.NewRedisChecker(redisWrapper))
		_ = healthMgr.RegisterChecker(health.NewTemporalChecker(temporalClient))
		if dbClient != nil {
			_ = healthMgr.RegisterChecker(health.NewPostgresChecker(dbClient))
		}
		_ = healthMgr.RegisterChecker(health.NewHTTPServiceChecker("llm-service", cfg.LLM.BaseURL+"/health", false))
		if err := healthMgr.Start(ctx); err != nil {
			logger.Warn("Health manager start failed", zap.Error(err))
		}
		defer healthMgr.Stop()
	}

	jwtSecret := cfg.Auth.JWTSecret
	if !cfg.Auth.Enabled {
		jwtSecret = ""
	}
	server := httpapi.NewServer(httpapi.ServerConfig{
		Port:      cfg.Service.Port,
		JWTSecret: jwtSecret,
	}, temporalClient, dbClient, streams, healthMgr, logger)
	server.Start()
	logger.Info("Kestrel orchestrator started",
		zap.Int("port", cfg.Service.Port),
		zap.String("task_queue", constants.TaskQueue),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down orchestrator")

	wk.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}
	return zcfg.Build()
}

// waitForTCP blocks until the address accepts connections, up to a minute.
func waitForTCP(addr string, logger *zap.Logger) {
	for i := 1; i <= 60; i++ {
		c, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = c.Close()
			return
		}
		logger.Warn("Waiting for Temporal TCP endpoint",
			zap.String("host", addr), zap.Int("attempt", i))
		time.Sleep(time.Second)
	}
}
