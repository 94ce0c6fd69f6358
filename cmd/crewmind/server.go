package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crewmind-ai/crewmind/api"
	"github.com/crewmind-ai/crewmind/audit"
	"github.com/crewmind-ai/crewmind/config"
	"github.com/crewmind-ai/crewmind/crew"
	"github.com/crewmind-ai/crewmind/internal/metrics"
	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/provider"
	"github.com/crewmind-ai/crewmind/rag"
	"github.com/crewmind-ai/crewmind/routing"
	"github.com/crewmind-ai/crewmind/types"
)

// Server assembles the service from configuration and owns its lifecycle.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	http   *http.Server
	redis  *redis.Client
}

// NewServer wires the full service: store, cache, providers, routing,
// pipeline, orchestrator, auditor, and the HTTP layer.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	store, err := openStore(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var (
		cache       rag.ResponseCache
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = rag.NewRedisCache(redisClient, "crewmind:answer:", logger)
		logger.Info("Redis idempotency cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	embedder, generator := buildProviders(cfg.Providers, logger)

	profiles := make([]types.AgentProfile, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		profiles = append(profiles, types.AgentProfile{
			ID:                 a.ID,
			DisplayName:        a.DisplayName,
			SpecializationTags: a.Tags,
			PriorityRank:       a.PriorityRank,
		})
	}
	registry, err := routing.NewRegistry(profiles)
	if err != nil {
		return nil, fmt.Errorf("build agent registry: %w", err)
	}
	engine, err := routing.NewEngine(registry, routing.EngineConfig{
		DefaultAgent:        cfg.Routing.DefaultAgent,
		NeedsLocalReasoning: cfg.Routing.NeedsLocalReasoning,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build routing engine: %w", err)
	}

	var (
		collector      *metrics.Collector
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(cfg.Metrics.Namespace, reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	pipeline := rag.NewPipeline(store, engine, embedder, generator, rag.PipelineConfig{
		TopK:             cfg.Retrieval.TopK,
		MinScore:         cfg.Retrieval.MinScore,
		CacheTTL:         cfg.Retrieval.CacheTTL,
		DefaultCertainty: cfg.Retrieval.DefaultCertainty,
	}, rag.PipelineOptions{
		Cache:     cache,
		Collector: collector,
		Logger:    logger,
	})
	orchestrator := crew.NewOrchestrator(pipeline, store, crew.OrchestratorConfig{
		ParticipantTimeout: cfg.Crew.ParticipantTimeout,
	}, crew.OrchestratorOptions{
		Collector: collector,
		Logger:    logger,
	})
	auditor := audit.NewAuditor(store, audit.AuditorConfig{
		ClusterThreshold: cfg.Audit.ClusterThreshold,
	}, audit.AuditorOptions{
		Collector: collector,
		Logger:    logger,
	})

	handler := api.NewHandler(pipeline, orchestrator, auditor, store, api.HandlerOptions{
		Logger:           logger,
		BatchConcurrency: cfg.Server.BatchConcurrency,
	})

	return &Server{
		cfg:    cfg,
		logger: logger,
		redis:  redisClient,
		http: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      handler.Routes(metricsHandler),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Start begins serving in the background. Bind errors surface here;
// later serve errors are only logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains the server.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	s.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("Redis close failed", zap.Error(err))
		}
	}
}

// openStore builds the memory store backend selected by the config.
func openStore(cfg config.DatabaseConfig, logger *zap.Logger) (memory.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewInMemoryStore(memory.InMemoryStoreConfig{}, logger), nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, err
		}
		store, err := memory.NewGormStore(db, memory.GormStoreConfig{}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("SQLite store opened", zap.String("path", cfg.Path))
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// buildProviders returns the configured providers, substituting the
// deterministic in-process stubs when mock mode is on.
func buildProviders(cfg config.ProvidersConfig, logger *zap.Logger) (provider.Embedder, provider.Generator) {
	var embedder provider.Embedder
	if cfg.Embedding.Mock {
		logger.Warn("Embedding provider running in mock mode")
		embedder = provider.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = provider.NewHTTPEmbedder(provider.HTTPConfig{
			BaseURL:           cfg.Embedding.BaseURL,
			APIKey:            cfg.Embedding.APIKey,
			Model:             cfg.Embedding.Model,
			Timeout:           cfg.Embedding.Timeout,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		}, cfg.Embedding.Dimensions)
	}

	var generator provider.Generator
	if cfg.LLM.Mock {
		logger.Warn("LLM provider running in mock mode")
		generator = provider.NewMockGenerator()
	} else {
		generator = provider.NewHTTPGenerator(provider.HTTPConfig{
			BaseURL:           cfg.LLM.BaseURL,
			APIKey:            cfg.LLM.APIKey,
			Model:             cfg.LLM.Model,
			Timeout:           cfg.LLM.Timeout,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		})
	}
	return embedder, generator
}
