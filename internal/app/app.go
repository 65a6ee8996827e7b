// Package app wires configuration into a running pipeline. Both the API
// server and the CLI build their components here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/analysis"
	"github.com/query-router/backend/internal/api"
	"github.com/query-router/backend/internal/cache/redis"
	"github.com/query-router/backend/internal/decomposer"
	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/ingestion"
	"github.com/query-router/backend/internal/llm"
	"github.com/query-router/backend/internal/mcpserver"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/query"
	"github.com/query-router/backend/internal/rag"
	"github.com/query-router/backend/internal/router"
	"github.com/query-router/backend/internal/sqlagent"
	"github.com/query-router/backend/internal/storage/sqlstore"
	"github.com/query-router/backend/internal/vector"
	"github.com/query-router/backend/internal/vector/chromem"
	"github.com/query-router/backend/internal/vector/milvus"
	"github.com/query-router/backend/pkg/config"
	"github.com/query-router/backend/pkg/logger"
	"github.com/query-router/backend/pkg/retry"
)

type App struct {
	Config     *config.Config
	Store      *sqlstore.Store
	Cache      *redis.Client
	Index      vector.Index
	Engine     *query.Engine
	Classifier *router.Classifier
	FewShots   *fewshot.Service
	Processor  *ingestion.Processor
	Analyzer   *analysis.Analyzer
	MCP        *mcpserver.Server

	closers []func() error
}

// OpenStore connects to the relational store, retrying while it comes up,
// and applies migrations when configured to.
func OpenStore(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	store, err := retry.DoWithResult(ctx, retry.StartupConfig("open database", logger.GetLogger()),
		func() (*sqlstore.Store, error) {
			s, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return nil, err
			}
			if err := s.Ping(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
			return s, nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// New builds every component. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	metrics.Init()

	a := &App{Config: cfg}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if cfg.Redis.Enabled {
		cache, err := retry.DoWithResult(ctx, retry.StartupConfig("connect redis", logger.GetLogger()),
			func() (*redis.Client, error) {
				return redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
			})
		if err != nil {
			logger.Warn("Embedding cache disabled", zap.Error(err))
		} else {
			a.Cache = cache
			a.closers = append(a.closers, cache.Close)
		}
	}

	embedderCfg := llm.EmbedderConfig{
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.EmbeddingModel,
		CacheTTL: time.Duration(cfg.Redis.EmbeddingTTLMinutes) * time.Minute,
	}
	if a.Cache != nil {
		embedderCfg.Cache = a.Cache
	}
	embedder := llm.NewEmbedder(embedderCfg)

	index, err := openIndex(ctx, cfg, embedder, a)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Index = index

	generator := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	examples := fewshot.NewStore(store, cfg.FewShot.MaxExamples)
	a.Classifier = router.NewClassifier(generator, examples)

	a.Engine = query.NewEngine(query.Deps{
		Decomposer: decomposer.New(generator),
		Classifier: a.Classifier,
		RAG:        rag.NewPipeline(index, generator, examples),
		Agent:      sqlagent.NewAgent(generator, store, examples),
		Generator:  generator,
		Examples:   examples,
		Logs:       store,
	}, query.Options{
		TopK:              cfg.RAG.TopK,
		RelevanceAnalysis: cfg.RAG.RelevanceAnalysis,
	})

	a.FewShots = fewshot.NewService(store)
	a.Processor = ingestion.NewProcessor(store, index, ingestion.Config{
		ChunkSize:     cfg.Ingestion.ChunkSize,
		ChunkOverlap:  cfg.Ingestion.ChunkOverlap,
		MinTextLength: cfg.Ingestion.MinTextLength,
	})
	a.Analyzer = analysis.New(generator, store)
	if cfg.MCP.Enabled {
		a.MCP = mcpserver.New(a.Engine)
	}

	logger.Info("Pipeline initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("model", generator.Model()),
		zap.Bool("embedding_cache", a.Cache != nil),
	)

	return a, nil
}

func openIndex(ctx context.Context, cfg *config.Config, embedder vector.Embedder, a *App) (vector.Index, error) {
	switch cfg.Vector.Backend {
	case config.VectorBackendMilvus:
		idx, err := milvus.NewIndex(ctx, milvus.Config{
			Endpoint:       cfg.Vector.Milvus.Endpoint,
			APIKey:         cfg.Vector.Milvus.APIKey,
			CollectionName: cfg.Vector.Milvus.CollectionName,
			VectorDim:      cfg.Vector.Milvus.VectorDim,
		}, embedder)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, idx.Close)

		err = retry.Do(ctx, retry.StartupConfig("ensure milvus collection", logger.GetLogger()), func() error {
			return idx.EnsureCollection(ctx)
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return chromem.NewIndex(cfg.Vector.Chromem.Path, cfg.Vector.Chromem.CollectionName, embedder)
	}
}

// Server builds the HTTP surface over the app's components.
func (a *App) Server() *api.Server {
	cfg := a.Config
	probes := map[string]api.Pinger{}
	if a.Cache != nil {
		probes["cache"] = a.Cache
	}

	return api.NewServer(api.Config{
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:         cfg.Server.BodyLimit,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		Development:       cfg.Server.Development,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		MaxQueryLength:    cfg.Server.MaxQueryLength,
		MCPPath:           cfg.MCP.Path,
	}, api.Deps{
		Engine:    a.Engine,
		Store:     a.Store,
		FewShots:  a.FewShots,
		Processor: a.Processor,
		Analyzer:  a.Analyzer,
		MCP:       a.MCP,
		Probes:    probes,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
