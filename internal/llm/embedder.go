package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/pkg/circuitbreaker"
	"github.com/query-router/backend/pkg/logger"
	"github.com/query-router/backend/pkg/utils"
)

// EmbeddingCache is satisfied by the redis cache client.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type EmbedderConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Cache    EmbeddingCache
	CacheTTL time.Duration
}

// Embedder turns text into vectors for the retrieval index. Unlike
// generation it sits behind a circuit breaker: ingestion embeds many chunks
// in a row and should stop quickly when the endpoint is down.
type Embedder struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	cb       *circuitbreaker.CircuitBreaker
	cache    EmbeddingCache
	cacheTTL time.Duration
}

func NewEmbedder(cfg EmbedderConfig) *Embedder {
	cb := circuitbreaker.NewCircuitBreaker("embeddings", circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger.Info("Embedder initialized",
		zap.String("model", cfg.Model),
		zap.Bool("cache", cfg.Cache != nil),
	)

	return &Embedder{
		client:   openai.NewClientWithConfig(openAIConfig(cfg.BaseURL, cfg.APIKey)),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		cb:       cb,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
	}
}

func (e *Embedder) cacheKey(text string) string {
	return utils.HashString(e.model + "\x00" + text)
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if e.cache != nil {
		if cached, ok, err := e.cache.GetEmbedding(ctx, key); err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetEmbedding(ctx, key, vectors[0], e.cacheTTL); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := circuitbreaker.ExecuteWithResult(ctx, e.cb, func() (openai.EmbeddingResponse, error) {
		return e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(e.model),
		})
	})
	if err != nil {
		metrics.LLMRequests.WithLabelValues("embed", "error").Inc()
		return nil, apperrors.Unavailable("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		metrics.LLMRequests.WithLabelValues("embed", "error").Inc()
		return nil, apperrors.Unavailable("embeddings",
			fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(texts)))
	}

	metrics.LLMRequests.WithLabelValues("embed", "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(e.model, "embedding").Add(float64(resp.Usage.PromptTokens))

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
