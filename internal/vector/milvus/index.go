package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/vector"
	"github.com/query-router/backend/pkg/logger"
)

const (
	fieldID        = "chunk_id"
	fieldEmbedding = "embedding"
	fieldText      = "text"
	fieldMetadata  = "metadata"

	maxTextLength     = 8192
	maxMetadataLength = 2048
)

type Config struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

// Index stores chunks in a Milvus (or Zilliz Cloud) collection using cosine
// similarity, so scores are comparable with the chromem backend.
type Index struct {
	client         client.Client
	collectionName string
	vectorDim      int
	embedder       vector.Embedder
}

func NewIndex(ctx context.Context, cfg Config, embedder vector.Embedder) (*Index, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: cfg.Endpoint,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("collection", cfg.CollectionName),
	)

	return &Index{
		client:         c,
		collectionName: cfg.CollectionName,
		vectorDim:      cfg.VectorDim,
		embedder:       embedder,
	}, nil
}

func (m *Index) Close() error {
	return m.client.Close()
}

// EnsureCollection creates, indexes and loads the collection if needed.
func (m *Index) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !has {
		schema := entity.NewSchema().
			WithName(m.collectionName).
			WithDescription("Uploaded document chunks").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).WithMaxLength(128)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(m.vectorDim))).
			WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(maxTextLength)).
			WithField(entity.NewField().WithName(fieldMetadata).WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(maxMetadataLength))

		if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexIVFFlat(entity.COSINE, 1024)
		if err != nil {
			return fmt.Errorf("failed to build index definition: %w", err)
		}
		if err := m.client.CreateIndex(ctx, m.collectionName, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}

		logger.Info("Collection created", zap.String("collection", m.collectionName))
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (m *Index) Upsert(ctx context.Context, id, text string, metadata map[string]any) error {
	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if len(meta) > maxMetadataLength {
		return fmt.Errorf("metadata for %s exceeds %d bytes", id, maxMetadataLength)
	}

	_, err = m.client.Upsert(ctx, m.collectionName, "",
		entity.NewColumnVarChar(fieldID, []string{id}),
		entity.NewColumnFloatVector(fieldEmbedding, m.vectorDim, [][]float32{embedding}),
		entity.NewColumnVarChar(fieldText, []string{clipBytes(text, maxTextLength)}),
		entity.NewColumnVarChar(fieldMetadata, []string{string(meta)}),
	)
	if err != nil {
		return apperrors.Unavailable("retrieval", fmt.Errorf("failed to upsert %s: %w", id, err))
	}
	return nil
}

func (m *Index) Search(ctx context.Context, query string, limit int) ([]vector.SearchResult, error) {
	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexIVFFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{fieldID, fieldText, fieldMetadata},
		[]entity.Vector{entity.FloatVector(embedding)},
		fieldEmbedding,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, apperrors.Unavailable("retrieval", err)
	}

	results := make([]vector.SearchResult, 0)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn(fieldID)
		textCol := sr.Fields.GetColumn(fieldText)
		metaCol := sr.Fields.GetColumn(fieldMetadata)
		if idCol == nil || textCol == nil || metaCol == nil {
			return nil, fmt.Errorf("search result is missing output fields")
		}

		for i := 0; i < sr.ResultCount; i++ {
			id, _ := idCol.GetAsString(i)
			text, _ := textCol.GetAsString(i)
			rawMeta, _ := metaCol.GetAsString(i)

			metadata := map[string]any{}
			if rawMeta != "" {
				if err := json.Unmarshal([]byte(rawMeta), &metadata); err != nil {
					logger.Warn("Invalid chunk metadata", zap.String("chunk_id", id), zap.Error(err))
				}
			}

			results = append(results, vector.SearchResult{
				ID:       id,
				Text:     text,
				Score:    float64(sr.Scores[i]),
				Metadata: metadata,
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("limit", limit),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (m *Index) Delete(ctx context.Context, id string) error {
	expr := fmt.Sprintf(`%s in ["%s"]`, fieldID, strings.ReplaceAll(id, `"`, `\"`))
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return apperrors.Unavailable("retrieval", fmt.Errorf("failed to delete %s: %w", id, err))
	}
	return nil
}

// Count reports the collection's row count. Milvus counts deleted rows until
// compaction, so the number can briefly run high after deletes.
func (m *Index) Count(ctx context.Context) (int, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, m.collectionName)
	if err != nil {
		return 0, apperrors.Unavailable("retrieval", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("unexpected row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// clipBytes keeps text within Milvus's varchar byte limit without splitting
// a UTF-8 sequence.
func clipBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
