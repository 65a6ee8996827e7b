package chromem

import (
	"context"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/vector"
	"github.com/query-router/backend/pkg/logger"
)

// Index is an embedded, optionally file-backed vector index. Embeddings are
// computed by the shared embedder so the redis cache applies to both
// backends.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   vector.Embedder
}

// NewIndex opens the collection at persistPath, or an in-memory one when the
// path is empty.
func NewIndex(persistPath, collectionName string, embedder vector.Embedder) (*Index, error) {
	var db *chromem.DB
	if persistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection: %w", err)
	}

	logger.Info("Chromem index initialized",
		zap.String("path", persistPath),
		zap.String("collection", collectionName),
		zap.Int("documents", collection.Count()),
	)

	return &Index{db: db, collection: collection, embedder: embedder}, nil
}

func (i *Index) Search(ctx context.Context, query string, limit int) ([]vector.SearchResult, error) {
	// chromem rejects nResults larger than the collection.
	n := min(limit, i.collection.Count())
	if n <= 0 {
		return []vector.SearchResult{}, nil
	}

	embedding, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	res, err := i.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, apperrors.Unavailable("retrieval", err)
	}

	results := make([]vector.SearchResult, 0, len(res))
	for _, doc := range res {
		results = append(results, vector.SearchResult{
			ID:       doc.ID,
			Text:     doc.Content,
			Score:    float64(doc.Similarity),
			Metadata: decodeMetadata(doc.Metadata),
		})
	}
	return results, nil
}

func (i *Index) Upsert(ctx context.Context, id, text string, metadata map[string]any) error {
	embedding, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	// AddDocument overwrites an existing id.
	err = i.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   text,
		Metadata:  encodeMetadata(metadata),
		Embedding: embedding,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", id, err)
	}
	return nil
}

func (i *Index) Delete(ctx context.Context, id string) error {
	if err := i.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func (i *Index) Count(_ context.Context) (int, error) {
	return i.collection.Count(), nil
}

// chromem stores string metadata only.
func encodeMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

func decodeMetadata(metadata map[string]string) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = n
			continue
		}
		out[k] = v
	}
	return out
}
