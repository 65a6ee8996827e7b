// Package vector defines the retrieval index contract shared by the Milvus
// and chromem backends.
package vector

import "context"

type SearchResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Index is a nearest-neighbour index over embedded text. Search results are
// ranked by descending score.
type Index interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Upsert(ctx context.Context, id, text string, metadata map[string]any) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Embedder turns text into a vector; implemented by llm.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
