package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/ingestion/extract"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
	"github.com/query-router/backend/internal/vector"
	"github.com/query-router/backend/pkg/logger"
	"github.com/query-router/backend/pkg/utils"
)

// DocumentStore is satisfied by *sqlstore.Store.
type DocumentStore interface {
	WithTx(ctx context.Context, fn func(q *sqlstore.Queries) error) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocumentChunks(ctx context.Context, docID string) ([]models.DocumentChunk, error)
	CountDocuments(ctx context.Context) (int, error)
}

type Config struct {
	ChunkSize     int
	ChunkOverlap  int
	MinTextLength int
}

type Processor struct {
	store         DocumentStore
	index         vector.Index
	chunkSize     int
	chunkOverlap  int
	minTextLength int
	now           func() time.Time
}

type Stats struct {
	Documents     int `json:"documents"`
	IndexedChunks int `json:"indexed_chunks"`
}

func NewProcessor(store DocumentStore, index vector.Index, cfg Config) *Processor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = 10
	}
	return &Processor{
		store:         store,
		index:         index,
		chunkSize:     cfg.ChunkSize,
		chunkOverlap:  cfg.ChunkOverlap,
		minTextLength: cfg.MinTextLength,
		now:           time.Now,
	}
}

// Ingest extracts, chunks and indexes one upload, then records it. Points
// already written to the index are removed again if recording fails.
func (p *Processor) Ingest(ctx context.Context, filename string, data []byte) (*models.Document, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, apperrors.Invalid("filename is required")
	}

	logger.Info("Processing document", zap.String("filename", filename), zap.Int("size", len(data)))

	text, err := extract.Extract(data, filename)
	if err != nil {
		return nil, err
	}
	if len([]rune(text)) < p.minTextLength {
		return nil, apperrors.Invalid("extracted text is too short (%d characters)", len([]rune(text)))
	}

	uploadedAt := p.now().UTC()
	docID := utils.DocumentID(filename, uploadedAt)

	chunks := p.chunkText(text)
	logger.Info("Document chunked", zap.String("doc_id", docID), zap.Int("chunks", len(chunks)))

	indexed := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		chunkID := utils.ChunkID(docID, i)
		err := p.index.Upsert(ctx, chunkID, chunk, map[string]any{
			"doc_id":      docID,
			"filename":    filename,
			"chunk_index": i,
			"upload_time": uploadedAt.Format(time.RFC3339),
			"file_size":   len(data),
		})
		if err != nil {
			p.removePoints(ctx, indexed)
			return nil, fmt.Errorf("failed to index chunk %d: %w", i, err)
		}
		indexed = append(indexed, chunkID)
	}

	doc := &models.Document{
		ID:         docID,
		Filename:   filename,
		FileSize:   int64(len(data)),
		TextLength: len([]rune(text)),
		ChunkCount: len(chunks),
		CreatedAt:  uploadedAt,
	}

	err = p.store.WithTx(ctx, func(q *sqlstore.Queries) error {
		if err := q.InsertDocument(ctx, doc); err != nil {
			return err
		}
		for i, chunk := range chunks {
			if err := q.InsertDocumentChunk(ctx, &models.DocumentChunk{
				ID:         indexed[i],
				DocID:      docID,
				ChunkIndex: i,
				Text:       chunk,
				CreatedAt:  uploadedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.removePoints(ctx, indexed)
		return nil, err
	}

	metrics.DocumentsProcessed.Inc()
	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
	)

	return doc, nil
}

func (p *Processor) DeleteDocument(ctx context.Context, id string) error {
	if _, err := p.store.GetDocument(ctx, id); err != nil {
		return err
	}

	chunks, err := p.store.ListDocumentChunks(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if err := p.index.Delete(ctx, c.ID); err != nil {
			return err
		}
	}

	return p.store.WithTx(ctx, func(q *sqlstore.Queries) error {
		return q.DeleteDocument(ctx, id)
	})
}

func (p *Processor) Stats(ctx context.Context) (*Stats, error) {
	docs, err := p.store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	points, err := p.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Documents: docs, IndexedChunks: points}, nil
}

func (p *Processor) removePoints(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := p.index.Delete(ctx, id); err != nil {
			logger.Warn("Failed to remove orphaned chunk", zap.String("chunk_id", id), zap.Error(err))
		}
	}
}

// chunkText splits on whitespace into windows of about chunkSize bytes.
// Each new window repeats the last chunkOverlap/10 words of the previous one.
func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var currentChunk strings.Builder
	currentSize := 0

	for _, word := range words {
		wordLen := len(word) + 1

		if currentSize+wordLen > p.chunkSize && currentChunk.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(currentChunk.String()))

			overlapWords := strings.Fields(currentChunk.String())
			overlapStart := max(0, len(overlapWords)-p.chunkOverlap/10)
			currentChunk.Reset()
			if overlapStart < len(overlapWords) {
				currentChunk.WriteString(strings.Join(overlapWords[overlapStart:], " ") + " ")
			}
			currentSize = currentChunk.Len()
		}

		currentChunk.WriteString(word + " ")
		currentSize += wordLen
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}
