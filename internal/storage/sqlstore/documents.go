package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/query-router/backend/internal/storage/models"
)

const documentColumns = `id, filename, file_size, text_length, chunk_count, created_at`

func (q *Queries) InsertDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err := q.exec(ctx,
		`INSERT INTO documents (id, filename, file_size, text_length, chunk_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FileSize, doc.TextLength, doc.ChunkCount, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (q *Queries) InsertDocumentChunk(ctx context.Context, chunk *models.DocumentChunk) error {
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	_, err := q.exec(ctx,
		`INSERT INTO document_chunks (id, doc_id, chunk_index, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocID, chunk.ChunkIndex, chunk.Text, chunk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (q *Queries) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := q.get(ctx, &doc, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id); err != nil {
		return nil, notFoundOr(err, "document", id)
	}
	return &doc, nil
}

func (q *Queries) ListDocuments(ctx context.Context, offset, limit int) ([]models.Document, error) {
	if offset < 0 {
		offset = 0
	}

	docs := []models.Document{}
	err := q.selectAll(ctx, &docs,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		clampLimit(limit, 100, 1000), offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (q *Queries) ListDocumentChunks(ctx context.Context, docID string) ([]models.DocumentChunk, error) {
	chunks := []models.DocumentChunk{}
	err := q.selectAll(ctx, &chunks,
		`SELECT id, doc_id, chunk_index, text, created_at FROM document_chunks WHERE doc_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

func (q *Queries) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM documents`); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// DeleteDocument removes the document row; its chunks go with it through the
// cascading foreign key.
func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	n, err := q.exec(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "document", id)
	}
	return nil
}
