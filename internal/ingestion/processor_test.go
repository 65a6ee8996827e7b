package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/ingestion/extract"
	"github.com/query-router/backend/internal/storage/sqlstore"
	"github.com/query-router/backend/internal/vector"
)

type memoryIndex struct {
	points    map[string]map[string]any
	failAfter int
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{points: map[string]map[string]any{}, failAfter: -1}
}

func (m *memoryIndex) Search(context.Context, string, int) ([]vector.SearchResult, error) {
	return nil, nil
}

func (m *memoryIndex) Upsert(_ context.Context, id, _ string, metadata map[string]any) error {
	if m.failAfter == 0 {
		return apperrors.Unavailable("retrieval", errors.New("connection refused"))
	}
	m.failAfter--
	m.points[id] = metadata
	return nil
}

func (m *memoryIndex) Delete(_ context.Context, id string) error {
	delete(m.points, id)
	return nil
}

func (m *memoryIndex) Count(context.Context) (int, error) {
	return len(m.points), nil
}

func newTestProcessor(t *testing.T, cfg Config) (*Processor, *memoryIndex, *sqlstore.Store) {
	t.Helper()

	store, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	index := newMemoryIndex()
	p := NewProcessor(store, index, cfg)
	p.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p, index, store
}

func TestIngest_IndexesAndRecords(t *testing.T) {
	p, index, store := newTestProcessor(t, Config{ChunkSize: 40, ChunkOverlap: 20})
	ctx := context.Background()

	text := strings.Repeat("계약 기간은 일년 이다 ", 10)
	doc, err := p.Ingest(ctx, "contract.txt", []byte(text))
	require.NoError(t, err)

	assert.Len(t, doc.ID, 32)
	assert.Equal(t, "contract.txt", doc.Filename)
	assert.Greater(t, doc.ChunkCount, 1)
	assert.Len(t, index.points, doc.ChunkCount)

	first := index.points[doc.ID+"_chunk_0"]
	require.NotNil(t, first)
	assert.Equal(t, doc.ID, first["doc_id"])
	assert.Equal(t, "contract.txt", first["filename"])
	assert.Equal(t, 0, first["chunk_index"])
	assert.Equal(t, "2026-05-01T12:00:00Z", first["upload_time"])

	chunks, err := store.ListDocumentChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, doc.ChunkCount, stats.IndexedChunks)
}

func TestIngest_Rejections(t *testing.T) {
	p, index, _ := newTestProcessor(t, Config{})
	ctx := context.Background()

	_, err := p.Ingest(ctx, "short.txt", []byte("짧음"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = p.Ingest(ctx, "photo.png", []byte("binary"))
	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)

	_, err = p.Ingest(ctx, " ", []byte("plenty of text here"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Empty(t, index.points)
}

func TestIngest_IndexFailureRollsBackPoints(t *testing.T) {
	p, index, store := newTestProcessor(t, Config{ChunkSize: 20})
	index.failAfter = 2

	_, err := p.Ingest(context.Background(), "long.txt", []byte(strings.Repeat("word ", 50)))
	assert.ErrorIs(t, err, apperrors.ErrCollaboratorUnavailable)
	assert.Empty(t, index.points)

	n, err := store.CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteDocument(t *testing.T) {
	p, index, store := newTestProcessor(t, Config{ChunkSize: 30})
	ctx := context.Background()

	doc, err := p.Ingest(ctx, "notes.txt", []byte(strings.Repeat("note text ", 20)))
	require.NoError(t, err)
	require.NotEmpty(t, index.points)

	require.NoError(t, p.DeleteDocument(ctx, doc.ID))
	assert.Empty(t, index.points)

	_, err = store.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, p.DeleteDocument(ctx, doc.ID), apperrors.ErrNotFound)
}

func TestChunkText(t *testing.T) {
	p := NewProcessor(nil, nil, Config{ChunkSize: 12, ChunkOverlap: 10})

	chunks := p.chunkText("one two three four five")
	assert.Equal(t, []string{"one two", "two three", "three four", "four five"}, chunks)

	assert.Nil(t, p.chunkText("   "))
}
