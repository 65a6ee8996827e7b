package chromem

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder places text on three axes by keyword so similarity is
// predictable.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := []float32{0.01, 0.01, 0.01}
	if strings.Contains(text, "contract") {
		v[0] = 1
	}
	if strings.Contains(text, "salary") {
		v[1] = 1
	}
	if strings.Contains(text, "holiday") {
		v[2] = 1
	}
	return v, nil
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex("", "documents", keywordEmbedder{})
	require.NoError(t, err)
	return idx
}

func TestIndex_SearchRanksBySimilarity(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", "the contract term is one year", map[string]any{"filename": "a.pdf", "chunk_index": 0}))
	require.NoError(t, idx.Upsert(ctx, "b", "salary is paid monthly", map[string]any{"filename": "b.pdf", "chunk_index": 1}))
	require.NoError(t, idx.Upsert(ctx, "c", "contract salary clause", map[string]any{"filename": "c.pdf", "chunk_index": 2}))

	results, err := idx.Search(ctx, "contract", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.Equal(t, "a.pdf", results[0].Metadata["filename"])
	assert.Equal(t, int64(0), results[0].Metadata["chunk_index"])
}

func TestIndex_LimitLargerThanCollection(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", "holiday policy", nil))

	results, err := idx.Search(ctx, "holiday", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIndex_EmptyCollection(t *testing.T) {
	idx := newTestIndex(t)

	results, err := idx.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_UpsertDeleteCount(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", "contract", nil))
	require.NoError(t, idx.Upsert(ctx, "a", "contract v2", nil))
	require.NoError(t, idx.Upsert(ctx, "b", "salary", nil))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, idx.Delete(ctx, "a"))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
