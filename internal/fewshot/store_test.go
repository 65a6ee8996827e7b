package fewshot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/query-router/backend/internal/storage/models"
)

type fakeReader struct {
	examples  []models.FewShotExample
	rules     []models.IntentKeywordRule
	err       error
	gotIntent string
	gotLimit  int
}

func (f *fakeReader) ActiveFewShots(_ context.Context, intent string, limit int) ([]models.FewShotExample, error) {
	f.gotIntent = intent
	f.gotLimit = limit
	return f.examples, f.err
}

func (f *fakeReader) ListIntentRules(context.Context) ([]models.IntentKeywordRule, error) {
	return f.rules, f.err
}

func TestStore_ActiveExamples(t *testing.T) {
	reader := &fakeReader{examples: []models.FewShotExample{{ID: 1, UserQuery: "q"}}}
	store := NewStore(reader, 3)

	got := store.ActiveExamples(context.Background(), models.IntentSQLQuery)
	assert.Len(t, got, 1)
	assert.Equal(t, "sql_query", reader.gotIntent)
	assert.Equal(t, 3, reader.gotLimit)

	store.ActiveExamples(context.Background(), models.IntentUnknown)
	assert.Equal(t, "", reader.gotIntent)
}

func TestStore_DegradesToEmpty(t *testing.T) {
	reader := &fakeReader{err: errors.New("database is locked")}
	store := NewStore(reader, 0)

	assert.Empty(t, store.ActiveExamples(context.Background(), models.IntentGeneral))
	assert.Empty(t, store.MatchingRules(context.Background(), "anything"))
	assert.Equal(t, 5, reader.gotLimit)
}

func TestMatchRules(t *testing.T) {
	rules := []models.IntentKeywordRule{
		{ID: 1, Keyword: "문서", IntentType: "rag_search", Priority: 1},
		{ID: 2, Keyword: "지원자", IntentType: "sql_query", Priority: 10},
		{ID: 3, Keyword: "  ", IntentType: "general", Priority: 99},
		{ID: 4, Keyword: "COUNT", IntentType: "sql_query", Priority: 10},
		{ID: 5, Keyword: "날씨", IntentType: "general", Priority: 50},
	}

	got := MatchRules(rules, "문서에 있는 지원자 count 알려줘")
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(4), got[1].ID)
	assert.Equal(t, int64(1), got[2].ID)

	assert.Empty(t, MatchRules(rules, "hello"))
}

func TestFormatExamples(t *testing.T) {
	assert.Equal(t, "", FormatExamples(nil))

	out := FormatExamples([]models.FewShotExample{
		{UserQuery: "지원자 몇 명?", ExpectedResponse: models.StringPtr("3명")},
		{UserQuery: "no answer"},
	})
	assert.Contains(t, out, "Question: 지원자 몇 명?\nAnswer: 3명")
	assert.NotContains(t, out, "no answer")
}
