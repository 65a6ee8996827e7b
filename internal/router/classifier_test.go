package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/storage/models"
)

type stubGenerator struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

type staticRules []models.IntentKeywordRule

func (r staticRules) MatchingRules(_ context.Context, query string) []models.IntentKeywordRule {
	return fewshot.MatchRules(r, query)
}

var testRules = staticRules{
	{Keyword: "지원자", IntentType: "sql_query", Priority: 10},
	{Keyword: "몇 명", IntentType: "sql_query", Priority: 5},
	{Keyword: "문서", IntentType: "rag_search", Priority: 3},
	{Keyword: "안녕", IntentType: "general", Priority: 1},
	{Keyword: "legacy", IntentType: "weather", Priority: 100},
}

func TestClassify_SingleCategorySkipsModel(t *testing.T) {
	gen := &stubGenerator{reply: "rag_search"}
	c := NewClassifier(gen, testRules)

	d, err := c.Classify(context.Background(), "지원자 몇 명이야")
	require.NoError(t, err)
	assert.Equal(t, models.IntentSQLQuery, d.Intent)
	assert.Equal(t, TierKeyword, d.Tier)
	assert.Equal(t, []string{"지원자", "몇 명"}, d.MatchedKeywords)
	assert.Zero(t, gen.calls)
}

func TestClassify_AmbiguousEscalatesWithCandidates(t *testing.T) {
	gen := &stubGenerator{reply: "rag_search"}
	c := NewClassifier(gen, testRules)

	d, err := c.Classify(context.Background(), "문서에 나온 지원자 설명해줘")
	require.NoError(t, err)
	assert.Equal(t, models.IntentRAGSearch, d.Intent)
	assert.Equal(t, TierLLM, d.Tier)
	assert.Equal(t, []models.Intent{models.IntentSQLQuery, models.IntentRAGSearch}, d.Candidates)

	require.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.prompts[0], "sql_query, rag_search 중 하나일 가능성")
}

func TestClassify_AmbiguousUnparsableReplyIsGeneral(t *testing.T) {
	gen := &stubGenerator{reply: "잘 모르겠습니다"}
	c := NewClassifier(gen, testRules)

	d, err := c.Classify(context.Background(), "문서에 나온 지원자 설명해줘")
	require.NoError(t, err)
	assert.Equal(t, models.IntentGeneral, d.Intent)
	assert.Equal(t, TierLLM, d.Tier)
	assert.Len(t, d.Candidates, 2)
}

func TestClassify_NoMatchOrNoRules(t *testing.T) {
	gen := &stubGenerator{reply: "general"}

	d, err := NewClassifier(gen, testRules).Classify(context.Background(), "오늘 기분 어때")
	require.NoError(t, err)
	assert.Equal(t, models.IntentGeneral, d.Intent)
	assert.Empty(t, d.Candidates)
	assert.NotContains(t, gen.prompts[0], "참고:")

	d, err = NewClassifier(gen, nil).Classify(context.Background(), "지원자 몇 명이야")
	require.NoError(t, err)
	assert.Equal(t, TierLLM, d.Tier)
	assert.Equal(t, 2, gen.calls)
}

func TestClassify_InvalidRuleIntentIgnored(t *testing.T) {
	gen := &stubGenerator{reply: "sql"}
	d, err := NewClassifier(gen, testRules).Classify(context.Background(), "legacy 안녕")
	require.NoError(t, err)
	assert.Equal(t, models.IntentGeneral, d.Intent)
	assert.Equal(t, TierKeyword, d.Tier)
	assert.Zero(t, gen.calls)
}

func TestClassify_GenerationErrorSurfaces(t *testing.T) {
	gen := &stubGenerator{err: apperrors.ErrGenerationTimeout}
	_, err := NewClassifier(gen, nil).Classify(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCollaboratorUnavailable))
	assert.Equal(t, 1, gen.calls)
}

func TestKeywordDecision(t *testing.T) {
	c := NewClassifier(&stubGenerator{}, testRules)

	d, ok := c.KeywordDecision(context.Background(), "안녕하세요")
	assert.True(t, ok)
	assert.Equal(t, models.IntentGeneral, d.Intent)

	d, ok = c.KeywordDecision(context.Background(), "what is this")
	assert.False(t, ok)
	assert.Equal(t, models.IntentUnknown, d.Intent)
}

func TestParseIntentResponse(t *testing.T) {
	tests := []struct {
		raw  string
		want models.Intent
	}{
		{"sql_query", models.IntentSQLQuery},
		{"  RAG_SEARCH\n", models.IntentRAGSearch},
		{"general", models.IntentGeneral},
		{"rag_search or maybe sql_query", models.IntentSQLQuery},
		{"I think this is a SQL question", models.IntentSQLQuery},
		{"", models.IntentGeneral},
		{"문서 검색", models.IntentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIntentResponse(tt.raw))
		})
	}
}
