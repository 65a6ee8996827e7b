package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/vector"
)

type stubIndex struct {
	hits     []vector.SearchResult
	err      error
	gotQuery string
	gotLimit int
}

func (s *stubIndex) Search(_ context.Context, query string, limit int) ([]vector.SearchResult, error) {
	s.gotQuery, s.gotLimit = query, limit
	return s.hits, s.err
}

func (s *stubIndex) Upsert(context.Context, string, string, map[string]any) error { return nil }
func (s *stubIndex) Delete(context.Context, string) error                         { return nil }
func (s *stubIndex) Count(context.Context) (int, error)                           { return len(s.hits), nil }

type scriptedGenerator struct {
	replies []string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", nil
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, nil
}

type stubExamples struct {
	examples  []models.FewShotExample
	gotIntent models.Intent
	calls     int
}

func (s *stubExamples) ActiveExamples(_ context.Context, intent models.Intent) []models.FewShotExample {
	s.calls++
	s.gotIntent = intent
	return s.examples
}

func threeHits() []vector.SearchResult {
	return []vector.SearchResult{
		{ID: "a", Text: strings.Repeat("가", 250), Score: 0.9, Metadata: map[string]any{"filename": "a.pdf"}},
		{ID: "b", Text: "계약 기간은 1년입니다.", Score: 0.7},
		{ID: "c", Text: "갱신 조건", Score: 0.5},
	}
}

func TestAnswer_NoHitsSkipsGeneration(t *testing.T) {
	index := &stubIndex{}
	gen := &scriptedGenerator{}
	p := NewPipeline(index, gen, nil)

	res, err := p.AnswerWithAnalysis(context.Background(), Request{Query: "계약 기간은?"})
	require.NoError(t, err)
	assert.Equal(t, NoDocumentsAnswer, res.Answer)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.Sources)
	assert.False(t, res.HasSources)
	assert.Nil(t, res.Relevance)
	assert.Empty(t, gen.prompts)
	assert.Equal(t, DefaultTopK, index.gotLimit)
}

func TestAnswer_BuildsPromptInRankOrder(t *testing.T) {
	index := &stubIndex{hits: threeHits()}
	gen := &scriptedGenerator{replies: []string{"1년입니다"}}
	examples := &stubExamples{examples: []models.FewShotExample{
		{UserQuery: "계약 금액은?", ExpectedResponse: models.StringPtr("100만원")},
	}}
	p := NewPipeline(index, gen, examples)

	res, err := p.Answer(context.Background(), Request{
		Query:         "계약 기간이 어떻게 돼?",
		SearchQuery:   "계약 기간",
		TopK:          5,
		FewShotIntent: models.IntentRAGSearch,
	})
	require.NoError(t, err)
	assert.Equal(t, "1년입니다", res.Answer)
	assert.True(t, res.HasSources)
	assert.Equal(t, "계약 기간", index.gotQuery)
	assert.Equal(t, 5, index.gotLimit)
	assert.Equal(t, models.IntentRAGSearch, examples.gotIntent)

	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "질문: 계약 기간이 어떻게 돼?")
	exampleAt := strings.Index(prompt, "Question: 계약 금액은?")
	doc1 := strings.Index(prompt, "[문서 1]")
	doc2 := strings.Index(prompt, "[문서 2]\n계약 기간은 1년입니다.")
	doc3 := strings.Index(prompt, "[문서 3]\n갱신 조건")
	require.True(t, exampleAt >= 0 && doc1 >= 0 && doc2 >= 0 && doc3 >= 0)
	assert.Less(t, exampleAt, doc1)
	assert.Less(t, doc1, doc2)
	assert.Less(t, doc2, doc3)

	require.Len(t, res.Sources, 3)
	assert.Equal(t, strings.Repeat("가", 200)+"...", res.Sources[0].Text)
	assert.Equal(t, "계약 기간은 1년입니다.", res.Sources[1].Text)
	assert.Equal(t, 0.9, res.Sources[0].Score)
	assert.Equal(t, "a.pdf", res.Sources[0].Metadata["filename"])
}

func TestAnswer_NoFewShotIntentSkipsExamples(t *testing.T) {
	examples := &stubExamples{}
	p := NewPipeline(&stubIndex{hits: threeHits()}, &scriptedGenerator{replies: []string{"ok"}}, examples)

	_, err := p.Answer(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Zero(t, examples.calls)
}

func TestAnswer_Errors(t *testing.T) {
	_, err := NewPipeline(&stubIndex{err: apperrors.Unavailable("retrieval", errors.New("dial tcp"))},
		&scriptedGenerator{}, nil).Answer(context.Background(), Request{Query: "q"})
	assert.ErrorIs(t, err, apperrors.ErrCollaboratorUnavailable)

	_, err = NewPipeline(&stubIndex{hits: threeHits()},
		&scriptedGenerator{err: apperrors.ErrGenerationTimeout}, nil).Answer(context.Background(), Request{Query: "q"})
	assert.ErrorIs(t, err, apperrors.ErrGenerationTimeout)
}

func TestAnswerWithAnalysis_ParsesModelAssessment(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"1년입니다",
		"```json\n{\"reasoning\": \"문서 2에 명시\", \"confidence\": 0.85, \"matched_sections\": [\"문서 2\"]}\n```",
	}}
	p := NewPipeline(&stubIndex{hits: threeHits()}, gen, nil)

	res, err := p.AnswerWithAnalysis(context.Background(), Request{Query: "계약 기간은?", SearchQuery: "계약 기간"})
	require.NoError(t, err)
	require.NotNil(t, res.Relevance)
	assert.Equal(t, 0.85, res.Relevance.Confidence)
	assert.Equal(t, []string{"문서 2"}, res.Relevance.MatchedSections)
	assert.False(t, res.Relevance.Fallback)

	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1], "검색에 사용된 질의: 계약 기간")
	assert.Contains(t, gen.prompts[1], "검색된 문서 수: 3")
	assert.Contains(t, gen.prompts[1], "0.900, 0.700, 0.500")
	assert.Contains(t, gen.prompts[1], "1년입니다")
}

func TestAnswerWithAnalysis_FallbackOnGarbage(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"1년입니다", "매우 관련 있음"}}
	p := NewPipeline(&stubIndex{hits: threeHits()}, gen, nil)

	res, err := p.AnswerWithAnalysis(context.Background(), Request{Query: "계약 기간은?"})
	require.NoError(t, err)
	require.NotNil(t, res.Relevance)
	assert.True(t, res.Relevance.Fallback)
	assert.InDelta(t, 0.7, res.Relevance.Confidence, 1e-9)
	assert.Equal(t, []string{"문서 1", "문서 2", "문서 3"}, res.Relevance.MatchedSections)
}

func TestFallbackRelevance(t *testing.T) {
	a := FallbackRelevance([]float64{0.9, 0.7, 0.5})
	b := FallbackRelevance([]float64{0.9, 0.7, 0.5})
	assert.Equal(t, a, b)
	assert.InDelta(t, 0.7, a.Confidence, 1e-9)
	assert.Contains(t, a.Reasoning, "0.70")

	empty := FallbackRelevance(nil)
	assert.Zero(t, empty.Confidence)
	assert.Empty(t, empty.MatchedSections)

	many := FallbackRelevance([]float64{1, 1, 1, 1, 1})
	assert.Len(t, many.MatchedSections, 3)
}

func TestParseRelevance(t *testing.T) {
	rel, err := ParseRelevance(`{"rationale": "근거 충분", "confidence": 1}`)
	require.NoError(t, err)
	assert.Equal(t, "근거 충분", rel.Reasoning)
	assert.Equal(t, []string{}, rel.MatchedSections)

	_, err = ParseRelevance(`{"reasoning": "x", "confidence": 1.5}`)
	assert.Error(t, err)

	_, err = ParseRelevance(`{"reasoning": "x"}`)
	assert.Error(t, err)
}
