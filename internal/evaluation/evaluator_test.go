package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/router"
	"github.com/query-router/backend/internal/storage/models"
)

type tableClassifier map[string]router.Decision

func (t tableClassifier) Classify(_ context.Context, query string) (router.Decision, error) {
	d, ok := t[query]
	if !ok {
		return router.Decision{}, errors.New("model unavailable")
	}
	return d, nil
}

func TestLoadDataset(t *testing.T) {
	ds, err := LoadDataset([]byte(`{"items":[{"query":"지원자 수","expected_intent":"sql_query"}]}`))
	require.NoError(t, err)
	require.Len(t, ds.Items, 1)
	assert.Equal(t, models.IntentSQLQuery, ds.Items[0].ExpectedIntent)

	_, err = LoadDataset([]byte(`{"items":[{"query":"x","expected_intent":"weather"}]}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = LoadDataset([]byte(`{"items":[{"query":" ","expected_intent":"general"}]}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = LoadDataset([]byte(`not json`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRun(t *testing.T) {
	classifier := tableClassifier{
		"지원자 수": {Intent: models.IntentSQLQuery, Tier: router.TierKeyword},
		"계약 기간": {Intent: models.IntentRAGSearch, Tier: router.TierKeyword},
		"안녕":    {Intent: models.IntentRAGSearch, Tier: router.TierLLM},
	}
	dataset := &Dataset{Items: []DatasetItem{
		{Query: "지원자 수", ExpectedIntent: models.IntentSQLQuery},
		{Query: "계약 기간", ExpectedIntent: models.IntentRAGSearch},
		{Query: "안녕", ExpectedIntent: models.IntentGeneral},
		{Query: "모름", ExpectedIntent: models.IntentGeneral},
	}}

	report, err := NewEvaluator(classifier).Run(context.Background(), dataset)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalQueries)
	assert.Equal(t, 2, report.Correct)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 2, report.KeywordTier)
	assert.Equal(t, 1, report.LLMTier)
	assert.InDelta(t, 50.0, report.Accuracy, 1e-9)

	general := report.PerIntent[models.IntentGeneral]
	assert.Equal(t, IntentScore{Expected: 2}, *general)
	assert.Equal(t, 2, report.PerIntent[models.IntentRAGSearch].Predicted)
	assert.InDelta(t, 100.0, report.PerIntent[models.IntentSQLQuery].Recall(), 1e-9)

	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, Mismatch{Query: "안녕", Expected: models.IntentGeneral, Got: models.IntentRAGSearch, Tier: router.TierLLM}, report.Mismatches[0])

	text := GenerateReport(report)
	assert.Contains(t, text, "Accuracy: 50.0%")
	assert.Contains(t, text, `"안녕": expected general, got rag_search (llm)`)
}

func TestRun_Empty(t *testing.T) {
	report, err := NewEvaluator(tableClassifier{}).Run(context.Background(), &Dataset{})
	require.NoError(t, err)
	assert.Zero(t, report.Accuracy)
	assert.Empty(t, report.Mismatches)
}
