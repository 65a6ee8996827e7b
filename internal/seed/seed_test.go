package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
)

const sample = `
intents:
  - keyword: 지원자
    intent_type: sql_query
    priority: 10
  - keyword: 계약
    intent_type: rag_search
    priority: 5
    description: 계약서 문서 검색
fewshots:
  - intent_type: general
    user_query: 고마워
    expected_response: 천만에요!
  - intent_type: sql_query
    user_query: 지원자 몇 명이야
    expected_response: 지원자는 3명입니다.
    is_active: false
applicants:
  - reason: 성장
    skill: Go
`

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "intents: [",
		"missing key":    "intents:\n  - intent_type: general\n",
		"unknown intent": "intents:\n  - keyword: x\n    intent_type: weather\n",
		"empty question": "fewshots:\n  - intent_type: general\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestApply_IsIdempotentForRulesAndExamples(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	defer store.Close()

	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	res, err := Apply(ctx, store, f)
	require.NoError(t, err)
	assert.Equal(t, &Result{Intents: 2, FewShots: 2, Applicants: 1}, res)

	res, err = Apply(ctx, store, f)
	require.NoError(t, err)
	assert.Equal(t, &Result{SkippedIntents: 2, SkippedFewShots: 2, Applicants: 1}, res)

	rules, err := store.ListIntentRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "지원자", rules[0].Keyword)

	inactive := false
	examples, err := store.ListFewShots(ctx, models.FewShotFilter{Active: &inactive})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "지원자 몇 명이야", examples[0].UserQuery)

	audits, err := store.ListAllAudit(ctx, models.AuditInsert, 10)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, "seed", audits[0].ChangedBy)
}
