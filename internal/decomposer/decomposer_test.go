package decomposer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/llm"
)

func reply(text string, err error) llm.GeneratorFunc {
	return func(context.Context, string) (string, error) {
		return text, err
	}
}

func TestDecompose_ParsesFencedJSON(t *testing.T) {
	raw := "```json\n" + `{
  "unstructured_query": "지원 동기 설명",
  "structured_query": "최근 3개월 지원자 수",
  "needs_db_query": true,
  "decomposition_reasoning": "집계가 필요합니다"
}` + "\n```"

	res, err := New(reply(raw, nil)).Decompose(context.Background(), "최근 3개월 지원자 수와 지원 동기")
	require.NoError(t, err)
	require.NotNil(t, res.UnstructuredQuery)
	require.NotNil(t, res.StructuredQuery)
	assert.Equal(t, "지원 동기 설명", *res.UnstructuredQuery)
	assert.Equal(t, "최근 3개월 지원자 수", *res.StructuredQuery)
	assert.True(t, res.NeedsDBQuery)
	assert.Equal(t, "집계가 필요합니다", res.Reasoning)
	assert.False(t, res.Fallback)
}

func TestDecompose_MalformedOutputFallsBack(t *testing.T) {
	for _, raw := range []string{
		"I cannot answer that",
		"```\n{broken\n```",
		"",
		`["not", "an", "object"]`,
		"null",
		"```json\nnull\n```",
	} {
		t.Run(raw, func(t *testing.T) {
			res, err := New(reply(raw, nil)).Decompose(context.Background(), "계약 기간은?")
			require.NoError(t, err)
			require.NotNil(t, res.UnstructuredQuery)
			assert.Equal(t, "계약 기간은?", *res.UnstructuredQuery)
			assert.Nil(t, res.StructuredQuery)
			assert.False(t, res.NeedsDBQuery)
			assert.True(t, res.Fallback)
			assert.NotEmpty(t, res.Reasoning)
		})
	}
}

func TestDecompose_GeneratorErrorPropagates(t *testing.T) {
	_, err := New(reply("", apperrors.ErrGenerationTimeout)).Decompose(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrGenerationTimeout))
}

func TestParseResponse_NullsAndMissingKeys(t *testing.T) {
	res, err := ParseResponse(`{"unstructured_query": "null", "structured_query": null}`)
	require.NoError(t, err)
	assert.Nil(t, res.UnstructuredQuery)
	assert.Nil(t, res.StructuredQuery)
	assert.False(t, res.NeedsDBQuery)
	assert.Equal(t, "", res.Reasoning)
}

func TestParseResponse_RejectsNonObjects(t *testing.T) {
	for _, raw := range []string{"null", "42", `"text"`, "[]"} {
		_, err := ParseResponse(raw)
		assert.Error(t, err, raw)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `  {"a":1} `, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"two lines kept", "```{\"a\":1}\n```", "```{\"a\":1}\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}

func TestBuildPrompt_ContainsQuery(t *testing.T) {
	p := BuildPrompt("지원자 목록")
	assert.Contains(t, p, `"지원자 목록"`)
	assert.Contains(t, p, "needs_db_query")
}
