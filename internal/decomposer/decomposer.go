package decomposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/llm"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/pkg/logger"
)

const fallbackReasoning = "모델 응답을 해석하지 못해 원본 질의를 그대로 사용합니다"

// Result splits one query into a context-seeking part and a field-extraction
// part. Either may be nil.
type Result struct {
	UnstructuredQuery *string `json:"unstructured_query"`
	StructuredQuery   *string `json:"structured_query"`
	NeedsDBQuery      bool    `json:"needs_db_query"`
	Reasoning         string  `json:"decomposition_reasoning"`
	Fallback          bool    `json:"fallback,omitempty"`
}

type Decomposer struct {
	gen llm.Generator
}

func New(gen llm.Generator) *Decomposer {
	return &Decomposer{gen: gen}
}

// Decompose returns an error only when the generator call itself fails.
// Output that cannot be parsed yields the fallback result.
func (d *Decomposer) Decompose(ctx context.Context, query string) (*Result, error) {
	raw, err := d.gen.Generate(ctx, BuildPrompt(query))
	if err != nil {
		return nil, fmt.Errorf("query decomposition: %w", err)
	}

	res, err := ParseResponse(raw)
	if err != nil {
		metrics.ParseFallbacks.WithLabelValues("decomposer").Inc()
		logger.Warn("Decomposition output unparseable, using fallback",
			zap.Error(err),
			zap.Int("response_length", len(raw)),
		)
		return Fallback(query), nil
	}
	return res, nil
}

// Fallback treats the whole query as unstructured.
func Fallback(query string) *Result {
	return &Result{
		UnstructuredQuery: &query,
		NeedsDBQuery:      false,
		Reasoning:         fallbackReasoning,
		Fallback:          true,
	}
}

func BuildPrompt(query string) string {
	return fmt.Sprintf(`다음 사용자 질의를 분석하여 비정형 데이터와 정형 데이터 질의로 분해하세요.

# 정의
- 비정형 질의: 문맥, 이유, 배경, 설명 등 문서의 자연어 내용을 이해해야 답변 가능한 질문
- 정형 질의: 금액, 날짜, 이름, 수량 등 구조화된 필드값을 추출하면 답변 가능한 질문
- DB 쿼리 필요: 문서가 아닌 데이터베이스 테이블에서 조회해야 하는 질문 (예: 통계, 집계, 개수, 최근 N개월 데이터)

# 사용자 질의
"%s"

# 지시사항
1. 비정형 질의가 포함된 경우, 문맥 검색에 적합한 형태로 재구성
2. 정형 질의가 포함된 경우, 추출해야 할 필드/값을 명확히 표현
3. DB 쿼리가 필요한지 판단
4. 그렇게 분류한 사유 작성

# 응답 형식 (JSON만 출력, 다른 텍스트 포함 금지)
{
  "unstructured_query": "비정형 질의 (없으면 null)",
  "structured_query": "정형 질의 (없으면 null)",
  "needs_db_query": true 또는 false,
  "decomposition_reasoning": "분류 사유"
}

응답:`, query)
}

// ParseResponse decodes the model's JSON object, tolerating a wrapping code
// fence. Anything other than an object, including a bare null, is an error.
func ParseResponse(raw string) (*Result, error) {
	body := StripCodeFence(raw)
	if !strings.HasPrefix(body, "{") {
		return nil, fmt.Errorf("decomposition is not a JSON object")
	}

	var res Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("failed to decode decomposition: %w", err)
	}
	res.UnstructuredQuery = nonEmpty(res.UnstructuredQuery)
	res.StructuredQuery = nonEmpty(res.StructuredQuery)
	res.Fallback = false
	return &res, nil
}

// StripCodeFence removes a surrounding ``` fence and an optional "json"
// language tag. Text without a leading fence is only trimmed.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) <= 2 {
		return text
	}
	text = strings.Join(lines[1:len(lines)-1], "\n")
	if strings.HasPrefix(text, "json") {
		text = strings.TrimSpace(text[len("json"):])
	}
	return strings.TrimSpace(text)
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
