package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/decomposer"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/vector"
	"github.com/query-router/backend/pkg/logger"
)

const maxSectionLabels = 3

type Relevance struct {
	Reasoning       string   `json:"reasoning"`
	Confidence      float64  `json:"confidence"`
	MatchedSections []string `json:"matched_sections"`
	Fallback        bool     `json:"fallback,omitempty"`
}

func (p *Pipeline) analyze(ctx context.Context, req Request, hits []vector.SearchResult, answer string) (*Relevance, error) {
	raw, err := p.gen.Generate(ctx, BuildRelevancePrompt(req, hits, answer))
	if err != nil {
		return nil, fmt.Errorf("relevance analysis: %w", err)
	}

	rel, err := ParseRelevance(raw)
	if err != nil {
		metrics.ParseFallbacks.WithLabelValues("relevance").Inc()
		logger.Warn("Relevance output unparseable, using score average", zap.Error(err))
		return FallbackRelevance(scores(hits)), nil
	}
	return rel, nil
}

func BuildRelevancePrompt(req Request, hits []vector.SearchResult, answer string) string {
	searchQuery := req.SearchQuery
	if strings.TrimSpace(searchQuery) == "" {
		searchQuery = req.Query
	}

	top := scores(hits)
	if len(top) > maxSectionLabels {
		top = top[:maxSectionLabels]
	}
	formatted := make([]string, len(top))
	for i, s := range top {
		formatted[i] = fmt.Sprintf("%.3f", s)
	}

	return fmt.Sprintf(`다음 검색 결과가 질문에 얼마나 관련이 있는지 분석하세요.

원본 질문: %s
검색에 사용된 질의: %s
검색된 문서 수: %d
상위 유사도 점수: %s

생성된 답변:
%s

# 응답 형식 (JSON만 출력)
{
  "reasoning": "관련성 판단 사유",
  "confidence": 0.0에서 1.0 사이의 숫자,
  "matched_sections": ["답변 근거가 된 문서 구역"]
}

응답:`, req.Query, searchQuery, len(hits), strings.Join(formatted, ", "), answer)
}

// ParseRelevance decodes the model's assessment. A confidence outside
// [0, 1] is rejected so the score-based fallback applies.
func ParseRelevance(raw string) (*Relevance, error) {
	var out struct {
		Reasoning       string   `json:"reasoning"`
		Rationale       string   `json:"rationale"`
		Confidence      *float64 `json:"confidence"`
		MatchedSections []string `json:"matched_sections"`
	}
	if err := json.Unmarshal([]byte(decomposer.StripCodeFence(raw)), &out); err != nil {
		return nil, fmt.Errorf("failed to decode relevance: %w", err)
	}
	if out.Confidence == nil {
		return nil, fmt.Errorf("relevance is missing confidence")
	}
	if *out.Confidence < 0 || *out.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", *out.Confidence)
	}

	reasoning := out.Reasoning
	if reasoning == "" {
		reasoning = out.Rationale
	}
	sections := out.MatchedSections
	if sections == nil {
		sections = []string{}
	}
	return &Relevance{
		Reasoning:       reasoning,
		Confidence:      *out.Confidence,
		MatchedSections: sections,
	}, nil
}

// FallbackRelevance is derived only from the similarity scores, so the same
// scores always give the same assessment.
func FallbackRelevance(scores []float64) *Relevance {
	var mean float64
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		mean = sum / float64(len(scores))
	}

	n := min(len(scores), maxSectionLabels)
	sections := make([]string, n)
	for i := range n {
		sections[i] = fmt.Sprintf("문서 %d", i+1)
	}

	return &Relevance{
		Reasoning:       fmt.Sprintf("검색된 문서들의 평균 유사도 %.2f를 기준으로 산정했습니다.", mean),
		Confidence:      mean,
		MatchedSections: sections,
		Fallback:        true,
	}
}

func scores(hits []vector.SearchResult) []float64 {
	out := make([]float64, len(hits))
	for i, h := range hits {
		out[i] = h.Score
	}
	return out
}
