package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/llm"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/pkg/logger"
)

const (
	TierKeyword = "keyword"
	TierLLM     = "llm"
)

// RuleSource yields the keyword rules matching a query, highest priority
// first. *fewshot.Store implements it.
type RuleSource interface {
	MatchingRules(ctx context.Context, query string) []models.IntentKeywordRule
}

type Decision struct {
	Intent          models.Intent   `json:"intent"`
	Tier            string          `json:"tier"`
	Candidates      []models.Intent `json:"candidates,omitempty"`
	MatchedKeywords []string        `json:"matched_keywords,omitempty"`
}

// Classifier decides a query's intent in two tiers: keyword rules first,
// then the language model when no rule matched or the rules disagree.
type Classifier struct {
	gen   llm.Generator
	rules RuleSource
}

// NewClassifier accepts a nil rules source, in which case every query goes
// straight to the model.
func NewClassifier(gen llm.Generator, rules RuleSource) *Classifier {
	return &Classifier{gen: gen, rules: rules}
}

func (c *Classifier) Classify(ctx context.Context, query string) (Decision, error) {
	candidates, keywords := c.keywordCandidates(ctx, query)

	if len(candidates) == 1 {
		metrics.Classifications.WithLabelValues(TierKeyword, candidates[0].String()).Inc()
		logger.Debug("Intent resolved by keyword rules",
			zap.String("intent", candidates[0].String()),
			zap.Strings("keywords", keywords),
		)
		return Decision{
			Intent:          candidates[0],
			Tier:            TierKeyword,
			Candidates:      candidates,
			MatchedKeywords: keywords,
		}, nil
	}

	intent, err := c.ClassifyWithLLM(ctx, query, candidates)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Intent:          intent,
		Tier:            TierLLM,
		Candidates:      candidates,
		MatchedKeywords: keywords,
	}, nil
}

// KeywordDecision runs only the rule tier. ok is false when the rules did
// not settle on exactly one intent.
func (c *Classifier) KeywordDecision(ctx context.Context, query string) (Decision, bool) {
	candidates, keywords := c.keywordCandidates(ctx, query)
	d := Decision{Tier: TierKeyword, Candidates: candidates, MatchedKeywords: keywords, Intent: models.IntentUnknown}
	if len(candidates) != 1 {
		return d, false
	}
	d.Intent = candidates[0]
	return d, true
}

// keywordCandidates returns the distinct valid intents among matching rules
// in priority order, along with the keywords that matched.
func (c *Classifier) keywordCandidates(ctx context.Context, query string) ([]models.Intent, []string) {
	if c.rules == nil {
		return nil, nil
	}

	var (
		candidates []models.Intent
		keywords   []string
		seen       = map[models.Intent]bool{}
	)
	for _, rule := range c.rules.MatchingRules(ctx, query) {
		intent := rule.Intent()
		if !intent.Valid() {
			continue
		}
		keywords = append(keywords, rule.Keyword)
		if !seen[intent] {
			seen[intent] = true
			candidates = append(candidates, intent)
		}
	}
	return candidates, keywords
}

// ClassifyWithLLM is the fallback tier. Generation errors are returned as-is
// and never retried.
func (c *Classifier) ClassifyWithLLM(ctx context.Context, query string, candidates []models.Intent) (models.Intent, error) {
	raw, err := c.gen.Generate(ctx, BuildPrompt(query, candidates))
	if err != nil {
		return models.IntentUnknown, fmt.Errorf("intent classification: %w", err)
	}

	intent := ParseIntentResponse(raw)
	metrics.Classifications.WithLabelValues(TierLLM, intent.String()).Inc()

	logger.Debug("Intent resolved by model",
		zap.String("intent", intent.String()),
		zap.Int("candidates", len(candidates)),
	)
	return intent, nil
}

func BuildPrompt(query string, candidates []models.Intent) string {
	var b strings.Builder
	b.WriteString("다음 질문의 유형을 분류해주세요.\n\n")
	b.WriteString("질문 유형:\n")
	b.WriteString(`1. rag_search: 문서 내용 검색이 필요한 질문 (예: "계약서 내용이 뭐야?")` + "\n")
	b.WriteString(`2. sql_query: 데이터베이스 조회가 필요한 질문 (예: "지원자 수는?")` + "\n")
	b.WriteString(`3. general: 일반 대화 (예: "안녕")` + "\n\n")

	if len(candidates) > 0 {
		labels := make([]string, len(candidates))
		for i, c := range candidates {
			labels[i] = c.String()
		}
		fmt.Fprintf(&b, "참고: 키워드 규칙상 이 질문은 %s 중 하나일 가능성이 높습니다.\n\n", strings.Join(labels, ", "))
	}

	fmt.Fprintf(&b, "질문: %s\n\n", query)
	b.WriteString("위 질문의 유형을 rag_search, sql_query, general 중 하나만 답하세요:")
	return b.String()
}

// ParseIntentResponse maps free model text to an intent. A mention of "sql"
// wins over "rag"; text mentioning neither is general conversation. A reply
// that names both resolves to sql_query.
func ParseIntentResponse(raw string) models.Intent {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lowered, "sql"):
		return models.IntentSQLQuery
	case strings.Contains(lowered, "rag"):
		return models.IntentRAGSearch
	default:
		return models.IntentGeneral
	}
}
