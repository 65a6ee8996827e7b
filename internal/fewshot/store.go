package fewshot

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/pkg/logger"
)

// Reader is the read side of the relational store the pipelines consult.
type Reader interface {
	ActiveFewShots(ctx context.Context, intent string, limit int) ([]models.FewShotExample, error)
	ListIntentRules(ctx context.Context) ([]models.IntentKeywordRule, error)
}

// Store serves few-shot examples and keyword rules to the classifier and the
// answering pipelines. Read failures degrade to empty results.
type Store struct {
	reader      Reader
	maxExamples int
}

func NewStore(reader Reader, maxExamples int) *Store {
	if maxExamples <= 0 {
		maxExamples = 5
	}
	return &Store{reader: reader, maxExamples: maxExamples}
}

// ActiveExamples returns active examples tagged with intent, newest first.
// IntentUnknown means no filter.
func (s *Store) ActiveExamples(ctx context.Context, intent models.Intent) []models.FewShotExample {
	filter := ""
	if intent.Valid() {
		filter = intent.String()
	}

	examples, err := s.reader.ActiveFewShots(ctx, filter, s.maxExamples)
	if err != nil {
		logger.Warn("Few-shot lookup failed, continuing without examples",
			zap.String("intent", filter),
			zap.Error(err),
		)
		return nil
	}
	return examples
}

// MatchingRules returns every rule whose keyword occurs in query, compared
// case-insensitively by plain containment, highest priority first.
func (s *Store) MatchingRules(ctx context.Context, query string) []models.IntentKeywordRule {
	rules, err := s.reader.ListIntentRules(ctx)
	if err != nil {
		logger.Warn("Keyword rule lookup failed, skipping keyword tier", zap.Error(err))
		return nil
	}
	return MatchRules(rules, query)
}

func MatchRules(rules []models.IntentKeywordRule, query string) []models.IntentKeywordRule {
	lowered := strings.ToLower(query)

	var matched []models.IntentKeywordRule
	for _, rule := range rules {
		keyword := strings.ToLower(strings.TrimSpace(rule.Keyword))
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, keyword) {
			matched = append(matched, rule)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched
}

// FormatExamples renders examples as question/answer exemplars for a prompt.
// Examples without an expected response are skipped.
func FormatExamples(examples []models.FewShotExample) string {
	var b strings.Builder
	for _, ex := range examples {
		if ex.ExpectedResponse == nil || strings.TrimSpace(*ex.ExpectedResponse) == "" {
			continue
		}
		b.WriteString("Question: ")
		b.WriteString(ex.UserQuery)
		b.WriteString("\nAnswer: ")
		b.WriteString(*ex.ExpectedResponse)
		b.WriteString("\n\n")
	}
	if b.Len() == 0 {
		return ""
	}
	return "Reference examples:\n\n" + b.String()
}
