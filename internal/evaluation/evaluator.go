// Package evaluation measures intent routing against a labelled dataset.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/router"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/pkg/logger"
)

type Classifier interface {
	Classify(ctx context.Context, query string) (router.Decision, error)
}

type Evaluator struct {
	classifier Classifier
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Query          string        `json:"query"`
	ExpectedIntent models.Intent `json:"expected_intent"`
	Category       string        `json:"category"`
}

type IntentScore struct {
	Expected  int `json:"expected"`
	Predicted int `json:"predicted"`
	Correct   int `json:"correct"`
}

// Recall is the share of items labelled with this intent that were routed
// to it.
func (s IntentScore) Recall() float64 {
	if s.Expected == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Expected) * 100
}

type Mismatch struct {
	Query    string        `json:"query"`
	Expected models.Intent `json:"expected"`
	Got      models.Intent `json:"got"`
	Tier     string        `json:"tier"`
}

type Report struct {
	TotalQueries int                            `json:"total_queries"`
	Correct      int                            `json:"correct"`
	Errors       int                            `json:"errors"`
	KeywordTier  int                            `json:"keyword_tier"`
	LLMTier      int                            `json:"llm_tier"`
	Accuracy     float64                        `json:"accuracy"`
	PerIntent    map[models.Intent]*IntentScore `json:"per_intent"`
	Mismatches   []Mismatch                     `json:"mismatches"`
}

func NewEvaluator(classifier Classifier) *Evaluator {
	return &Evaluator{
		classifier: classifier,
	}
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, apperrors.Invalid("malformed dataset: %v", err)
	}

	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Query) == "" {
			return nil, apperrors.Invalid("items[%d]: query is required", i)
		}
		if !item.ExpectedIntent.Valid() {
			return nil, apperrors.Invalid("items[%d]: unknown intent %q", i, item.ExpectedIntent)
		}
	}
	return &dataset, nil
}

// Run classifies every item. A failed classification counts as an error and
// as a miss; it does not stop the run unless ctx is done.
func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running routing evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{
		TotalQueries: len(dataset.Items),
		PerIntent:    map[models.Intent]*IntentScore{},
		Mismatches:   []Mismatch{},
	}
	for _, intent := range models.AllIntents() {
		report.PerIntent[intent] = &IntentScore{}
	}

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.PerIntent[item.ExpectedIntent].Expected++

		decision, err := e.classifier.Classify(ctx, item.Query)
		if err != nil {
			logger.Error("Failed to classify item", zap.Int("index", i), zap.Error(err))
			report.Errors++
			continue
		}

		switch decision.Tier {
		case router.TierKeyword:
			report.KeywordTier++
		case router.TierLLM:
			report.LLMTier++
		}
		if score, ok := report.PerIntent[decision.Intent]; ok {
			score.Predicted++
		}

		if decision.Intent == item.ExpectedIntent {
			report.Correct++
			report.PerIntent[item.ExpectedIntent].Correct++
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			Query:    item.Query,
			Expected: item.ExpectedIntent,
			Got:      decision.Intent,
			Tier:     decision.Tier,
		})
	}

	if report.TotalQueries > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.TotalQueries) * 100
	}

	logger.Info("Routing evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("correct", report.Correct),
		zap.Int("errors", report.Errors),
	)

	return report, nil
}

func GenerateReport(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Routing Evaluation Report
=========================

Total Queries: %d
Accuracy: %.1f%% (%d correct, %d errors)

Decided by:
- Keyword rules: %d
- Model: %d

Per intent (expected / predicted / correct, recall):
`,
		report.TotalQueries,
		report.Accuracy, report.Correct, report.Errors,
		report.KeywordTier,
		report.LLMTier,
	)

	for _, intent := range models.AllIntents() {
		s := report.PerIntent[intent]
		fmt.Fprintf(&b, "- %s: %d / %d / %d, %.1f%%\n", intent, s.Expected, s.Predicted, s.Correct, s.Recall())
	}

	if len(report.Mismatches) > 0 {
		b.WriteString("\nMismatches:\n")
		for _, m := range report.Mismatches {
			fmt.Fprintf(&b, "- %q: expected %s, got %s (%s)\n", m.Query, m.Expected, m.Got, m.Tier)
		}
	}
	return b.String()
}
