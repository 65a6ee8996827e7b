// Package seed loads intent rules, few-shot examples and applicants from a
// YAML file into the store.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
	"github.com/query-router/backend/pkg/logger"
)

const actor = "seed"

type File struct {
	Intents    []Intent    `yaml:"intents"`
	FewShots   []FewShot   `yaml:"fewshots"`
	Applicants []Applicant `yaml:"applicants"`
}

type Intent struct {
	Keyword     string  `yaml:"keyword"`
	IntentType  string  `yaml:"intent_type"`
	Priority    int     `yaml:"priority"`
	Description *string `yaml:"description"`
}

type FewShot struct {
	IntentType       string `yaml:"intent_type"`
	UserQuery        string `yaml:"user_query"`
	ExpectedResponse string `yaml:"expected_response"`
	IsActive         *bool  `yaml:"is_active"`
}

type Applicant struct {
	Reason     *string `yaml:"reason"`
	Experience *string `yaml:"experience"`
	Skill      *string `yaml:"skill"`
}

type Result struct {
	Intents         int
	SkippedIntents  int
	FewShots        int
	SkippedFewShots int
	Applicants      int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Invalid("malformed seed file: %v", err)
	}

	for i, in := range f.Intents {
		if strings.TrimSpace(in.Keyword) == "" {
			return nil, apperrors.Invalid("intents[%d]: keyword is required", i)
		}
		if !models.ParseIntent(in.IntentType).Valid() {
			return nil, apperrors.Invalid("intents[%d]: unknown intent %q", i, in.IntentType)
		}
	}
	for i, ex := range f.FewShots {
		if strings.TrimSpace(ex.UserQuery) == "" {
			return nil, apperrors.Invalid("fewshots[%d]: user_query is required", i)
		}
		if !models.ParseIntent(ex.IntentType).Valid() {
			return nil, apperrors.Invalid("fewshots[%d]: unknown intent %q", i, ex.IntentType)
		}
	}
	return &f, nil
}

// Apply is idempotent for rules and examples: a rule with the same keyword
// and intent, or an example with the same question and intent, is skipped.
// Applicants are always appended.
func Apply(ctx context.Context, store *sqlstore.Store, f *File) (*Result, error) {
	res := &Result{}

	err := store.WithTx(ctx, func(q *sqlstore.Queries) error {
		existing, err := q.ListIntentRules(ctx)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(existing))
		for _, r := range existing {
			seen[ruleKey(r.Keyword, r.IntentType)] = true
		}

		for _, in := range f.Intents {
			key := ruleKey(in.Keyword, in.IntentType)
			if seen[key] {
				res.SkippedIntents++
				continue
			}
			seen[key] = true

			if err := q.CreateIntentRule(ctx, &models.IntentKeywordRule{
				Keyword:     strings.TrimSpace(in.Keyword),
				IntentType:  in.IntentType,
				Priority:    in.Priority,
				Description: in.Description,
			}); err != nil {
				return err
			}
			res.Intents++
		}

		for _, a := range f.Applicants {
			if err := q.CreateApplicant(ctx, &models.Applicant{
				Reason:     a.Reason,
				Experience: a.Experience,
				Skill:      a.Skill,
			}); err != nil {
				return err
			}
			res.Applicants++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	existing, err := store.ListFewShots(ctx, models.FewShotFilter{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, ex := range existing {
		if ex.IntentType != nil {
			seen[ex.UserQuery+"\x00"+*ex.IntentType] = true
		}
	}

	svc := fewshot.NewService(store)
	for _, ex := range f.FewShots {
		key := ex.UserQuery + "\x00" + ex.IntentType
		if seen[key] {
			res.SkippedFewShots++
			continue
		}
		seen[key] = true

		_, err := svc.Create(ctx, fewshot.CreateInput{
			IntentType:       models.StringPtr(ex.IntentType),
			UserQuery:        ex.UserQuery,
			ExpectedResponse: models.StringPtr(ex.ExpectedResponse),
			IsActive:         ex.IsActive,
			ChangedBy:        actor,
		})
		if err != nil {
			return nil, err
		}
		res.FewShots++
	}

	logger.Info("Seed applied",
		zap.Int("intents", res.Intents),
		zap.Int("fewshots", res.FewShots),
		zap.Int("applicants", res.Applicants),
	)
	return res, nil
}

func ruleKey(keyword, intent string) string {
	return strings.ToLower(strings.TrimSpace(keyword)) + "\x00" + intent
}
