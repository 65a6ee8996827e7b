package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/query-router/backend/internal/storage/models"
)

const intentColumns = `id, keyword, intent_type, priority, description, created_at, updated_at`

func (q *Queries) CreateIntentRule(ctx context.Context, rule *models.IntentKeywordRule) error {
	now := time.Now().UTC()
	rule.CreatedAt, rule.UpdatedAt = now, now

	id, err := q.insertReturningID(ctx,
		`INSERT INTO intents (keyword, intent_type, priority, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rule.Keyword, rule.IntentType, rule.Priority, rule.Description, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert intent rule: %w", err)
	}

	rule.ID = id
	return nil
}

func (q *Queries) GetIntentRule(ctx context.Context, id int64) (*models.IntentKeywordRule, error) {
	var rule models.IntentKeywordRule
	if err := q.get(ctx, &rule, `SELECT `+intentColumns+` FROM intents WHERE id = ?`, id); err != nil {
		return nil, notFoundOr(err, "intent rule", id)
	}
	return &rule, nil
}

// ListIntentRules orders by priority, highest first, then newest first.
func (q *Queries) ListIntentRules(ctx context.Context) ([]models.IntentKeywordRule, error) {
	rules := []models.IntentKeywordRule{}
	err := q.selectAll(ctx, &rules, `SELECT `+intentColumns+` FROM intents ORDER BY priority DESC, created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list intent rules: %w", err)
	}
	return rules, nil
}

func (q *Queries) UpdateIntentRule(ctx context.Context, rule *models.IntentKeywordRule) error {
	rule.UpdatedAt = time.Now().UTC()

	n, err := q.exec(ctx,
		`UPDATE intents SET keyword = ?, intent_type = ?, priority = ?, description = ?, updated_at = ? WHERE id = ?`,
		rule.Keyword, rule.IntentType, rule.Priority, rule.Description, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update intent rule: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "intent rule", rule.ID)
	}
	return nil
}

func (q *Queries) DeleteIntentRule(ctx context.Context, id int64) error {
	n, err := q.exec(ctx, `DELETE FROM intents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete intent rule: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "intent rule", id)
	}
	return nil
}
