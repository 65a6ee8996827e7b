package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/query-router/backend/internal/storage/models"
)

const fewShotColumns = `id, source_query_log_id, intent_type, user_query, expected_response, is_active, created_at, updated_at`

func (q *Queries) CreateFewShot(ctx context.Context, ex *models.FewShotExample) error {
	now := time.Now().UTC()
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = now
	}
	ex.UpdatedAt = ex.CreatedAt

	id, err := q.insertReturningID(ctx,
		`INSERT INTO few_shots (source_query_log_id, intent_type, user_query, expected_response, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.SourceQueryLogID, ex.IntentType, ex.UserQuery, ex.ExpectedResponse, ex.IsActive, ex.CreatedAt, ex.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert few-shot example: %w", err)
	}

	ex.ID = id
	return nil
}

func (q *Queries) GetFewShot(ctx context.Context, id int64) (*models.FewShotExample, error) {
	var ex models.FewShotExample
	if err := q.get(ctx, &ex, `SELECT `+fewShotColumns+` FROM few_shots WHERE id = ?`, id); err != nil {
		return nil, notFoundOr(err, "few-shot example", id)
	}
	return &ex, nil
}

func (q *Queries) FewShotBySourceLog(ctx context.Context, logID int64) (*models.FewShotExample, error) {
	var ex models.FewShotExample
	if err := q.get(ctx, &ex, `SELECT `+fewShotColumns+` FROM few_shots WHERE source_query_log_id = ?`, logID); err != nil {
		return nil, notFoundOr(err, "few-shot example for query log", logID)
	}
	return &ex, nil
}

func (q *Queries) ListFewShots(ctx context.Context, filter models.FewShotFilter) ([]models.FewShotExample, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Intent != "" {
		conds = append(conds, "intent_type = ?")
		args = append(args, filter.Intent)
	}
	if filter.Active != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.Active)
	}

	query := `SELECT ` + fewShotColumns + ` FROM few_shots`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	examples := []models.FewShotExample{}
	if err := q.selectAll(ctx, &examples, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list few-shot examples: %w", err)
	}
	return examples, nil
}

// ActiveFewShots returns active examples for intent, newest first. An empty
// intent returns active examples of every intent.
func (q *Queries) ActiveFewShots(ctx context.Context, intent string, limit int) ([]models.FewShotExample, error) {
	query := `SELECT ` + fewShotColumns + ` FROM few_shots WHERE is_active = ?`
	args := []any{true}
	if intent != "" {
		query += ` AND intent_type = ?`
		args = append(args, intent)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, clampLimit(limit, 5, 100))

	examples := []models.FewShotExample{}
	if err := q.selectAll(ctx, &examples, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load active few-shot examples: %w", err)
	}
	return examples, nil
}

func (q *Queries) UpdateFewShot(ctx context.Context, ex *models.FewShotExample) error {
	ex.UpdatedAt = time.Now().UTC()

	n, err := q.exec(ctx,
		`UPDATE few_shots SET intent_type = ?, user_query = ?, expected_response = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		ex.IntentType, ex.UserQuery, ex.ExpectedResponse, ex.IsActive, ex.UpdatedAt, ex.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update few-shot example: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "few-shot example", ex.ID)
	}
	return nil
}

func (q *Queries) DeleteFewShot(ctx context.Context, id int64) error {
	n, err := q.exec(ctx, `DELETE FROM few_shots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete few-shot example: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "few-shot example", id)
	}
	return nil
}

const auditColumns = `id, few_shot_id, action, old_value, new_value, changed_by, created_at`

func (q *Queries) InsertAudit(ctx context.Context, audit *models.FewShotAudit) error {
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	id, err := q.insertReturningID(ctx,
		`INSERT INTO few_shot_audit (few_shot_id, action, old_value, new_value, changed_by, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		audit.FewShotID, string(audit.Action), audit.OldValue, audit.NewValue, audit.ChangedBy, audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert few-shot audit: %w", err)
	}

	audit.ID = id
	return nil
}

func (q *Queries) ListAudit(ctx context.Context, fewShotID int64, limit int) ([]models.FewShotAudit, error) {
	audits := []models.FewShotAudit{}
	err := q.selectAll(ctx, &audits,
		`SELECT `+auditColumns+` FROM few_shot_audit WHERE few_shot_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		fewShotID, clampLimit(limit, 50, 500),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list few-shot audit: %w", err)
	}
	return audits, nil
}

func (q *Queries) ListAllAudit(ctx context.Context, action models.AuditAction, limit int) ([]models.FewShotAudit, error) {
	query := `SELECT ` + auditColumns + ` FROM few_shot_audit`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, string(action))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, clampLimit(limit, 100, 1000))

	audits := []models.FewShotAudit{}
	if err := q.selectAll(ctx, &audits, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list few-shot audit: %w", err)
	}
	return audits, nil
}
