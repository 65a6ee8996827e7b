package sqlstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/query-router/backend/internal/storage/models"
)

const queryLogColumns = `id, query_text, detected_intent, response, is_promoted, created_at`

func (q *Queries) CreateQueryLog(ctx context.Context, log *models.QueryLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	id, err := q.insertReturningID(ctx,
		`INSERT INTO query_logs (query_text, detected_intent, response, is_promoted, created_at) VALUES (?, ?, ?, ?, ?)`,
		log.QueryText, log.DetectedIntent, log.Response, log.IsPromoted, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}

	log.ID = id
	return nil
}

func (q *Queries) GetQueryLog(ctx context.Context, id int64) (*models.QueryLog, error) {
	var log models.QueryLog
	err := q.get(ctx, &log, `SELECT `+queryLogColumns+` FROM query_logs WHERE id = ?`, id)
	if err != nil {
		return nil, notFoundOr(err, "query log", id)
	}
	return &log, nil
}

// ListQueryLogs returns one page of logs, newest first, plus the total number
// of logs matching the filter.
func (q *Queries) ListQueryLogs(ctx context.Context, filter models.QueryLogFilter) ([]models.QueryLog, int, error) {
	var (
		conds []string
		args  []any
	)

	if filter.Intent != "" {
		conds = append(conds, "detected_intent = ?")
		args = append(args, filter.Intent)
	}
	if filter.PromotedOnly {
		conds = append(conds, "is_promoted = ?")
		args = append(args, true)
	}
	if filter.Search != "" {
		conds = append(conds, "(LOWER(query_text) LIKE ? OR LOWER(COALESCE(response, '')) LIKE ?)")
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, pattern, pattern)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := q.get(ctx, &total, `SELECT COUNT(*) FROM query_logs`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count query logs: %w", err)
	}

	limit := clampLimit(filter.Limit, 100, 1000)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	logs := []models.QueryLog{}
	err := q.selectAll(ctx, &logs,
		`SELECT `+queryLogColumns+` FROM query_logs`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list query logs: %w", err)
	}

	return logs, total, nil
}

func (q *Queries) SetQueryLogPromoted(ctx context.Context, id int64, promoted bool) error {
	n, err := q.exec(ctx, `UPDATE query_logs SET is_promoted = ? WHERE id = ?`, promoted, id)
	if err != nil {
		return fmt.Errorf("failed to update query log: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "query log", id)
	}
	return nil
}

func (q *Queries) DeleteQueryLog(ctx context.Context, id int64) error {
	n, err := q.exec(ctx, `DELETE FROM query_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete query log: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "query log", id)
	}
	return nil
}

func (q *Queries) QueryLogStats(ctx context.Context) (*models.QueryLogStats, error) {
	stats := &models.QueryLogStats{ByIntent: []models.IntentCount{}}

	if err := q.get(ctx, &stats.Total, `SELECT COUNT(*) FROM query_logs`); err != nil {
		return nil, fmt.Errorf("failed to count query logs: %w", err)
	}
	if err := q.get(ctx, &stats.Promoted, `SELECT COUNT(*) FROM query_logs WHERE is_promoted = ?`, true); err != nil {
		return nil, fmt.Errorf("failed to count promoted query logs: %w", err)
	}

	err := q.selectAll(ctx, &stats.ByIntent,
		`SELECT COALESCE(detected_intent, 'unknown') AS intent, COUNT(*) AS count
		 FROM query_logs GROUP BY COALESCE(detected_intent, 'unknown') ORDER BY count DESC, intent`)
	if err != nil {
		return nil, fmt.Errorf("failed to group query logs: %w", err)
	}

	if stats.Total > 0 {
		rate := float64(stats.Promoted) / float64(stats.Total) * 100
		stats.PromotionRate = math.Round(rate*100) / 100
	}
	return stats, nil
}
