package sqlstore

import (
	"context"
	"fmt"

	"github.com/query-router/backend/internal/storage/models"
)

func (q *Queries) ListApplicants(ctx context.Context, offset, limit int) ([]models.Applicant, error) {
	if offset < 0 {
		offset = 0
	}

	applicants := []models.Applicant{}
	err := q.selectAll(ctx, &applicants,
		`SELECT id, reason, experience, skill FROM applicant_info ORDER BY id LIMIT ? OFFSET ?`,
		clampLimit(limit, 100, 1000), offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applicants: %w", err)
	}
	return applicants, nil
}

func (q *Queries) CountApplicants(ctx context.Context) (int, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM applicant_info`); err != nil {
		return 0, fmt.Errorf("failed to count applicants: %w", err)
	}
	return n, nil
}

func (q *Queries) GetApplicant(ctx context.Context, id int64) (*models.Applicant, error) {
	var a models.Applicant
	if err := q.get(ctx, &a, `SELECT id, reason, experience, skill FROM applicant_info WHERE id = ?`, id); err != nil {
		return nil, notFoundOr(err, "applicant", id)
	}
	return &a, nil
}

func (q *Queries) CreateApplicant(ctx context.Context, a *models.Applicant) error {
	id, err := q.insertReturningID(ctx,
		`INSERT INTO applicant_info (reason, experience, skill) VALUES (?, ?, ?)`,
		a.Reason, a.Experience, a.Skill,
	)
	if err != nil {
		return fmt.Errorf("failed to insert applicant: %w", err)
	}
	a.ID = id
	return nil
}

func (q *Queries) UpdateApplicant(ctx context.Context, a *models.Applicant) error {
	n, err := q.exec(ctx,
		`UPDATE applicant_info SET reason = ?, experience = ?, skill = ? WHERE id = ?`,
		a.Reason, a.Experience, a.Skill, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update applicant: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "applicant", a.ID)
	}
	return nil
}

func (q *Queries) DeleteApplicant(ctx context.Context, id int64) error {
	n, err := q.exec(ctx, `DELETE FROM applicant_info WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete applicant: %w", err)
	}
	if n == 0 {
		return notFoundOr(errNoRows, "applicant", id)
	}
	return nil
}
