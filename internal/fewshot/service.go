package fewshot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
	"github.com/query-router/backend/pkg/logger"
)

const DefaultActor = "system"

// TxStore is satisfied by *sqlstore.Store.
type TxStore interface {
	WithTx(ctx context.Context, fn func(q *sqlstore.Queries) error) error
	ListAudit(ctx context.Context, fewShotID int64, limit int) ([]models.FewShotAudit, error)
	ListAllAudit(ctx context.Context, action models.AuditAction, limit int) ([]models.FewShotAudit, error)
}

// Service owns every mutation of few-shot examples. Each mutation runs in
// one transaction together with its audit row and, where relevant, the
// source query log's promoted flag.
type Service struct {
	store TxStore
}

func NewService(store TxStore) *Service {
	return &Service{store: store}
}

type PromoteInput struct {
	IntentType       *string `json:"intent_type"`
	ExpectedResponse *string `json:"expected_response"`
	IsActive         *bool   `json:"is_active"`
	ChangedBy        string  `json:"changed_by"`
}

type CreateInput struct {
	SourceQueryLogID *int64  `json:"source_query_log_id"`
	IntentType       *string `json:"intent_type"`
	UserQuery        string  `json:"user_query"`
	ExpectedResponse *string `json:"expected_response"`
	IsActive         *bool   `json:"is_active"`
	ChangedBy        string  `json:"changed_by"`
}

type UpdateInput struct {
	IntentType       *string `json:"intent_type"`
	UserQuery        *string `json:"user_query"`
	ExpectedResponse *string `json:"expected_response"`
	IsActive         *bool   `json:"is_active"`
	ChangedBy        string  `json:"changed_by"`
}

// Promote turns a logged query into a few-shot example. Intent and expected
// response default to what the log recorded.
func (s *Service) Promote(ctx context.Context, logID int64, in PromoteInput) (*models.FewShotExample, error) {
	return s.create(ctx, CreateInput{
		SourceQueryLogID: &logID,
		IntentType:       in.IntentType,
		ExpectedResponse: in.ExpectedResponse,
		IsActive:         in.IsActive,
		ChangedBy:        in.ChangedBy,
	})
}

// Create adds a curated example. When a source log is given it goes through
// the same checks as Promote, except that a reference to a missing log is an
// integrity violation rather than a lookup miss.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.FewShotExample, error) {
	if in.SourceQueryLogID == nil && strings.TrimSpace(in.UserQuery) == "" {
		return nil, apperrors.Invalid("user_query is required")
	}
	ex, err := s.create(ctx, in)
	if in.SourceQueryLogID != nil && errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Integrity("source query log %d does not exist", *in.SourceQueryLogID)
	}
	return ex, err
}

func (s *Service) create(ctx context.Context, in CreateInput) (*models.FewShotExample, error) {
	if err := validateIntent(in.IntentType); err != nil {
		return nil, err
	}

	ex := &models.FewShotExample{
		IntentType:       in.IntentType,
		UserQuery:        in.UserQuery,
		ExpectedResponse: in.ExpectedResponse,
		IsActive:         in.IsActive == nil || *in.IsActive,
	}

	err := s.store.WithTx(ctx, func(q *sqlstore.Queries) error {
		if in.SourceQueryLogID != nil {
			log, err := q.GetQueryLog(ctx, *in.SourceQueryLogID)
			if err != nil {
				return err
			}
			if log.IsPromoted {
				return apperrors.Integrity("query log %d is already promoted", log.ID)
			}

			ex.SourceQueryLogID = &log.ID
			if strings.TrimSpace(ex.UserQuery) == "" {
				ex.UserQuery = log.QueryText
			}
			if ex.IntentType == nil {
				ex.IntentType = log.DetectedIntent
			}
			if ex.ExpectedResponse == nil {
				ex.ExpectedResponse = log.Response
			}
		}

		if err := q.CreateFewShot(ctx, ex); err != nil {
			return err
		}
		if ex.SourceQueryLogID != nil {
			if err := q.SetQueryLogPromoted(ctx, *ex.SourceQueryLogID, true); err != nil {
				return err
			}
		}
		return q.InsertAudit(ctx, &models.FewShotAudit{
			FewShotID: ex.ID,
			Action:    models.AuditInsert,
			NewValue:  snapshot(ex),
			ChangedBy: actor(in.ChangedBy),
		})
	})
	if err != nil {
		return nil, err
	}

	if ex.SourceQueryLogID != nil {
		metrics.FewShotPromotions.Inc()
		logger.Info("Query log promoted to few-shot example",
			zap.Int64("query_log_id", *ex.SourceQueryLogID),
			zap.Int64("few_shot_id", ex.ID),
		)
	}
	return ex, nil
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*models.FewShotExample, error) {
	if err := validateIntent(in.IntentType); err != nil {
		return nil, err
	}
	if in.UserQuery != nil && strings.TrimSpace(*in.UserQuery) == "" {
		return nil, apperrors.Invalid("user_query cannot be empty")
	}

	var updated *models.FewShotExample
	err := s.store.WithTx(ctx, func(q *sqlstore.Queries) error {
		ex, err := q.GetFewShot(ctx, id)
		if err != nil {
			return err
		}
		before := snapshot(ex)

		if in.IntentType != nil {
			ex.IntentType = in.IntentType
		}
		if in.UserQuery != nil {
			ex.UserQuery = *in.UserQuery
		}
		if in.ExpectedResponse != nil {
			ex.ExpectedResponse = in.ExpectedResponse
		}
		if in.IsActive != nil {
			ex.IsActive = *in.IsActive
		}

		if err := q.UpdateFewShot(ctx, ex); err != nil {
			return err
		}
		updated = ex
		return q.InsertAudit(ctx, &models.FewShotAudit{
			FewShotID: ex.ID,
			Action:    models.AuditUpdate,
			OldValue:  before,
			NewValue:  snapshot(ex),
			ChangedBy: actor(in.ChangedBy),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an example and clears its source log's promoted flag in
// the same transaction.
func (s *Service) Delete(ctx context.Context, id int64, changedBy string) error {
	return s.store.WithTx(ctx, func(q *sqlstore.Queries) error {
		ex, err := q.GetFewShot(ctx, id)
		if err != nil {
			return err
		}

		if err := q.DeleteFewShot(ctx, id); err != nil {
			return err
		}
		if ex.SourceQueryLogID != nil {
			if err := q.SetQueryLogPromoted(ctx, *ex.SourceQueryLogID, false); err != nil {
				return err
			}
		}
		return q.InsertAudit(ctx, &models.FewShotAudit{
			FewShotID: ex.ID,
			Action:    models.AuditDelete,
			OldValue:  snapshot(ex),
			ChangedBy: actor(changedBy),
		})
	})
}

// DeleteQueryLog refuses to delete a promoted log; its example has to go
// first.
func (s *Service) DeleteQueryLog(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(q *sqlstore.Queries) error {
		log, err := q.GetQueryLog(ctx, id)
		if err != nil {
			return err
		}
		if log.IsPromoted {
			return apperrors.Integrity("query log %d is promoted to a few-shot example; delete the example first", id)
		}
		return q.DeleteQueryLog(ctx, id)
	})
}

func (s *Service) ListAudit(ctx context.Context, fewShotID int64, limit int) ([]models.FewShotAudit, error) {
	return s.store.ListAudit(ctx, fewShotID, limit)
}

func (s *Service) ListAllAudit(ctx context.Context, action string, limit int) ([]models.FewShotAudit, error) {
	a := models.AuditAction(strings.ToUpper(action))
	switch a {
	case "", models.AuditInsert, models.AuditUpdate, models.AuditDelete:
	default:
		return nil, apperrors.Invalid("unknown audit action %q", action)
	}
	return s.store.ListAllAudit(ctx, a, limit)
}

func validateIntent(intent *string) error {
	if intent == nil {
		return nil
	}
	if !models.ParseIntent(*intent).Valid() {
		return apperrors.Invalid("unknown intent %q", *intent)
	}
	return nil
}

func actor(changedBy string) string {
	if strings.TrimSpace(changedBy) == "" {
		return DefaultActor
	}
	return changedBy
}

func snapshot(ex *models.FewShotExample) types.NullJSONText {
	data, err := json.Marshal(ex)
	if err != nil {
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: types.JSONText(data), Valid: true}
}
