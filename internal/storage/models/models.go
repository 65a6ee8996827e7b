package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Intent is the coarse category that selects an answering strategy.
type Intent string

const (
	IntentRAGSearch Intent = "rag_search"
	IntentSQLQuery  Intent = "sql_query"
	IntentGeneral   Intent = "general"
	IntentUnknown   Intent = "unknown"
)

func AllIntents() []Intent {
	return []Intent{IntentRAGSearch, IntentSQLQuery, IntentGeneral}
}

// ParseIntent never fails: anything outside the closed set is IntentUnknown.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentRAGSearch, IntentSQLQuery, IntentGeneral:
		return Intent(s)
	default:
		return IntentUnknown
	}
}

func (i Intent) Valid() bool {
	return i != IntentUnknown && ParseIntent(string(i)) == i
}

func (i Intent) String() string {
	return string(i)
}

type QueryLog struct {
	ID             int64     `db:"id" json:"id"`
	QueryText      string    `db:"query_text" json:"query_text"`
	DetectedIntent *string   `db:"detected_intent" json:"detected_intent"`
	Response       *string   `db:"response" json:"response"`
	IsPromoted     bool      `db:"is_promoted" json:"is_promoted"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (q *QueryLog) Intent() Intent {
	if q.DetectedIntent == nil {
		return IntentUnknown
	}
	return ParseIntent(*q.DetectedIntent)
}

type FewShotExample struct {
	ID               int64     `db:"id" json:"id"`
	SourceQueryLogID *int64    `db:"source_query_log_id" json:"source_query_log_id"`
	IntentType       *string   `db:"intent_type" json:"intent_type"`
	UserQuery        string    `db:"user_query" json:"user_query"`
	ExpectedResponse *string   `db:"expected_response" json:"expected_response"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

func (f *FewShotExample) Intent() Intent {
	if f.IntentType == nil {
		return IntentUnknown
	}
	return ParseIntent(*f.IntentType)
}

type AuditAction string

const (
	AuditInsert AuditAction = "INSERT"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// FewShotAudit is append-only. FewShotID is deliberately not a foreign key
// so that history outlives the example it describes.
type FewShotAudit struct {
	ID        int64              `db:"id" json:"id"`
	FewShotID int64              `db:"few_shot_id" json:"few_shot_id"`
	Action    AuditAction        `db:"action" json:"action"`
	OldValue  types.NullJSONText `db:"old_value" json:"old_value"`
	NewValue  types.NullJSONText `db:"new_value" json:"new_value"`
	ChangedBy string             `db:"changed_by" json:"changed_by"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

type IntentKeywordRule struct {
	ID          int64     `db:"id" json:"id"`
	Keyword     string    `db:"keyword" json:"keyword"`
	IntentType  string    `db:"intent_type" json:"intent_type"`
	Priority    int       `db:"priority" json:"priority"`
	Description *string   `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (r *IntentKeywordRule) Intent() Intent {
	return ParseIntent(r.IntentType)
}

type Applicant struct {
	ID         int64   `db:"id" json:"id"`
	Reason     *string `db:"reason" json:"reason"`
	Experience *string `db:"experience" json:"experience"`
	Skill      *string `db:"skill" json:"skill"`
}

type Document struct {
	ID         string    `db:"id" json:"id"`
	Filename   string    `db:"filename" json:"filename"`
	FileSize   int64     `db:"file_size" json:"file_size"`
	TextLength int       `db:"text_length" json:"text_length"`
	ChunkCount int       `db:"chunk_count" json:"chunk_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocID      string    `db:"doc_id" json:"doc_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"text" json:"text"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type IntentCount struct {
	Intent string `db:"intent" json:"intent"`
	Count  int    `db:"count" json:"count"`
}

type QueryLogStats struct {
	Total          int           `json:"total_queries"`
	Promoted       int           `json:"converted_to_fewshot"`
	PromotionRate  float64       `json:"conversion_rate"`
	ByIntent       []IntentCount `json:"by_intent"`
}

type QueryLogFilter struct {
	Intent       string
	PromotedOnly bool
	Search       string
	Offset       int
	Limit        int
}

type FewShotFilter struct {
	Intent string
	Active *bool
}

func StringPtr(s string) *string {
	return &s
}

func Int64Ptr(n int64) *int64 {
	return &n
}
