package sqlagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/llm"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/pkg/logger"
	"github.com/query-router/backend/pkg/utils"
)

const (
	NoResultsAnswer = "조회 결과가 없습니다."

	fieldLimit   = 100
	summaryLimit = 500
)

const schemaDescription = `테이블: applicant_info
컬럼:
- id (BIGINT): 지원자 ID
- reason (VARCHAR): 지원 동기
- experience (VARCHAR): 경력 및 경험
- skill (VARCHAR): 기술 스택 및 역량`

// ApplicantReader is the only data access the agent has. *sqlstore.Store
// implements it.
type ApplicantReader interface {
	ListApplicants(ctx context.Context, offset, limit int) ([]models.Applicant, error)
	CountApplicants(ctx context.Context) (int, error)
	GetApplicant(ctx context.Context, id int64) (*models.Applicant, error)
}

type ExampleSource interface {
	ActiveExamples(ctx context.Context, intent models.Intent) []models.FewShotExample
}

type Row map[string]any

type Result struct {
	Answer    string `json:"answer"`
	Statement string `json:"sql"`
	Shape     string `json:"shape"`
	Rows      []Row  `json:"results"`
	RowCount  int    `json:"count"`
	Error     string `json:"error,omitempty"`
}

type Agent struct {
	gen      llm.Generator
	reader   ApplicantReader
	examples ExampleSource
}

func NewAgent(gen llm.Generator, reader ApplicantReader, examples ExampleSource) *Agent {
	return &Agent{gen: gen, reader: reader, examples: examples}
}

// Run translates, executes and narrates. Translation and execution failures
// come back inside Result with Error set; only a failed narration call is
// returned as an error.
func (a *Agent) Run(ctx context.Context, query string) (*Result, error) {
	var examples []models.FewShotExample
	if a.examples != nil {
		examples = a.examples.ActiveExamples(ctx, models.IntentSQLQuery)
	}

	raw, err := a.gen.Generate(ctx, BuildTranslationPrompt(query, examples))
	if err != nil {
		logger.Warn("Statement generation failed", zap.Error(err))
		return failed("쿼리 생성 중 오류가 발생했습니다", "", ShapeUnrecognized{}, err), nil
	}

	statement := NormalizeStatement(raw)
	shape := RecognizeShape(statement)
	metrics.QueryShapes.WithLabelValues(shape.Name()).Inc()

	logger.Debug("Statement recognized",
		zap.String("statement", statement),
		zap.String("shape", shape.Name()),
	)

	rows, err := a.execute(ctx, shape)
	if err != nil {
		logger.Warn("Bounded read failed", zap.String("shape", shape.Name()), zap.Error(err))
		return failed("쿼리 실행 중 오류가 발생했습니다", statement, shape, err), nil
	}

	res := &Result{
		Statement: statement,
		Shape:     shape.Name(),
		Rows:      rows,
		RowCount:  len(rows),
	}

	if len(rows) == 0 {
		res.Answer = NoResultsAnswer
		return res, nil
	}

	summary, err := SummarizeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize rows: %w", err)
	}

	answer, err := a.gen.Generate(ctx, BuildInterpretationPrompt(query, summary, examples))
	if err != nil {
		return nil, fmt.Errorf("result interpretation: %w", err)
	}
	res.Answer = answer
	return res, nil
}

func failed(prefix, statement string, shape Shape, err error) *Result {
	return &Result{
		Answer:    fmt.Sprintf("%s: %v", prefix, err),
		Statement: statement,
		Shape:     shape.Name(),
		Rows:      []Row{},
		Error:     err.Error(),
	}
}

// execute maps a shape to its bounded read. Unrecognized shapes never touch
// the reader.
func (a *Agent) execute(ctx context.Context, shape Shape) ([]Row, error) {
	switch s := shape.(type) {
	case ShapeScan:
		applicants, err := a.reader.ListApplicants(ctx, 0, s.Limit)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, len(applicants))
		for i, app := range applicants {
			rows[i] = applicantRow(app, fieldLimit)
		}
		return rows, nil

	case ShapeCount:
		n, err := a.reader.CountApplicants(ctx)
		if err != nil {
			return nil, err
		}
		return []Row{{"count": n}}, nil

	case ShapeLookup:
		app, err := a.reader.GetApplicant(ctx, s.ID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return []Row{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []Row{applicantRow(*app, -1)}, nil

	default:
		return []Row{}, nil
	}
}

// applicantRow truncates text fields to limit runes; a negative limit keeps
// them whole.
func applicantRow(app models.Applicant, limit int) Row {
	field := func(v *string) any {
		if v == nil {
			return nil
		}
		return utils.Truncate(*v, limit)
	}
	return Row{
		"id":         app.ID,
		"reason":     field(app.Reason),
		"experience": field(app.Experience),
		"skill":      field(app.Skill),
	}
}

// SummarizeRows renders rows as JSON clipped to 500 characters.
func SummarizeRows(rows []Row) (string, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return utils.Clip(string(data), summaryLimit), nil
}

func BuildTranslationPrompt(query string, examples []models.FewShotExample) string {
	var b strings.Builder
	b.WriteString("다음 데이터베이스 스키마를 참고하여 자연어 질의를 SQL로 변환해주세요.\n\n")
	b.WriteString(schemaDescription)
	b.WriteString("\n\n")
	if block := fewshot.FormatExamples(examples); block != "" {
		b.WriteString(block)
	}
	fmt.Fprintf(&b, "자연어 질의: %s\n\nSQL 쿼리만 작성하세요 (SELECT 문):", query)
	return b.String()
}

func BuildInterpretationPrompt(query, summary string, examples []models.FewShotExample) string {
	var b strings.Builder
	if block := fewshot.FormatExamples(examples); block != "" {
		b.WriteString(block)
	}
	b.WriteString("다음 데이터베이스 조회 결과를 사용자 질문에 맞게 자연어로 설명해주세요.\n\n")
	fmt.Fprintf(&b, "질문: %s\n\n조회 결과:\n%s\n\n자연어 답변:", query, summary)
	return b.String()
}
