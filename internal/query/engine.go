package query

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/decomposer"
	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/llm"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/rag"
	"github.com/query-router/backend/internal/router"
	"github.com/query-router/backend/internal/sqlagent"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
	"github.com/query-router/backend/pkg/logger"
)

type State string

const (
	StateReceived   State = "RECEIVED"
	StateDecomposed State = "DECOMPOSED"
	StateClassified State = "CLASSIFIED"
	StateAnswered   State = "ANSWERED"
	StateLogged     State = "LOGGED"
	StateFailed     State = "FAILED"
)

type Decomposer interface {
	Decompose(ctx context.Context, query string) (*decomposer.Result, error)
}

type Classifier interface {
	Classify(ctx context.Context, query string) (router.Decision, error)
	KeywordDecision(ctx context.Context, query string) (router.Decision, bool)
	ClassifyWithLLM(ctx context.Context, query string, candidates []models.Intent) (models.Intent, error)
}

type Retriever interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Result, error)
	AnswerWithAnalysis(ctx context.Context, req rag.Request) (*rag.Result, error)
}

type Agent interface {
	Run(ctx context.Context, query string) (*sqlagent.Result, error)
}

type ExampleSource interface {
	ActiveExamples(ctx context.Context, intent models.Intent) []models.FewShotExample
}

// LogStore is satisfied by *sqlstore.Store.
type LogStore interface {
	WithTx(ctx context.Context, fn func(q *sqlstore.Queries) error) error
}

type Deps struct {
	Decomposer Decomposer
	Classifier Classifier
	RAG        Retriever
	Agent      Agent
	Generator  llm.Generator
	Examples   ExampleSource
	Logs       LogStore
}

type Options struct {
	TopK              int
	RelevanceAnalysis bool
}

// Engine walks each request through decomposition, classification and one
// answering branch, then writes exactly one query log.
type Engine struct {
	deps Deps
	opts Options
}

type Request struct {
	Query string
}

type Response struct {
	RequestID     string             `json:"request_id"`
	LogID         int64              `json:"log_id"`
	Query         string             `json:"query"`
	Answer        string             `json:"answer"`
	Intent        models.Intent      `json:"intent"`
	Tier          string             `json:"tier"`
	Sources       []rag.Source       `json:"sources,omitempty"`
	SQL           string             `json:"sql,omitempty"`
	Rows          []sqlagent.Row     `json:"results,omitempty"`
	RowCount      int                `json:"count,omitempty"`
	SQLError      string             `json:"sql_error,omitempty"`
	Decomposition *decomposer.Result `json:"decomposition,omitempty"`
	Relevance     *rag.Relevance     `json:"relevance,omitempty"`
	LatencyMS     int                `json:"latency_ms"`
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = rag.DefaultTopK
	}
	return &Engine{deps: deps, opts: opts}
}

// request carries one request through the state machine.
type request struct {
	id    string
	state State
	start time.Time
	log   *zap.Logger
}

func (r *request) enter(state State, fields ...zap.Field) {
	r.state = state
	r.log.Debug("State transition",
		append([]zap.Field{zap.String("state", string(state))}, fields...)...,
	)
}

func (r *request) fail(stage apperrors.Stage, err error) error {
	from := r.state
	r.state = StateFailed
	metrics.StageFailures.WithLabelValues(string(stage)).Inc()
	metrics.RequestsTotal.WithLabelValues("failed").Inc()
	r.log.Error("Request failed",
		zap.String("stage", string(stage)),
		zap.String("from_state", string(from)),
		zap.Duration("elapsed", time.Since(r.start)),
		zap.Error(err),
	)
	return apperrors.NewStageError(stage, err)
}

func (e *Engine) Route(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.Invalid("query is required")
	}

	r := &request{
		id:    uuid.New().String(),
		start: time.Now(),
	}
	r.log = logger.GetLogger().With(zap.String("request_id", r.id))
	r.enter(StateReceived, zap.Int("query_length", len([]rune(query))))

	decomposition, err := e.deps.Decomposer.Decompose(ctx, query)
	if err != nil {
		return nil, r.fail(apperrors.StageDecompose, err)
	}
	r.enter(StateDecomposed,
		zap.Bool("needs_db_query", decomposition.NeedsDBQuery),
		zap.Bool("fallback", decomposition.Fallback),
	)

	decision, err := e.deps.Classifier.Classify(ctx, query)
	if err != nil {
		return nil, r.fail(apperrors.StageClassify, err)
	}
	r.enter(StateClassified,
		zap.String("intent", decision.Intent.String()),
		zap.String("tier", decision.Tier),
	)

	resp := &Response{
		RequestID:     r.id,
		Query:         query,
		Intent:        decision.Intent,
		Tier:          decision.Tier,
		Decomposition: decomposition,
	}

	if err := e.answer(ctx, query, decision.Intent, decomposition, resp); err != nil {
		return nil, r.fail(apperrors.StageAnswer, err)
	}
	r.enter(StateAnswered, zap.Int("answer_length", len([]rune(resp.Answer))))

	logID, err := e.writeLog(ctx, query, resp)
	if err != nil {
		return nil, r.fail(apperrors.StageLog, err)
	}
	resp.LogID = logID
	resp.LatencyMS = int(time.Since(r.start).Milliseconds())
	r.enter(StateLogged, zap.Int64("log_id", logID))

	metrics.RequestsTotal.WithLabelValues("ok").Inc()
	metrics.RequestDuration.WithLabelValues(resp.Intent.String()).Observe(time.Since(r.start).Seconds())

	r.log.Info("Query routed",
		zap.String("intent", resp.Intent.String()),
		zap.String("tier", resp.Tier),
		zap.Int("latency_ms", resp.LatencyMS),
	)

	return resp, nil
}

// answer picks the branch. Document retrieval wins; a structured intent or a
// decomposition that asks for the database goes to the agent; anything else
// is answered directly. Intent is rewritten to the branch actually taken so
// the log reflects it.
func (e *Engine) answer(ctx context.Context, query string, intent models.Intent, d *decomposer.Result, resp *Response) error {
	switch {
	case intent == models.IntentRAGSearch:
		return e.answerWithDocuments(ctx, query, d, resp)
	case intent == models.IntentSQLQuery || d.NeedsDBQuery:
		resp.Intent = models.IntentSQLQuery
		return e.answerWithAgent(ctx, query, resp)
	default:
		resp.Intent = models.IntentGeneral
		return e.answerDirectly(ctx, query, resp)
	}
}

func (e *Engine) answerWithDocuments(ctx context.Context, query string, d *decomposer.Result, resp *Response) error {
	req := rag.Request{
		Query:         query,
		TopK:          e.opts.TopK,
		FewShotIntent: models.IntentRAGSearch,
	}
	if d.UnstructuredQuery != nil {
		req.SearchQuery = *d.UnstructuredQuery
	}

	answerFn := e.deps.RAG.Answer
	if e.opts.RelevanceAnalysis {
		answerFn = e.deps.RAG.AnswerWithAnalysis
	}

	res, err := answerFn(ctx, req)
	if err != nil {
		return err
	}
	resp.Answer = res.Answer
	resp.Sources = res.Sources
	resp.Relevance = res.Relevance
	return nil
}

func (e *Engine) answerWithAgent(ctx context.Context, query string, resp *Response) error {
	res, err := e.deps.Agent.Run(ctx, query)
	if err != nil {
		return err
	}
	resp.Answer = res.Answer
	resp.SQL = res.Statement
	resp.Rows = res.Rows
	resp.RowCount = res.RowCount
	resp.SQLError = res.Error
	return nil
}

func (e *Engine) answerDirectly(ctx context.Context, query string, resp *Response) error {
	prompt := query
	if e.deps.Examples != nil {
		if block := fewshot.FormatExamples(e.deps.Examples.ActiveExamples(ctx, models.IntentGeneral)); block != "" {
			prompt = block + "Question: " + query + "\nAnswer:"
		}
	}

	answer, err := e.deps.Generator.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	resp.Answer = answer
	return nil
}

func (e *Engine) writeLog(ctx context.Context, query string, resp *Response) (int64, error) {
	entry := &models.QueryLog{
		QueryText:      query,
		DetectedIntent: models.StringPtr(resp.Intent.String()),
		Response:       models.StringPtr(resp.Answer),
	}
	err := e.deps.Logs.WithTx(ctx, func(q *sqlstore.Queries) error {
		return q.CreateQueryLog(ctx, entry)
	})
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

// ClassifyResult reports both tiers side by side.
type ClassifyResult struct {
	Query           string          `json:"query"`
	IntentKeyword   models.Intent   `json:"intent_keyword"`
	IntentLLM       models.Intent   `json:"intent_llm"`
	Intent          models.Intent   `json:"intent"`
	Candidates      []models.Intent `json:"candidates"`
	MatchedKeywords []string        `json:"matched_keywords"`
}

// ClassifyOnly always calls the model, even when the keyword tier alone
// would have settled the intent.
func (e *Engine) ClassifyOnly(ctx context.Context, query string) (*ClassifyResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Invalid("query is required")
	}

	kw, settled := e.deps.Classifier.KeywordDecision(ctx, query)
	llmIntent, err := e.deps.Classifier.ClassifyWithLLM(ctx, query, kw.Candidates)
	if err != nil {
		return nil, apperrors.NewStageError(apperrors.StageClassify, err)
	}

	res := &ClassifyResult{
		Query:           query,
		IntentKeyword:   kw.Intent,
		IntentLLM:       llmIntent,
		Intent:          llmIntent,
		Candidates:      kw.Candidates,
		MatchedKeywords: kw.MatchedKeywords,
	}
	if settled {
		res.Intent = kw.Intent
	}
	return res, nil
}

func (e *Engine) DecomposeOnly(ctx context.Context, query string) (*decomposer.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Invalid("query is required")
	}

	res, err := e.deps.Decomposer.Decompose(ctx, query)
	if err != nil {
		return nil, apperrors.NewStageError(apperrors.StageDecompose, err)
	}
	return res, nil
}
