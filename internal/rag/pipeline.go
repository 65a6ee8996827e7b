package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/llm"
	"github.com/query-router/backend/internal/metrics"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/vector"
	"github.com/query-router/backend/pkg/logger"
	"github.com/query-router/backend/pkg/utils"
)

const (
	NoDocumentsAnswer = "관련 문서를 찾을 수 없습니다. 다른 질문을 시도해보세요."

	DefaultTopK     = 3
	sourceTextLimit = 200
)

// ExampleSource is satisfied by *fewshot.Store.
type ExampleSource interface {
	ActiveExamples(ctx context.Context, intent models.Intent) []models.FewShotExample
}

type Request struct {
	Query string
	// SearchQuery is sent to the index; Query is used when empty.
	SearchQuery string
	TopK        int
	// FewShotIntent selects the exemplars placed in the prompt. Empty means
	// none; IntentUnknown means every active example.
	FewShotIntent models.Intent
}

type Source struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type Result struct {
	Answer     string     `json:"answer"`
	Sources    []Source   `json:"sources"`
	HasSources bool       `json:"has_sources"`
	Relevance  *Relevance `json:"relevance,omitempty"`
}

type Pipeline struct {
	index    vector.Index
	gen      llm.Generator
	examples ExampleSource
}

func NewPipeline(index vector.Index, gen llm.Generator, examples ExampleSource) *Pipeline {
	return &Pipeline{index: index, gen: gen, examples: examples}
}

func (p *Pipeline) Answer(ctx context.Context, req Request) (*Result, error) {
	res, _, err := p.answer(ctx, req)
	return res, err
}

// AnswerWithAnalysis additionally asks the model how well the retrieved
// documents support the answer. No analysis is attached when nothing was
// retrieved.
func (p *Pipeline) AnswerWithAnalysis(ctx context.Context, req Request) (*Result, error) {
	res, hits, err := p.answer(ctx, req)
	if err != nil || len(hits) == 0 {
		return res, err
	}

	rel, err := p.analyze(ctx, req, hits, res.Answer)
	if err != nil {
		return nil, err
	}
	res.Relevance = rel
	return res, nil
}

func (p *Pipeline) answer(ctx context.Context, req Request) (*Result, []vector.SearchResult, error) {
	searchQuery := strings.TrimSpace(req.SearchQuery)
	if searchQuery == "" {
		searchQuery = req.Query
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	hits, err := p.index.Search(ctx, searchQuery, topK)
	if err != nil {
		return nil, nil, fmt.Errorf("document retrieval: %w", err)
	}
	metrics.RetrievalResultsCount.Observe(float64(len(hits)))

	if len(hits) == 0 {
		logger.Debug("No documents matched", zap.String("search_query", searchQuery))
		return &Result{Answer: NoDocumentsAnswer, Sources: []Source{}}, nil, nil
	}

	var examples []models.FewShotExample
	if req.FewShotIntent != "" && p.examples != nil {
		examples = p.examples.ActiveExamples(ctx, req.FewShotIntent)
	}

	answer, err := p.gen.Generate(ctx, BuildPrompt(req.Query, hits, examples))
	if err != nil {
		return nil, nil, fmt.Errorf("answer generation: %w", err)
	}

	logger.Debug("RAG answer generated",
		zap.Int("documents", len(hits)),
		zap.Int("examples", len(examples)),
	)

	return &Result{
		Answer:     answer,
		Sources:    toSources(hits),
		HasSources: true,
	}, hits, nil
}

// BuildContext numbers the hits in the order the index ranked them.
func BuildContext(hits []vector.SearchResult) string {
	blocks := make([]string, len(hits))
	for i, hit := range hits {
		blocks[i] = fmt.Sprintf("[문서 %d]\n%s\n", i+1, hit.Text)
	}
	return strings.Join(blocks, "\n")
}

func BuildPrompt(question string, hits []vector.SearchResult, examples []models.FewShotExample) string {
	var b strings.Builder
	if block := fewshot.FormatExamples(examples); block != "" {
		b.WriteString(block)
	}
	b.WriteString("다음 문서들을 참고하여 질문에 답변해주세요.\n")
	b.WriteString("문서에 없는 내용은 추측하지 말고, 문서 내용을 바탕으로만 답변하세요.\n\n")
	b.WriteString("참고 문서:\n")
	b.WriteString(BuildContext(hits))
	fmt.Fprintf(&b, "\n질문: %s\n\n답변:", question)
	return b.String()
}

func toSources(hits []vector.SearchResult) []Source {
	sources := make([]Source, len(hits))
	for i, hit := range hits {
		sources[i] = Source{
			Text:     utils.Truncate(hit.Text, sourceTextLimit),
			Score:    hit.Score,
			Metadata: hit.Metadata,
		}
	}
	return sources
}
