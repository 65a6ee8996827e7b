// Package analysis produces model-written summaries, keywords and interview
// questions for one stored applicant.
package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/query-router/backend/internal/llm"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/pkg/logger"
)

const (
	MaxQuestions = 10
	missingField = "정보 없음"
)

var numberPrefix = regexp.MustCompile(`^\d+[.)]\s*`)

// ApplicantReader is satisfied by *sqlstore.Store.
type ApplicantReader interface {
	GetApplicant(ctx context.Context, id int64) (*models.Applicant, error)
}

type Analyzer struct {
	gen        llm.Generator
	applicants ApplicantReader
}

func New(gen llm.Generator, applicants ApplicantReader) *Analyzer {
	return &Analyzer{gen: gen, applicants: applicants}
}

type Summary struct {
	ApplicantID int64  `json:"applicant_id"`
	Summary     string `json:"summary"`
}

type Keywords struct {
	ApplicantID int64    `json:"applicant_id"`
	Keywords    []string `json:"keywords"`
}

type InterviewQuestions struct {
	ApplicantID int64    `json:"applicant_id"`
	Questions   []string `json:"questions"`
}

func (a *Analyzer) Summarize(ctx context.Context, id int64) (*Summary, error) {
	raw, err := a.generate(ctx, id, "summary", BuildSummaryPrompt)
	if err != nil {
		return nil, err
	}
	return &Summary{ApplicantID: id, Summary: strings.TrimSpace(raw)}, nil
}

func (a *Analyzer) ExtractKeywords(ctx context.Context, id int64) (*Keywords, error) {
	raw, err := a.generate(ctx, id, "keywords", BuildKeywordsPrompt)
	if err != nil {
		return nil, err
	}
	return &Keywords{ApplicantID: id, Keywords: ParseKeywords(raw)}, nil
}

func (a *Analyzer) GenerateInterviewQuestions(ctx context.Context, id int64) (*InterviewQuestions, error) {
	raw, err := a.generate(ctx, id, "interview_questions", BuildQuestionsPrompt)
	if err != nil {
		return nil, err
	}
	return &InterviewQuestions{ApplicantID: id, Questions: ParseQuestions(raw)}, nil
}

func (a *Analyzer) generate(ctx context.Context, id int64, kind string, prompt func(*models.Applicant) string) (string, error) {
	applicant, err := a.applicants.GetApplicant(ctx, id)
	if err != nil {
		return "", err
	}

	raw, err := a.gen.Generate(ctx, prompt(applicant))
	if err != nil {
		return "", fmt.Errorf("applicant %s: %w", kind, err)
	}

	logger.Debug("Applicant analysis generated",
		zap.Int64("applicant_id", id),
		zap.String("kind", kind),
		zap.Int("length", len([]rune(raw))),
	)
	return raw, nil
}

func profile(a *models.Applicant) string {
	return fmt.Sprintf("지원 동기:\n%s\n\n경력 및 경험:\n%s\n\n기술 스택 및 역량:\n%s\n\n",
		orMissing(a.Reason), orMissing(a.Experience), orMissing(a.Skill))
}

func orMissing(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return missingField
	}
	return *s
}

func BuildSummaryPrompt(a *models.Applicant) string {
	return "다음 지원자의 정보를 3-5개의 핵심 문장으로 요약해주세요.\n" +
		"전문적이고 간결하게 작성해주세요.\n\n" +
		profile(a) + "요약:"
}

func BuildKeywordsPrompt(a *models.Applicant) string {
	return "다음 지원자의 정보에서 중요한 키워드를 5-10개 추출해주세요.\n" +
		"키워드는 쉼표로 구분하여 나열해주세요.\n\n" +
		profile(a) + "키워드:"
}

func BuildQuestionsPrompt(a *models.Applicant) string {
	return fmt.Sprintf("다음 지원자의 정보를 읽고 면접관이 물어볼만한 예상 질문 %d개를 생성해주세요.\n", MaxQuestions) +
		"각 질문은 번호 없이 한 줄씩 작성하고, 각 줄은 줄바꿈으로 구분해주세요.\n\n" +
		profile(a) + "면접 예상 질문:"
}

// ParseKeywords splits a comma-separated reply. Blank entries are dropped.
func ParseKeywords(raw string) []string {
	keywords := []string{}
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// ParseQuestions keeps one question per non-empty line, strips "1." or "1)"
// numbering, skips lines that are only a number and returns at most
// MaxQuestions.
func ParseQuestions(raw string) []string {
	questions := []string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isDigits(line) {
			continue
		}
		if line = strings.TrimSpace(numberPrefix.ReplaceAllString(line, "")); line == "" {
			continue
		}
		questions = append(questions, line)
		if len(questions) == MaxQuestions {
			break
		}
	}
	return questions
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
