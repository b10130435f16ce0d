// Package evaluator is the boundary to the AI service that scores candidates
// and writes job insights. Transport concerns (timeouts, provider choice)
// live in the llm package; this package owns prompts and response parsing.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/llm"
	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

// Evaluator scores candidate text and summarizes feedback into insights.
type Evaluator interface {
	Evaluate(ctx context.Context, job model.JobContext, candidateText string, filters []model.ScreeningFilter, insights string) (*model.RawEvaluation, error)
	GenerateInsights(ctx context.Context, job model.JobContext, batch []model.HumanFeedback, prior string) (string, error)
}

var (
	// ErrUnavailable matches every UnavailableError.
	ErrUnavailable = errors.New("evaluator unavailable")
	// ErrMalformedResponse is returned when the model answer has no usable JSON.
	ErrMalformedResponse = errors.New("malformed evaluator response")
)

// UnavailableError wraps a transport or service failure.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("evaluator unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

const (
	defaultMaxTokens  = 2048
	maxCandidateChars = 24000
)

// LLM implements Evaluator on top of an llm.Provider.
type LLM struct {
	provider  llm.Provider
	maxTokens int
	logger    *zap.Logger
}

// New creates an LLM-backed evaluator. provider may be nil, in which case
// every call fails with an UnavailableError.
func New(provider llm.Provider, maxTokens int, logger *zap.Logger) *LLM {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	logger = logging.OrNop(logger)
	if named, ok := provider.(llm.Named); ok {
		logger = logger.With(logging.ModelFields(named.Name(), named.ModelName())...)
	}
	return &LLM{provider: provider, maxTokens: maxTokens, logger: logger}
}

// Evaluate asks the model for a raw evaluation of one candidate.
func (e *LLM) Evaluate(ctx context.Context, job model.JobContext, candidateText string, filters []model.ScreeningFilter, insights string) (*model.RawEvaluation, error) {
	if e.provider == nil {
		return nil, &UnavailableError{Op: "evaluate", Err: llm.ErrNoProvider}
	}

	if r := []rune(candidateText); len(r) > maxCandidateChars {
		candidateText = string(r[:maxCandidateChars]) + "..."
	}
	prompt := buildEvaluationPrompt(job, candidateText, filters, insights)

	start := time.Now()
	text, err := e.provider.Generate(ctx, prompt, e.maxTokens)
	if err != nil {
		return nil, &UnavailableError{Op: "evaluate", Err: err}
	}
	e.logger.Debug("evaluation response",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("response", logging.TruncateForLog(text, 200)))

	raw, err := parseEvaluation(text, e.logger)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// GenerateInsights asks the model to turn a feedback batch into guidance text.
func (e *LLM) GenerateInsights(ctx context.Context, job model.JobContext, batch []model.HumanFeedback, prior string) (string, error) {
	if e.provider == nil {
		return "", &UnavailableError{Op: "generate insights", Err: llm.ErrNoProvider}
	}

	prompt, err := buildInsightsPrompt(job, batch, prior)
	if err != nil {
		return "", err
	}

	text, err := e.provider.Generate(ctx, prompt, e.maxTokens)
	if err != nil {
		return "", &UnavailableError{Op: "generate insights", Err: err}
	}
	return parseInsights(text)
}
