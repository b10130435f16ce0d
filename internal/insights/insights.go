// Package insights records reviewer feedback and periodically distils it into
// guidance text that is fed back into future evaluations.
package insights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/database"
	"github.com/TobiSchelling/CandidateReviewer/internal/evaluator"
	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

// DefaultThreshold is the number of new feedback entries that triggers regeneration.
const DefaultThreshold = 2

// GenerationError reports a failed regeneration. The feedback counter is left
// untouched so the next attempt retries the same batch.
type GenerationError struct {
	JobKey string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating insights for job %s: %v", e.JobKey, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// FeedbackLog is the relational storage the engine needs. *database.DB implements it.
type FeedbackLog interface {
	GetJob(key string) (*database.JobState, error)
	InsertFeedback(fb model.HumanFeedback) (int, error)
	UnconsumedFeedback(jobKey string) ([]model.HumanFeedback, error)
	ConsumeFeedback(jobKey string, ids []string, at time.Time) error
	GetEffectiveness(jobKey string) (*model.Effectiveness, error)
}

// Engine owns the feedback counter and the insights document of every job.
type Engine struct {
	Threshold int

	// mu serializes regeneration so one threshold crossing sends its batch
	// to the evaluator once.
	mu sync.Mutex

	log      FeedbackLog
	docs     *store.Store
	eval     evaluator.Evaluator
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates an engine. A threshold below 1 falls back to DefaultThreshold.
func NewEngine(log FeedbackLog, docs *store.Store, eval evaluator.Evaluator, threshold int, logger *zap.Logger) *Engine {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Engine{
		Threshold: threshold,
		log:       log,
		docs:      docs,
		eval:      eval,
		validate:  validator.New(),
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// RecordFeedback validates and stores fb, returning whether the job has
// accumulated enough feedback to regenerate its insights.
func (e *Engine) RecordFeedback(ctx context.Context, jobKey string, fb model.HumanFeedback) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fb.JobKey = jobKey
	if !e.docs.CandidateExists(jobKey, fb.CandidateKey) {
		return false, fmt.Errorf("%w: %s", store.ErrCandidateNotFound, fb.CandidateKey)
	}
	if err := e.validate.Struct(fb); err != nil {
		return false, fmt.Errorf("invalid feedback: %w", err)
	}

	if fb.AIRecommendation == "" {
		current, err := e.docs.LoadEvaluation(jobKey, fb.CandidateKey)
		if err != nil {
			return false, fmt.Errorf("loading current evaluation: %w", err)
		}
		if current != nil {
			score := current.Score
			fb.AIRecommendation = current.Recommendation
			fb.AIScore = &score
		}
	}
	fb.ID = uuid.NewString()
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = e.now().UTC()
	}

	count, err := e.log.InsertFeedback(fb)
	if err != nil {
		return false, fmt.Errorf("recording feedback: %w", err)
	}
	e.logger.Info("feedback recorded",
		zap.String(logging.FieldJob, jobKey),
		zap.String(logging.FieldCandidate, fb.CandidateKey),
		zap.String("recommendation", string(fb.Recommendation)),
		zap.Int("since_regeneration", count))
	return count >= e.Threshold, nil
}

// MaybeRegenerate regenerates the job's insights when the feedback counter has
// reached the threshold. It returns nil insights when nothing was due.
func (e *Engine) MaybeRegenerate(ctx context.Context, jobKey string) (*model.JobInsights, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.log.GetJob(jobKey)
	if err != nil {
		return nil, err
	}
	if state.FeedbackSinceRegen < e.Threshold {
		return nil, nil
	}
	return e.regenerate(ctx, jobKey)
}

// Regenerate regenerates insights from any unconsumed feedback regardless of
// the threshold. It returns nil insights when there is no new feedback.
func (e *Engine) Regenerate(ctx context.Context, jobKey string) (*model.JobInsights, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regenerate(ctx, jobKey)
}

// regenerate must be called with mu held.
func (e *Engine) regenerate(ctx context.Context, jobKey string) (*model.JobInsights, error) {
	batch, err := e.log.UnconsumedFeedback(jobKey)
	if err != nil {
		return nil, fmt.Errorf("loading feedback batch: %w", err)
	}
	if len(batch) == 0 {
		return nil, nil
	}
	job, err := e.docs.LoadJob(jobKey)
	if err != nil {
		return nil, err
	}
	prior, err := e.docs.LoadInsights(jobKey)
	if err != nil {
		return nil, fmt.Errorf("loading insights: %w", err)
	}
	priorText, priorCount := "", 0
	if prior != nil {
		priorText, priorCount = prior.GeneratedInsights, prior.FeedbackCount
	}

	text, err := e.eval.GenerateInsights(ctx, *job, batch, priorText)
	if err != nil {
		e.logger.Warn("insight generation failed",
			zap.String(logging.FieldJob, jobKey), zap.Int("batch", len(batch)), zap.Error(err))
		return nil, &GenerationError{JobKey: jobKey, Err: err}
	}

	metrics, err := e.log.GetEffectiveness(jobKey)
	if err != nil {
		return nil, fmt.Errorf("computing metrics: %w", err)
	}
	now := e.now().UTC()
	ins := model.JobInsights{
		GeneratedInsights: text,
		FeedbackCount:     priorCount + len(batch),
		LastUpdated:       now,
		Metrics:           metrics,
	}
	if err := e.docs.SaveInsights(jobKey, ins); err != nil {
		return nil, fmt.Errorf("saving insights: %w", err)
	}

	ids := make([]string, len(batch))
	for i, fb := range batch {
		ids[i] = fb.ID
	}
	if err := e.log.ConsumeFeedback(jobKey, ids, now); err != nil {
		return nil, fmt.Errorf("resetting feedback counter: %w", err)
	}

	e.logger.Info("insights regenerated",
		zap.String(logging.FieldJob, jobKey),
		zap.Int("batch", len(batch)),
		zap.Int("feedback_count", ins.FeedbackCount))
	return &ins, nil
}

// Metrics returns the agreement statistics for a job.
func (e *Engine) Metrics(ctx context.Context, jobKey string) (*model.Effectiveness, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.log.GetEffectiveness(jobKey)
}

// IsGenerationError reports whether err came from a failed regeneration.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
