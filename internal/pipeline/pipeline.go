// Package pipeline runs candidates through evaluation: identity resolution at
// intake, the evaluator, policy enforcement and persistence with history.
// Runs are strictly sequential; a Pipeline serializes all batches it executes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/database"
	"github.com/TobiSchelling/CandidateReviewer/internal/evaluator"
	"github.com/TobiSchelling/CandidateReviewer/internal/filters"
	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/policy"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

// Reporter renders a job's output artifacts. It runs once after each batch.
type Reporter interface {
	Render(ctx context.Context, jobKey string) error
}

// RunLog persists the audit trail of evaluation runs. *database.DB implements it.
type RunLog interface {
	EnsureJob(key string) error
	InsertRun(run *database.Run) error
}

// Pipeline wires the evaluation components together.
type Pipeline struct {
	mu sync.Mutex

	docs     *store.Store
	filters  *filters.Store
	runs     RunLog
	eval     evaluator.Evaluator
	enforcer *policy.Enforcer
	reporter Reporter
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a pipeline. reporter may be nil.
func New(docs *store.Store, filterStore *filters.Store, runs RunLog, eval evaluator.Evaluator, reporter Reporter, logger *zap.Logger) *Pipeline {
	logger = logging.OrNop(logger)
	return &Pipeline{
		docs:     docs,
		filters:  filterStore,
		runs:     runs,
		eval:     eval,
		enforcer: policy.NewEnforcer(logger),
		reporter: reporter,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetupJob creates or updates a job context.
func (p *Pipeline) SetupJob(job model.JobContext) error {
	if job.Key == "" {
		return errors.New("job key is required")
	}
	if err := p.validate.Struct(job); err != nil {
		return fmt.Errorf("invalid job %s: %w", job.Key, err)
	}
	if err := p.docs.SaveJob(job); err != nil {
		return fmt.Errorf("saving job: %w", err)
	}
	if err := p.runs.EnsureJob(job.Key); err != nil {
		return err
	}
	p.logger.Info("job saved", zap.String(logging.FieldJob, job.Key))
	return nil
}

// Reject flags a candidate as permanently rejected. Rejected candidates are
// skipped by batch runs unless named explicitly.
func (p *Pipeline) Reject(ctx context.Context, jobKey, key, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.docs.LoadIdentity(jobKey, key)
	if err != nil {
		return err
	}
	at := p.now().UTC()
	id.Rejected = true
	id.RejectionReason = reason
	id.RejectedAt = &at
	if err := p.docs.SaveIdentity(jobKey, *id); err != nil {
		return fmt.Errorf("saving rejection: %w", err)
	}
	logging.ForCandidate(p.logger, jobKey, key).Info("candidate rejected", zap.String("reason", reason))
	return nil
}

func (p *Pipeline) render(ctx context.Context, jobKey string) error {
	if p.reporter == nil {
		return nil
	}
	if err := p.reporter.Render(ctx, jobKey); err != nil {
		p.logger.Error("rendering reports failed", zap.String(logging.FieldJob, jobKey), zap.Error(err))
		return fmt.Errorf("rendering reports: %w", err)
	}
	return nil
}
