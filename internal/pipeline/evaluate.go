package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/database"
	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

// Outcome is the result of evaluating one candidate within a batch.
type Outcome struct {
	CandidateKey   string
	HadPrevious    bool
	OldScore       int
	NewScore       int
	Delta          int
	Recommendation model.Recommendation
	Err            error
}

// Report summarizes a batch run.
type Report struct {
	RunID     string
	JobKey    string
	Kind      database.RunKind
	Results   []Outcome
	Evaluated int
	Failed    int
	// RenderErr is set when the batch succeeded but output rendering did not.
	RenderErr error
}

func (r *Report) add(o Outcome) {
	r.Results = append(r.Results, o)
	if o.Err != nil {
		r.Failed++
	} else {
		r.Evaluated++
	}
}

// batchContext is what every candidate in a run is evaluated against.
type batchContext struct {
	job        *model.JobContext
	set        *model.FilterSet
	insights   string
	identities []model.CandidateIdentity
}

// ReEvaluate re-runs evaluation for a job's candidates with the current
// filters and insights. With no keys, every candidate is selected except
// rejected ones and those currently at NO or STRONG_NO; named candidates are
// always processed. Candidates run in descending order of current score,
// ties broken by key, never-evaluated candidates last. A failing candidate is
// recorded in the report and the batch continues.
func (p *Pipeline) ReEvaluate(ctx context.Context, jobKey string, candidateKeys []string) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bc, err := p.loadBatchContext(jobKey)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.NewString(), JobKey: jobKey, Kind: database.RunReEvaluate}
	selected, err := p.selectForReEvaluation(jobKey, candidateKeys, bc.identities, report)
	if err != nil {
		return nil, err
	}
	return p.runBatch(ctx, bc, selected, report)
}

// EvaluatePending evaluates every candidate of a job that has no evaluation
// yet, in key order. Rejected candidates are skipped.
func (p *Pipeline) EvaluatePending(ctx context.Context, jobKey string) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bc, err := p.loadBatchContext(jobKey)
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, id := range bc.identities {
		if id.Rejected {
			continue
		}
		ev, err := p.docs.LoadEvaluation(jobKey, id.CandidateKey)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			pending = append(pending, id.CandidateKey)
		}
	}

	report := &Report{RunID: uuid.NewString(), JobKey: jobKey, Kind: database.RunInitial}
	return p.runBatch(ctx, bc, pending, report)
}

// loadBatchContext reads the job, its filters and insights. A filter document
// that fails validation aborts the run before any candidate is touched.
func (p *Pipeline) loadBatchContext(jobKey string) (*batchContext, error) {
	job, err := p.docs.LoadJob(jobKey)
	if err != nil {
		return nil, err
	}
	set, err := p.filters.Load(jobKey)
	if err != nil {
		return nil, fmt.Errorf("loading filters: %w", err)
	}
	ins, err := p.docs.LoadInsights(jobKey)
	if err != nil {
		return nil, fmt.Errorf("loading insights: %w", err)
	}
	ids, err := p.docs.LoadIdentities(jobKey)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}

	bc := &batchContext{job: job, set: set, identities: ids}
	if ins != nil {
		bc.insights = ins.GeneratedInsights
	}
	return bc, nil
}

type candidateRank struct {
	key       string
	evaluated bool
	score     int
}

func (p *Pipeline) selectForReEvaluation(jobKey string, named []string, ids []model.CandidateIdentity, report *Report) ([]string, error) {
	byKey := make(map[string]model.CandidateIdentity, len(ids))
	for _, id := range ids {
		byKey[id.CandidateKey] = id
	}

	var ranks []candidateRank
	if len(named) > 0 {
		seen := map[string]bool{}
		for _, key := range named {
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := byKey[key]; !ok {
				report.add(Outcome{CandidateKey: key, Err: fmt.Errorf("%w: %s", store.ErrCandidateNotFound, key)})
				continue
			}
			r, _, err := p.rank(jobKey, key)
			if err != nil {
				return nil, err
			}
			ranks = append(ranks, r)
		}
	} else {
		for _, id := range ids {
			if id.Rejected {
				continue
			}
			r, rec, err := p.rank(jobKey, id.CandidateKey)
			if err != nil {
				return nil, err
			}
			if r.evaluated && rec.Negative() {
				continue
			}
			ranks = append(ranks, r)
		}
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.evaluated != b.evaluated {
			return a.evaluated
		}
		if a.score != b.score {
			return a.score > b.score
		}
		return a.key < b.key
	})

	keys := make([]string, len(ranks))
	for i, r := range ranks {
		keys[i] = r.key
	}
	return keys, nil
}

func (p *Pipeline) rank(jobKey, key string) (candidateRank, model.Recommendation, error) {
	ev, err := p.docs.LoadEvaluation(jobKey, key)
	if err != nil {
		return candidateRank{}, "", fmt.Errorf("loading evaluation for %s: %w", key, err)
	}
	if ev == nil {
		return candidateRank{key: key}, "", nil
	}
	return candidateRank{key: key, evaluated: true, score: ev.Score}, ev.Recommendation, nil
}

func (p *Pipeline) runBatch(ctx context.Context, bc *batchContext, keys []string, report *Report) (*Report, error) {
	started := p.now().UTC()
	log := p.logger.With(zap.String(logging.FieldJob, report.JobKey), zap.String("run_id", report.RunID))
	log.Info("evaluation run started", zap.String("kind", string(report.Kind)), zap.Int("candidates", len(keys)))

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			report.add(Outcome{CandidateKey: key, Err: err})
			continue
		}
		log.Info("evaluating candidate", zap.String(logging.FieldCandidate, key),
			zap.Int("position", i+1), zap.Int("of", len(keys)))
		o := p.evaluateOne(ctx, bc, key)
		if o.Err != nil {
			log.Warn("candidate evaluation failed", zap.String(logging.FieldCandidate, key), zap.Error(o.Err))
		}
		report.add(o)
	}

	finished := p.now().UTC()
	if err := p.runs.InsertRun(toRun(report, started, finished)); err != nil {
		return report, fmt.Errorf("recording run: %w", err)
	}
	log.Info("evaluation run finished",
		zap.Int("evaluated", report.Evaluated), zap.Int("failed", report.Failed),
		zap.Duration("elapsed", finished.Sub(started)))

	if len(keys) > 0 {
		report.RenderErr = p.render(ctx, report.JobKey)
	}
	return report, nil
}

// evaluateOne regenerates the candidate's duplicate warnings, then runs the
// evaluator and the enforcer on fresh output and supersedes the stored evaluation.
func (p *Pipeline) evaluateOne(ctx context.Context, bc *batchContext, key string) Outcome {
	o := Outcome{CandidateKey: key}
	jobKey := bc.job.Key

	if err := p.refreshWarnings(jobKey, key, bc.identities); err != nil {
		o.Err = fmt.Errorf("refreshing duplicate warnings: %w", err)
		return o
	}

	docs, err := p.docs.LoadDocuments(jobKey, key)
	if err != nil {
		o.Err = fmt.Errorf("loading documents: %w", err)
		return o
	}

	raw, err := p.eval.Evaluate(ctx, *bc.job, docs.Text(), bc.set.Enabled(), bc.insights)
	if err != nil {
		o.Err = err
		return o
	}

	ev := p.enforcer.Enforce(*raw, bc.set, p.now().UTC())
	sup, err := p.docs.SupersedeEvaluation(jobKey, key, *raw, ev)
	if err != nil {
		o.Err = fmt.Errorf("saving evaluation: %w", err)
		return o
	}

	o.NewScore = ev.Score
	o.Recommendation = ev.Recommendation
	if sup.Previous != nil {
		o.HadPrevious = true
		o.OldScore = sup.Previous.Score
		o.Delta = sup.Delta
	}
	return o
}

func toRun(r *Report, started, finished time.Time) *database.Run {
	run := &database.Run{
		ID:         r.RunID,
		JobKey:     r.JobKey,
		Kind:       r.Kind,
		StartedAt:  started,
		FinishedAt: &finished,
		Evaluated:  r.Evaluated,
		Failed:     r.Failed,
	}
	for _, o := range r.Results {
		res := database.RunResult{CandidateKey: o.CandidateKey}
		if o.Err != nil {
			res.Error = o.Err.Error()
		} else {
			newScore, delta := o.NewScore, o.Delta
			res.NewScore = &newScore
			if o.HadPrevious {
				oldScore := o.OldScore
				res.OldScore = &oldScore
				res.Delta = &delta
			}
		}
		run.Results = append(run.Results, res)
	}
	return run
}
