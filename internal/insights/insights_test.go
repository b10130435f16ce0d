package insights

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/CandidateReviewer/internal/database"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

type fakeEvaluator struct {
	text    string
	err     error
	calls   int
	batches [][]model.HumanFeedback
	priors  []string
}

func (f *fakeEvaluator) Evaluate(context.Context, model.JobContext, string, []model.ScreeningFilter, string) (*model.RawEvaluation, error) {
	return nil, errors.New("not used")
}

func (f *fakeEvaluator) GenerateInsights(_ context.Context, _ model.JobContext, batch []model.HumanFeedback, prior string) (string, error) {
	f.calls++
	f.batches = append(f.batches, batch)
	f.priors = append(f.priors, prior)
	return f.text, f.err
}

type fixture struct {
	engine *Engine
	db     *database.DB
	docs   *store.Store
	eval   *fakeEvaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs := store.New(dir)
	require.NoError(t, docs.SaveJob(model.JobContext{Key: "backend", Name: "Backend Engineer", Description: "Go services"}))
	for _, key := range []string{"jane_doe", "john_roe"} {
		require.NoError(t, docs.SaveIdentity("backend", model.CandidateIdentity{CandidateKey: key}))
	}

	eval := &fakeEvaluator{text: "Weight production Go higher."}
	e := NewEngine(db, docs, eval, 0, nil)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{engine: e, db: db, docs: docs, eval: eval}
}

func verdict(cand string, rec model.Recommendation) model.HumanFeedback {
	return model.HumanFeedback{CandidateKey: cand, Recommendation: rec, Notes: "reviewed"}
}

func TestThresholdTriggersSingleRegeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due, err := f.engine.RecordFeedback(ctx, "backend", verdict("jane_doe", model.No))
	require.NoError(t, err)
	assert.False(t, due)

	ins, err := f.engine.MaybeRegenerate(ctx, "backend")
	require.NoError(t, err)
	assert.Nil(t, ins)
	assert.Equal(t, 0, f.eval.calls)

	due, err = f.engine.RecordFeedback(ctx, "backend", verdict("john_roe", model.Yes))
	require.NoError(t, err)
	assert.True(t, due)

	ins, err = f.engine.MaybeRegenerate(ctx, "backend")
	require.NoError(t, err)
	require.NotNil(t, ins)
	assert.Equal(t, 1, f.eval.calls)
	assert.Len(t, f.eval.batches[0], 2)
	assert.Equal(t, "", f.eval.priors[0])
	assert.Equal(t, 2, ins.FeedbackCount)

	state, err := f.db.GetJob("backend")
	require.NoError(t, err)
	assert.Equal(t, 0, state.FeedbackSinceRegen)

	stored, err := f.docs.LoadInsights("backend")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Weight production Go higher.", stored.GeneratedInsights)
	require.NotNil(t, stored.Metrics)
	assert.Equal(t, 2, stored.Metrics.TotalFeedback)

	again, err := f.engine.MaybeRegenerate(ctx, "backend")
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, 1, f.eval.calls)
}

func TestFeedbackCountIsCumulativeAndPriorIsPassed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.engine.RecordFeedback(ctx, "backend", verdict("jane_doe", model.No))
		require.NoError(t, err)
	}
	_, err := f.engine.MaybeRegenerate(ctx, "backend")
	require.NoError(t, err)

	f.eval.text = "Second round."
	for i := 0; i < 2; i++ {
		_, err := f.engine.RecordFeedback(ctx, "backend", verdict("john_roe", model.Maybe))
		require.NoError(t, err)
	}
	ins, err := f.engine.MaybeRegenerate(ctx, "backend")
	require.NoError(t, err)
	require.NotNil(t, ins)

	assert.Equal(t, 4, ins.FeedbackCount)
	assert.Equal(t, "Second round.", ins.GeneratedInsights)
	assert.Equal(t, "Weight production Go higher.", f.eval.priors[1])
	assert.Len(t, f.eval.batches[1], 2)
}

func TestGenerationFailureKeepsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.eval.err = errors.New("service down")

	for _, c := range []string{"jane_doe", "john_roe"} {
		_, err := f.engine.RecordFeedback(ctx, "backend", verdict(c, model.No))
		require.NoError(t, err)
	}

	ins, err := f.engine.MaybeRegenerate(ctx, "backend")
	assert.Nil(t, ins)
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "backend", ge.JobKey)
	assert.True(t, IsGenerationError(err))

	state, err := f.db.GetJob("backend")
	require.NoError(t, err)
	assert.Equal(t, 2, state.FeedbackSinceRegen)

	stored, err := f.docs.LoadInsights("backend")
	require.NoError(t, err)
	assert.Nil(t, stored)

	f.eval.err = nil
	ins, err = f.engine.MaybeRegenerate(ctx, "backend")
	require.NoError(t, err)
	require.NotNil(t, ins)
	assert.Len(t, f.eval.batches[1], 2)
}

func TestRecordFeedbackCapturesCurrentEvaluation(t *testing.T) {
	f := newFixture(t)
	ev := model.Evaluation{Score: 81, Recommendation: model.Yes, Timestamp: time.Now().UTC()}
	_, err := f.docs.SupersedeEvaluation("backend", "jane_doe", model.RawEvaluation{Score: 81, Recommendation: model.Yes}, ev)
	require.NoError(t, err)

	_, err = f.engine.RecordFeedback(context.Background(), "backend", verdict("jane_doe", model.Yes))
	require.NoError(t, err)

	logged, err := f.db.FeedbackForCandidate("backend", "jane_doe")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, model.Yes, logged[0].AIRecommendation)
	require.NotNil(t, logged[0].AIScore)
	assert.Equal(t, 81, *logged[0].AIScore)
	assert.NotEmpty(t, logged[0].ID)

	m, err := f.engine.Metrics(context.Background(), "backend")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Agreements)
	assert.Equal(t, 1.0, m.AgreementRate)
}

func TestRecordFeedbackValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RecordFeedback(ctx, "backend", verdict("ghost", model.No))
	assert.ErrorIs(t, err, store.ErrCandidateNotFound)

	_, err = f.engine.RecordFeedback(ctx, "backend", verdict("jane_doe", "SOMETIMES"))
	assert.Error(t, err)

	bad := verdict("jane_doe", model.No)
	bad.Score = model.IntPtr(140)
	_, err = f.engine.RecordFeedback(ctx, "backend", bad)
	assert.Error(t, err)

	state, err := f.db.GetJob("backend")
	require.NoError(t, err)
	assert.Equal(t, 0, state.FeedbackSinceRegen)
}

func TestRegenerateIgnoresThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ins, err := f.engine.Regenerate(ctx, "backend")
	require.NoError(t, err)
	assert.Nil(t, ins)

	_, err = f.engine.RecordFeedback(ctx, "backend", verdict("jane_doe", model.No))
	require.NoError(t, err)
	ins, err = f.engine.Regenerate(ctx, "backend")
	require.NoError(t, err)
	require.NotNil(t, ins)
	assert.Equal(t, 1, ins.FeedbackCount)
}

type slowEvaluator struct {
	fakeEvaluator
	calls atomic.Int32
}

func (s *slowEvaluator) GenerateInsights(context.Context, model.JobContext, []model.HumanFeedback, string) (string, error) {
	s.calls.Add(1)
	time.Sleep(50 * time.Millisecond)
	return "Ask about distributed systems work.", nil
}

func TestConcurrentRegenerationRunsOnce(t *testing.T) {
	f := newFixture(t)
	slow := &slowEvaluator{}
	f.engine.eval = slow
	ctx := context.Background()

	for _, cand := range []string{"jane_doe", "john_roe"} {
		_, err := f.engine.RecordFeedback(ctx, "backend", verdict(cand, model.No))
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*model.JobInsights
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ins, err := f.engine.MaybeRegenerate(ctx, "backend")
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, ins)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), slow.calls.Load())
	regenerated := 0
	for _, ins := range results {
		if ins != nil {
			regenerated++
			assert.Equal(t, 2, ins.FeedbackCount)
		}
	}
	assert.Equal(t, 1, regenerated)

	state, err := f.db.GetJob("backend")
	require.NoError(t, err)
	assert.Equal(t, 0, state.FeedbackSinceRegen)
}
