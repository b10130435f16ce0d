package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	require.NoError(t, s.SaveJob(model.JobContext{Key: "eng", Name: "Engineer", Description: "Builds things"}))
	return s
}

func addCandidate(t *testing.T, s *Store, key string) {
	t.Helper()
	require.NoError(t, s.SaveIdentity("eng", model.CandidateIdentity{CandidateKey: key}))
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJobRoundTrip(t *testing.T) {
	s := newTestStore(t)

	job, err := s.LoadJob("eng")
	require.NoError(t, err)
	assert.Equal(t, "eng", job.Key)
	assert.Equal(t, "Engineer", job.Name)

	_, err = s.LoadJob("missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))

	jobs, err := s.ListJobs()
	require.NoError(t, err)
	assert.Equal(t, []string{"eng"}, jobs)
}

func TestIdentitiesAreListedInKeyOrder(t *testing.T) {
	s := newTestStore(t)
	addCandidate(t, s, "zoe")
	require.NoError(t, s.SaveIdentity("eng", model.CandidateIdentity{
		CandidateKey: "adam",
		Identifiers:  model.Identifiers{Emails: []string{"A@B.io"}},
	}))

	ids, err := s.LoadIdentities("eng")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "adam", ids[0].CandidateKey)
	assert.Equal(t, []string{"a@b.io"}, ids[0].Identifiers.Emails)
	assert.Equal(t, "zoe", ids[1].CandidateKey)

	_, err = s.LoadIdentity("eng", "nobody")
	assert.True(t, errors.Is(err, ErrCandidateNotFound))
}

func TestDocumentsText(t *testing.T) {
	s := newTestStore(t)
	addCandidate(t, s, "jane_doe")
	require.NoError(t, s.WriteDocument("eng", "jane_doe", "resume", "Go developer"))
	assert.Error(t, s.WriteDocument("eng", "jane_doe", "photo", "x"))

	docs, err := s.LoadDocuments("eng", "jane_doe")
	require.NoError(t, err)
	text := docs.Text()
	assert.Contains(t, text, "Resume:\nGo developer")
	assert.Contains(t, text, "Cover Letter:\nNot provided")
}

func TestSupersedeEvaluationAppendsHistory(t *testing.T) {
	s := newTestStore(t)
	addCandidate(t, s, "jane_doe")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, score := range []int{60, 75, 50} {
		ev := model.Evaluation{Score: score, Recommendation: model.Maybe, Timestamp: base.Add(time.Duration(i) * time.Hour)}
		res, err := s.SupersedeEvaluation("eng", "jane_doe", model.RawEvaluation{Score: score}, ev)
		require.NoError(t, err)
		if i == 0 {
			assert.Nil(t, res.Previous)
		}
	}

	hist, err := s.LoadHistory("eng", "jane_doe")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 60, hist[0].Score)
	assert.Equal(t, 15, hist[0].ScoreDelta)
	assert.Equal(t, 75, hist[1].Score)
	assert.Equal(t, -25, hist[1].ScoreDelta)

	cur, err := s.LoadEvaluation("eng", "jane_doe")
	require.NoError(t, err)
	assert.Equal(t, 50, cur.Score)

	raw, err := s.LoadRawEvaluation("eng", "jane_doe")
	require.NoError(t, err)
	assert.Equal(t, 50, raw.Score)
}

func TestSupersedeEvaluationDoesNotDuplicateAfterPartialWrite(t *testing.T) {
	s := newTestStore(t)
	addCandidate(t, s, "jane_doe")

	first := model.Evaluation{Score: 60, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	_, err := s.SupersedeEvaluation("eng", "jane_doe", model.RawEvaluation{}, first)
	require.NoError(t, err)

	// Simulate a crash after the history write: history already holds the current evaluation.
	dir := s.CandidateDir("eng", "jane_doe")
	require.NoError(t, WriteJSON(filepath.Join(dir, historyFile), []model.HistoryEntry{{Evaluation: first, ScoreDelta: 5}}))

	second := model.Evaluation{Score: 65, Timestamp: first.Timestamp.Add(time.Hour)}
	res, err := s.SupersedeEvaluation("eng", "jane_doe", model.RawEvaluation{}, second)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Delta)

	hist, err := s.LoadHistory("eng", "jane_doe")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestWarningsSaveAndClear(t *testing.T) {
	s := newTestStore(t)
	addCandidate(t, s, "jane_doe")
	w := model.DuplicateWarning{CandidateKey: "jane_doe", OtherKey: "john_doe", Reason: model.ReasonFakeDuplicate}

	require.NoError(t, s.SaveWarnings("eng", "jane_doe", []model.DuplicateWarning{w}, "warning text"))
	got, err := s.LoadWarnings("eng", "jane_doe")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "john_doe", got[0].OtherKey)
	assert.FileExists(t, filepath.Join(s.CandidateDir("eng", "jane_doe"), warningText))

	require.NoError(t, s.SaveWarnings("eng", "jane_doe", nil, ""))
	got, err = s.LoadWarnings("eng", "jane_doe")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoFileExists(t, filepath.Join(s.CandidateDir("eng", "jane_doe"), warningText))
}

func TestInsightsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	ins, err := s.LoadInsights("eng")
	require.NoError(t, err)
	assert.Nil(t, ins)

	require.NoError(t, s.SaveInsights("eng", model.JobInsights{GeneratedInsights: "value tests", FeedbackCount: 2}))
	ins, err = s.LoadInsights("eng")
	require.NoError(t, err)
	assert.Equal(t, 2, ins.FeedbackCount)
}
