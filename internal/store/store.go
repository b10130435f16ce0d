// Package store keeps jobs and candidate records as documents on disk.
//
// Layout under the root directory:
//
//	jobs/<job>/job.yaml
//	jobs/<job>/screening_filters.json
//	jobs/<job>/insights.json
//	jobs/<job>/candidates/<key>/identity.json
//	jobs/<job>/candidates/<key>/{resume,cover_letter,application}.txt
//	jobs/<job>/candidates/<key>/evaluation.json
//	jobs/<job>/candidates/<key>/raw_evaluation.json
//	jobs/<job>/candidates/<key>/evaluation_history.json
//	jobs/<job>/candidates/<key>/duplicate_warnings.json
//	jobs/<job>/candidates/<key>/DUPLICATE_WARNING.txt
//	output/<job>/...
//
// Every write goes through WriteFileAtomic.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

const (
	jobFile        = "job.yaml"
	filtersFile    = "screening_filters.json"
	insightsFile   = "insights.json"
	identityFile   = "identity.json"
	evaluationFile = "evaluation.json"
	rawFile        = "raw_evaluation.json"
	historyFile    = "evaluation_history.json"
	warningsFile   = "duplicate_warnings.json"
	warningText    = "DUPLICATE_WARNING.txt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrCandidateNotFound = errors.New("candidate not found")
)

// DocumentTypes lists the candidate documents accepted at intake, in prompt order.
var DocumentTypes = []string{"resume", "cover_letter", "application"}

// Store is a filesystem workspace rooted at a data directory.
type Store struct {
	root string
	now  func() time.Time
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir, now: time.Now}
}

// Root returns the workspace directory.
func (s *Store) Root() string { return s.root }

func (s *Store) JobDir(jobKey string) string {
	return filepath.Join(s.root, "jobs", jobKey)
}

func (s *Store) CandidateDir(jobKey, key string) string {
	return filepath.Join(s.JobDir(jobKey), "candidates", key)
}

func (s *Store) FiltersPath(jobKey string) string {
	return filepath.Join(s.JobDir(jobKey), filtersFile)
}

func (s *Store) OutputDir(jobKey string) string {
	return filepath.Join(s.root, "output", jobKey)
}

// SaveJob writes the job context to job.yaml.
func (s *Store) SaveJob(job model.JobContext) error {
	if job.Key == "" {
		return errors.New("job key is required")
	}
	return WriteYAML(filepath.Join(s.JobDir(job.Key), jobFile), job)
}

// LoadJob reads a job context.
func (s *Store) LoadJob(jobKey string) (*model.JobContext, error) {
	var job model.JobContext
	ok, err := ReadYAML(filepath.Join(s.JobDir(jobKey), jobFile), &job)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobKey)
	}
	job.Key = jobKey
	return &job, nil
}

// ListJobs returns job keys in lexical order.
func (s *Store) ListJobs() ([]string, error) {
	return listDirs(filepath.Join(s.root, "jobs"), jobFile)
}

// ListCandidates returns candidate keys for a job in lexical order.
func (s *Store) ListCandidates(jobKey string) ([]string, error) {
	return listDirs(filepath.Join(s.JobDir(jobKey), "candidates"), "")
}

// CandidateExists reports whether a record directory exists for key.
func (s *Store) CandidateExists(jobKey, key string) bool {
	info, err := os.Stat(s.CandidateDir(jobKey, key))
	return err == nil && info.IsDir()
}

// LoadIdentity reads identity.json. A record without one yields an identity
// carrying only its key.
func (s *Store) LoadIdentity(jobKey, key string) (*model.CandidateIdentity, error) {
	if !s.CandidateExists(jobKey, key) {
		return nil, fmt.Errorf("%w: %s/%s", ErrCandidateNotFound, jobKey, key)
	}
	id := model.CandidateIdentity{CandidateKey: key}
	if _, err := ReadJSON(filepath.Join(s.CandidateDir(jobKey, key), identityFile), &id); err != nil {
		return nil, err
	}
	id.CandidateKey = key
	id.Identifiers = id.Identifiers.Normalize()
	return &id, nil
}

// LoadIdentities reads the identities of every candidate record for a job.
func (s *Store) LoadIdentities(jobKey string) ([]model.CandidateIdentity, error) {
	keys, err := s.ListCandidates(jobKey)
	if err != nil {
		return nil, err
	}
	out := make([]model.CandidateIdentity, 0, len(keys))
	for _, k := range keys {
		id, err := s.LoadIdentity(jobKey, k)
		if err != nil {
			return nil, err
		}
		out = append(out, *id)
	}
	return out, nil
}

// SaveIdentity writes identity.json, creating the record directory if needed.
func (s *Store) SaveIdentity(jobKey string, id model.CandidateIdentity) error {
	if id.CandidateKey == "" {
		return errors.New("candidate key is required")
	}
	return WriteJSON(filepath.Join(s.CandidateDir(jobKey, id.CandidateKey), identityFile), id)
}

// Documents are the plain-text candidate materials.
type Documents map[string]string

// Text joins the documents into the evaluator's candidate text.
func (d Documents) Text() string {
	var b strings.Builder
	for _, t := range DocumentTypes {
		body := strings.TrimSpace(d[t])
		if body == "" {
			body = "Not provided"
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", documentLabel(t), body)
	}
	return strings.TrimSpace(b.String())
}

func documentLabel(docType string) string {
	switch docType {
	case "cover_letter":
		return "Cover Letter"
	case "application":
		return "Application"
	}
	return "Resume"
}

// WriteDocument stores one candidate document, replacing any earlier one of the same type.
func (s *Store) WriteDocument(jobKey, key, docType, text string) error {
	if !isDocumentType(docType) {
		return fmt.Errorf("unknown document type %q", docType)
	}
	return WriteFileAtomic(filepath.Join(s.CandidateDir(jobKey, key), docType+".txt"), []byte(text), 0o644)
}

// LoadDocuments reads the candidate documents that exist.
func (s *Store) LoadDocuments(jobKey, key string) (Documents, error) {
	docs := Documents{}
	for _, t := range DocumentTypes {
		data, err := os.ReadFile(filepath.Join(s.CandidateDir(jobKey, key), t+".txt"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", t, err)
		}
		docs[t] = string(data)
	}
	return docs, nil
}

func isDocumentType(t string) bool {
	for _, d := range DocumentTypes {
		if d == t {
			return true
		}
	}
	return false
}

// LoadEvaluation returns the current evaluation, or nil when none exists.
func (s *Store) LoadEvaluation(jobKey, key string) (*model.Evaluation, error) {
	var ev model.Evaluation
	ok, err := ReadJSON(filepath.Join(s.CandidateDir(jobKey, key), evaluationFile), &ev)
	if err != nil || !ok {
		return nil, err
	}
	return &ev, nil
}

// LoadRawEvaluation returns the raw evaluation the current evaluation was enforced from.
func (s *Store) LoadRawEvaluation(jobKey, key string) (*model.RawEvaluation, error) {
	var raw model.RawEvaluation
	ok, err := ReadJSON(filepath.Join(s.CandidateDir(jobKey, key), rawFile), &raw)
	if err != nil || !ok {
		return nil, err
	}
	return &raw, nil
}

// LoadHistory returns superseded evaluations, oldest first.
func (s *Store) LoadHistory(jobKey, key string) ([]model.HistoryEntry, error) {
	var hist []model.HistoryEntry
	if _, err := ReadJSON(filepath.Join(s.CandidateDir(jobKey, key), historyFile), &hist); err != nil {
		return nil, err
	}
	return hist, nil
}

// Superseded describes the evaluation replaced by SupersedeEvaluation.
type Superseded struct {
	Previous *model.Evaluation
	Delta    int
}

// SupersedeEvaluation stores ev as the current evaluation. An existing
// evaluation is appended to the history with the score delta first, so a
// crash between the two writes leaves the old evaluation in both places and
// the retry does not append it twice.
func (s *Store) SupersedeEvaluation(jobKey, key string, raw model.RawEvaluation, ev model.Evaluation) (Superseded, error) {
	if !s.CandidateExists(jobKey, key) {
		return Superseded{}, fmt.Errorf("%w: %s/%s", ErrCandidateNotFound, jobKey, key)
	}
	dir := s.CandidateDir(jobKey, key)

	prev, err := s.LoadEvaluation(jobKey, key)
	if err != nil {
		return Superseded{}, err
	}

	var res Superseded
	if prev != nil {
		res = Superseded{Previous: prev, Delta: ev.Score - prev.Score}
		hist, err := s.LoadHistory(jobKey, key)
		if err != nil {
			return Superseded{}, err
		}
		if n := len(hist); n == 0 || !hist[n-1].Timestamp.Equal(prev.Timestamp) {
			hist = append(hist, model.HistoryEntry{
				Evaluation:   *prev,
				ScoreDelta:   res.Delta,
				SupersededAt: s.now().UTC(),
			})
			if err := WriteJSON(filepath.Join(dir, historyFile), hist); err != nil {
				return Superseded{}, err
			}
		}
	}

	if err := WriteJSON(filepath.Join(dir, rawFile), raw); err != nil {
		return Superseded{}, err
	}
	if err := WriteJSON(filepath.Join(dir, evaluationFile), ev); err != nil {
		return Superseded{}, err
	}
	return res, nil
}

// LoadWarnings returns the duplicate warnings recorded for a candidate.
func (s *Store) LoadWarnings(jobKey, key string) ([]model.DuplicateWarning, error) {
	var ws []model.DuplicateWarning
	if _, err := ReadJSON(filepath.Join(s.CandidateDir(jobKey, key), warningsFile), &ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// SaveWarnings replaces a candidate's duplicate warnings and the rendered
// text artifact. An empty list removes both files.
func (s *Store) SaveWarnings(jobKey, key string, warnings []model.DuplicateWarning, text string) error {
	dir := s.CandidateDir(jobKey, key)
	if len(warnings) == 0 {
		if err := removeIfExists(filepath.Join(dir, warningText)); err != nil {
			return err
		}
		return removeIfExists(filepath.Join(dir, warningsFile))
	}
	if err := WriteJSON(filepath.Join(dir, warningsFile), warnings); err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(dir, warningText), []byte(text), 0o644)
}

// LoadInsights returns the job's insights, or nil when none were generated yet.
func (s *Store) LoadInsights(jobKey string) (*model.JobInsights, error) {
	var ins model.JobInsights
	ok, err := ReadJSON(filepath.Join(s.JobDir(jobKey), insightsFile), &ins)
	if err != nil || !ok {
		return nil, err
	}
	return &ins, nil
}

// SaveInsights replaces the job's insights document.
func (s *Store) SaveInsights(jobKey string, ins model.JobInsights) error {
	return WriteJSON(filepath.Join(s.JobDir(jobKey), insightsFile), ins)
}

func listDirs(parent, marker string) ([]string, error) {
	entries, err := os.ReadDir(parent)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", parent, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if marker != "" {
			if _, err := os.Stat(filepath.Join(parent, e.Name(), marker)); err != nil {
				continue
			}
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
