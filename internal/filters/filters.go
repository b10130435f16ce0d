// Package filters loads, validates and versions a job's screening filters.
package filters

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

var (
	ErrFilterNotFound = errors.New("filter not found")
	ErrDuplicateID    = errors.New("filter id already exists")
	ErrImmutableID    = errors.New("filter id cannot be changed")
)

// VersionRecorder mirrors the saved filter-set version onto the job aggregate.
type VersionRecorder interface {
	SetFilterVersion(jobKey string, version int) error
}

// Store reads and writes screening_filters.json for each job.
type Store struct {
	docs     *store.Store
	versions VersionRecorder
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore creates a filter store. versions may be nil.
func NewStore(docs *store.Store, versions VersionRecorder, logger *zap.Logger) *Store {
	validate := validator.New()
	_ = validate.RegisterValidation("filterid", func(fl validator.FieldLevel) bool {
		return model.ValidFilterID(fl.Field().String())
	})
	return &Store{
		docs:     docs,
		versions: versions,
		validate: validate,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Load returns the job's filter set. A job without a filter document has an
// empty set at version 0.
func (s *Store) Load(jobKey string) (*model.FilterSet, error) {
	data, err := os.ReadFile(s.docs.FiltersPath(jobKey))
	if errors.Is(err, fs.ErrNotExist) {
		return &model.FilterSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading filters: %w", err)
	}
	return decode(jobKey, data)
}

// Save bumps the version, stamps updated_at and writes the set atomically.
func (s *Store) Save(jobKey string, set *model.FilterSet) error {
	next := *set
	next.Version = set.Version + 1
	ts := s.now().UTC()
	next.UpdatedAt = &ts
	if next.Filters == nil {
		next.Filters = []model.ScreeningFilter{}
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding filters: %w", err)
	}
	if _, err := decode(jobKey, data); err != nil {
		return err
	}
	if err := store.WriteFileAtomic(s.docs.FiltersPath(jobKey), append(data, '\n'), 0o644); err != nil {
		return err
	}

	*set = next
	if s.versions != nil {
		if err := s.versions.SetFilterVersion(jobKey, next.Version); err != nil {
			return fmt.Errorf("recording filter version: %w", err)
		}
	}
	s.logger.Info("saved screening filters",
		zap.String(logging.FieldJob, jobKey),
		zap.Int("version", next.Version),
		zap.Int("filters", len(next.Filters)))
	return nil
}

// Add appends a new filter and saves the set.
func (s *Store) Add(jobKey string, f model.ScreeningFilter) (*model.FilterSet, error) {
	if f.Source == "" {
		f.Source = model.SourceHuman
	}
	if f.CreatedAt == nil {
		ts := s.now().UTC()
		f.CreatedAt = &ts
	}
	if err := s.check(jobKey, f); err != nil {
		return nil, err
	}

	set, err := s.Load(jobKey)
	if err != nil {
		return nil, err
	}
	if existing, _ := set.Find(f.ID); existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, f.ID)
	}
	set.Filters = append(set.Filters, f)
	if err := s.Save(jobKey, set); err != nil {
		return nil, err
	}
	return set, nil
}

// Update applies fn to the filter with the given id and saves the set.
// fn must not change the id.
func (s *Store) Update(jobKey, id string, fn func(*model.ScreeningFilter)) (*model.FilterSet, error) {
	set, err := s.Load(jobKey)
	if err != nil {
		return nil, err
	}
	f, idx := set.Find(id)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}

	edited := *f
	fn(&edited)
	if edited.ID != id {
		return nil, fmt.Errorf("%w: %s", ErrImmutableID, id)
	}
	if err := s.check(jobKey, edited); err != nil {
		return nil, err
	}
	set.Filters[idx] = edited
	if err := s.Save(jobKey, set); err != nil {
		return nil, err
	}
	return set, nil
}

// SetEnabled toggles a filter. Disabling is the only way to retire a filter.
func (s *Store) SetEnabled(jobKey, id string, enabled bool) (*model.FilterSet, error) {
	return s.Update(jobKey, id, func(f *model.ScreeningFilter) { f.Enabled = enabled })
}

func (s *Store) check(jobKey string, f model.ScreeningFilter) error {
	var errs []FieldError
	if err := s.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{Field: fe.Namespace(), Message: fe.Tag()})
		}
	}
	for _, r := range []*model.Recommendation{f.Action.SetRecommendation, f.Action.CapRecommendation} {
		if r != nil && !r.Valid() {
			errs = append(errs, FieldError{Field: "ScreeningFilter.Action", Message: fmt.Sprintf("unknown recommendation %q", *r)})
		}
	}
	if f.Action.Empty() {
		errs = append(errs, FieldError{Field: "ScreeningFilter.Action", Message: "action must set, cap or deduct"})
	}
	if len(errs) > 0 {
		return &FilterSchemaError{JobKey: jobKey, Errors: errs}
	}
	return nil
}

var slugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a filter id from a title.
func Slug(title string) string {
	s := strings.Trim(slugChars.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	if s == "" {
		s = "filter"
	}
	return s
}

// FromRejection drafts a filter from a reviewer's rejection reason. The id is
// unique within set; the action forces the rejecting recommendation.
func FromRejection(set *model.FilterSet, title, reason string, rec model.Recommendation) model.ScreeningFilter {
	if title == "" {
		title = firstLine(reason)
	}
	base := Slug(title)
	id := base
	for n := 2; ; n++ {
		if f, _ := set.Find(id); f == nil {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
	if !rec.Valid() {
		rec = model.No
	}
	return model.ScreeningFilter{
		ID:        id,
		Title:     title,
		When:      reason,
		Action:    model.FilterAction{SetRecommendation: model.RecommendationPtr(rec)},
		Enabled:   true,
		Source:    model.SourceHuman,
		Rationale: "Created from a reviewer rejection",
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 60 {
		s = string(r[:60])
	}
	return s
}
