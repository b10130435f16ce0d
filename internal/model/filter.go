package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var filterIDRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// ValidFilterID reports whether id can be written to and read back from a
// violation marker: letters, digits, dot, dash and underscore, starting and
// ending with a letter or digit.
func ValidFilterID(id string) bool { return filterIDRe.MatchString(id) }

// FilterSource records who authored a screening filter.
type FilterSource string

const (
	SourceHuman  FilterSource = "human"
	SourceSystem FilterSource = "system"
)

// FilterAction is the deterministic penalty applied when a filter fires.
type FilterAction struct {
	SetRecommendation *Recommendation `json:"set_recommendation,omitempty"`
	CapRecommendation *Recommendation `json:"cap_recommendation,omitempty"`
	DeductPoints      *int            `json:"deduct_points,omitempty" validate:"omitempty,min=0,max=100"`
}

// Empty reports whether the action does nothing.
func (a FilterAction) Empty() bool {
	return a.SetRecommendation == nil && a.CapRecommendation == nil && a.DeductPoints == nil
}

// String renders the action as the evaluator sees it, e.g. "set_recommendation=NO, deduct_points=30".
func (a FilterAction) String() string {
	var parts []string
	if a.SetRecommendation != nil {
		parts = append(parts, "set_recommendation="+string(*a.SetRecommendation))
	}
	if a.CapRecommendation != nil {
		parts = append(parts, "cap_recommendation="+string(*a.CapRecommendation))
	}
	if a.DeductPoints != nil {
		parts = append(parts, fmt.Sprintf("deduct_points=%d", *a.DeductPoints))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// ScreeningFilter is a hard, human-authored rule for one job.
type ScreeningFilter struct {
	ID        string       `json:"id" validate:"required,max=64,filterid"`
	Title     string       `json:"title" validate:"required"`
	When      string       `json:"when" validate:"required"`
	Action    FilterAction `json:"action"`
	Enabled   bool         `json:"enabled"`
	Source    FilterSource `json:"source" validate:"omitempty,oneof=human system"`
	Rationale string       `json:"rationale,omitempty"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
}

// FilterSet is the ordered, versioned collection of filters for a job.
type FilterSet struct {
	Version   int               `json:"version"`
	UpdatedAt *time.Time        `json:"updated_at"`
	Filters   []ScreeningFilter `json:"filters"`
}

// Enabled returns the enabled filters in insertion order.
func (s *FilterSet) Enabled() []ScreeningFilter {
	if s == nil {
		return nil
	}
	var out []ScreeningFilter
	for _, f := range s.Filters {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// Find returns the filter with the given id and its index, or -1.
func (s *FilterSet) Find(id string) (*ScreeningFilter, int) {
	if s == nil {
		return nil, -1
	}
	for i := range s.Filters {
		if s.Filters[i].ID == id {
			return &s.Filters[i], i
		}
	}
	return nil, -1
}

// RecommendationPtr is a convenience for building filter actions.
func RecommendationPtr(r Recommendation) *Recommendation { return &r }

// IntPtr is a convenience for building filter actions.
func IntPtr(n int) *int { return &n }
