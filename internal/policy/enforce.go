// Package policy reconciles a raw evaluator result with a job's screening
// filters. Enforcement is a pure function of its inputs and must always be
// applied to the evaluator's raw output, never to an already enforced
// evaluation.
package policy

import (
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

const (
	minScore = 0
	maxScore = 100
)

// Enforcer applies screening filters to raw evaluations.
type Enforcer struct {
	logger *zap.Logger
}

// NewEnforcer returns an Enforcer that logs ignored ids and bad markers to logger.
func NewEnforcer(logger *zap.Logger) *Enforcer {
	return &Enforcer{logger: logging.OrNop(logger)}
}

// Enforce derives the final evaluation from raw and the job's filters:
//
//  1. violated ids come from the marker on the first line of the notes;
//     ids that are unknown or disabled are ignored
//  2. deductions of all matched filters are summed and subtracted
//  3. the most severe set_recommendation forces the recommendation; only when
//     none fired, the lowest cap_recommendation lowers it (never raises)
//  4. the score is clamped to [0,100] and the marker line is rewritten to
//     list exactly the enforced ids
//
// at becomes the evaluation timestamp.
func (e *Enforcer) Enforce(raw model.RawEvaluation, set *model.FilterSet, at time.Time) model.Evaluation {
	marker, err := ParseMarker(raw.Notes)
	if err != nil {
		e.logger.Warn("treating unparseable violation marker as no violations", zap.Error(err))
	}
	for _, bad := range marker.Invalid {
		e.logger.Warn("skipping malformed entry in violation marker", zap.String("entry", bad))
	}

	matched := e.match(marker.IDs, set)

	score := raw.Score
	deducted := 0
	for _, f := range matched {
		if f.Action.DeductPoints != nil {
			deducted += *f.Action.DeductPoints
		}
	}
	score -= deducted
	if score < minScore {
		score = minScore
	}

	rec := raw.Recommendation
	if !rec.Valid() {
		e.logger.Warn("raw evaluation has no valid recommendation, using NO", zap.String("recommendation", string(rec)))
		rec = model.No
	}

	var forced, capped *model.Recommendation
	for _, f := range matched {
		if r := f.Action.SetRecommendation; r != nil && r.Valid() {
			if forced == nil || r.Rank() < forced.Rank() {
				forced = r
			}
		}
		if r := f.Action.CapRecommendation; r != nil && r.Valid() {
			if capped == nil || r.Rank() < capped.Rank() {
				capped = r
			}
		}
	}
	switch {
	case forced != nil:
		rec = *forced
	case capped != nil:
		rec = model.MoreSevere(rec, *capped)
	}

	score = min(max(score, minScore), maxScore)

	ids := make([]string, 0, len(matched))
	for _, f := range matched {
		ids = append(ids, f.ID)
	}

	rest := raw.Notes
	if marker.Found || err != nil {
		_, rest = splitFirstLine(raw.Notes)
	}
	notes := FormatMarker(ids)
	if rest = strings.TrimLeft(rest, "\r\n"); rest != "" {
		notes += "\n" + rest
	}

	return model.Evaluation{
		Score:             score,
		Recommendation:    rec,
		Strengths:         cloneList(raw.Strengths),
		Concerns:          cloneList(raw.Concerns),
		InterviewPriority: raw.InterviewPriority,
		Notes:             notes,
		Timestamp:         at,
		RulesApplied:      ids,
		InsightsApplied:   raw.InsightsApplied,
	}
}

// match returns the enabled filters named in ids, in filter-set order.
func (e *Enforcer) match(ids []string, set *model.FilterSet) []model.ScreeningFilter {
	if len(ids) == 0 {
		return nil
	}
	var matched []model.ScreeningFilter
	for _, f := range set.Enabled() {
		if slices.Contains(ids, f.ID) {
			matched = append(matched, f)
		}
	}
	for _, id := range ids {
		if slices.ContainsFunc(matched, func(f model.ScreeningFilter) bool { return f.ID == id }) {
			continue
		}
		reason := "unknown filter id"
		if f, _ := set.Find(id); f != nil {
			reason = "filter is disabled"
		}
		e.logger.Info("ignoring violated filter", zap.String("filter", id), zap.String("reason", reason))
	}
	return matched
}

func cloneList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
