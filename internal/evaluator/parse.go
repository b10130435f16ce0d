package evaluator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/llm"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

func parseEvaluation(text string, logger *zap.Logger) (*model.RawEvaluation, error) {
	parsed, err := llm.ParseJSONResponse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	rawRec := getString(parsed, "recommendation", "")
	rec, err := model.ParseRecommendation(rawRec)
	if err != nil {
		logger.Warn("invalid recommendation from evaluator, using NO", zap.String("recommendation", rawRec))
		rec = model.No
	}

	raw := &model.RawEvaluation{
		Score:             getInt(parsed, "overall_score", 0),
		Recommendation:    rec,
		Strengths:         getStrings(parsed, "strengths"),
		Concerns:          getStrings(parsed, "concerns"),
		InterviewPriority: model.ParsePriority(getString(parsed, "interview_priority", "")),
		Notes:             getString(parsed, "detailed_notes", ""),
		InsightsApplied:   getString(parsed, "insights_applied", ""),
		RulesApplied:      getStrings(parsed, "rules_applied"),
	}
	return raw, nil
}

var insightSections = []struct{ key, title string }{
	{"evaluation_criteria_refinements", "Evaluation criteria refinements"},
	{"strength_identification_patterns", "Strength identification patterns"},
	{"concern_identification_patterns", "Concern identification patterns"},
	{"scoring_calibration", "Scoring calibration"},
	{"recommendation_logic", "Recommendation logic"},
}

// parseInsights renders the insight sections as markdown paragraphs.
func parseInsights(text string) (string, error) {
	parsed, err := llm.ParseJSONResponse(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var parts []string
	for _, s := range insightSections {
		v := getString(parsed, s.key, "")
		if v == "" {
			if list := getStrings(parsed, s.key); len(list) > 0 {
				v = "- " + strings.Join(list, "\n- ")
			}
		}
		if v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("**%s:**\n%s", s.title, v))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no insight sections in response", ErrMalformedResponse)
	}
	return strings.Join(parts, "\n\n"), nil
}

func getString(m map[string]any, key, fallback string) string {
	if v, ok := m[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return fallback
}

func getInt(m map[string]any, key string, fallback int) int {
	if v, ok := m[key]; ok && v != nil {
		switch n := v.(type) {
		case float64:
			return int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return int(f)
			}
		}
	}
	return fallback
}

// getStrings accepts a list of strings or a single string.
func getStrings(m map[string]any, key string) []string {
	out := []string{}
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
