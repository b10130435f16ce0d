package evaluator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

const evaluationPrompt = `You are evaluating job candidates. Analyze the following:

JOB DESCRIPTION:
%s

IDEAL CANDIDATE PROFILE:
%s

WARNING FLAGS:
%s
%s%s
EVALUATION APPROACH:
1. Resume is ground truth for experience verification
2. Application answers are self-reported claims - verify against resume
3. If application claims X years of experience/responsibility but resume doesn't show it, flag as "unverified claim"
4. For filters: only count verified evidence from resume, not self-reported application answers

CANDIDATE MATERIALS:
%s

Respond with ONLY this JSON:
{
  "overall_score": 0-100,
  "recommendation": "STRONG_YES|YES|MAYBE|NO|STRONG_NO",
  "strengths": ["strength1", "strength2"],
  "concerns": ["concern1", "concern2"],
  "interview_priority": "HIGH|MEDIUM|LOW",
  "detailed_notes": "First line exactly 'Failed filters: <comma-separated ids>' or 'Failed filters: none', then your evaluation",
  "insights_applied": "which specific insights influenced this evaluation (or null if none)",
  "rules_applied": ["filter_id_1", "filter_id_2"]
}`

const insightsPrompt = `Based on the following human feedback for the job "%s", generate specific insights that will improve future candidate evaluations.

JOB CONTEXT:
- Description: %s
- Ideal Candidate: %s
- Warning Flags: %s

PRIOR INSIGHTS (keep what still holds, replace what the new feedback contradicts):
%s

NEW FEEDBACK:
%s

Respond with ONLY this JSON:
{
  "evaluation_criteria_refinements": "specific adjustments to scoring criteria",
  "strength_identification_patterns": "what human reviewers consistently value",
  "concern_identification_patterns": "what human reviewers consistently flag",
  "scoring_calibration": "adjustments to overall scoring approach",
  "recommendation_logic": "refined logic for recommendation categories"
}`

func buildEvaluationPrompt(job model.JobContext, candidateText string, filters []model.ScreeningFilter, insights string) string {
	return fmt.Sprintf(evaluationPrompt,
		job.Description,
		orNotSpecified(job.IdealCandidate),
		orNotSpecified(job.WarningFlags),
		insightsSection(insights),
		filtersSection(filters),
		candidateText,
	)
}

func insightsSection(insights string) string {
	if strings.TrimSpace(insights) == "" {
		return ""
	}
	return "\nAI INSIGHTS FROM PREVIOUS FEEDBACK:\n" + strings.TrimSpace(insights) +
		"\nNote: These insights were generated from human feedback on previous evaluations for this role.\n"
}

// filtersSection lists enabled filters in their stored order.
func filtersSection(filters []model.ScreeningFilter) string {
	var lines []string
	for _, f := range filters {
		if !f.Enabled {
			continue
		}
		lines = append(lines, fmt.Sprintf("- id: %s\n  when: %s\n  action: %s", f.ID, f.When, f.Action))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\nDECISION FILTERS (must enforce):\n" + strings.Join(lines, "\n") +
		"\nYou must apply these filters. If a filter condition is met: (1) apply the specified penalties, " +
		"(2) set/cap the recommendation as specified, (3) list 'Failed filters: <ids>' on the first line of " +
		"detailed_notes, and (4) include 'rules_applied' in the JSON response.\n"
}

type feedbackItem struct {
	Candidate        string            `json:"candidate"`
	AIRecommendation string            `json:"ai_recommendation,omitempty"`
	AIScore          *int              `json:"ai_score,omitempty"`
	Recommendation   string            `json:"human_recommendation"`
	Score            *int              `json:"human_score,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	Corrections      map[string]string `json:"corrections,omitempty"`
}

func buildInsightsPrompt(job model.JobContext, batch []model.HumanFeedback, prior string) (string, error) {
	items := make([]feedbackItem, 0, len(batch))
	for _, fb := range batch {
		items = append(items, feedbackItem{
			Candidate:        fb.CandidateKey,
			AIRecommendation: string(fb.AIRecommendation),
			AIScore:          fb.AIScore,
			Recommendation:   string(fb.Recommendation),
			Score:            fb.Score,
			Notes:            fb.Notes,
			Corrections:      fb.Corrections,
		})
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding feedback batch: %w", err)
	}

	if strings.TrimSpace(prior) == "" {
		prior = "None yet"
	}
	return fmt.Sprintf(insightsPrompt,
		job.Name,
		job.Description,
		orNotSpecified(job.IdealCandidate),
		orNotSpecified(job.WarningFlags),
		prior,
		string(data),
	), nil
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}
