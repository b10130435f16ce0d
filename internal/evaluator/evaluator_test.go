package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TobiSchelling/CandidateReviewer/internal/llm"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	prompt   string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.prompt = prompt
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

var testJob = model.JobContext{
	Key:            "backend",
	Name:           "Backend Engineer",
	Description:    "Build Go services.",
	IdealCandidate: "5+ years of Go",
}

func TestEvaluateParsesResponse(t *testing.T) {
	resp, _ := json.Marshal(map[string]any{
		"overall_score":      72,
		"recommendation":     "yes",
		"strengths":          []string{"Go", "  ", "Kubernetes"},
		"concerns":           "Short tenure",
		"interview_priority": "high",
		"detailed_notes":     "Failed filters: none\nSolid background.",
		"insights_applied":   nil,
		"rules_applied":      []string{},
	})
	p := &mockProvider{response: "```json\n" + string(resp) + "\n```"}

	raw, err := New(p, 0, nil).Evaluate(context.Background(), testJob, "Resume:\nGo developer", nil, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if raw.Score != 72 || raw.Recommendation != model.Yes {
		t.Errorf("unexpected score/recommendation: %d %s", raw.Score, raw.Recommendation)
	}
	if raw.InterviewPriority != model.PriorityHigh {
		t.Errorf("expected HIGH priority, got %s", raw.InterviewPriority)
	}
	if len(raw.Strengths) != 2 {
		t.Errorf("expected blank strengths dropped, got %v", raw.Strengths)
	}
	if len(raw.Concerns) != 1 || raw.Concerns[0] != "Short tenure" {
		t.Errorf("expected single concern from string, got %v", raw.Concerns)
	}
	if raw.InsightsApplied != "" {
		t.Errorf("expected empty insights_applied, got %q", raw.InsightsApplied)
	}
}

func TestEvaluateInvalidRecommendationBecomesNo(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &mockProvider{response: `{"overall_score": "55", "recommendation": "PERHAPS", "detailed_notes": "ok"}`}

	raw, err := New(p, 0, zap.New(core)).Evaluate(context.Background(), testJob, "text", nil, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if raw.Recommendation != model.No {
		t.Errorf("expected NO, got %s", raw.Recommendation)
	}
	if raw.Score != 55 {
		t.Errorf("expected string score parsed, got %d", raw.Score)
	}
	if raw.InterviewPriority != model.PriorityLow {
		t.Errorf("expected default LOW priority, got %s", raw.InterviewPriority)
	}
	if logs.FilterMessage("invalid recommendation from evaluator, using NO").Len() != 1 {
		t.Error("expected a warning for the invalid recommendation")
	}
}

func TestEvaluatePromptIncludesEnabledFiltersOnly(t *testing.T) {
	p := &mockProvider{response: `{"overall_score": 10, "recommendation": "NO"}`}
	filters := []model.ScreeningFilter{
		{ID: "no-go", Title: "Go", When: "no Go experience", Action: model.FilterAction{SetRecommendation: model.RecommendationPtr(model.No)}, Enabled: true},
		{ID: "old-rule", Title: "Old", When: "anything", Action: model.FilterAction{DeductPoints: model.IntPtr(5)}, Enabled: false},
	}

	_, err := New(p, 0, nil).Evaluate(context.Background(), testJob, "Resume:\nPython", filters, "Value open source work.")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, want := range []string{
		"DECISION FILTERS (must enforce):",
		"- id: no-go\n  when: no Go experience\n  action: set_recommendation=NO",
		"AI INSIGHTS FROM PREVIOUS FEEDBACK:\nValue open source work.",
		"IDEAL CANDIDATE PROFILE:\n5+ years of Go",
		"WARNING FLAGS:\nNot specified",
		"Resume:\nPython",
	} {
		if !strings.Contains(p.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(p.prompt, "old-rule") {
		t.Error("disabled filter leaked into prompt")
	}
}

func TestEvaluateWithoutFiltersOmitsSection(t *testing.T) {
	p := &mockProvider{response: `{"overall_score": 10, "recommendation": "NO"}`}
	if _, err := New(p, 0, nil).Evaluate(context.Background(), testJob, "x", nil, ""); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if strings.Contains(p.prompt, "DECISION FILTERS") || strings.Contains(p.prompt, "AI INSIGHTS") {
		t.Error("expected no filter or insight sections")
	}
}

func TestEvaluateProviderErrorIsUnavailable(t *testing.T) {
	p := &mockProvider{err: errors.New("connection refused")}
	_, err := New(p, 0, nil).Evaluate(context.Background(), testJob, "x", nil, "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.Op != "evaluate" {
		t.Errorf("expected UnavailableError for evaluate, got %#v", err)
	}
}

func TestEvaluateNilProvider(t *testing.T) {
	_, err := New(nil, 0, nil).Evaluate(context.Background(), testJob, "x", nil, "")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, llm.ErrNoProvider) {
		t.Errorf("expected unavailable/no provider, got %v", err)
	}
}

func TestEvaluateMalformedResponse(t *testing.T) {
	p := &mockProvider{response: "I cannot evaluate this candidate."}
	_, err := New(p, 0, nil).Evaluate(context.Background(), testJob, "x", nil, "")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("malformed response should not count as unavailable")
	}
}

func TestGenerateInsights(t *testing.T) {
	p := &mockProvider{response: `{
		"evaluation_criteria_refinements": "Weight production Go higher.",
		"strength_identification_patterns": ["Open source", "On-call experience"],
		"concern_identification_patterns": "",
		"scoring_calibration": "Scores ran 10 points high.",
		"recommendation_logic": null
	}`}
	score := 40
	batch := []model.HumanFeedback{{
		CandidateKey:     "jane_doe",
		Recommendation:   model.No,
		Score:            &score,
		Notes:            "No production experience",
		AIRecommendation: model.Yes,
	}}

	text, err := New(p, 0, nil).GenerateInsights(context.Background(), testJob, batch, "")
	if err != nil {
		t.Fatalf("GenerateInsights: %v", err)
	}
	if !strings.Contains(text, "**Evaluation criteria refinements:**\nWeight production Go higher.") {
		t.Errorf("missing criteria section in %q", text)
	}
	if !strings.Contains(text, "- Open source\n- On-call experience") {
		t.Errorf("missing list section in %q", text)
	}
	if strings.Contains(text, "Concern identification") || strings.Contains(text, "Recommendation logic") {
		t.Errorf("empty sections should be skipped: %q", text)
	}
	if !strings.Contains(p.prompt, `"candidate": "jane_doe"`) || !strings.Contains(p.prompt, "None yet") {
		t.Errorf("prompt missing feedback batch or prior placeholder")
	}
}

func TestGenerateInsightsEmptySections(t *testing.T) {
	p := &mockProvider{response: `{"unrelated": "x"}`}
	_, err := New(p, 0, nil).GenerateInsights(context.Background(), testJob, nil, "prior")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}
