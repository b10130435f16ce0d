package model

import "time"

// RawEvaluation is the evaluator's output before policy enforcement.
// Score is not clamped and Notes may start with a violation marker line.
type RawEvaluation struct {
	Score             int            `json:"overall_score"`
	Recommendation    Recommendation `json:"recommendation"`
	Strengths         []string       `json:"strengths"`
	Concerns          []string       `json:"concerns"`
	InterviewPriority Priority       `json:"interview_priority"`
	Notes             string         `json:"detailed_notes"`
	InsightsApplied   string         `json:"insights_applied,omitempty"`
	RulesApplied      []string       `json:"rules_applied,omitempty"`
}

// Evaluation is a RawEvaluation after policy enforcement.
type Evaluation struct {
	Score             int            `json:"overall_score"`
	Recommendation    Recommendation `json:"recommendation"`
	Strengths         []string       `json:"strengths"`
	Concerns          []string       `json:"concerns"`
	InterviewPriority Priority       `json:"interview_priority"`
	Notes             string         `json:"detailed_notes"`
	Timestamp         time.Time      `json:"timestamp"`
	RulesApplied      []string       `json:"rules_applied"`
	InsightsApplied   string         `json:"insights_applied,omitempty"`
}

// HistoryEntry is a superseded evaluation together with the score change
// that replaced it.
type HistoryEntry struct {
	Evaluation
	ScoreDelta   int       `json:"score_delta"`
	SupersededAt time.Time `json:"superseded_at"`
}
