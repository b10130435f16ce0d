package model

import "time"

// HumanFeedback is a reviewer's verdict on one candidate. Immutable once recorded.
type HumanFeedback struct {
	ID               string            `json:"id"`
	JobKey           string            `json:"job_key" validate:"required"`
	CandidateKey     string            `json:"candidate_key" validate:"required"`
	Recommendation   Recommendation    `json:"human_recommendation" validate:"required,oneof=STRONG_NO NO MAYBE YES STRONG_YES"`
	Score            *int              `json:"human_score,omitempty" validate:"omitempty,min=0,max=100"`
	Notes            string            `json:"feedback_notes"`
	Corrections      map[string]string `json:"corrections,omitempty"`
	AIRecommendation Recommendation    `json:"ai_recommendation,omitempty"`
	AIScore          *int              `json:"ai_score,omitempty"`
	CreatedAt        time.Time         `json:"timestamp"`
}

// JobInsights is the generated guidance text for a job.
type JobInsights struct {
	GeneratedInsights string         `json:"generated_insights"`
	FeedbackCount     int            `json:"feedback_count"`
	LastUpdated       time.Time      `json:"last_updated"`
	Metrics           *Effectiveness `json:"effectiveness_metrics,omitempty"`
}

// Effectiveness summarizes how often the AI agreed with human reviewers.
type Effectiveness struct {
	TotalFeedback    int     `json:"total_feedback"`
	Agreements       int     `json:"agreements"`
	AgreementRate    float64 `json:"agreement_rate"`
	AvgScoreDistance float64 `json:"avg_score_distance"`
}

// JobContext is the description of a role that candidates are evaluated against.
type JobContext struct {
	Key            string `yaml:"-" json:"-"`
	Name           string `yaml:"name" json:"name" validate:"required"`
	Description    string `yaml:"description" json:"description" validate:"required"`
	IdealCandidate string `yaml:"ideal_candidate,omitempty" json:"ideal_candidate,omitempty"`
	WarningFlags   string `yaml:"warning_flags,omitempty" json:"warning_flags,omitempty"`
}
