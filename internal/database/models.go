package database

import "time"

// JobState is the relational half of a job aggregate.
type JobState struct {
	Key                string
	FeedbackSinceRegen int
	FilterVersion      int
	LastRegeneratedAt  *time.Time
}

// RunKind distinguishes first-time evaluations from re-evaluations.
type RunKind string

const (
	RunInitial    RunKind = "initial"
	RunReEvaluate RunKind = "re-evaluate"
)

// Run is one batch evaluation pass over a job's candidates.
type Run struct {
	ID         string
	JobKey     string
	Kind       RunKind
	StartedAt  time.Time
	FinishedAt *time.Time
	Evaluated  int
	Failed     int
	Results    []RunResult
}

// RunResult is one candidate's outcome within a run. Error is empty on success.
type RunResult struct {
	CandidateKey string
	OldScore     *int
	NewScore     *int
	Delta        *int
	Error        string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Jobs             int
	Feedback         int
	PendingFeedback  int
	Runs             int
	LastRunStartedAt *time.Time
}
