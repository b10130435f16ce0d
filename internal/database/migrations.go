package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
    key TEXT PRIMARY KEY,
    feedback_since_regen INTEGER NOT NULL DEFAULT 0,
    filter_version INTEGER NOT NULL DEFAULT 0,
    last_regenerated_at TEXT,
    created_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS feedback (
    id TEXT PRIMARY KEY,
    job_key TEXT NOT NULL REFERENCES jobs(key),
    candidate_key TEXT NOT NULL,
    human_recommendation TEXT NOT NULL CHECK(human_recommendation IN ('STRONG_NO', 'NO', 'MAYBE', 'YES', 'STRONG_YES')),
    human_score INTEGER,
    notes TEXT NOT NULL DEFAULT '',
    corrections TEXT,
    ai_recommendation TEXT,
    ai_score INTEGER,
    created_at TEXT NOT NULL,
    consumed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_feedback_job ON feedback(job_key);
CREATE INDEX IF NOT EXISTS idx_feedback_candidate ON feedback(job_key, candidate_key);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "evaluation run audit",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS evaluation_runs (
    id TEXT PRIMARY KEY,
    job_key TEXT NOT NULL REFERENCES jobs(key),
    kind TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    evaluated INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_results (
    run_id TEXT NOT NULL REFERENCES evaluation_runs(id),
    candidate_key TEXT NOT NULL,
    old_score INTEGER,
    new_score INTEGER,
    score_delta INTEGER,
    error TEXT,
    PRIMARY KEY (run_id, candidate_key)
);

CREATE INDEX IF NOT EXISTS idx_runs_job ON evaluation_runs(job_key, started_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
