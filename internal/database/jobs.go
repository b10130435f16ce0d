package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// EnsureJob creates the job row if it does not exist yet.
func (db *DB) EnsureJob(key string) error {
	_, err := db.conn.Exec(`INSERT OR IGNORE INTO jobs (key) VALUES (?)`, key)
	if err != nil {
		return fmt.Errorf("ensuring job %s: %w", key, err)
	}
	return nil
}

func ensureJobTx(tx *sql.Tx, key string) error {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO jobs (key) VALUES (?)`, key); err != nil {
		return fmt.Errorf("ensuring job %s: %w", key, err)
	}
	return nil
}

// GetJob returns the job state, or a zero state for a job never seen.
func (db *DB) GetJob(key string) (*JobState, error) {
	row := db.conn.QueryRow(
		`SELECT key, feedback_since_regen, filter_version, last_regenerated_at FROM jobs WHERE key = ?`, key,
	)
	var (
		j    JobState
		last sql.NullString
	)
	if err := row.Scan(&j.Key, &j.FeedbackSinceRegen, &j.FilterVersion, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &JobState{Key: key}, nil
		}
		return nil, fmt.Errorf("reading job %s: %w", key, err)
	}
	j.LastRegeneratedAt = nullableTime(last)
	return &j, nil
}

// ListJobStates returns every known job ordered by key.
func (db *DB) ListJobStates() ([]JobState, error) {
	rows, err := db.conn.Query(
		`SELECT key, feedback_since_regen, filter_version, last_regenerated_at FROM jobs ORDER BY key`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []JobState
	for rows.Next() {
		var (
			j    JobState
			last sql.NullString
		)
		if err := rows.Scan(&j.Key, &j.FeedbackSinceRegen, &j.FilterVersion, &last); err != nil {
			return nil, err
		}
		j.LastRegeneratedAt = nullableTime(last)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// SetFilterVersion mirrors the filter document version into the job row.
func (db *DB) SetFilterVersion(jobKey string, version int) error {
	return db.withTx(func(tx *sql.Tx) error {
		if err := ensureJobTx(tx, jobKey); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE jobs SET filter_version = ? WHERE key = ?`, version, jobKey)
		return err
	})
}

// GetStats returns workspace-wide counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	var (
		s    Stats
		last sql.NullString
	)
	err := db.conn.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM jobs),
			(SELECT COUNT(*) FROM feedback),
			(SELECT COUNT(*) FROM feedback WHERE consumed_at IS NULL),
			(SELECT COUNT(*) FROM evaluation_runs),
			(SELECT MAX(started_at) FROM evaluation_runs)`).
		Scan(&s.Jobs, &s.Feedback, &s.PendingFeedback, &s.Runs, &last)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	s.LastRunStartedAt = nullableTime(last)
	return &s, nil
}
