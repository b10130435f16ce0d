package database

import (
	"database/sql"
	"fmt"
)

// InsertRun records a finished run with all its per-candidate results.
func (db *DB) InsertRun(run *Run) error {
	return db.withTx(func(tx *sql.Tx) error {
		if err := ensureJobTx(tx, run.JobKey); err != nil {
			return err
		}
		var finished any
		if run.FinishedAt != nil {
			finished = formatTime(*run.FinishedAt)
		}
		_, err := tx.Exec(
			`INSERT INTO evaluation_runs (id, job_key, kind, started_at, finished_at, evaluated, failed)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.JobKey, string(run.Kind), formatTime(run.StartedAt), finished, run.Evaluated, run.Failed,
		)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		stmt, err := tx.Prepare(
			`INSERT OR REPLACE INTO run_results (run_id, candidate_key, old_score, new_score, score_delta, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range run.Results {
			var errText any
			if r.Error != "" {
				errText = r.Error
			}
			if _, err := stmt.Exec(run.ID, r.CandidateKey, nullableInt(r.OldScore), nullableInt(r.NewScore),
				nullableInt(r.Delta), errText); err != nil {
				return fmt.Errorf("inserting run result for %s: %w", r.CandidateKey, err)
			}
		}
		return nil
	})
}

// ListRuns returns a job's most recent runs, newest first, without results.
func (db *DB) ListRuns(jobKey string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT id, job_key, kind, started_at, finished_at, evaluated, failed
		 FROM evaluation_runs WHERE job_key = ? ORDER BY started_at DESC LIMIT ?`,
		jobKey, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns a run with its results, or nil when the id is unknown.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT id, job_key, kind, started_at, finished_at, evaluated, failed FROM evaluation_runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := db.conn.Query(
		`SELECT candidate_key, old_score, new_score, score_delta, error FROM run_results WHERE run_id = ? ORDER BY rowid`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                  RunResult
			oldS, newS, deltaS sql.NullInt64
			errText            sql.NullString
		)
		if err := rows.Scan(&r.CandidateKey, &oldS, &newS, &deltaS, &errText); err != nil {
			return nil, err
		}
		r.OldScore, r.NewScore, r.Delta = intPtr(oldS), intPtr(newS), intPtr(deltaS)
		r.Error = errText.String
		run.Results = append(run.Results, r)
	}
	return run, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r        Run
		kind     string
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&r.ID, &r.JobKey, &kind, &started, &finished, &r.Evaluated, &r.Failed); err != nil {
		return nil, err
	}
	r.Kind = RunKind(kind)
	r.StartedAt = parseTime(started)
	r.FinishedAt = nullableTime(finished)
	return &r, nil
}
