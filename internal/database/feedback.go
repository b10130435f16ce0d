package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

const feedbackColumns = `id, job_key, candidate_key, human_recommendation, human_score, notes,
	corrections, ai_recommendation, ai_score, created_at`

// InsertFeedback appends fb to the feedback log and increments the job's
// feedback counter in one transaction. It returns the new counter value.
func (db *DB) InsertFeedback(fb model.HumanFeedback) (int, error) {
	var corrections any
	if len(fb.Corrections) > 0 {
		data, err := json.Marshal(fb.Corrections)
		if err != nil {
			return 0, fmt.Errorf("encoding corrections: %w", err)
		}
		corrections = string(data)
	}
	var aiRec any
	if fb.AIRecommendation != "" {
		aiRec = string(fb.AIRecommendation)
	}

	var count int
	err := db.withTx(func(tx *sql.Tx) error {
		if err := ensureJobTx(tx, fb.JobKey); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO feedback (`+feedbackColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fb.ID, fb.JobKey, fb.CandidateKey, string(fb.Recommendation), nullableInt(fb.Score), fb.Notes,
			corrections, aiRec, nullableInt(fb.AIScore), formatTime(fb.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting feedback: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE jobs SET feedback_since_regen = feedback_since_regen + 1 WHERE key = ?`, fb.JobKey,
		); err != nil {
			return fmt.Errorf("incrementing feedback counter: %w", err)
		}
		return tx.QueryRow(`SELECT feedback_since_regen FROM jobs WHERE key = ?`, fb.JobKey).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UnconsumedFeedback returns the feedback not yet folded into insights, oldest first.
func (db *DB) UnconsumedFeedback(jobKey string) ([]model.HumanFeedback, error) {
	return db.queryFeedback(
		`SELECT `+feedbackColumns+` FROM feedback WHERE job_key = ? AND consumed_at IS NULL ORDER BY created_at, id`,
		jobKey,
	)
}

// ListFeedback returns all feedback for a job, oldest first.
func (db *DB) ListFeedback(jobKey string) ([]model.HumanFeedback, error) {
	return db.queryFeedback(
		`SELECT `+feedbackColumns+` FROM feedback WHERE job_key = ? ORDER BY created_at, id`, jobKey,
	)
}

// FeedbackForCandidate returns a candidate's feedback, newest first.
func (db *DB) FeedbackForCandidate(jobKey, candidateKey string) ([]model.HumanFeedback, error) {
	return db.queryFeedback(
		`SELECT `+feedbackColumns+` FROM feedback WHERE job_key = ? AND candidate_key = ? ORDER BY created_at DESC, id`,
		jobKey, candidateKey,
	)
}

func (db *DB) queryFeedback(query string, args ...any) ([]model.HumanFeedback, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var out []model.HumanFeedback
	for rows.Next() {
		var (
			fb          model.HumanFeedback
			rec         string
			score       sql.NullInt64
			corrections sql.NullString
			aiRec       sql.NullString
			aiScore     sql.NullInt64
			created     string
		)
		if err := rows.Scan(&fb.ID, &fb.JobKey, &fb.CandidateKey, &rec, &score, &fb.Notes,
			&corrections, &aiRec, &aiScore, &created); err != nil {
			return nil, err
		}
		fb.Recommendation = model.Recommendation(rec)
		fb.Score = intPtr(score)
		fb.AIRecommendation = model.Recommendation(aiRec.String)
		fb.AIScore = intPtr(aiScore)
		fb.CreatedAt = parseTime(created)
		if corrections.Valid && corrections.String != "" {
			if err := json.Unmarshal([]byte(corrections.String), &fb.Corrections); err != nil {
				return nil, fmt.Errorf("decoding corrections for feedback %s: %w", fb.ID, err)
			}
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// ConsumeFeedback marks the batch as folded into insights and resets the
// job's counter to the number of entries still unconsumed.
func (db *DB) ConsumeFeedback(jobKey string, ids []string, at time.Time) error {
	return db.withTx(func(tx *sql.Tx) error {
		if len(ids) > 0 {
			query := `UPDATE feedback SET consumed_at = ? WHERE job_key = ? AND id IN (?` +
				strings.Repeat(",?", len(ids)-1) + `)`
			args := make([]any, 0, len(ids)+2)
			args = append(args, formatTime(at), jobKey)
			for _, id := range ids {
				args = append(args, id)
			}
			if _, err := tx.Exec(query, args...); err != nil {
				return fmt.Errorf("marking feedback consumed: %w", err)
			}
		}
		_, err := tx.Exec(`
			UPDATE jobs SET
				feedback_since_regen = (SELECT COUNT(*) FROM feedback WHERE job_key = ? AND consumed_at IS NULL),
				last_regenerated_at = ?
			WHERE key = ?`,
			jobKey, formatTime(at), jobKey,
		)
		if err != nil {
			return fmt.Errorf("resetting feedback counter: %w", err)
		}
		return nil
	})
}

// GetEffectiveness aggregates agreement between AI and human verdicts for a job.
// Only feedback recorded against an AI recommendation counts towards the rate.
func (db *DB) GetEffectiveness(jobKey string) (*model.Effectiveness, error) {
	var (
		e         model.Effectiveness
		compared  sql.NullInt64
		agreement sql.NullInt64
		distance  sql.NullFloat64
	)
	err := db.conn.QueryRow(`
		SELECT
			COUNT(*),
			SUM(CASE WHEN ai_recommendation IS NOT NULL AND ai_recommendation != '' THEN 1 ELSE 0 END),
			SUM(CASE WHEN ai_recommendation = human_recommendation THEN 1 ELSE 0 END),
			AVG(CASE WHEN ai_score IS NOT NULL AND human_score IS NOT NULL
				THEN ABS(ai_score - human_score) END)
		FROM feedback WHERE job_key = ?`, jobKey).
		Scan(&e.TotalFeedback, &compared, &agreement, &distance)
	if err != nil {
		return nil, fmt.Errorf("computing effectiveness: %w", err)
	}
	e.Agreements = int(agreement.Int64)
	if compared.Int64 > 0 {
		e.AgreementRate = float64(e.Agreements) / float64(compared.Int64)
	}
	e.AvgScoreDistance = distance.Float64
	return &e, nil
}
