package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// requiredColumns lists the columns the queries in this package rely on.
var requiredColumns = map[string][]string{
	"jobs":            {"key", "feedback_since_regen", "filter_version", "last_regenerated_at"},
	"feedback":        {"id", "job_key", "candidate_key", "human_recommendation", "human_score", "notes", "corrections", "ai_recommendation", "ai_score", "created_at", "consumed_at"},
	"evaluation_runs": {"id", "job_key", "kind", "started_at", "finished_at", "evaluated", "failed"},
	"run_results":     {"run_id", "candidate_key", "old_score", "new_score", "score_delta", "error"},
}

// verifySchema checks that every required column exists. Migrations use
// CREATE TABLE IF NOT EXISTS, so a foreign table of the same name would
// otherwise be accepted silently.
func verifySchema(conn *sql.DB) error {
	tables := make([]string, 0, len(requiredColumns))
	for table := range requiredColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var missing []string
	for _, table := range tables {
		rows, err := conn.Query("SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", table, err)
		}
		have := map[string]bool{}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("inspecting %s: %w", table, err)
			}
			have[name] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", table, err)
		}
		for _, col := range requiredColumns[table] {
			if !have[col] {
				missing = append(missing, table+"."+col)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database schema does not match version %d, missing columns: %s",
			latestVersion(), strings.Join(missing, ", "))
	}
	return nil
}

// migrate brings the database schema up to the latest version.
// It uses PRAGMA user_version to track which migrations have been applied.
func migrate(conn *sql.DB, logger *zap.Logger) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	latest := latestVersion()
	if current > latest {
		return fmt.Errorf("database schema version %d is newer than this build supports (%d)", current, latest)
	}
	if current == latest {
		return verifySchema(conn)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		logger.Info("applying migration", zap.Int("version", m.Version), zap.String("description", m.Description))

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// Set user_version outside the transaction (modernc/sqlite requirement).
		// If we crash here, the idempotent DDL lets the migration re-run.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return verifySchema(conn)
}
