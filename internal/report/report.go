// Package report renders a job's candidate rankings as markdown, HTML and CSV
// under the workspace output directory.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

// Row is one candidate's line in the rankings.
type Row struct {
	Key             string
	Evaluated       bool
	Score           int
	Recommendation  model.Recommendation
	Priority        model.Priority
	Strengths       []string
	Concerns        []string
	RulesApplied    []string
	EvaluatedAt     time.Time
	Rejected        bool
	RejectionReason string
	Warnings        int
}

// Rankings is the ordered view of a job's candidates.
type Rankings struct {
	Job          model.JobContext
	Ranked       []Row
	NotEvaluated []Row
	Rejected     []Row
}

// Build loads every candidate of a job and orders them: evaluated candidates
// by score descending then key, followed by pending and rejected ones.
func Build(docs *store.Store, jobKey string) (*Rankings, error) {
	job, err := docs.LoadJob(jobKey)
	if err != nil {
		return nil, err
	}
	ids, err := docs.LoadIdentities(jobKey)
	if err != nil {
		return nil, err
	}

	r := &Rankings{Job: *job}
	for _, id := range ids {
		row := Row{Key: id.CandidateKey, Rejected: id.Rejected, RejectionReason: id.RejectionReason}
		ev, err := docs.LoadEvaluation(jobKey, id.CandidateKey)
		if err != nil {
			return nil, fmt.Errorf("loading evaluation for %s: %w", id.CandidateKey, err)
		}
		if ev != nil {
			row.Evaluated = true
			row.Score = ev.Score
			row.Recommendation = ev.Recommendation
			row.Priority = ev.InterviewPriority
			row.Strengths = ev.Strengths
			row.Concerns = ev.Concerns
			row.RulesApplied = ev.RulesApplied
			row.EvaluatedAt = ev.Timestamp
		}
		ws, err := docs.LoadWarnings(jobKey, id.CandidateKey)
		if err != nil {
			return nil, err
		}
		row.Warnings = len(ws)

		switch {
		case row.Rejected:
			r.Rejected = append(r.Rejected, row)
		case row.Evaluated:
			r.Ranked = append(r.Ranked, row)
		default:
			r.NotEvaluated = append(r.NotEvaluated, row)
		}
	}

	sort.SliceStable(r.Ranked, func(i, j int) bool {
		if r.Ranked[i].Score != r.Ranked[j].Score {
			return r.Ranked[i].Score > r.Ranked[j].Score
		}
		return r.Ranked[i].Key < r.Ranked[j].Key
	})
	return r, nil
}

// Markdown renders the rankings as a markdown document.
func (r *Rankings) Markdown(generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Candidate Rankings: %s\n\n", r.Job.Name)
	fmt.Fprintf(&b, "_Generated %s. %d evaluated, %d pending, %d rejected._\n\n",
		generated.Format("2006-01-02 15:04"), len(r.Ranked), len(r.NotEvaluated), len(r.Rejected))

	if len(r.Ranked) > 0 {
		b.WriteString("| # | Candidate | Score | Recommendation | Priority | Filters |\n")
		b.WriteString("|---|-----------|-------|----------------|----------|---------|\n")
		for i, row := range r.Ranked {
			name := row.Key
			if row.Warnings > 0 {
				name += " ⚠"
			}
			fmt.Fprintf(&b, "| %d | %s | %d | %s | %s | %s |\n",
				i+1, name, row.Score, row.Recommendation, row.Priority, joinOr(row.RulesApplied, "-"))
		}
		b.WriteString("\n")
	}

	var sections []string
	for _, row := range r.Ranked {
		section := fmt.Sprintf("## %s (%d, %s)", row.Key, row.Score, row.Recommendation)
		if len(row.Strengths) > 0 {
			section += "\n\n**Strengths:**\n" + bullets(row.Strengths)
		}
		if len(row.Concerns) > 0 {
			section += "\n\n**Concerns:**\n" + bullets(row.Concerns)
		}
		sections = append(sections, section)
	}
	if len(r.NotEvaluated) > 0 {
		sections = append(sections, "## Pending evaluation\n\n"+bullets(keys(r.NotEvaluated)))
	}
	if len(r.Rejected) > 0 {
		var lines []string
		for _, row := range r.Rejected {
			line := row.Key
			if row.RejectionReason != "" {
				line += ": " + row.RejectionReason
			}
			lines = append(lines, line)
		}
		sections = append(sections, "## Rejected\n\n"+bullets(lines))
	}
	b.WriteString(strings.Join(sections, "\n\n---\n\n"))
	b.WriteString("\n")
	return b.String()
}

var csvHeader = []string{
	"rank", "candidate", "score", "recommendation", "interview_priority",
	"rules_applied", "strengths", "concerns", "duplicate_warnings", "evaluated_at",
}

// WriteCSV writes the ranked candidates as CSV.
func (r *Rankings) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i, row := range r.Ranked {
		rec := []string{
			strconv.Itoa(i + 1),
			row.Key,
			strconv.Itoa(row.Score),
			string(row.Recommendation),
			string(row.Priority),
			strings.Join(row.RulesApplied, ";"),
			strings.Join(row.Strengths, "; "),
			strings.Join(row.Concerns, "; "),
			strconv.Itoa(row.Warnings),
			row.EvaluatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML converts markdown into a standalone HTML page.
func HTML(title, markdown string) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n",
		html.EscapeString(title))
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Writer renders report files for a job. It implements pipeline.Reporter.
type Writer struct {
	docs   *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewWriter creates a report writer.
func NewWriter(docs *store.Store, logger *zap.Logger) *Writer {
	return &Writer{docs: docs, logger: logging.OrNop(logger), now: time.Now}
}

// Render writes rankings.md, rankings.html and rankings.csv for jobKey.
func (w *Writer) Render(ctx context.Context, jobKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := Build(w.docs, jobKey)
	if err != nil {
		return err
	}

	dir := w.docs.OutputDir(jobKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	markdown := r.Markdown(w.now())
	if err := store.WriteFileAtomic(filepath.Join(dir, "rankings.md"), []byte(markdown), 0o644); err != nil {
		return err
	}

	page, err := HTML("Candidate Rankings: "+r.Job.Name, markdown)
	if err != nil {
		return err
	}
	if err := store.WriteFileAtomic(filepath.Join(dir, "rankings.html"), page, 0o644); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := r.WriteCSV(&buf); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	if err := store.WriteFileAtomic(filepath.Join(dir, "rankings.csv"), buf.Bytes(), 0o644); err != nil {
		return err
	}

	w.logger.Info("reports written",
		zap.String(logging.FieldJob, jobKey),
		zap.String("dir", dir),
		zap.Int("ranked", len(r.Ranked)))
	return nil
}

func bullets(items []string) string {
	return "- " + strings.Join(items, "\n- ")
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func keys(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}
