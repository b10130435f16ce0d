// Package server is the local web UI for reviewing rankings, toggling
// filters and recording feedback.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/database"
	"github.com/TobiSchelling/CandidateReviewer/internal/filters"
	"github.com/TobiSchelling/CandidateReviewer/internal/insights"
	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/pipeline"
	"github.com/TobiSchelling/CandidateReviewer/internal/report"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Deps are the components the server reads from and writes through.
type Deps struct {
	Docs     *store.Store
	DB       *database.DB
	Filters  *filters.Store
	Insights *insights.Engine
	Pipeline *pipeline.Pipeline
	Logger   *zap.Logger
}

// Server is the HTTP server for the review UI.
type Server struct {
	deps   Deps
	pages  map[string]*template.Template
	mux    *http.ServeMux
	logger *zap.Logger
}

// New creates a new Server.
func New(deps Deps) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":        renderMarkdown,
		"recommendations": func() []model.Recommendation { return model.Recommendations },
		"recClass": func(r model.Recommendation) string {
			return strings.ToLower(strings.ReplaceAll(string(r), "_", "-"))
		},
		"signed": func(n int) string { return fmt.Sprintf("%+d", n) },
		"percent": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
		"when": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("2006-01-02 15:04")
		},
		"deref": func(n *int) string {
			if n == nil {
				return "-"
			}
			return strconv.Itoa(*n)
		},
		"join": strings.Join,
		"add1": func(i int) int { return i + 1 },
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "job.html", "candidate.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{deps: deps, pages: pages, mux: http.NewServeMux(), logger: logging.OrNop(deps.Logger)}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /jobs/{job}", s.handleJob)
	s.mux.HandleFunc("GET /jobs/{job}/rankings.csv", s.handleRankingsCSV)
	s.mux.HandleFunc("POST /jobs/{job}/filters/{id}/toggle", s.handleToggleFilter)
	s.mux.HandleFunc("GET /jobs/{job}/candidates/{key}", s.handleCandidate)
	s.mux.HandleFunc("POST /jobs/{job}/candidates/{key}/feedback", s.handleFeedback)
	s.mux.HandleFunc("POST /jobs/{job}/candidates/{key}/reject", s.handleReject)
}

type jobSummary struct {
	Key             string
	Name            string
	Candidates      int
	Evaluated       int
	PendingFeedback int
	FilterVersion   int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.Docs.ListJobs()
	if err != nil {
		s.fail(w, err)
		return
	}

	var jobs []jobSummary
	for _, key := range keys {
		rk, err := report.Build(s.deps.Docs, key)
		if err != nil {
			s.fail(w, err)
			return
		}
		state, err := s.deps.DB.GetJob(key)
		if err != nil {
			s.fail(w, err)
			return
		}
		jobs = append(jobs, jobSummary{
			Key:             key,
			Name:            rk.Job.Name,
			Candidates:      len(rk.Ranked) + len(rk.NotEvaluated) + len(rk.Rejected),
			Evaluated:       len(rk.Ranked),
			PendingFeedback: state.FeedbackSinceRegen,
			FilterVersion:   state.FilterVersion,
		})
	}

	s.render(w, "index.html", map[string]any{
		"Jobs": jobs,
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobKey := r.PathValue("job")
	rk, err := report.Build(s.deps.Docs, jobKey)
	if err != nil {
		s.fail(w, err)
		return
	}

	data := map[string]any{"Rankings": rk, "JobKey": jobKey}

	set, err := s.deps.Filters.Load(jobKey)
	var schemaErr *filters.FilterSchemaError
	switch {
	case errors.As(err, &schemaErr):
		data["FilterError"] = schemaErr.Error()
	case err != nil:
		s.fail(w, err)
		return
	default:
		data["Filters"] = set
	}

	ins, err := s.deps.Docs.LoadInsights(jobKey)
	if err != nil {
		s.fail(w, err)
		return
	}
	data["Insights"] = ins

	metrics, err := s.deps.Insights.Metrics(r.Context(), jobKey)
	if err != nil {
		s.fail(w, err)
		return
	}
	data["Metrics"] = metrics

	runs, err := s.deps.DB.ListRuns(jobKey, 5)
	if err != nil {
		s.fail(w, err)
		return
	}
	data["Runs"] = runs

	s.render(w, "job.html", data)
}

func (s *Server) handleRankingsCSV(w http.ResponseWriter, r *http.Request) {
	jobKey := r.PathValue("job")
	rk, err := report.Build(s.deps.Docs, jobKey)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobKey+"-rankings.csv"))
	if err := rk.WriteCSV(w); err != nil {
		s.logger.Error("writing csv", zap.String(logging.FieldJob, jobKey), zap.Error(err))
	}
}

func (s *Server) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	jobKey, id := r.PathValue("job"), r.PathValue("id")
	set, err := s.deps.Filters.Load(jobKey)
	if err != nil {
		s.fail(w, err)
		return
	}
	f, _ := set.Find(id)
	if f == nil {
		http.NotFound(w, r)
		return
	}
	if _, err := s.deps.Filters.SetEnabled(jobKey, id, !f.Enabled); err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/jobs/"+jobKey, http.StatusSeeOther)
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	jobKey, key := r.PathValue("job"), r.PathValue("key")

	job, err := s.deps.Docs.LoadJob(jobKey)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, err := s.deps.Docs.LoadIdentity(jobKey, key)
	if err != nil {
		s.fail(w, err)
		return
	}
	ev, err := s.deps.Docs.LoadEvaluation(jobKey, key)
	if err != nil {
		s.fail(w, err)
		return
	}
	raw, err := s.deps.Docs.LoadRawEvaluation(jobKey, key)
	if err != nil {
		s.fail(w, err)
		return
	}
	hist, err := s.deps.Docs.LoadHistory(jobKey, key)
	if err != nil {
		s.fail(w, err)
		return
	}
	warnings, err := s.deps.Docs.LoadWarnings(jobKey, key)
	if err != nil {
		s.fail(w, err)
		return
	}
	feedback, err := s.deps.DB.FeedbackForCandidate(jobKey, key)
	if err != nil {
		s.fail(w, err)
		return
	}

	// newest first
	for i, j := 0, len(hist)-1; i < j; i, j = i+1, j-1 {
		hist[i], hist[j] = hist[j], hist[i]
	}

	s.render(w, "candidate.html", map[string]any{
		"Job":        job,
		"JobKey":     jobKey,
		"Identity":   id,
		"Evaluation": ev,
		"Raw":        raw,
		"History":    hist,
		"Warnings":   warnings,
		"Feedback":   feedback,
		"Message":    r.URL.Query().Get("msg"),
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	jobKey, key := r.PathValue("job"), r.PathValue("key")
	back := "/jobs/" + jobKey + "/candidates/" + key

	rec, err := model.ParseRecommendation(r.FormValue("recommendation"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fb := model.HumanFeedback{
		CandidateKey:   key,
		Recommendation: rec,
		Notes:          strings.TrimSpace(r.FormValue("notes")),
	}
	if raw := strings.TrimSpace(r.FormValue("score")); raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "score must be a number", http.StatusBadRequest)
			return
		}
		fb.Score = &score
	}

	due, err := s.deps.Insights.RecordFeedback(r.Context(), jobKey, fb)
	if err != nil {
		if pipeline.IsNotFound(err) {
			s.fail(w, err)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg := "Feedback recorded."
	if due {
		ins, err := s.deps.Insights.MaybeRegenerate(r.Context(), jobKey)
		switch {
		case insights.IsGenerationError(err):
			s.logger.Warn("insight regeneration failed", zap.String(logging.FieldJob, jobKey), zap.Error(err))
			msg = "Feedback recorded. Insight regeneration failed and will be retried."
		case err != nil:
			s.logger.Error("saving insights", zap.String(logging.FieldJob, jobKey), zap.Error(err))
			msg = "Feedback recorded. Insights could not be saved: " + err.Error()
		case ins != nil:
			msg = "Feedback recorded. Insights regenerated."
		}
	}
	http.Redirect(w, r, back+"?msg="+url.QueryEscape(msg), http.StatusSeeOther)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	jobKey, key := r.PathValue("job"), r.PathValue("key")
	reason := strings.TrimSpace(r.FormValue("reason"))
	if err := s.deps.Pipeline.Reject(r.Context(), jobKey, key, reason); err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/jobs/"+jobKey+"/candidates/"+key+"?msg="+url.QueryEscape("Candidate rejected."), http.StatusSeeOther)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if pipeline.IsNotFound(err) || errors.Is(err, filters.ErrFilterNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Error("rendering template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port and shuts it down when ctx ends.
func Serve(ctx context.Context, deps Deps, port int) error {
	srv, err := New(deps)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	srv.logger.Info("server listening", zap.String("url", "http://"+addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
