package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/CandidateReviewer/internal/config"
	"github.com/TobiSchelling/CandidateReviewer/internal/database"
	"github.com/TobiSchelling/CandidateReviewer/internal/evaluator"
	"github.com/TobiSchelling/CandidateReviewer/internal/filters"
	"github.com/TobiSchelling/CandidateReviewer/internal/insights"
	"github.com/TobiSchelling/CandidateReviewer/internal/llm"
	"github.com/TobiSchelling/CandidateReviewer/internal/logging"
	"github.com/TobiSchelling/CandidateReviewer/internal/pipeline"
	"github.com/TobiSchelling/CandidateReviewer/internal/report"
	"github.com/TobiSchelling/CandidateReviewer/internal/server"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	envPath    string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reviewer",
	Short:   "AI-assisted candidate screening",
	Long:    "reviewer evaluates job candidates with an LLM, enforces human screening filters, and learns from reviewer feedback.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envPath); err != nil {
			return err
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = zap.NewNop()
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "DEBUG"
		}
		logger, err = logging.New(level, cfg.Logging.JSON)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", "", "Path to a .env file (default ./.env)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}

// app holds the wired components for one command invocation.
type app struct {
	db       *database.DB
	docs     *store.Store
	filters  *filters.Store
	insights *insights.Engine
	pipeline *pipeline.Pipeline
	reports  *report.Writer
}

// openApp wires storage, the evaluator and the pipeline. A missing LLM
// provider is not fatal: commands that never evaluate still work, and
// evaluations fail per candidate.
func openApp(ctx context.Context) (*app, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := database.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return nil, err
	}
	docs := store.New(dataDir)

	provider, err := llm.CreateProvider(ctx, llm.Config{
		Provider:    cfg.Evaluator.Provider,
		Model:       cfg.Evaluator.Model,
		OllamaURL:   cfg.Evaluator.OllamaURL,
		OpenAIModel: cfg.Evaluator.OpenAIModel,
		GeminiModel: cfg.Evaluator.GeminiModel,
		APIKeyEnv:   cfg.Evaluator.APIKeyEnv,
		Timeout:     time.Duration(cfg.Evaluator.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		if !errors.Is(err, llm.ErrNoProvider) {
			db.Close()
			return nil, err
		}
		logger.Warn("no LLM provider available, evaluations will fail", zap.Error(err))
		provider = nil
	}

	eval := evaluator.New(provider, cfg.Evaluator.MaxTokens, logger)
	filterStore := filters.NewStore(docs, db, logger)
	reports := report.NewWriter(docs, logger)

	return &app{
		db:       db,
		docs:     docs,
		filters:  filterStore,
		insights: insights.NewEngine(db, docs, eval, cfg.Insights.Threshold, logger),
		pipeline: pipeline.New(docs, filterStore, db, eval, reports, logger),
		reports:  reports,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("reviewer", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/candidate-reviewer/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose the LLM provider; put API keys in .env.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show jobs and database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			stats, err := a.db.GetStats()
			if err != nil {
				return fmt.Errorf("getting stats: %w", err)
			}
			jobs, err := a.docs.ListJobs()
			if err != nil {
				return err
			}

			fmt.Printf("Data directory: %s\n\n", a.docs.Root())
			fmt.Println("Jobs:")
			if len(jobs) == 0 {
				fmt.Println("  none yet. Create one with: reviewer job create")
			}
			for _, key := range jobs {
				candidates, err := a.docs.ListCandidates(key)
				if err != nil {
					return err
				}
				state, err := a.db.GetJob(key)
				if err != nil {
					return err
				}
				fmt.Printf("  %s: %d candidate(s), filters v%d, %d feedback since last insights\n",
					key, len(candidates), state.FilterVersion, state.FeedbackSinceRegen)
			}

			fmt.Println("\nFeedback:")
			fmt.Printf("  Total: %d\n", stats.Feedback)
			fmt.Printf("  Pending insights: %d\n", stats.PendingFeedback)
			fmt.Println("\nEvaluation runs:")
			fmt.Printf("  Total: %d\n", stats.Runs)
			if stats.LastRunStartedAt != nil {
				fmt.Printf("  Last: %s\n", stats.LastRunStartedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		})
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local review UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, server.Deps{
			Docs:     a.docs,
			DB:       a.db,
			Filters:  a.filters,
			Insights: a.insights,
			Pipeline: a.pipeline,
			Logger:   logger,
		}, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}
