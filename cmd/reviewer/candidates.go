package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CandidateReviewer/internal/identity"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
	"github.com/TobiSchelling/CandidateReviewer/internal/pipeline"
	"github.com/TobiSchelling/CandidateReviewer/internal/store"
)

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobCreateCmd)
	jobCmd.AddCommand(jobListCmd)

	rootCmd.AddCommand(intakeCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(reEvaluateCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(reportCmd)
}

// --- job commands ---

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage job postings",
}

var (
	jobName        string
	jobDescription string
	jobIdeal       string
	jobWarnings    string
)

var jobCreateCmd = &cobra.Command{
	Use:   "create [key]",
	Short: "Create or update a job",
	Long: "Create or update a job. Text flags starting with @ are read from a file,\n" +
		"e.g. --description @posting.txt",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job := model.JobContext{Key: args[0], Name: jobName}
		var err error
		if job.Description, err = readTextArg(jobDescription); err != nil {
			return err
		}
		if job.IdealCandidate, err = readTextArg(jobIdeal); err != nil {
			return err
		}
		if job.WarningFlags, err = readTextArg(jobWarnings); err != nil {
			return err
		}
		if job.Name == "" {
			job.Name = job.Key
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.pipeline.SetupJob(job); err != nil {
				return err
			}
			fmt.Printf("Saved job %s (%s)\n", job.Key, job.Name)
			return nil
		})
	},
}

func init() {
	jobCreateCmd.Flags().StringVar(&jobName, "name", "", "Display name (default: the key)")
	jobCreateCmd.Flags().StringVar(&jobDescription, "description", "", "Job description, or @file")
	jobCreateCmd.Flags().StringVar(&jobIdeal, "ideal", "", "Ideal candidate profile, or @file")
	jobCreateCmd.Flags().StringVar(&jobWarnings, "warnings", "", "Warning flags, or @file")
	_ = jobCreateCmd.MarkFlagRequired("description")
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			keys, err := a.docs.ListJobs()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("No jobs yet. Create one with: reviewer job create")
				return nil
			}
			for _, key := range keys {
				job, err := a.docs.LoadJob(key)
				if err != nil {
					return err
				}
				fmt.Printf("  %s  %s\n", key, job.Name)
			}
			return nil
		})
	},
}

// readTextArg returns s, or the contents of the file it names when prefixed with @.
func readTextArg(s string) (string, error) {
	if !strings.HasPrefix(s, "@") {
		return s, nil
	}
	data, err := os.ReadFile(s[1:])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", s[1:], err)
	}
	return string(data), nil
}

// --- intake ---

var (
	intakeResume      string
	intakeCoverLetter string
	intakeApplication string
)

var intakeCmd = &cobra.Command{
	Use:   "intake [job] [candidate name]",
	Short: "Add a candidate's documents and evaluate them",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs := store.Documents{}
		for docType, path := range map[string]string{
			"resume":       intakeResume,
			"cover_letter": intakeCoverLetter,
			"application":  intakeApplication,
		} {
			if path == "" {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
			}
			docs[docType] = string(data)
		}
		if len(docs) == 0 {
			return errors.New("provide at least one of --resume, --cover-letter, --application")
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.pipeline.Intake(ctx, args[0], args[1], docs)
			if res != nil {
				printIntake(res)
			}
			return err
		})
	},
}

func init() {
	intakeCmd.Flags().StringVar(&intakeResume, "resume", "", "Resume text file")
	intakeCmd.Flags().StringVar(&intakeCoverLetter, "cover-letter", "", "Cover letter text file")
	intakeCmd.Flags().StringVar(&intakeApplication, "application", "", "Application answers text file")
}

func printIntake(res *pipeline.IntakeResult) {
	switch res.Resolution.Action {
	case identity.ActionMerge:
		fmt.Printf("Merged into existing candidate %s\n", res.CandidateKey)
	case identity.ActionCollision:
		fmt.Printf("Different person with the same name: stored as %s\n", res.CandidateKey)
	case identity.ActionDuplicateFlag:
		fmt.Printf("Possible duplicate of %s: stored as %s for review\n", res.Resolution.Match, res.CandidateKey)
		if w := res.Resolution.Warning; w != nil {
			fmt.Printf("  Shared identifiers: %s\n", w.Overlap)
		}
	default:
		fmt.Printf("New candidate %s\n", res.CandidateKey)
	}
	if res.Resolution.Insufficient {
		fmt.Println("  Not enough identifiers to confirm identity; reused the same-name record.")
	}
	if res.Skipped {
		fmt.Println("  Candidate was rejected earlier; documents saved, evaluation skipped.")
		return
	}
	if res.Report != nil {
		printRunReport(res.Report)
	}
}

// --- evaluation ---

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [job]",
	Short: "Evaluate candidates that have no evaluation yet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			rep, err := a.pipeline.EvaluatePending(ctx, args[0])
			if err != nil {
				return err
			}
			printRunReport(rep)
			return nil
		})
	},
}

var reEvaluateKeys []string

var reEvaluateCmd = &cobra.Command{
	Use:   "re-evaluate [job]",
	Short: "Re-evaluate candidates with the current filters and insights",
	Long: "Re-evaluate candidates with the current filters and insights. Without\n" +
		"--candidates, every candidate that is not rejected and not already\n" +
		"recommended NO or STRONG_NO is included.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			rep, err := a.pipeline.ReEvaluate(ctx, args[0], reEvaluateKeys)
			if err != nil {
				return err
			}
			printRunReport(rep)
			return nil
		})
	},
}

func init() {
	reEvaluateCmd.Flags().StringSliceVar(&reEvaluateKeys, "candidates", nil, "Candidate keys to re-evaluate (comma-separated)")
}

func printRunReport(rep *pipeline.Report) {
	if len(rep.Results) == 0 {
		fmt.Println("Nothing to evaluate.")
		return
	}
	fmt.Printf("\nRun %s (%s):\n", rep.RunID, rep.Kind)
	for _, o := range rep.Results {
		switch {
		case o.Err != nil:
			fmt.Printf("  %-30s FAILED: %v\n", o.CandidateKey, o.Err)
		case o.HadPrevious:
			fmt.Printf("  %-30s %3d -> %3d (%+d)  %s\n", o.CandidateKey, o.OldScore, o.NewScore, o.Delta, o.Recommendation)
		default:
			fmt.Printf("  %-30s %3d  %s\n", o.CandidateKey, o.NewScore, o.Recommendation)
		}
	}
	fmt.Printf("\nEvaluated: %d, failed: %d\n", rep.Evaluated, rep.Failed)
	if rep.RenderErr != nil {
		fmt.Printf("Rankings were not updated: %v\n", rep.RenderErr)
	}
}

// --- reject ---

var rejectReason string

var rejectCmd = &cobra.Command{
	Use:   "reject [job] [candidate]",
	Short: "Mark a candidate as rejected",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.pipeline.Reject(ctx, args[0], args[1], rejectReason); err != nil {
				return err
			}
			fmt.Printf("Rejected %s\n", args[1])
			return nil
		})
	},
}

func init() {
	rejectCmd.Flags().StringVarP(&rejectReason, "reason", "r", "", "Rejection reason")
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report [job]",
	Short: "Write rankings.md, rankings.html and rankings.csv for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.reports.Render(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Rankings written to %s\n", a.docs.OutputDir(args[0]))
			return nil
		})
	},
}
