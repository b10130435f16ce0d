package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CandidateReviewer/internal/filters"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

const (
	promptCreateFilter = "Create a screening filter from this rejection"
	promptSkip         = "Skip"
)

func init() {
	rootCmd.AddCommand(feedbackCmd)

	rootCmd.AddCommand(insightsCmd)
	insightsCmd.AddCommand(insightsShowCmd)
	insightsCmd.AddCommand(insightsRegenerateCmd)
	insightsCmd.AddCommand(insightsFeedbackCmd)
}

// --- feedback ---

var (
	feedbackRec         string
	feedbackScore       int
	feedbackNotes       string
	feedbackCorrections []string
	feedbackNoFilter    bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback [job] [candidate]",
	Short: "Record a reviewer's verdict on a candidate",
	Long: "Record a reviewer's verdict on a candidate. Without --recommendation the\n" +
		"verdict is chosen interactively, and a negative verdict offers to turn the\n" +
		"notes into a screening filter.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobKey, candidateKey := args[0], args[1]

		interactive := feedbackRec == ""
		rec, err := chooseRecommendation(feedbackRec)
		if err != nil {
			return err
		}

		fb := model.HumanFeedback{
			JobKey:         jobKey,
			CandidateKey:   candidateKey,
			Recommendation: rec,
			Notes:          feedbackNotes,
		}
		if cmd.Flags().Changed("score") {
			fb.Score = model.IntPtr(feedbackScore)
		}
		if len(feedbackCorrections) > 0 {
			fb.Corrections = make(map[string]string, len(feedbackCorrections))
			for _, c := range feedbackCorrections {
				field, value, ok := strings.Cut(c, "=")
				if !ok {
					return fmt.Errorf("correction %q must be field=value", c)
				}
				fb.Corrections[strings.TrimSpace(field)] = strings.TrimSpace(value)
			}
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			due, err := a.insights.RecordFeedback(ctx, jobKey, fb)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded %s for %s\n", rec, candidateKey)

			if interactive && !feedbackNoFilter && rec.Negative() && strings.TrimSpace(fb.Notes) != "" {
				if err := offerFilter(a, jobKey, fb); err != nil {
					return err
				}
			}

			if !due {
				return nil
			}
			ins, err := a.insights.MaybeRegenerate(ctx, jobKey)
			if err != nil {
				// The feedback is stored; insights are retried on the next record.
				fmt.Printf("Insights were not regenerated: %v\n", err)
				return nil
			}
			if ins != nil {
				fmt.Printf("Insights regenerated from %d feedback record(s)\n", ins.FeedbackCount)
			}
			return nil
		})
	},
}

func init() {
	feedbackCmd.Flags().StringVarP(&feedbackRec, "recommendation", "r", "", "STRONG_YES, YES, MAYBE, NO or STRONG_NO")
	feedbackCmd.Flags().IntVarP(&feedbackScore, "score", "s", 0, "Your score (0-100)")
	feedbackCmd.Flags().StringVarP(&feedbackNotes, "notes", "n", "", "Reasoning for the verdict")
	feedbackCmd.Flags().StringArrayVar(&feedbackCorrections, "correct", nil, "Correction to the AI output as field=value (repeatable)")
	feedbackCmd.Flags().BoolVar(&feedbackNoFilter, "no-filter", false, "Do not offer to create a filter")
}

func chooseRecommendation(flag string) (model.Recommendation, error) {
	if flag != "" {
		return model.ParseRecommendation(flag)
	}

	items := make([]string, 0, len(model.Recommendations))
	for i := len(model.Recommendations) - 1; i >= 0; i-- {
		items = append(items, string(model.Recommendations[i]))
	}
	prompt := promptui.Select{
		Label: "Your recommendation",
		Items: items,
	}
	_, selected, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return model.Recommendation(selected), nil
}

// offerFilter asks whether a negative verdict should become a screening filter.
func offerFilter(a *app, jobKey string, fb model.HumanFeedback) error {
	choice := promptui.Select{
		Label: "Apply this reasoning to future candidates?",
		Items: []string{promptCreateFilter, promptSkip},
	}
	_, selected, err := choice.Run()
	if err != nil {
		return err
	}
	if selected != promptCreateFilter {
		return nil
	}

	titlePrompt := promptui.Prompt{
		Label:   "Filter title",
		Default: firstLineOf(fb.Notes),
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("title is required")
			}
			return nil
		},
	}
	title, err := titlePrompt.Run()
	if err != nil {
		return err
	}

	set, err := a.filters.Load(jobKey)
	if err != nil {
		return err
	}
	f := filters.FromRejection(set, strings.TrimSpace(title), fb.Notes, fb.Recommendation)
	if _, err := a.filters.Add(jobKey, f); err != nil {
		return err
	}
	fmt.Printf("Added filter %s (%s). Run 'reviewer re-evaluate %s' to apply it.\n", f.ID, f.Action, jobKey)
	return nil
}

func firstLineOf(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// --- insights ---

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show or regenerate a job's learned insights",
}

var insightsShowCmd = &cobra.Command{
	Use:   "show [job]",
	Short: "Print the current insights and agreement metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			jobKey := args[0]
			if _, err := a.docs.LoadJob(jobKey); err != nil {
				return err
			}
			ins, err := a.docs.LoadInsights(jobKey)
			if err != nil {
				return err
			}
			if ins == nil {
				fmt.Println("No insights generated yet.")
			} else {
				fmt.Printf("Insights from %d feedback record(s), updated %s\n\n",
					ins.FeedbackCount, ins.LastUpdated.Local().Format("2006-01-02 15:04"))
				fmt.Println(ins.GeneratedInsights)
			}

			m, err := a.insights.Metrics(ctx, jobKey)
			if err != nil {
				return err
			}
			state, err := a.db.GetJob(jobKey)
			if err != nil {
				return err
			}
			fmt.Println("\nFeedback:")
			fmt.Printf("  Total: %d\n", m.TotalFeedback)
			fmt.Printf("  Since last regeneration: %d (threshold %d)\n", state.FeedbackSinceRegen, a.insights.Threshold)
			fmt.Printf("  Agreement with AI: %.0f%% (%d)\n", m.AgreementRate*100, m.Agreements)
			fmt.Printf("  Avg score distance: %.1f\n", m.AvgScoreDistance)
			return nil
		})
	},
}

var insightsRegenerateCmd = &cobra.Command{
	Use:   "regenerate [job]",
	Short: "Regenerate insights from unconsumed feedback now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			ins, err := a.insights.Regenerate(ctx, args[0])
			if err != nil {
				return err
			}
			if ins == nil {
				fmt.Println("No new feedback to learn from.")
				return nil
			}
			fmt.Printf("Insights regenerated from %d feedback record(s)\n\n", ins.FeedbackCount)
			fmt.Println(ins.GeneratedInsights)
			return nil
		})
	},
}

var insightsFeedbackCmd = &cobra.Command{
	Use:   "feedback [job]",
	Short: "List every feedback record for a job, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			records, err := a.db.ListFeedback(args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No feedback recorded yet.")
				return nil
			}
			for _, fb := range records {
				fmt.Println(feedbackLine(fb))
			}
			return nil
		})
	},
}

// feedbackLine formats one record as "when candidate AI -> human  notes".
func feedbackLine(fb model.HumanFeedback) string {
	ai := "-"
	if fb.AIRecommendation != "" {
		ai = string(fb.AIRecommendation)
		if fb.AIScore != nil {
			ai += fmt.Sprintf(" (%d)", *fb.AIScore)
		}
	}
	human := string(fb.Recommendation)
	if fb.Score != nil {
		human += fmt.Sprintf(" (%d)", *fb.Score)
	}
	line := fmt.Sprintf("  %s  %-30s %s -> %s", fb.CreatedAt.Local().Format("2006-01-02 15:04"), fb.CandidateKey, ai, human)
	if notes := firstLineOf(fb.Notes); notes != "" {
		line += "  " + notes
	}
	return line
}
