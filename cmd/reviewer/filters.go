package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CandidateReviewer/internal/filters"
	"github.com/TobiSchelling/CandidateReviewer/internal/model"
)

func init() {
	rootCmd.AddCommand(filtersCmd)
	filtersCmd.AddCommand(filtersListCmd)
	filtersCmd.AddCommand(filtersShowCmd)
	filtersCmd.AddCommand(filtersAddCmd)
	filtersCmd.AddCommand(filtersEnableCmd)
	filtersCmd.AddCommand(filtersDisableCmd)

	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)
}

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Manage a job's screening filters",
}

var filtersListCmd = &cobra.Command{
	Use:   "list [job]",
	Short: "List screening filters in evaluation order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			set, err := a.filters.Load(args[0])
			if err != nil {
				return err
			}
			if len(set.Filters) == 0 {
				fmt.Printf("No filters defined. Add one with: reviewer filters add %s\n", args[0])
				return nil
			}
			fmt.Printf("Screening filters (version %d):\n\n", set.Version)
			for _, f := range set.Filters {
				icon := " "
				if f.Enabled {
					icon = "*"
				}
				fmt.Printf("  %s %-24s %s\n", icon, f.ID, f.Title)
				fmt.Printf("      %s\n", f.Action)
			}
			return nil
		})
	},
}

var filtersShowCmd = &cobra.Command{
	Use:   "show [job] [id]",
	Short: "Show one screening filter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			set, err := a.filters.Load(args[0])
			if err != nil {
				return err
			}
			f, _ := set.Find(args[1])
			if f == nil {
				return fmt.Errorf("%w: %s", filters.ErrFilterNotFound, args[1])
			}
			fmt.Printf("ID:        %s\n", f.ID)
			fmt.Printf("Title:     %s\n", f.Title)
			fmt.Printf("When:      %s\n", f.When)
			fmt.Printf("Action:    %s\n", f.Action)
			fmt.Printf("Enabled:   %t\n", f.Enabled)
			fmt.Printf("Source:    %s\n", f.Source)
			if f.Rationale != "" {
				fmt.Printf("Rationale: %s\n", f.Rationale)
			}
			if f.CreatedAt != nil {
				fmt.Printf("Created:   %s\n", f.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		})
	},
}

var (
	filterID        string
	filterTitle     string
	filterWhen      string
	filterSet       string
	filterCap       string
	filterDeduct    int
	filterRationale string
	filterDisabled  bool
)

var filtersAddCmd = &cobra.Command{
	Use:   "add [job]",
	Short: "Add a screening filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := model.ScreeningFilter{
			ID:        filterID,
			Title:     filterTitle,
			When:      filterWhen,
			Enabled:   !filterDisabled,
			Source:    model.SourceHuman,
			Rationale: filterRationale,
		}
		if f.ID == "" {
			f.ID = filters.Slug(f.Title)
		}
		if filterSet != "" {
			rec, err := model.ParseRecommendation(filterSet)
			if err != nil {
				return err
			}
			f.Action.SetRecommendation = &rec
		}
		if filterCap != "" {
			rec, err := model.ParseRecommendation(filterCap)
			if err != nil {
				return err
			}
			f.Action.CapRecommendation = &rec
		}
		if cmd.Flags().Changed("deduct") {
			f.Action.DeductPoints = model.IntPtr(filterDeduct)
		}
		if f.Action.Empty() {
			return errors.New("a filter needs at least one of --set, --cap, --deduct")
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			set, err := a.filters.Add(args[0], f)
			if err != nil {
				return err
			}
			fmt.Printf("Added filter %s (version %d)\n", f.ID, set.Version)
			return nil
		})
	},
}

func init() {
	filtersAddCmd.Flags().StringVar(&filterID, "id", "", "Filter id (default: slug of the title)")
	filtersAddCmd.Flags().StringVar(&filterTitle, "title", "", "Short title")
	filtersAddCmd.Flags().StringVar(&filterWhen, "when", "", "Condition the evaluator checks")
	filtersAddCmd.Flags().StringVar(&filterSet, "set", "", "Force this recommendation when the filter fires")
	filtersAddCmd.Flags().StringVar(&filterCap, "cap", "", "Cap the recommendation at this level")
	filtersAddCmd.Flags().IntVar(&filterDeduct, "deduct", 0, "Points to deduct from the score")
	filtersAddCmd.Flags().StringVar(&filterRationale, "rationale", "", "Why the filter exists")
	filtersAddCmd.Flags().BoolVar(&filterDisabled, "disabled", false, "Add the filter disabled")
	_ = filtersAddCmd.MarkFlagRequired("title")
	_ = filtersAddCmd.MarkFlagRequired("when")
}

var filtersEnableCmd = &cobra.Command{
	Use:   "enable [job] [id]",
	Short: "Enable a screening filter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFilterEnabled(cmd, args[0], args[1], true)
	},
}

var filtersDisableCmd = &cobra.Command{
	Use:   "disable [job] [id]",
	Short: "Disable a screening filter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFilterEnabled(cmd, args[0], args[1], false)
	},
}

func setFilterEnabled(cmd *cobra.Command, jobKey, id string, enabled bool) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		set, err := a.filters.SetEnabled(jobKey, id, enabled)
		if err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Printf("Filter %s %s (version %d)\n", id, state, set.Version)
		fmt.Printf("Run 'reviewer re-evaluate %s' to apply the change to existing candidates.\n", jobKey)
		return nil
	})
}

// --- runs ---

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [job]",
	Short: "List recent evaluation runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			runs, err := a.db.ListRuns(args[0], runsLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No evaluation runs yet.")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("  %s  %-12s %s  evaluated %d, failed %d\n",
					r.ID, r.Kind, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Evaluated, r.Failed)
			}
			return nil
		})
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run id]",
	Short: "Show per-candidate results of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			run, err := a.db.GetRun(args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			fmt.Printf("Run %s for %s (%s)\n", run.ID, run.JobKey, run.Kind)
			fmt.Printf("Started %s\n\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
			for _, res := range run.Results {
				if res.Error != "" {
					fmt.Printf("  %-30s FAILED: %s\n", res.CandidateKey, res.Error)
					continue
				}
				fmt.Printf("  %-30s %s -> %s (%s)\n", res.CandidateKey,
					scoreText(res.OldScore), scoreText(res.NewScore), deltaText(res.Delta))
			}
			return nil
		})
	},
}

func scoreText(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}

func deltaText(p *int) string {
	if p == nil {
		return "new"
	}
	return fmt.Sprintf("%+d", *p)
}
