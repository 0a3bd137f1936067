package cli

import (
	"fmt"
	"time"

	"github.com/YuminosukeSato/churnlab/internal/churn"
	"github.com/YuminosukeSato/churnlab/internal/store"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Train, evaluate and report every configured model",
		Args:  cobra.NoArgs,
		RunE:  runE,
	}
}

func runE(cmd *cobra.Command, _ []string) error {
	cfg := getConfig(cmd.Context())
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	_, err := churn.NewRunner(cfg, cmd.OutOrStdout()).Run(cmd.Context())
	if errors.Is(err, errors.ErrFileNotFound) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Error: The file '%s' was not found.\n", cfg.DataPath)
		return &ExitError{Code: 1, Err: err}
	}
	return err
}

func newHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous runs recorded in the results database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig(cmd.Context())
			if cfg == nil {
				return errors.New("configuration not loaded")
			}
			if cfg.ResultsDB == "" {
				return errors.NewValidationError("results_db", "must be set to list history", cfg.ResultsDB)
			}

			ctx := cmd.Context()
			db, err := store.Open(cfg.ResultsDB)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.InitSchema(ctx); err != nil {
				return err
			}

			runs, err := db.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "(0 runs)")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Run", "Started", "Status", "Data", "Best model", "Accuracy"})
			for _, run := range runs {
				results, err := db.GetResults(ctx, run.ID)
				if err != nil {
					return err
				}
				bestName, bestAcc := "-", ""
				var best *store.ModelResult
				for _, r := range results {
					if best == nil || r.Accuracy > best.Accuracy {
						best = r
					}
				}
				if best != nil {
					bestName, bestAcc = best.Model, fmt.Sprintf("%.4f", best.Accuracy)
				}
				t.AppendRow(table.Row{
					run.ID, run.StartedAt.Local().Format(time.DateTime), run.Status, run.DataPath, bestName, bestAcc,
				})
			}
			t.Render()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "(%d runs)\n", len(runs))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list (0 for all)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "churnlab %s (commit %s)\n", Version, GitCommit)
		},
	}
}
