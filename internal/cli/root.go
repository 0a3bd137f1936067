// Package cli provides the churnlab command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/YuminosukeSato/churnlab/internal/config"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

type configKey struct{}

// ExitError carries the process exit status of a failed command whose
// message was already printed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

func (e *ExitError) Unwrap() error { return e.Err }

// NewRootCmd creates the root command. Without a subcommand it performs
// a run.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "churnlab",
		Short: "Train and compare customer churn classifiers",
		Long: `churnlab loads a customer table, one-hot encodes categorical columns,
scales numeric ones and trains Logistic Regression, Random Forest and
Gradient Boosting classifiers to predict the churn label. It prints
accuracy, a classification report and the top feature importances for each
model and saves confusion-matrix and importance plots.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "__complete", "version":
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if err := log.SetupLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()); err != nil {
				return err
			}
			if cfg.ConfigFile != "" {
				log.GetLoggerWithName("cli").Debug("Using config file", log.PathKey, cfg.ConfigFile)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		RunE:          runE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./churnlab.yaml)")
	pf.String("data", "", "path to the customer CSV (default customer_churn.csv)")
	pf.String("target", "", "name of the label column (default Churn)")
	pf.Float64("test-size", 0.2, "fraction of rows held out for evaluation")
	pf.Int64("random-state", 42, "seed for the split and the models")
	pf.Bool("stratify", false, "keep class proportions in the train/test split")
	pf.StringSlice("models", nil, "models to train (logistic_regression,random_forest,gradient_boosting)")
	pf.String("output-dir", "", "directory for plots and exported weights (default churn_plots)")
	pf.Int("top-k", 10, "number of feature importances to print and plot")
	pf.Bool("no-plots", false, "skip writing plot files")
	pf.String("report-json", "", "write the run report as JSON to this path")
	pf.Bool("export-weights", false, "write fitted logistic regression weights as JSON")
	pf.String("results-db", "", "SQLite file recording run history")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (console|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("models", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.ModelLogisticRegression, config.ModelRandomForest, config.ModelGradientBoosting},
			cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// Execute runs the root command and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			slog.Error("command failed", log.ErrAttr(exit.Err))
		}
		return exit.Code
	}
	slog.Error("command failed", log.ErrAttr(err))
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// getConfig returns the configuration loaded by the root command.
func getConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return nil
}
