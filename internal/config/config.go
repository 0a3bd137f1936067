// Package config loads churnlab run settings from defaults, a YAML file,
// CHURNLAB_ environment variables and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nested keys: CHURNLAB_RANDOM_FOREST__N_ESTIMATORS.
const EnvPrefix = "CHURNLAB_"

// DefaultConfigFile is picked up from the working directory when no
// explicit --config is given.
const DefaultConfigFile = "churnlab.yaml"

// Model identifiers accepted in Config.Models.
const (
	ModelLogisticRegression = "logistic_regression"
	ModelRandomForest       = "random_forest"
	ModelGradientBoosting   = "gradient_boosting"
)

// LogisticConfig holds LogisticRegression hyperparameters.
type LogisticConfig struct {
	C       float64 `koanf:"c"`
	MaxIter int     `koanf:"max_iter"`
	Tol     float64 `koanf:"tol"`
}

// ForestConfig holds RandomForestClassifier hyperparameters.
type ForestConfig struct {
	NEstimators    int    `koanf:"n_estimators"`
	MaxDepth       int    `koanf:"max_depth"`
	MinSamplesLeaf int    `koanf:"min_samples_leaf"`
	MaxFeatures    string `koanf:"max_features"`
	Criterion      string `koanf:"criterion"`
	NJobs          int    `koanf:"n_jobs"`
}

// BoostingConfig holds GradientBoostingClassifier hyperparameters.
type BoostingConfig struct {
	NEstimators  int     `koanf:"n_estimators"`
	LearningRate float64 `koanf:"learning_rate"`
	MaxDepth     int     `koanf:"max_depth"`
	Subsample    float64 `koanf:"subsample"`
}

// Config holds every setting of a churn run.
type Config struct {
	DataPath      string   `koanf:"data_path"`
	Target        string   `koanf:"target"`
	TestSize      float64  `koanf:"test_size"`
	RandomState   int64    `koanf:"random_state"`
	Stratify      bool     `koanf:"stratify"`
	NumericScaler string   `koanf:"numeric_scaler"`
	HandleUnknown string   `koanf:"handle_unknown"`
	DropColumns   []string `koanf:"drop_columns"`
	Models        []string `koanf:"models"`
	OutputDir     string   `koanf:"output_dir"`
	TopK          int      `koanf:"top_k"`
	Plots         bool     `koanf:"plots"`
	PlotFormat    string   `koanf:"plot_format"`
	ReportJSON    string   `koanf:"report_json"`
	ExportWeights bool     `koanf:"export_weights"`
	ResultsDB     string   `koanf:"results_db"`
	LogLevel      string   `koanf:"log_level"`
	LogFormat     string   `koanf:"log_format"`

	LogisticRegression LogisticConfig `koanf:"logistic_regression"`
	RandomForest       ForestConfig   `koanf:"random_forest"`
	GradientBoosting   BoostingConfig `koanf:"gradient_boosting"`

	// ConfigFile is the YAML file that was read, if any.
	ConfigFile string `koanf:"-"`
}

// Defaults returns the built-in settings as a flat koanf map.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"data_path":      "customer_churn.csv",
		"target":         "Churn",
		"test_size":      0.2,
		"random_state":   42,
		"stratify":       false,
		"numeric_scaler": "standard",
		"handle_unknown": "ignore",
		"drop_columns":   []string{"customerID"},
		"models":         []string{ModelLogisticRegression, ModelRandomForest, ModelGradientBoosting},
		"output_dir":     "churn_plots",
		"top_k":          10,
		"plots":          true,
		"plot_format":    "png",
		"report_json":    "",
		"export_weights": false,
		"results_db":     "",
		"log_level":      "info",
		"log_format":     "console",

		"logistic_regression.c":        1.0,
		"logistic_regression.max_iter": 1000,
		"logistic_regression.tol":      1e-4,

		"random_forest.n_estimators":     100,
		"random_forest.max_depth":        0,
		"random_forest.min_samples_leaf": 1,
		"random_forest.max_features":     "sqrt",
		"random_forest.criterion":        "gini",
		"random_forest.n_jobs":           0,

		"gradient_boosting.n_estimators":  100,
		"gradient_boosting.learning_rate": 0.1,
		"gradient_boosting.max_depth":     3,
		"gradient_boosting.subsample":     1.0,
	}
}

// flagKeys maps flag names whose config key is not the snake_case name.
var flagKeys = map[string]string{
	"data": "data_path",
}

// Load builds a Config. Precedence, highest first: flags that were set on
// the command line, CHURNLAB_ env vars, the YAML file, defaults.
// cfgFile may be empty, in which case churnlab.yaml is used when present.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	used, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", used)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load env vars")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			if f.Name == "no-plots" {
				v, _ := flags.GetBool("no-plots")
				return "plots", !v
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, errors.Wrap(err, "failed to load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	cfg.ConfigFile = used
	cfg.Models = splitList(cfg.Models)
	cfg.DropColumns = splitList(cfg.DropColumns)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns the explicit file, which must exist, or the
// default file when it exists in the working directory.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Mark(errors.Wrapf(err, "config file %s", explicit), errors.ErrFileNotFound)
		}
		return explicit, nil
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile, nil
	}
	return "", nil
}

// splitList accepts both a YAML list and a single comma separated string
// (the env var form).
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return errors.NewValidationError("data_path", "must not be empty", c.DataPath)
	}
	if c.Target == "" {
		return errors.NewValidationError("target", "must not be empty", c.Target)
	}
	if !(c.TestSize > 0 && c.TestSize < 1) {
		return errors.NewValidationError("test_size", "must be in the open interval (0, 1)", c.TestSize)
	}
	if c.TopK < 0 {
		return errors.NewValidationError("top_k", "must be >= 0", c.TopK)
	}
	switch c.NumericScaler {
	case "standard", "minmax":
	default:
		return errors.NewValidationError("numeric_scaler", "must be 'standard' or 'minmax'", c.NumericScaler)
	}
	switch c.HandleUnknown {
	case "error", "ignore":
	default:
		return errors.NewValidationError("handle_unknown", "must be 'error' or 'ignore'", c.HandleUnknown)
	}
	switch c.PlotFormat {
	case "png", "svg", "pdf":
	default:
		return errors.NewValidationError("plot_format", "must be png, svg or pdf", c.PlotFormat)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return errors.NewValidationError("log_format", "must be 'console' or 'json'", c.LogFormat)
	}
	if _, err := log.ToLogLevel(c.LogLevel); err != nil {
		return err
	}

	if len(c.Models) == 0 {
		return errors.NewValidationError("models", "at least one model is required", c.Models)
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		switch m {
		case ModelLogisticRegression, ModelRandomForest, ModelGradientBoosting:
		default:
			return errors.NewValidationError("models", "unknown model", m)
		}
		if seen[m] {
			return errors.NewValidationError("models", "duplicate model", m)
		}
		seen[m] = true
	}

	if c.LogisticRegression.C <= 0 {
		return errors.NewValidationError("logistic_regression.c", "must be > 0", c.LogisticRegression.C)
	}
	if c.LogisticRegression.MaxIter <= 0 {
		return errors.NewValidationError("logistic_regression.max_iter", "must be > 0", c.LogisticRegression.MaxIter)
	}
	if c.RandomForest.NEstimators <= 0 {
		return errors.NewValidationError("random_forest.n_estimators", "must be > 0", c.RandomForest.NEstimators)
	}
	if c.GradientBoosting.NEstimators <= 0 {
		return errors.NewValidationError("gradient_boosting.n_estimators", "must be > 0", c.GradientBoosting.NEstimators)
	}
	if c.GradientBoosting.LearningRate <= 0 {
		return errors.NewValidationError("gradient_boosting.learning_rate", "must be > 0", c.GradientBoosting.LearningRate)
	}
	if !(c.GradientBoosting.Subsample > 0 && c.GradientBoosting.Subsample <= 1) {
		return errors.NewValidationError("gradient_boosting.subsample", "must be in (0, 1]", c.GradientBoosting.Subsample)
	}
	return nil
}

// PlotPath returns the output file for a plot named stem.
func (c *Config) PlotPath(stem string) string {
	return filepath.Join(c.OutputDir, stem+"."+c.PlotFormat)
}
