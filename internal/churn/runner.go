// Package churn runs the churn modelling workflow end to end: load the
// CSV, preprocess, split, fit every configured model, evaluate, plot and
// report.
package churn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YuminosukeSato/churnlab/compose"
	"github.com/YuminosukeSato/churnlab/dataset"
	"github.com/YuminosukeSato/churnlab/inspection"
	"github.com/YuminosukeSato/churnlab/internal/config"
	"github.com/YuminosukeSato/churnlab/internal/store"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/model_selection"
	"github.com/YuminosukeSato/churnlab/pipeline"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"github.com/YuminosukeSato/churnlab/plot"
	"github.com/YuminosukeSato/churnlab/preprocessing"
	"github.com/YuminosukeSato/churnlab/report"
	"github.com/YuminosukeSato/churnlab/sklearn/linear_model"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Runner executes one churn run for a configuration.
type Runner struct {
	cfg    *config.Config
	out    io.Writer
	logger log.Logger
}

// NewRunner returns a Runner printing its report to out.
func NewRunner(cfg *config.Config, out io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	return &Runner{cfg: cfg, out: out, logger: log.GetLoggerWithName("churn")}
}

// prepared is the dataset after label encoding and the train/test split.
type prepared struct {
	classes      []string
	preprocessor *compose.ColumnTransformer
	xTrain       *dataset.Frame
	xTest        *dataset.Frame
	yTrain       []float64
	yTest        []float64
	nFeatures    int
}

// Run executes the workflow. A missing data file returns an error that
// satisfies errors.Is(err, errors.ErrFileNotFound).
func (r *Runner) Run(ctx context.Context) (rep *report.RunReport, err error) {
	rep = &report.RunReport{
		RunID:     uuid.New().String(),
		DataPath:  r.cfg.DataPath,
		Target:    r.cfg.Target,
		StartedAt: time.Now().UTC(),
	}

	var db *store.SQLiteStore
	if r.cfg.ResultsDB != "" {
		// history writes must survive cancellation so a failed run is recorded
		dbCtx := context.WithoutCancel(ctx)
		db, err = openStore(dbCtx, r.cfg.ResultsDB)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		var run *store.Run
		run, err = db.CreateRun(dbCtx, r.cfg.DataPath, r.cfg.Target)
		if err != nil {
			return nil, err
		}
		rep.RunID = run.ID
		defer func() {
			status, msg := store.RunStatusCompleted, ""
			if err != nil {
				status, msg = store.RunStatusFailed, err.Error()
			}
			if cerr := db.CompleteRun(dbCtx, run.ID, status, msg); cerr != nil {
				r.logger.Warn("Failed to record run status", cerr)
			}
		}()
	}
	r.logger = r.logger.With(log.RunIDKey, rep.RunID)

	data, err := r.prepare(ctx, rep)
	if err != nil {
		return nil, err
	}

	cands := candidates(r.cfg)
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	report.WriteModels(r.out, names)

	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.evaluate(ctx, c, data)
		if err != nil {
			return nil, err
		}
		report.WriteModelResult(r.out, res, data.classes)
		rep.Models = append(rep.Models, *res)

		if db != nil {
			if err := saveResult(context.WithoutCancel(ctx), db, rep.RunID, res); err != nil {
				return nil, err
			}
		}
	}

	rep.Features = data.nFeatures
	rep.FinishedAt = time.Now().UTC()
	report.WriteSummary(r.out, rep)
	if r.cfg.ReportJSON != "" {
		if err := report.WriteJSON(r.cfg.ReportJSON, rep); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

func openStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating %s", dir)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// prepare loads the data, encodes the target, builds the preprocessor and
// splits rows into train and test sets.
func (r *Runner) prepare(ctx context.Context, rep *report.RunReport) (*prepared, error) {
	frame, err := dataset.ReadCSV(r.cfg.DataPath)
	if err != nil {
		return nil, err
	}
	summary, err := dataset.Summarize(frame, r.cfg.Target)
	if err != nil {
		return nil, err
	}
	rep.Dataset = summary
	report.WriteDataset(r.out, r.cfg.DataPath, summary)

	for _, name := range r.cfg.DropColumns {
		if name == r.cfg.Target {
			continue
		}
		if dropped, err := frame.Drop(name); err == nil {
			frame = dropped
		} else {
			r.logger.Debug("Drop column not present", log.ColumnKey, name)
		}
	}

	X, yRaw, err := dataset.SplitXY(frame, r.cfg.Target)
	if err != nil {
		return nil, err
	}
	le := preprocessing.NewLabelEncoder()
	codes, err := le.FitTransform(yRaw)
	if err != nil {
		return nil, err
	}

	numeric, categorical := X.NumericColumns(), X.CategoricalColumns()
	pre, err := compose.NewChurnPreprocessor(numeric, categorical, r.cfg.NumericScaler,
		compose.WithHandleUnknown(r.cfg.HandleUnknown))
	if err != nil {
		return nil, err
	}
	r.logger.Info("Preprocessor built",
		log.PhaseKey, log.PhasePreprocessing,
		"numeric_features", len(numeric),
		"categorical_features", len(categorical),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := []model_selection.SplitOption{
		model_selection.WithTestSize(r.cfg.TestSize),
		model_selection.WithRandomState(r.cfg.RandomState),
	}
	if r.cfg.Stratify {
		opts = append(opts, model_selection.WithStratify(codes))
	}
	rows, _ := X.Dims()
	train, test, err := model_selection.TrainTestSplit(rows, opts...)
	if err != nil {
		return nil, err
	}

	data := &prepared{
		classes:      le.Classes(),
		preprocessor: pre,
		xTrain:       X.Take(train),
		xTest:        X.Take(test),
		yTrain:       pick(codes, train),
		yTest:        pick(codes, test),
	}
	rep.Classes = data.classes
	rep.TrainSize, rep.TestSize = len(train), len(test)
	return data, nil
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, k := range idx {
		out[i] = v[k]
	}
	return out
}

// evaluate fits one candidate on the training rows and scores it on the
// test rows.
func (r *Runner) evaluate(ctx context.Context, c candidate, data *prepared) (*report.ModelResult, error) {
	logger := r.logger.With(log.ModelNameKey, c.name)
	pipe := pipeline.New(c.name, data.preprocessor, c.build())

	start := time.Now()
	err := errors.SafeExecute("fit "+c.name, func() error {
		return pipe.Fit(ctx, data.xTrain, data.yTrain)
	})
	if err != nil {
		return nil, err
	}
	fitSeconds := time.Since(start).Seconds()
	data.nFeatures = len(pipe.FeatureNames())

	pred, err := pipe.Predict(data.xTest)
	if err != nil {
		return nil, err
	}
	labels := make([]float64, len(data.classes))
	for i := range labels {
		labels[i] = float64(i)
	}

	yTrue := mat.NewVecDense(len(data.yTest), append([]float64(nil), data.yTest...))
	acc, err := metrics.Accuracy(yTrue, mat.NewVecDense(len(pred), append([]float64(nil), pred...)))
	if err != nil {
		return nil, err
	}
	cls, err := metrics.ClassificationReport(data.yTest, pred, labels, data.classes)
	if err != nil {
		return nil, err
	}
	cm, err := metrics.ConfusionMatrix(data.yTest, pred, labels)
	if err != nil {
		return nil, err
	}

	res := &report.ModelResult{
		Name:            c.name,
		Accuracy:        acc,
		Report:          cls,
		ConfusionMatrix: denseRows(cm),
		FitSeconds:      fitSeconds,
	}

	if len(data.classes) == 2 {
		proba, err := pipe.PredictProba(data.xTest)
		if err != nil {
			return nil, err
		}
		score := mat.NewVecDense(len(data.yTest), mat.Col(nil, 1, proba))
		if res.ROCAUC, err = metrics.AUC(yTrue, score); err != nil {
			return nil, err
		}
	}

	slug := strings.ReplaceAll(strings.ToLower(c.name), " ", "_")
	if r.cfg.Plots {
		path := r.cfg.PlotPath("confusion_matrix_" + slug)
		if err := plot.ConfusionMatrixHeatmap(cm, data.classes, "Confusion Matrix - "+c.name, path); err != nil {
			return nil, err
		}
		res.Plots = append(res.Plots, path)
	}

	if imp, ok := pipe.FeatureImportances(); ok {
		ranked, err := inspection.RankFeatureImportances(pipe.FeatureNames(), imp, r.cfg.TopK)
		if err != nil {
			return nil, err
		}
		res.TopFeatures = ranked
		if r.cfg.Plots {
			path := r.cfg.PlotPath("feature_importance_" + slug)
			title := fmt.Sprintf("Top %d Feature Importances - %s", len(ranked), c.name)
			if err := plot.FeatureImportanceBar(ranked, title, path); err != nil {
				return nil, err
			}
			res.Plots = append(res.Plots, path)
		}
	}

	if r.cfg.ExportWeights {
		if lr, ok := pipe.Classifier().(*linear_model.LogisticRegression); ok {
			if err := exportWeights(lr, pipe.FeatureNames(), filepath.Join(r.cfg.OutputDir, slug+"_weights.json")); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("Model evaluated",
		log.PhaseKey, log.PhaseEvaluation,
		log.AccuracyKey, acc,
		log.AUCKey, res.ROCAUC,
		log.DurationMsKey, int64(fitSeconds*1000),
	)
	return res, nil
}

func denseRows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}

func exportWeights(lr *linear_model.LogisticRegression, features []string, path string) error {
	w, err := lr.ExportWeights(features)
	if err != nil {
		return err
	}
	b, err := w.ToJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	return errors.Wrap(os.WriteFile(path, b, 0o644), "writing model weights")
}

func saveResult(ctx context.Context, db *store.SQLiteStore, runID string, res *report.ModelResult) error {
	b, err := json.Marshal(res.Report)
	if err != nil {
		return errors.Wrap(err, "encoding classification report")
	}
	return db.SaveModelResult(ctx, &store.ModelResult{
		RunID:      runID,
		Model:      res.Name,
		Accuracy:   res.Accuracy,
		ROCAUC:     res.ROCAUC,
		MacroF1:    res.Report.MacroAvg.F1,
		FitSeconds: res.FitSeconds,
		ReportJSON: string(b),
	})
}
