package churn

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/churnlab/internal/config"
	"github.com/YuminosukeSato/churnlab/internal/store"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeChurnCSV writes n synthetic customers. Month-to-month customers with
// short tenure churn; a few labels are flipped.
func writeChurnCSV(t *testing.T, dir string, n int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	contracts := []string{"Month-to-month", "One year", "Two year"}

	var b strings.Builder
	b.WriteString("customerID,tenure,Contract,MonthlyCharges,Churn\n")
	for i := 0; i < n; i++ {
		contract := contracts[rng.Intn(len(contracts))]
		tenure := rng.Intn(72) + 1
		charges := 20 + rng.Float64()*100
		churn := contract == "Month-to-month" && tenure < 24
		if rng.Float64() < 0.05 {
			churn = !churn
		}
		label := "No"
		if churn {
			label = "Yes"
		}
		fmt.Fprintf(&b, "C%04d,%d,%s,%.2f,%s\n", i, tenure, contract, charges, label)
	}
	path := filepath.Join(dir, "customer_churn.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.DataPath = writeChurnCSV(t, dir, 300)
	cfg.OutputDir = filepath.Join(dir, "plots")
	cfg.RandomForest.NEstimators = 15
	cfg.GradientBoosting.NEstimators = 30
	return cfg
}

func TestRunnerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReportJSON = filepath.Join(cfg.OutputDir, "report.json")
	cfg.ResultsDB = filepath.Join(t.TempDir(), "history", "runs.db")
	cfg.ExportWeights = true

	var out bytes.Buffer
	rep, err := NewRunner(cfg, &out).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"No", "Yes"}, rep.Classes)
	assert.Equal(t, 60, rep.TestSize)
	assert.Equal(t, 240, rep.TrainSize)
	// tenure, MonthlyCharges and three Contract indicators
	assert.Equal(t, 5, rep.Features)
	require.Len(t, rep.Models, 3)
	assert.Equal(t, "Logistic Regression", rep.Models[0].Name)
	assert.Equal(t, "Random Forest", rep.Models[1].Name)
	assert.Equal(t, "Gradient Boosting", rep.Models[2].Name)

	for _, m := range rep.Models {
		assert.Greater(t, m.Accuracy, 0.7, m.Name)
		assert.Greater(t, m.ROCAUC, 0.7, m.Name)
		for _, p := range m.Plots {
			assert.FileExists(t, p)
		}
	}
	assert.Empty(t, rep.Models[0].TopFeatures)
	require.Len(t, rep.Models[1].TopFeatures, 5)
	for _, fi := range rep.Models[1].TopFeatures {
		assert.NotContains(t, fi.Feature, "customerID")
	}
	assert.Len(t, rep.Models[2].Plots, 2)

	text := out.String()
	assert.Contains(t, text, "Logistic Regression Accuracy:")
	assert.Contains(t, text, "Classification Report for Random Forest:")
	assert.Contains(t, text, "Top 5 Feature Importances - Gradient Boosting")

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "logistic_regression_weights.json"))
	saved, err := report.ReadJSON(cfg.ReportJSON)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, saved.RunID)
	assert.Equal(t, 5, saved.Features)

	db, err := store.Open(cfg.ResultsDB)
	require.NoError(t, err)
	defer db.Close()
	run, err := db.GetRun(context.Background(), rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCompleted, run.Status)
	results, err := db.GetResults(context.Background(), rep.RunID)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRunnerDeterministic(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plots = false
	cfg.Models = []string{config.ModelRandomForest}

	first, err := NewRunner(cfg, &bytes.Buffer{}).Run(context.Background())
	require.NoError(t, err)
	second, err := NewRunner(cfg, &bytes.Buffer{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Models[0].Accuracy, second.Models[0].Accuracy)
	assert.Equal(t, first.Models[0].TopFeatures, second.Models[0].TopFeatures)
	assert.Empty(t, first.Models[0].Plots)
}

func TestRunnerMissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataPath = filepath.Join(t.TempDir(), "absent.csv")

	_, err := NewRunner(cfg, &bytes.Buffer{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))
}

func TestRunnerMissingTarget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Target = "Exited"

	_, err := NewRunner(cfg, &bytes.Buffer{}).Run(context.Background())
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestRunnerCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plots = false
	cfg.ResultsDB = filepath.Join(t.TempDir(), "runs.db")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(cfg, &bytes.Buffer{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	db, err := store.Open(cfg.ResultsDB)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusFailed, runs[0].Status)
}
