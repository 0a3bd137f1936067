package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YuminosukeSato/churnlab/dataset"
	"github.com/YuminosukeSato/churnlab/inspection"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(t *testing.T) *RunReport {
	t.Helper()
	yTrue := []float64{0, 0, 1, 1}
	yPred := []float64{0, 1, 1, 1}
	rep, err := metrics.ClassificationReport(yTrue, yPred, []float64{0, 1}, []string{"No", "Yes"})
	require.NoError(t, err)

	return &RunReport{
		RunID:     "run-1",
		DataPath:  "customer_churn.csv",
		Target:    "Churn",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Dataset: &dataset.Summary{
			Rows: 4, Columns: 3,
			Numeric: []string{"tenure"}, Categorical: []string{"Contract"},
			Labels: []dataset.LabelCount{{Label: "No", Count: 2}, {Label: "Yes", Count: 2}},
		},
		Classes: []string{"No", "Yes"},
		Models: []ModelResult{
			{Name: "Logistic Regression", Accuracy: 0.75, Report: rep, ConfusionMatrix: [][]float64{{1, 1}, {0, 2}}},
			{
				Name: "Random Forest", Accuracy: 0.8, Report: rep,
				ConfusionMatrix: [][]float64{{1, 1}, {0, 2}},
				TopFeatures:     []inspection.FeatureImportance{{Feature: "num__tenure", Importance: 0.7}},
			},
		},
	}
}

func TestWriteModelResult(t *testing.T) {
	r := sampleReport(t)
	var buf bytes.Buffer
	WriteModelResult(&buf, &r.Models[1], r.Classes)

	out := buf.String()
	assert.Contains(t, out, "Random Forest Accuracy: 0.8000")
	assert.Contains(t, out, "Classification Report for Random Forest:")
	assert.Contains(t, out, "precision")
	assert.Contains(t, out, "Confusion Matrix - Random Forest")
	assert.Contains(t, out, "Top 1 Feature Importances - Random Forest")
	assert.Contains(t, out, "num__tenure")
	assert.Contains(t, out, "0.7000")
}

func TestWriteSummaryMarksBest(t *testing.T) {
	r := sampleReport(t)
	assert.Equal(t, "Random Forest", r.Best().Name)

	var buf bytes.Buffer
	WriteSummary(&buf, r)
	assert.Contains(t, buf.String(), "Random Forest *")

	buf.Reset()
	WriteModels(&buf, []string{"Logistic Regression", "Random Forest"})
	assert.Contains(t, buf.String(), "Trained models")

	buf.Reset()
	WriteDataset(&buf, r.DataPath, r.Dataset)
	assert.Contains(t, buf.String(), "Label Yes")
}

func TestWriteJSONRoundTrip(t *testing.T) {
	r := sampleReport(t)
	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, WriteJSON(path, r))

	got, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, got.RunID)
	assert.True(t, r.StartedAt.Equal(got.StartedAt))
	require.Len(t, got.Models, 2)
	assert.Equal(t, r.Models[1].TopFeatures, got.Models[1].TopFeatures)
	assert.Equal(t, r.Models[0].Report.Classes, got.Models[0].Report.Classes)
}

func TestWriteModelResultTitlesStayOnOneLine(t *testing.T) {
	r := sampleReport(t)
	m := r.Models[0]
	m.TopFeatures = []inspection.FeatureImportance{{Feature: "x", Importance: 0.5}}
	var buf bytes.Buffer
	WriteModelResult(&buf, &m, r.Classes)

	lines := strings.Split(buf.String(), "\n")
	assert.Contains(t, lines, "Confusion Matrix - Logistic Regression")
	assert.Contains(t, lines, "Top 1 Feature Importances - Logistic Regression")
}

type closeFailer struct {
	bytes.Buffer
}

func (c *closeFailer) Close() error { return errors.New("disk full") }

func TestEncodeAndCloseReportsCloseError(t *testing.T) {
	w := &closeFailer{}
	err := encodeAndClose(w, sampleReport(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing run report")
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, w.String(), `"run_id": "run-1"`)
}

func TestBestEmpty(t *testing.T) {
	assert.Nil(t, (&RunReport{}).Best())
}
