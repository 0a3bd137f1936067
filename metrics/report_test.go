package metrics

import (
	"strings"
	"testing"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfusionMatrix(t *testing.T) {
	yTrue := []float64{0, 0, 1, 1, 1, 0}
	yPred := []float64{0, 1, 1, 0, 1, 0}

	cm, err := ConfusionMatrix(yTrue, yPred, nil)
	require.NoError(t, err)

	r, c := cm.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 2, c)
	assert.Equal(t, 2.0, cm.At(0, 0)) // TN
	assert.Equal(t, 1.0, cm.At(0, 1)) // FP
	assert.Equal(t, 1.0, cm.At(1, 0)) // FN
	assert.Equal(t, 2.0, cm.At(1, 1)) // TP
}

func TestConfusionMatrixExplicitLabels(t *testing.T) {
	cm, err := ConfusionMatrix([]float64{1, 1}, []float64{1, 1}, []float64{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, cm.At(0, 0))
	assert.Equal(t, 2.0, cm.At(1, 1))

	_, err = ConfusionMatrix([]float64{1}, []float64{1, 0}, nil)
	assert.Error(t, err)
}

func TestPrecisionRecallF1(t *testing.T) {
	yTrue := []float64{0, 0, 1, 1, 1, 0}
	yPred := []float64{0, 1, 1, 0, 1, 0}

	p, err := PrecisionScore(yTrue, yPred, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, p, 1e-12)

	r, err := RecallScore(yTrue, yPred, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, r, 1e-12)

	f, err := F1Score(yTrue, yPred, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, f, 1e-12)
}

func TestPrecisionZeroDivisionWarns(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	p, err := PrecisionScore([]float64{1, 0}, []float64{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)
	require.Len(t, warnings, 1)

	var umw *errors.UndefinedMetricWarning
	require.True(t, errors.As(warnings[0], &umw))
	assert.Equal(t, "Precision", umw.Metric)
}

func TestClassificationReport(t *testing.T) {
	yTrue := []float64{0, 0, 0, 0, 1, 1}
	yPred := []float64{0, 0, 0, 1, 1, 0}

	rep, err := ClassificationReport(yTrue, yPred, []float64{0, 1}, []string{"No", "Yes"})
	require.NoError(t, err)

	require.Len(t, rep.Classes, 2)
	assert.Equal(t, "No", rep.Classes[0].Label)
	assert.InDelta(t, 0.75, rep.Classes[0].Precision, 1e-12)
	assert.InDelta(t, 0.75, rep.Classes[0].Recall, 1e-12)
	assert.Equal(t, 4, rep.Classes[0].Support)
	assert.InDelta(t, 0.5, rep.Classes[1].Precision, 1e-12)
	assert.Equal(t, 2, rep.Classes[1].Support)

	assert.InDelta(t, 4.0/6.0, rep.Accuracy, 1e-12)
	assert.InDelta(t, 0.625, rep.MacroAvg.Precision, 1e-12)
	assert.InDelta(t, 0.75*4/6+0.5*2/6, rep.WeightedAvg.Recall, 1e-12)
	assert.Equal(t, 6, rep.Support)

	text := rep.String()
	lines := strings.Split(text, "\n")
	assert.Contains(t, lines[0], "precision")
	assert.Contains(t, lines[0], "f1-score")
	assert.Equal(t, "", lines[1])
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[2]), "No"))
	assert.Contains(t, text, "accuracy")
	assert.Contains(t, text, "macro avg")
	assert.Contains(t, text, "weighted avg")
	assert.Contains(t, text, "0.67")
}

func TestClassificationReportNameMismatch(t *testing.T) {
	_, err := ClassificationReport([]float64{0, 1}, []float64{0, 1}, []float64{0, 1}, []string{"only"})
	assert.Error(t, err)
}
