package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ClassMetrics holds the per-class scores of a classification report.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report is the Go counterpart of scikit-learn's classification_report.
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Support     int            `json:"support"`
}

func checkSlices(op string, yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty labels")
	}
	if len(yPred) != len(yTrue) {
		return errors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	return nil
}

// uniqueLabels returns the sorted union of labels found in ys.
func uniqueLabels(ys ...[]float64) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, y := range ys {
		for _, v := range y {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Float64s(out)
	return out
}

// ConfusionMatrix computes the confusion matrix. Rows are true labels and
// columns are predicted labels, both in the order of labels. A nil labels
// uses the sorted union of yTrue and yPred. Samples whose label is not in
// labels are ignored.
func ConfusionMatrix(yTrue, yPred, labels []float64) (*mat.Dense, error) {
	if err := checkSlices("ConfusionMatrix", yTrue, yPred); err != nil {
		return nil, err
	}
	if labels == nil {
		labels = uniqueLabels(yTrue, yPred)
	}
	if len(labels) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "labels must not be empty")
	}

	index := make(map[float64]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range yTrue {
		ti, ok1 := index[yTrue[i]]
		pi, ok2 := index[yPred[i]]
		if !ok1 || !ok2 {
			continue
		}
		cm.Set(ti, pi, cm.At(ti, pi)+1)
	}
	return cm, nil
}

// binaryCounts returns true positives, false positives and false negatives
// for posLabel.
func binaryCounts(yTrue, yPred []float64, posLabel float64) (tp, fp, fn float64) {
	for i := range yTrue {
		switch {
		case yPred[i] == posLabel && yTrue[i] == posLabel:
			tp++
		case yPred[i] == posLabel:
			fp++
		case yTrue[i] == posLabel:
			fn++
		}
	}
	return tp, fp, fn
}

// ratio divides and reports an UndefinedMetricWarning on a zero denominator.
func ratio(num, den float64, metric, condition string) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(metric, condition, 0))
		return 0
	}
	return num / den
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// PrecisionScore computes tp / (tp + fp) for posLabel.
func PrecisionScore(yTrue, yPred []float64, posLabel float64) (float64, error) {
	if err := checkSlices("PrecisionScore", yTrue, yPred); err != nil {
		return 0, err
	}
	tp, fp, _ := binaryCounts(yTrue, yPred, posLabel)
	return ratio(tp, tp+fp, "Precision", "no predicted samples"), nil
}

// RecallScore computes tp / (tp + fn) for posLabel.
func RecallScore(yTrue, yPred []float64, posLabel float64) (float64, error) {
	if err := checkSlices("RecallScore", yTrue, yPred); err != nil {
		return 0, err
	}
	tp, _, fn := binaryCounts(yTrue, yPred, posLabel)
	return ratio(tp, tp+fn, "Recall", "no true samples"), nil
}

// F1Score computes the harmonic mean of precision and recall for posLabel.
func F1Score(yTrue, yPred []float64, posLabel float64) (float64, error) {
	p, err := PrecisionScore(yTrue, yPred, posLabel)
	if err != nil {
		return 0, err
	}
	r, err := RecallScore(yTrue, yPred, posLabel)
	if err != nil {
		return 0, err
	}
	return f1(p, r), nil
}

// ClassificationReport builds per-class precision, recall, f1 and support
// plus accuracy, macro and weighted averages. names labels the classes in
// the rendered output and defaults to the numeric labels.
func ClassificationReport(yTrue, yPred, labels []float64, names []string) (*Report, error) {
	if err := checkSlices("ClassificationReport", yTrue, yPred); err != nil {
		return nil, err
	}
	if labels == nil {
		labels = uniqueLabels(yTrue, yPred)
	}
	if names != nil && len(names) != len(labels) {
		return nil, errors.NewDimensionError("ClassificationReport", len(labels), len(names), 0)
	}

	rep := &Report{Support: len(yTrue)}
	var correct int
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	rep.Accuracy = float64(correct) / float64(len(yTrue))

	for i, label := range labels {
		tp, fp, fn := binaryCounts(yTrue, yPred, label)
		name := fmt.Sprintf("%g", label)
		if names != nil {
			name = names[i]
		}
		cm := ClassMetrics{
			Label:     name,
			Precision: ratio(tp, tp+fp, "Precision", fmt.Sprintf("no predicted samples for label %s", name)),
			Recall:    ratio(tp, tp+fn, "Recall", fmt.Sprintf("no true samples for label %s", name)),
			Support:   int(tp + fn),
		}
		cm.F1 = f1(cm.Precision, cm.Recall)
		rep.Classes = append(rep.Classes, cm)
	}

	rep.MacroAvg = ClassMetrics{Label: "macro avg", Support: rep.Support}
	rep.WeightedAvg = ClassMetrics{Label: "weighted avg", Support: rep.Support}
	var totalSupport float64
	for _, c := range rep.Classes {
		totalSupport += float64(c.Support)
	}
	k := float64(len(rep.Classes))
	for _, c := range rep.Classes {
		rep.MacroAvg.Precision += c.Precision / k
		rep.MacroAvg.Recall += c.Recall / k
		rep.MacroAvg.F1 += c.F1 / k
		if totalSupport > 0 {
			w := float64(c.Support) / totalSupport
			rep.WeightedAvg.Precision += c.Precision * w
			rep.WeightedAvg.Recall += c.Recall * w
			rep.WeightedAvg.F1 += c.F1 * w
		}
	}
	return rep, nil
}

// String renders the report in scikit-learn's text layout with two digits.
func (r *Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		if len(c.Label) > width {
			width = len(c.Label)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	row := func(c ClassMetrics) {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	for _, c := range r.Classes {
		row(c)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Support)
	row(r.MacroAvg)
	row(r.WeightedAvg)
	return b.String()
}
