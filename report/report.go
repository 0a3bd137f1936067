// Package report renders a churn run to the console and to JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/churnlab/dataset"
	"github.com/YuminosukeSato/churnlab/inspection"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ModelResult is the evaluation of one trained model on the test set.
type ModelResult struct {
	Name            string                         `json:"name"`
	Accuracy        float64                        `json:"accuracy"`
	ROCAUC          float64                        `json:"roc_auc"`
	Report          *metrics.Report                `json:"classification_report"`
	ConfusionMatrix [][]float64                    `json:"confusion_matrix"`
	TopFeatures     []inspection.FeatureImportance `json:"top_features,omitempty"`
	Plots           []string                       `json:"plots,omitempty"`
	FitSeconds      float64                        `json:"fit_seconds"`
}

// RunReport summarizes one end-to-end run.
type RunReport struct {
	RunID      string           `json:"run_id"`
	DataPath   string           `json:"data_path"`
	Target     string           `json:"target"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Dataset    *dataset.Summary `json:"dataset"`
	Classes    []string         `json:"classes"`
	TrainSize  int              `json:"train_size"`
	TestSize   int              `json:"test_size"`
	Features   int              `json:"n_features"`
	Models     []ModelResult    `json:"models"`
}

// Best returns the model with the highest accuracy, or nil.
func (r *RunReport) Best() *ModelResult {
	var best *ModelResult
	for i := range r.Models {
		if best == nil || r.Models[i].Accuracy > best.Accuracy {
			best = &r.Models[i]
		}
	}
	return best
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	// titles go on their own line; go-pretty wraps them to the table width
	if title != "" {
		_, _ = fmt.Fprintln(w, title)
	}
	return t
}

// WriteDataset prints the shape, column kinds and label counts of the
// loaded data.
func WriteDataset(w io.Writer, path string, s *dataset.Summary) {
	t := newTable(w, fmt.Sprintf("Dataset %s", path))
	t.AppendRow(table.Row{"Rows", s.Rows})
	t.AppendRow(table.Row{"Columns", s.Columns})
	t.AppendRow(table.Row{"Numeric features", len(s.Numeric)})
	t.AppendRow(table.Row{"Categorical features", len(s.Categorical)})
	for _, l := range s.Labels {
		t.AppendRow(table.Row{"Label " + l.Label, l.Count})
	}
	for name, n := range s.Missing {
		t.AppendRow(table.Row{"Missing " + name, n})
	}
	t.Render()
}

// WriteModels prints the list of trained models.
func WriteModels(w io.Writer, names []string) {
	t := newTable(w, "Trained models")
	t.AppendHeader(table.Row{"#", "Model"})
	for i, n := range names {
		t.AppendRow(table.Row{i + 1, n})
	}
	t.Render()
}

// WriteModelResult prints accuracy, the classification report, the
// confusion matrix and, when present, the top feature importances.
func WriteModelResult(w io.Writer, m *ModelResult, classes []string) {
	_, _ = fmt.Fprintf(w, "\n%s Accuracy: %.4f\n", m.Name, m.Accuracy)
	if m.Report != nil {
		_, _ = fmt.Fprintf(w, "Classification Report for %s:\n%s\n", m.Name, m.Report.String())
	}

	if len(m.ConfusionMatrix) > 0 {
		t := newTable(w, "Confusion Matrix - "+m.Name)
		header := table.Row{"actual \\ predicted"}
		for _, c := range classes {
			header = append(header, c)
		}
		t.AppendHeader(header)
		for i, row := range m.ConfusionMatrix {
			label := fmt.Sprint(i)
			if i < len(classes) {
				label = classes[i]
			}
			r := table.Row{label}
			for _, v := range row {
				r = append(r, int(v))
			}
			t.AppendRow(r)
		}
		t.Render()
	}

	if len(m.TopFeatures) > 0 {
		WriteImportances(w, m.Name, m.TopFeatures)
	}
}

// WriteImportances prints ranked feature importances.
func WriteImportances(w io.Writer, model string, ranked []inspection.FeatureImportance) {
	t := newTable(w, fmt.Sprintf("Top %d Feature Importances - %s", len(ranked), model))
	t.AppendHeader(table.Row{"Feature", "Importance"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	for _, fi := range ranked {
		t.AppendRow(table.Row{fi.Feature, fmt.Sprintf("%.4f", fi.Importance)})
	}
	t.Render()
}

// WriteSummary prints one line per model with its headline scores.
func WriteSummary(w io.Writer, r *RunReport) {
	t := newTable(w, "Summary")
	t.AppendHeader(table.Row{"Model", "Accuracy", "ROC AUC", "Fit (s)"})
	best := r.Best()
	for i := range r.Models {
		m := &r.Models[i]
		name := m.Name
		if m == best {
			name += " *"
		}
		t.AppendRow(table.Row{name, fmt.Sprintf("%.4f", m.Accuracy), fmt.Sprintf("%.4f", m.ROCAUC), fmt.Sprintf("%.2f", m.FitSeconds)})
	}
	t.Render()
}

// WriteJSON writes r as indented JSON to path, creating parent directories.
func WriteJSON(path string, r *RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating report %s", path)
	}
	return errors.Wrapf(encodeAndClose(f, r), "writing report %s", path)
}

// encodeAndClose writes r to wc and closes it. A failed Close is reported
// since buffered data may not have reached disk.
func encodeAndClose(wc io.WriteCloser, r *RunReport) (err error) {
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing run report")
		}
	}()

	enc := json.NewEncoder(wc)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(err, "encoding run report")
	}
	return nil
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (*RunReport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading report %s", path)
	}
	var r RunReport
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, errors.Wrapf(err, "decoding report %s", path)
	}
	return &r, nil
}
