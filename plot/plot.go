// Package plot renders evaluation charts to image files with gonum/plot.
package plot

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/YuminosukeSato/churnlab/inspection"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"gonum.org/v1/gonum/mat"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
)

// confusionGrid exposes a confusion matrix as a plotter.GridXYZ with the
// first true label drawn at the top row.
type confusionGrid struct {
	cm *mat.Dense
}

func (g confusionGrid) Dims() (c, r int) { r, c = g.cm.Dims(); return c, r }
func (g confusionGrid) Z(c, r int) float64 {
	n, _ := g.cm.Dims()
	return g.cm.At(n-1-r, c)
}
func (g confusionGrid) X(c int) float64 { return float64(c) }
func (g confusionGrid) Y(r int) float64 { return float64(r) }

// ConfusionMatrixHeatmap draws cm (rows true, columns predicted) as an
// annotated heatmap and saves it to path. The extension picks the format.
func ConfusionMatrixHeatmap(cm *mat.Dense, labels []string, title, path string) error {
	r, c := cm.Dims()
	if r != c || r != len(labels) {
		return errors.NewDimensionError("ConfusionMatrixHeatmap", len(labels), r, 0)
	}
	if r == 0 {
		return errors.NewModelError("ConfusionMatrixHeatmap", "empty confusion matrix", errors.ErrEmptyData)
	}

	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(0)
	cmap.SetMax(1)
	hm := plotter.NewHeatMap(confusionGrid{cm: cm}, cmap.Palette(255))

	p := gplot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Actual"
	p.Add(hm)

	xs := make([]gplot.Tick, r)
	ys := make([]gplot.Tick, r)
	var cells plotter.XYLabels
	for i, l := range labels {
		xs[i] = gplot.Tick{Value: float64(i), Label: l}
		ys[i] = gplot.Tick{Value: float64(r - 1 - i), Label: l}
		for j := 0; j < c; j++ {
			cells.XYs = append(cells.XYs, plotter.XY{X: float64(j), Y: float64(r - 1 - i)})
			cells.Labels = append(cells.Labels, strconv.FormatFloat(cm.At(i, j), 'f', -1, 64))
		}
	}
	p.X.Tick.Marker = gplot.ConstantTicks(xs)
	p.Y.Tick.Marker = gplot.ConstantTicks(ys)

	annot, err := plotter.NewLabels(cells)
	if err != nil {
		return errors.Wrap(err, "building cell labels")
	}
	for i := range annot.TextStyle {
		annot.TextStyle[i].XAlign = text.XCenter
		annot.TextStyle[i].YAlign = text.YCenter
		annot.TextStyle[i].Font.Size = vg.Points(14)
	}
	p.Add(annot)

	return save(p, 5*vg.Inch, 4*vg.Inch, path)
}

// FeatureImportanceBar draws ranked importances as horizontal bars with the
// most important feature on top.
func FeatureImportanceBar(ranked []inspection.FeatureImportance, title, path string) error {
	if len(ranked) == 0 {
		return errors.NewModelError("FeatureImportanceBar", "no features to plot", errors.ErrEmptyData)
	}

	n := len(ranked)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, fi := range ranked {
		values[n-1-i] = fi.Importance
		names[n-1-i] = fi.Feature
	}

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return errors.Wrap(err, "building bar chart")
	}
	bars.Horizontal = true
	bars.LineStyle.Width = vg.Length(0)

	p := gplot.New()
	p.Title.Text = title
	p.X.Label.Text = "Importance"
	p.X.Min = 0
	p.Add(bars)
	p.NominalY(names...)

	return save(p, 8*vg.Inch, vg.Length(n)*0.4*vg.Inch+1.5*vg.Inch, path)
}

func save(p *gplot.Plot, w, h vg.Length, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating plot directory %s", dir)
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "saving plot %s", path)
	}
	log.GetLoggerWithName("plot").Debug("Plot saved", log.PathKey, path)
	return nil
}
