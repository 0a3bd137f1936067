package preprocessing

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
)

// LabelEncoder maps target labels to the integers 0..k-1.
//
// Labels are sorted before numbering. When every label parses as a number
// the order is numeric ("2" before "10"), otherwise lexicographic.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder returns an unfitted LabelEncoder.
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{}
}

// Fit learns the sorted set of distinct labels.
func (l *LabelEncoder) Fit(y []string) error {
	if len(y) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "no labels", errors.ErrEmptyData)
	}
	seen := make(map[string]struct{})
	for _, v := range y {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sortLabels(classes)

	l.classes = classes
	l.index = make(map[string]int, len(classes))
	for i, c := range classes {
		l.index[c] = i
	}
	return nil
}

// Transform encodes y. Labels not seen in Fit are a ValueError.
func (l *LabelEncoder) Transform(y []string) ([]float64, error) {
	if l.index == nil {
		return nil, errors.NewNotFittedError("LabelEncoder", "Transform")
	}
	out := make([]float64, len(y))
	for i, v := range y {
		k, ok := l.index[v]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform",
				fmt.Sprintf("y contains previously unseen label %q", v))
		}
		out[i] = float64(k)
	}
	return out, nil
}

// FitTransform fits the encoder and encodes y.
func (l *LabelEncoder) FitTransform(y []string) ([]float64, error) {
	if err := l.Fit(y); err != nil {
		return nil, err
	}
	return l.Transform(y)
}

// InverseTransform maps codes back to the original labels.
func (l *LabelEncoder) InverseTransform(codes []float64) ([]string, error) {
	if l.index == nil {
		return nil, errors.NewNotFittedError("LabelEncoder", "InverseTransform")
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		k := int(c)
		if float64(k) != c || k < 0 || k >= len(l.classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform",
				fmt.Sprintf("code %v is not a valid class index", c))
		}
		out[i] = l.classes[k]
	}
	return out, nil
}

// Classes returns the labels in code order.
func (l *LabelEncoder) Classes() []string {
	return append([]string(nil), l.classes...)
}

func sortLabels(labels []string) {
	nums := make([]float64, len(labels))
	numeric := true
	for i, s := range labels {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = v
	}
	if !numeric {
		sort.Strings(labels)
		return
	}
	idx := make([]int, len(labels))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return nums[idx[a]] < nums[idx[b]] })
	sorted := make([]string, len(labels))
	for i, k := range idx {
		sorted[i] = labels[k]
	}
	copy(labels, sorted)
}
