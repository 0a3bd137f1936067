// Package inspection ranks model feature importances for reporting.
package inspection

import (
	"sort"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
)

// FeatureImportance pairs a transformed feature name with its score.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RankFeatureImportances sorts features by descending importance, ties by
// name, and keeps the first topK. topK <= 0 keeps all of them.
func RankFeatureImportances(names []string, importances []float64, topK int) ([]FeatureImportance, error) {
	if len(names) != len(importances) {
		return nil, errors.NewDimensionError("RankFeatureImportances", len(names), len(importances), 1)
	}
	ranked := make([]FeatureImportance, len(names))
	for i, n := range names {
		ranked[i] = FeatureImportance{Feature: n, Importance: importances[i]}
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Importance != ranked[b].Importance {
			return ranked[a].Importance > ranked[b].Importance
		}
		return ranked[a].Feature < ranked[b].Feature
	})
	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked, nil
}
