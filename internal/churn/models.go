package churn

import (
	"github.com/YuminosukeSato/churnlab/core/model"
	"github.com/YuminosukeSato/churnlab/internal/config"
	"github.com/YuminosukeSato/churnlab/sklearn/ensemble"
	"github.com/YuminosukeSato/churnlab/sklearn/linear_model"
)

// candidate is one configured estimator with its display name.
type candidate struct {
	key   string
	name  string
	build func() model.Classifier
}

var displayNames = map[string]string{
	config.ModelLogisticRegression: "Logistic Regression",
	config.ModelRandomForest:       "Random Forest",
	config.ModelGradientBoosting:   "Gradient Boosting",
}

// candidates returns the configured models in configuration order.
func candidates(cfg *config.Config) []candidate {
	out := make([]candidate, 0, len(cfg.Models))
	for _, key := range cfg.Models {
		c := candidate{key: key, name: displayNames[key]}
		switch key {
		case config.ModelLogisticRegression:
			lr := cfg.LogisticRegression
			c.build = func() model.Classifier {
				return linear_model.NewLogisticRegression(
					linear_model.WithLRC(lr.C),
					linear_model.WithLRMaxIter(lr.MaxIter),
					linear_model.WithLRTol(lr.Tol),
					linear_model.WithLRRandomState(cfg.RandomState),
				)
			}
		case config.ModelRandomForest:
			rf := cfg.RandomForest
			c.build = func() model.Classifier {
				return ensemble.NewRandomForestClassifier(
					ensemble.WithNEstimators(rf.NEstimators),
					ensemble.WithForestMaxDepth(rf.MaxDepth),
					ensemble.WithForestMinSamplesLeaf(rf.MinSamplesLeaf),
					ensemble.WithMaxFeatures(rf.MaxFeatures),
					ensemble.WithForestCriterion(rf.Criterion),
					ensemble.WithNJobs(rf.NJobs),
					ensemble.WithForestRandomState(cfg.RandomState),
				)
			}
		case config.ModelGradientBoosting:
			gb := cfg.GradientBoosting
			c.build = func() model.Classifier {
				return ensemble.NewGradientBoostingClassifier(
					ensemble.WithStages(gb.NEstimators),
					ensemble.WithLearningRate(gb.LearningRate),
					ensemble.WithBoostingMaxDepth(gb.MaxDepth),
					ensemble.WithSubsample(gb.Subsample),
					ensemble.WithBoostingRandomState(cfg.RandomState),
				)
			}
		default:
			continue
		}
		out = append(out, c)
	}
	return out
}
