// Package churnlab trains and compares customer churn classifiers.
//
// The module carries a small scikit-learn style toolkit on top of gonum and
// a command that runs one fixed workflow with it:
//
//  1. read a customer CSV and split off the Churn label
//  2. scale numeric columns and one-hot encode categorical ones with a
//     ColumnTransformer
//  3. hold out a test set
//  4. fit Logistic Regression, Random Forest and Gradient Boosting
//     pipelines, print accuracy and a classification report for each and
//     save a confusion-matrix heatmap
//  5. print and plot the top feature importances of the tree ensembles
//
// # Packages
//
//   - dataset: CSV loading into a typed column Frame
//   - preprocessing, compose: scalers, encoders and the ColumnTransformer
//   - pipeline: preprocessor plus classifier
//   - model_selection: train/test split
//   - sklearn/linear_model, sklearn/tree, sklearn/ensemble: estimators
//   - metrics, inspection: scores, reports and importance ranking
//   - plot, report: gonum/plot figures and go-pretty console tables
//   - internal/store: optional SQLite run history
//   - cmd/churnlab: the command line
//
// # Quick Start
//
//	churnlab --data customer_churn.csv --output-dir churn_plots
//
// Settings can also come from churnlab.yaml or CHURNLAB_ environment
// variables; see internal/config.
package churnlab
