package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitSchema(context.Background()))
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, ":memory:")

	run, err := s.CreateRun(ctx, "customer_churn.csv", "Churn")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, RunStatusRunning, run.Status)

	for _, m := range []string{"Logistic Regression", "Random Forest"} {
		r := &ModelResult{RunID: run.ID, Model: m, Accuracy: 0.8, ROCAUC: 0.84, MacroF1: 0.72, FitSeconds: 1.5, ReportJSON: "{}"}
		require.NoError(t, s.SaveModelResult(ctx, r))
		assert.NotZero(t, r.ID)
	}
	require.NoError(t, s.CompleteRun(ctx, run.ID, RunStatusCompleted, ""))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))

	results, err := s.GetResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Logistic Regression", results[0].Model)
	assert.Equal(t, 0.84, results[1].ROCAUC)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "runs.db"))

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := s.CreateRun(ctx, "data.csv", "Churn")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	require.NoError(t, s.CompleteRun(ctx, ids[0], RunStatusFailed, "boom"))

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "boom", all[2].Error)
	assert.Equal(t, RunStatusFailed, all[2].Status)
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, ":memory:")

	_, err := s.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.True(t, errors.Is(s.CompleteRun(ctx, "missing", RunStatusCompleted, ""), ErrRunNotFound))

	results, err := s.GetResults(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.InitSchema(ctx))
	run, err := s.CreateRun(ctx, "a.csv", "Churn")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2 := openStore(t, path)
	got, err := s2.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.csv", got.DataPath)
}
