package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeCSV(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("customerID,tenure,Contract,Churn\n")
	contracts := []string{"Month-to-month", "One year", "Two year"}
	for i := 0; i < 80; i++ {
		contract := contracts[i%3]
		tenure := (i*7)%60 + 1
		label := "No"
		if contract == "Month-to-month" && tenure < 30 {
			label = "Yes"
		}
		fmt.Fprintf(&b, "C%03d,%d,%s,%s\n", i, tenure, contract, label)
	}
	path := filepath.Join(dir, "customer_churn.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := execute(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "churnlab "+Version)
}

func TestHelp(t *testing.T) {
	code, out, _ := execute(t, "--help")
	assert.Equal(t, 0, code)
	for _, want := range []string{"run", "history", "version", "--data", "--no-plots", "--results-db"} {
		assert.Contains(t, out, want)
	}
}

func TestMissingDataFile(t *testing.T) {
	chdir(t, t.TempDir())

	code, out, _ := execute(t, "run", "--data", "nope.csv")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Error: The file 'nope.csv' was not found.")
	assert.NotContains(t, out, "stacktrace")
}

func TestInvalidFlagValue(t *testing.T) {
	chdir(t, t.TempDir())

	code, _, errOut := execute(t, "run", "--test-size", "1.5")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error:")
	assert.Contains(t, errOut, "test_size")
}

func TestRunAndHistory(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	data := writeCSV(t, dir)
	db := filepath.Join(dir, "runs.db")

	// The root command runs the pipeline when no subcommand is given.
	code, out, errOut := execute(t,
		"--data", data,
		"--models", "logistic_regression",
		"--no-plots",
		"--results-db", db,
		"--log-level", "error",
	)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Logistic Regression Accuracy:")
	assert.Contains(t, out, "Classification Report for Logistic Regression:")
	assert.NotContains(t, out, "Random Forest Accuracy:")
	_, err := os.Stat(filepath.Join(dir, "churn_plots"))
	assert.True(t, os.IsNotExist(err), "no plot directory expected")

	code, out, errOut = execute(t, "history", "--results-db", db, "--log-level", "error")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Logistic Regression")
	assert.Contains(t, out, "(1 runs)")
}

func TestHistoryRequiresDatabase(t *testing.T) {
	chdir(t, t.TempDir())

	code, _, errOut := execute(t, "history")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error: ")
	assert.Contains(t, errOut, "results_db")

	// The structured log line carries the stack of the validation error.
	assert.Contains(t, errOut, `"message":"command failed"`)
	assert.Contains(t, errOut, `"stacktrace":`)
	assert.Contains(t, errOut, "commands.go")
}
