package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const churnCSV = `customerID,gender,tenure,MonthlyCharges,TotalCharges,Contract,Churn
0001,Female,1,29.85,29.85,Month-to-month,No
0002,Male,34,56.95,1889.5,One year,No
0003,Male,2,53.85,108.15,Month-to-month,Yes
0004,Male,45,42.30,1840.75,One year,No
0005,Female,0,70.70, ,Two year,Yes
`

func TestReadCSVFromInfersKinds(t *testing.T) {
	f, err := ReadCSVFrom(strings.NewReader(churnCSV))
	require.NoError(t, err)

	rows, cols := f.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 7, cols)

	// customerID parses as numbers, TotalCharges holds a blank cell
	assert.Equal(t, []string{"customerID", "tenure", "MonthlyCharges"}, f.NumericColumns())
	assert.Equal(t, []string{"gender", "TotalCharges", "Contract", "Churn"}, f.CategoricalColumns())

	tc, err := f.Column("TotalCharges")
	require.NoError(t, err)
	assert.Equal(t, "", tc.Strings[4])
	assert.Equal(t, "29.85", tc.Strings[0])
}

func TestReadCSVFromMissingNumeric(t *testing.T) {
	f, err := ReadCSVFrom(strings.NewReader("a,b\n1,x\n,y\nNA,z\n"))
	require.NoError(t, err)
	a, err := f.Column("a")
	require.NoError(t, err)
	assert.Equal(t, Numeric, a.Kind)
	assert.Equal(t, 1.0, a.Floats[0])
	assert.True(t, math.IsNaN(a.Floats[1]))
	assert.Equal(t, 2, a.NumMissing())
}

func TestReadCSVFromMissingCategorical(t *testing.T) {
	f, err := ReadCSVFrom(strings.NewReader("a\nx\nNULL\n"))
	require.NoError(t, err)
	a, _ := f.Column("a")
	assert.Equal(t, []string{"x", MissingCategory}, a.Strings)
}

func TestReadCSVFromErrors(t *testing.T) {
	_, err := ReadCSVFrom(strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = ReadCSVFrom(strings.NewReader("a,b\n"))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = ReadCSVFrom(strings.NewReader("a,b\n1,2\n3\n"))
	assert.Error(t, err)

	_, err = ReadCSVFrom(strings.NewReader("a,a\n1,2\n"))
	assert.Error(t, err)
}

func TestReadCSVFileNotFound(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeff"+churnCSV), 0o600))

	f, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, "customerID", f.Names()[0])
}

func TestFrameDropTakeMatrix(t *testing.T) {
	f, err := ReadCSVFrom(strings.NewReader(churnCSV))
	require.NoError(t, err)

	d, err := f.Drop("customerID")
	require.NoError(t, err)
	_, cols := d.Dims()
	assert.Equal(t, 6, cols)
	_, err = f.Drop("nope")
	assert.Error(t, err)

	sub := f.Take([]int{4, 0})
	rows, _ := sub.Dims()
	assert.Equal(t, 2, rows)
	tenure, _ := sub.Column("tenure")
	assert.Equal(t, []float64{0, 1}, tenure.Floats)

	m, err := sub.Matrix([]string{"tenure", "MonthlyCharges"})
	require.NoError(t, err)
	assert.Equal(t, 70.70, m.At(0, 1))

	_, err = sub.Matrix([]string{"gender"})
	assert.Error(t, err)

	s, err := sub.Strings([]string{"gender"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Female", "Female"}, s[0])
}

func TestSplitXYAndSummarize(t *testing.T) {
	f, err := ReadCSVFrom(strings.NewReader(churnCSV))
	require.NoError(t, err)

	X, y, err := SplitXY(f, "Churn")
	require.NoError(t, err)
	_, cols := X.Dims()
	assert.Equal(t, 6, cols)
	assert.Equal(t, []string{"No", "No", "Yes", "No", "Yes"}, y)

	_, _, err = SplitXY(f, "Target")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	s, err := Summarize(f, "Churn")
	require.NoError(t, err)
	assert.Equal(t, 5, s.Rows)
	assert.Equal(t, []LabelCount{{"No", 3}, {"Yes", 2}}, s.Labels)
	assert.NotContains(t, s.Categorical, "Churn")
}

func TestSplitXYNumericTarget(t *testing.T) {
	f, err := ReadCSVFrom(strings.NewReader("x,y\n1,0\n2,1\n"))
	require.NoError(t, err)
	_, y, err := SplitXY(f, "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, y)
}

func TestReadCSVFromWarnsOnMostlyNumericColumn(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	_, err := ReadCSVFrom(strings.NewReader(churnCSV))
	require.NoError(t, err)

	// TotalCharges is the only column with numbers and a stray cell;
	// Contract and gender hold no numbers at all.
	require.Len(t, warnings, 1)
	var dcw *errors.DataConversionWarning
	require.True(t, errors.As(warnings[0], &dcw))
	assert.Equal(t, "float64", dcw.FromType)
	assert.Equal(t, "string", dcw.ToType)
	assert.Contains(t, dcw.Reason, `"TotalCharges"`)
	assert.Contains(t, dcw.Reason, "4 of 5")
}
