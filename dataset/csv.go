package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
)

// missingTokens are the cell values read as missing, matching pandas'
// default na_values. Whitespace-only cells are not missing.
var missingTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// MissingCategory is the category assigned to missing categorical cells.
const MissingCategory = "nan"

func isMissing(s string) bool {
	_, ok := missingTokens[s]
	return ok
}

// ReadCSV reads a CSV file whose first row is the header. A missing file
// yields an error matching ErrFileNotFound.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "read %s", path), errors.ErrFileNotFound)
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	defer file.Close()

	f, err := ReadCSVFrom(bufio.NewReader(file))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	rows, cols := f.Dims()
	log.GetLoggerWithName("dataset").Info("Dataset loaded",
		log.PathKey, path,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
	)
	return f, nil
}

// ReadCSVFrom parses CSV from r. A column is numeric when every
// non-missing cell parses as float64, otherwise it is categorical.
func ReadCSVFrom(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "csv has no header")
	}
	if err != nil {
		return nil, errors.Wrap(err, "csv header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	header = append([]string(nil), header...)

	// reader enforces the header's field count on every record
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "csv body")
	}
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "csv has no rows")
	}

	cols := make([]*Column, len(header))
	for j, name := range header {
		cols[j] = inferColumn(strings.TrimSpace(name), records, j)
	}
	return NewFrame(cols...)
}

func inferColumn(name string, records [][]string, j int) *Column {
	floats := make([]float64, len(records))
	var present, parsed int
	offending := ""
	for i, rec := range records {
		cell := rec[j]
		if isMissing(cell) {
			floats[i] = math.NaN()
			continue
		}
		present++
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil || strings.TrimSpace(cell) == "" {
			if offending == "" {
				offending = cell
			}
			continue
		}
		parsed++
		floats[i] = v
	}
	if parsed == present {
		return &Column{Name: name, Kind: Numeric, Floats: floats}
	}
	// Mostly numeric columns usually hide a blank or a typo, as in the
	// Telco TotalCharges column, and explode into one-hot features.
	if 2*parsed > present {
		errors.Warn(errors.NewDataConversionWarning("float64", "string", fmt.Sprintf(
			"column %q: %d of %d cells are numeric but %q is not; the column is treated as categorical",
			name, parsed, present, offending)))
	}

	strs := make([]string, len(records))
	for i, rec := range records {
		if isMissing(rec[j]) {
			strs[i] = MissingCategory
		} else {
			strs[i] = strings.TrimSpace(rec[j])
		}
	}
	return &Column{Name: name, Kind: Categorical, Strings: strs}
}
