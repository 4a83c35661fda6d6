package dataset

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
)

// Column layout of the heart disease dataset. Numeric columns get scaled,
// categorical columns (integer coded) get one-hot encoded.
var (
	NumericColumns     = []string{"age", "trestbps", "chol", "thalach", "oldpeak"}
	CategoricalColumns = []string{"sex", "cp", "fbs", "restecg", "exang", "slope", "ca", "thal"}

	FeatureColumns = append(append([]string{}, NumericColumns...), CategoricalColumns...)
)

const TargetColumn = "target"

// Frame is an in-memory table of feature rows plus the binary target.
type Frame struct {
	Columns []string
	Rows    [][]float64
	Target  []float64

	index map[string]int
}

// NewFrame builds a frame over the given columns. Row width must match the
// column count; the target carries one label per row.
func NewFrame(columns []string, rows [][]float64, target []float64) (*Frame, error) {
	if len(rows) != len(target) {
		return nil, fmt.Errorf("row count %d does not match target count %d", len(rows), len(target))
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
	}
	f := &Frame{Columns: columns, Rows: rows, Target: target}
	f.buildIndex()
	return f, nil
}

func (f *Frame) buildIndex() {
	f.index = make(map[string]int, len(f.Columns))
	for i, name := range f.Columns {
		f.index[name] = i
	}
}

func (f *Frame) Len() int { return len(f.Rows) }

// Column returns all values of the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	idx, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("no column %q in frame", name)
	}
	values := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// Record returns row i keyed by column name.
func (f *Frame) Record(i int) map[string]float64 {
	record := make(map[string]float64, len(f.Columns))
	for j, name := range f.Columns {
		record[name] = f.Rows[i][j]
	}
	return record
}

// Load reads the dataset CSV. The header must contain every feature column
// and the target column; extra columns are ignored.
func Load(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	headerIdx := make(map[string]int, len(header))
	for i, name := range header {
		headerIdx[name] = i
	}
	for _, name := range append(append([]string{}, FeatureColumns...), TargetColumn) {
		if _, ok := headerIdx[name]; !ok {
			return nil, fmt.Errorf("dataset %s is missing column %q", path, name)
		}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", path, err)
	}

	rows := make([][]float64, 0, len(records))
	target := make([]float64, 0, len(records))
	for line, record := range records {
		row := make([]float64, len(FeatureColumns))
		for j, name := range FeatureColumns {
			value, err := strconv.ParseFloat(record[headerIdx[name]], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", line+2, name, err)
			}
			row[j] = value
		}
		label, err := strconv.ParseFloat(record[headerIdx[TargetColumn]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d column %q: %w", line+2, TargetColumn, err)
		}
		rows = append(rows, row)
		target = append(target, label)
	}

	return NewFrame(FeatureColumns, rows, target)
}

// Split shuffles rows with the given seed and carves off the last
// testFraction of them as the held-out set. Same seed, same split.
func (f *Frame) Split(testFraction float64, seed int64) (*Frame, *Frame, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}
	n := f.Len()
	testSize := int(float64(n) * testFraction)
	if testSize == 0 || testSize == n {
		return nil, nil, fmt.Errorf("cannot split %d rows with test fraction %v", n, testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	take := func(indices []int) *Frame {
		rows := make([][]float64, len(indices))
		target := make([]float64, len(indices))
		for i, idx := range indices {
			rows[i] = f.Rows[idx]
			target[i] = f.Target[idx]
		}
		sub := &Frame{Columns: f.Columns, Rows: rows, Target: target}
		sub.buildIndex()
		return sub
	}

	return take(perm[:n-testSize]), take(perm[n-testSize:]), nil
}
