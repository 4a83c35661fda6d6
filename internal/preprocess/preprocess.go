// Package preprocess fits and applies the column-wise feature transformation:
// standard scaling for numeric columns, one-hot encoding for categorical
// columns. A fitted pipeline is immutable and persisted as a JSON artifact
// that the serving side loads read-only.
package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"heart-backend/internal/dataset"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrMissingColumn   = errors.New("missing column")
)

type scaleParams struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Pipeline is a fitted transformation. The column order and category sets
// are fixed at fit time; Transform output width never changes afterwards.
type Pipeline struct {
	Numeric     []string               `json:"numeric"`
	Categorical []string               `json:"categorical"`
	Scale       map[string]scaleParams `json:"scale"`
	Categories  map[string][]float64   `json:"categories"`
}

// Fit learns scaling parameters and category sets from the training frame.
func Fit(frame *dataset.Frame, numeric, categorical []string) (*Pipeline, error) {
	if frame.Len() == 0 {
		return nil, fmt.Errorf("cannot fit pipeline on empty frame")
	}

	p := &Pipeline{
		Numeric:     append([]string{}, numeric...),
		Categorical: append([]string{}, categorical...),
		Scale:       make(map[string]scaleParams, len(numeric)),
		Categories:  make(map[string][]float64, len(categorical)),
	}

	for _, name := range numeric {
		values, err := frame.Column(name)
		if err != nil {
			return nil, fmt.Errorf("fitting scaler: %w", err)
		}
		mean, std := stat.MeanStdDev(values, nil)
		if std == 0 {
			// Constant column; leave values centered but unscaled.
			std = 1
		}
		p.Scale[name] = scaleParams{Mean: mean, Std: std}
	}

	for _, name := range categorical {
		values, err := frame.Column(name)
		if err != nil {
			return nil, fmt.Errorf("fitting encoder: %w", err)
		}
		seen := make(map[float64]struct{})
		for _, v := range values {
			seen[v] = struct{}{}
		}
		categories := make([]float64, 0, len(seen))
		for v := range seen {
			categories = append(categories, v)
		}
		sort.Float64s(categories)
		p.Categories[name] = categories
	}

	return p, nil
}

// NumFeatures is the width of the transformed vector.
func (p *Pipeline) NumFeatures() int {
	n := len(p.Numeric)
	for _, name := range p.Categorical {
		n += len(p.Categories[name])
	}
	return n
}

// Transform maps one raw record to the fixed-length numeric vector. A record
// missing a fitted column or carrying a category value not seen at fit time
// is an error, never silent misencoding.
func (p *Pipeline) Transform(record map[string]float64) ([]float64, error) {
	out := make([]float64, 0, p.NumFeatures())

	for _, name := range p.Numeric {
		value, ok := record[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		params := p.Scale[name]
		out = append(out, (value-params.Mean)/params.Std)
	}

	for _, name := range p.Categorical {
		value, ok := record[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		categories := p.Categories[name]
		match := -1
		for i, c := range categories {
			if c == value {
				match = i
				break
			}
		}
		if match < 0 {
			return nil, fmt.Errorf("%w: column %s has no category %v", ErrUnknownCategory, name, value)
		}
		for i := range categories {
			if i == match {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	}

	return out, nil
}

// TransformFrame applies Transform to every row of a frame.
func (p *Pipeline) TransformFrame(frame *dataset.Frame) ([][]float64, error) {
	features := make([][]float64, frame.Len())
	for i := 0; i < frame.Len(); i++ {
		row, err := p.Transform(frame.Record(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		features[i] = row
	}
	return features, nil
}

// Save writes the fitted pipeline as a JSON artifact.
func (p *Pipeline) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize pipeline: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pipeline artifact %s: %w", path, err)
	}
	return nil
}

// Load reads a fitted pipeline artifact.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline artifact %s: %w", path, err)
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline artifact %s: %w", path, err)
	}
	if len(p.Numeric) == 0 && len(p.Categorical) == 0 {
		return nil, fmt.Errorf("pipeline artifact %s has no fitted columns", path)
	}
	return &p, nil
}
