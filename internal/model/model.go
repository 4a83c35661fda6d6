// Package model holds the candidate classifiers, their evaluation metrics,
// and the JSON artifact format they are persisted in.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Available classifier types.
const (
	TypeLogisticRegression = "logistic_regression"
	TypeRandomForest       = "random_forest"
)

// Classifier is a binary classifier over fixed-width feature vectors.
type Classifier interface {
	Fit(features [][]float64, labels []float64) error

	// PredictProba returns P(label == 1) for one feature vector.
	PredictProba(features []float64) (float64, error)

	Type() string

	// Params are the hyperparameters logged to the experiment tracker.
	Params() map[string]string
}

// envelope wraps a serialized classifier with its type so the loader knows
// which concrete model to decode.
type envelope struct {
	Type  string          `json:"type"`
	Model json.RawMessage `json:"model"`
}

// Save persists a fitted classifier as a JSON artifact.
func Save(path string, c Classifier) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize %s model: %w", c.Type(), err)
	}
	data, err := json.MarshalIndent(envelope{Type: c.Type(), Model: raw}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize model envelope: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model artifact %s: %w", path, err)
	}
	return nil
}

// Load reads a model artifact and reconstructs the concrete classifier.
func Load(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact %s: %w", path, err)
	}

	var c Classifier
	switch env.Type {
	case TypeLogisticRegression:
		c = &LogisticRegression{}
	case TypeRandomForest:
		c = &RandomForest{}
	default:
		return nil, fmt.Errorf("model artifact %s has unknown type %q", path, env.Type)
	}

	if err := json.Unmarshal(env.Model, c); err != nil {
		return nil, fmt.Errorf("failed to decode %s model from %s: %w", env.Type, path, err)
	}
	return c, nil
}

// Predict maps the model's raw probability to the label/confidence pair the
// API returns. Confidence is the probability of the predicted class.
func Predict(c Classifier, features []float64) (int, float64, error) {
	proba, err := c.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	if proba >= 0.5 {
		return 1, proba, nil
	}
	return 0, 1 - proba, nil
}
