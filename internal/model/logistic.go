package model

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// LogisticRegression is fit with full-batch gradient descent. Weights start
// at zero, so training is deterministic for a given dataset.
type LogisticRegression struct {
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	LearningRate float64   `json:"learning_rate"`
	Epochs       int       `json:"epochs"`
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{LearningRate: 0.1, Epochs: 500}
}

func (m *LogisticRegression) Type() string { return TypeLogisticRegression }

func (m *LogisticRegression) Params() map[string]string {
	return map[string]string{
		"learning_rate": strconv.FormatFloat(m.LearningRate, 'g', -1, 64),
		"epochs":        strconv.Itoa(m.Epochs),
	}
}

func (m *LogisticRegression) Fit(features [][]float64, labels []float64) error {
	n := len(features)
	if n == 0 {
		return fmt.Errorf("no training data")
	}
	if len(labels) != n {
		return fmt.Errorf("feature count %d does not match label count %d", n, len(labels))
	}
	d := len(features[0])

	flat := make([]float64, 0, n*d)
	for i, row := range features {
		if len(row) != d {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), d)
		}
		flat = append(flat, row...)
	}
	x := mat.NewDense(n, d, flat)
	y := mat.NewVecDense(n, labels)

	w := mat.NewVecDense(d, nil)
	bias := 0.0

	z := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(d, nil)

	for epoch := 0; epoch < m.Epochs; epoch++ {
		// residual = sigmoid(Xw + b) - y
		z.MulVec(x, w)
		biasGrad := 0.0
		for i := 0; i < n; i++ {
			residual := sigmoid(z.AtVec(i)+bias) - y.AtVec(i)
			z.SetVec(i, residual)
			biasGrad += residual
		}

		grad.MulVec(x.T(), z)
		w.AddScaledVec(w, -m.LearningRate/float64(n), grad)
		bias -= m.LearningRate * biasGrad / float64(n)
	}

	m.Weights = make([]float64, d)
	copy(m.Weights, w.RawVector().Data)
	m.Bias = bias
	return nil
}

func (m *LogisticRegression) PredictProba(features []float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, fmt.Errorf("logistic regression model is not fitted")
	}
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Weights), len(features))
	}
	z := m.Bias
	for i, w := range m.Weights {
		z += w * features[i]
	}
	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
