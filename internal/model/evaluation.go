package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// BinaryMetrics are the held-out evaluation metrics logged per training run.
type BinaryMetrics struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	ROCAUC    float64
}

// Map returns the metrics keyed by their tracker names.
func (m BinaryMetrics) Map() map[string]float64 {
	return map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
		"roc_auc":   m.ROCAUC,
	}
}

// Evaluate scores predicted probabilities against binary labels at the 0.5
// decision threshold.
func Evaluate(scores, labels []float64) (BinaryMetrics, error) {
	if len(scores) != len(labels) {
		return BinaryMetrics{}, fmt.Errorf("score count %d does not match label count %d", len(scores), len(labels))
	}
	if len(scores) == 0 {
		return BinaryMetrics{}, fmt.Errorf("no predictions to evaluate")
	}

	var tp, fp, tn, fn float64
	for i, score := range scores {
		predicted := score >= 0.5
		actual := labels[i] == 1
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && !actual:
			tn++
		default:
			fn++
		}
	}

	metrics := BinaryMetrics{
		Accuracy: (tp + tn) / float64(len(scores)),
	}
	if tp+fp > 0 {
		metrics.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		metrics.Recall = tp / (tp + fn)
	}
	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}
	metrics.ROCAUC = ROCAUC(scores, labels)

	return metrics, nil
}

// ROCAUC computes the area under the ROC curve. Returns 0 when the labels
// contain only one class, where the curve is undefined.
func ROCAUC(scores, labels []float64) float64 {
	type pair struct {
		score    float64
		positive bool
	}
	pairs := make([]pair, len(scores))
	positives := 0
	for i, score := range scores {
		pairs[i] = pair{score: score, positive: labels[i] == 1}
		if pairs[i].positive {
			positives++
		}
	}
	if positives == 0 || positives == len(pairs) {
		return 0
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	y := make([]float64, len(pairs))
	classes := make([]bool, len(pairs))
	for i, p := range pairs {
		y[i] = p.score
		classes[i] = p.positive
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	auc := integrate.Trapezoidal(fpr, tpr)
	if math.IsNaN(auc) {
		return 0
	}
	return auc
}
