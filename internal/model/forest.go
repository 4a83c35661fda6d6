package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
)

// treeNode is one node of a fitted CART tree. Leaves carry the positive
// class fraction of their training rows.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
	Leaf      bool      `json:"leaf"`
	Prob      float64   `json:"prob"`
}

// RandomForest bags gini-split CART trees over bootstrap samples with
// per-split feature subsampling. All randomness comes from Seed, so a fit
// over the same data reproduces the same forest.
type RandomForest struct {
	NumTrees       int   `json:"num_trees"`
	MaxDepth       int   `json:"max_depth"`
	MinSamplesLeaf int   `json:"min_samples_leaf"`
	Seed           int64 `json:"seed"`

	Trees       []*treeNode `json:"trees"`
	NumFeatures int         `json:"num_features"`
}

func NewRandomForest(seed int64) *RandomForest {
	return &RandomForest{NumTrees: 100, MaxDepth: 8, MinSamplesLeaf: 2, Seed: seed}
}

func (m *RandomForest) Type() string { return TypeRandomForest }

func (m *RandomForest) Params() map[string]string {
	return map[string]string{
		"num_trees":        strconv.Itoa(m.NumTrees),
		"max_depth":        strconv.Itoa(m.MaxDepth),
		"min_samples_leaf": strconv.Itoa(m.MinSamplesLeaf),
		"seed":             strconv.FormatInt(m.Seed, 10),
	}
}

func (m *RandomForest) Fit(features [][]float64, labels []float64) error {
	n := len(features)
	if n == 0 {
		return fmt.Errorf("no training data")
	}
	if len(labels) != n {
		return fmt.Errorf("feature count %d does not match label count %d", n, len(labels))
	}
	m.NumFeatures = len(features[0])
	for i, row := range features {
		if len(row) != m.NumFeatures {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), m.NumFeatures)
		}
	}

	rng := rand.New(rand.NewSource(m.Seed))
	perSplit := int(math.Ceil(math.Sqrt(float64(m.NumFeatures))))

	m.Trees = make([]*treeNode, m.NumTrees)
	for t := 0; t < m.NumTrees; t++ {
		sampleRows := make([][]float64, n)
		sampleLabels := make([]float64, n)
		for i := 0; i < n; i++ {
			idx := rng.Intn(n)
			sampleRows[i] = features[idx]
			sampleLabels[i] = labels[idx]
		}
		m.Trees[t] = m.buildTree(sampleRows, sampleLabels, 0, perSplit, rng)
	}
	return nil
}

func (m *RandomForest) buildTree(rows [][]float64, labels []float64, depth, perSplit int, rng *rand.Rand) *treeNode {
	if depth >= m.MaxDepth || len(rows) <= m.MinSamplesLeaf || homogeneous(labels) {
		return &treeNode{Leaf: true, Prob: positiveFraction(labels)}
	}

	feature, threshold, gain := bestSplit(rows, labels, perSplit, rng)
	if gain <= 0 {
		return &treeNode{Leaf: true, Prob: positiveFraction(labels)}
	}

	var leftRows, rightRows [][]float64
	var leftLabels, rightLabels []float64
	for i, row := range rows {
		if row[feature] <= threshold {
			leftRows = append(leftRows, row)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightRows = append(rightRows, row)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	if len(leftRows) == 0 || len(rightRows) == 0 {
		return &treeNode{Leaf: true, Prob: positiveFraction(labels)}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      m.buildTree(leftRows, leftLabels, depth+1, perSplit, rng),
		Right:     m.buildTree(rightRows, rightLabels, depth+1, perSplit, rng),
	}
}

// bestSplit scans a random feature subset, trying thresholds at midpoints
// between consecutive distinct values.
func bestSplit(rows [][]float64, labels []float64, perSplit int, rng *rand.Rand) (int, float64, float64) {
	numFeatures := len(rows[0])
	candidates := rng.Perm(numFeatures)
	if perSplit < numFeatures {
		candidates = candidates[:perSplit]
	}

	parent := gini(labels)
	total := float64(len(labels))

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	values := make([]float64, len(rows))
	for _, feature := range candidates {
		for i, row := range rows {
			values[i] = row[feature]
		}
		sorted := append([]float64{}, values...)
		sort.Float64s(sorted)

		for i := 1; i < len(sorted); i++ {
			if sorted[i] == sorted[i-1] {
				continue
			}
			threshold := (sorted[i] + sorted[i-1]) / 2

			var left, right []float64
			for j, v := range values {
				if v <= threshold {
					left = append(left, labels[j])
				} else {
					right = append(right, labels[j])
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}

			gain := parent - (float64(len(left))/total)*gini(left) - (float64(len(right))/total)*gini(right)
			if gain > bestGain {
				bestFeature, bestThreshold, bestGain = feature, threshold, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func (m *RandomForest) PredictProba(features []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, fmt.Errorf("random forest model is not fitted")
	}
	if len(features) != m.NumFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", m.NumFeatures, len(features))
	}
	sum := 0.0
	for _, tree := range m.Trees {
		node := tree
		for !node.Leaf {
			if features[node.Feature] <= node.Threshold {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		sum += node.Prob
	}
	return sum / float64(len(m.Trees)), nil
}

func homogeneous(labels []float64) bool {
	for _, v := range labels[1:] {
		if v != labels[0] {
			return false
		}
	}
	return true
}

func positiveFraction(labels []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	count := 0.0
	for _, v := range labels {
		if v == 1 {
			count++
		}
	}
	return count / float64(len(labels))
}

func gini(labels []float64) float64 {
	p := positiveFraction(labels)
	return 2 * p * (1 - p)
}
