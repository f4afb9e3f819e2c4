package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DecisionTree is a binary CART classifier using gini impurity.
// MaxDepth <= 0 grows the tree until leaves are pure or too small to split.
// MaxFeatures > 0 limits the features examined at each split to a random
// subset of that size, as used by RandomForest.
type DecisionTree struct {
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int
	Seed           int64

	nodes     []TreeNode
	nFeatures int
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	ClassLabel  int     `json:"class_label"`
	Probability float64 `json:"probability"`
	Samples     int     `json:"samples"`
	IsLeaf      bool    `json:"is_leaf"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesLeaf: 1}
}

func (dt *DecisionTree) Type() string {
	return ModelDecisionTree
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.nFeatures
}

func (dt *DecisionTree) Fit(features [][]float64, labels []int) error {
	width, err := checkTrainingSet(features, labels)
	if err != nil {
		return err
	}
	if dt.MinSamplesLeaf <= 0 {
		dt.MinSamplesLeaf = 1
	}

	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(dt.Seed))

	dt.nFeatures = width
	dt.nodes = nil
	dt.grow(features, labels, indices, 0, rng)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, err
	}
	return leaf.ClassLabel, nil
}

func (dt *DecisionTree) PredictProbability(features []float64) (float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, err
	}
	return leaf.Probability, nil
}

// Depth returns the depth of the deepest leaf.
func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx, depth int) int
	walk = func(idx, depth int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return depth
		}
		left := walk(node.LeftChild, depth+1)
		right := walk(node.RightChild, depth+1)
		if left > right {
			return left
		}
		return right
	}
	return walk(0, 0)
}

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, ErrNotTrained
	}
	if len(features) != dt.nFeatures {
		return TreeNode{}, fmt.Errorf("%w: got %d, want %d", ErrFeatureLength, len(features), dt.nFeatures)
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return TreeNode{}, errors.New("invalid tree state")
}

// grow appends the subtree for indices and returns the index of its root.
func (dt *DecisionTree) grow(features [][]float64, labels []int, indices []int, depth int, rng *rand.Rand) int {
	positives := 0
	for _, i := range indices {
		positives += labels[i]
	}
	probability := float64(positives) / float64(len(indices))

	self := len(dt.nodes)
	dt.nodes = append(dt.nodes, TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		ClassLabel:  labelFor(probability),
		Probability: probability,
		Samples:     len(indices),
		IsLeaf:      true,
	})

	if dt.MaxDepth > 0 && depth >= dt.MaxDepth {
		return self
	}
	if positives == 0 || positives == len(indices) || len(indices) < 2*dt.MinSamplesLeaf {
		return self
	}

	feature, threshold, ok := dt.findBestSplit(features, labels, indices, rng)
	if !ok {
		return self
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	leftIdx := dt.grow(features, labels, left, depth+1, rng)
	rightIdx := dt.grow(features, labels, right, depth+1, rng)

	node := &dt.nodes[self]
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return self
}

// findBestSplit scans every boundary between distinct sorted values of the
// candidate features and returns the split with the lowest weighted gini.
func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, indices []int, rng *rand.Rand) (int, float64, bool) {
	candidates := dt.candidateFeatures(rng)

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	total := len(indices)
	totalPositives := 0
	for _, i := range indices {
		totalPositives += labels[i]
	}

	sorted := make([]int, total)
	for _, featureIdx := range candidates {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})

		leftCount, leftPositives := 0, 0
		for k := 0; k < total-1; k++ {
			leftCount++
			leftPositives += labels[sorted[k]]

			current := features[sorted[k]][featureIdx]
			next := features[sorted[k+1]][featureIdx]
			if current == next {
				continue
			}
			rightCount := total - leftCount
			if leftCount < dt.MinSamplesLeaf || rightCount < dt.MinSamplesLeaf {
				continue
			}
			impurity := weightedGini(leftCount, leftPositives, rightCount, totalPositives-leftPositives)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = current + (next-current)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (dt *DecisionTree) candidateFeatures(rng *rand.Rand) []int {
	if dt.MaxFeatures > 0 && dt.MaxFeatures < dt.nFeatures {
		return rng.Perm(dt.nFeatures)[:dt.MaxFeatures]
	}
	all := make([]int, dt.nFeatures)
	for i := range all {
		all[i] = i
	}
	return all
}

func weightedGini(leftCount, leftPositives, rightCount, rightPositives int) float64 {
	total := float64(leftCount + rightCount)
	return (float64(leftCount)/total)*gini(leftCount, leftPositives) +
		(float64(rightCount)/total)*gini(rightCount, rightPositives)
}

func gini(count, positives int) float64 {
	if count == 0 {
		return 0
	}
	p := float64(positives) / float64(count)
	return 1 - p*p - (1-p)*(1-p)
}

type decisionTreeJSON struct {
	MaxDepth       int        `json:"max_depth"`
	MinSamplesLeaf int        `json:"min_samples_leaf"`
	MaxFeatures    int        `json:"max_features"`
	Seed           int64      `json:"seed"`
	NumFeatures    int        `json:"n_features"`
	Nodes          []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(decisionTreeJSON{
		MaxDepth:       dt.MaxDepth,
		MinSamplesLeaf: dt.MinSamplesLeaf,
		MaxFeatures:    dt.MaxFeatures,
		Seed:           dt.Seed,
		NumFeatures:    dt.nFeatures,
		Nodes:          dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var raw decisionTreeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := validateNodes(raw.Nodes, raw.NumFeatures); err != nil {
		return err
	}
	dt.MaxDepth = raw.MaxDepth
	dt.MinSamplesLeaf = raw.MinSamplesLeaf
	dt.MaxFeatures = raw.MaxFeatures
	dt.Seed = raw.Seed
	dt.nFeatures = raw.NumFeatures
	dt.nodes = raw.Nodes
	return nil
}

func validateNodes(nodes []TreeNode, nFeatures int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("%w: tree has no nodes", ErrArtifactCorrupt)
	}
	if nFeatures <= 0 {
		return fmt.Errorf("%w: tree has no features", ErrArtifactCorrupt)
	}
	for i, node := range nodes {
		if node.Probability < 0 || node.Probability > 1 {
			return fmt.Errorf("%w: node %d probability %v", ErrArtifactCorrupt, i, node.Probability)
		}
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= nFeatures {
			return fmt.Errorf("%w: node %d feature index %d out of range", ErrArtifactCorrupt, i, node.FeatureIdx)
		}
		// children are always appended after their parent
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("%w: node %d has invalid children", ErrArtifactCorrupt, i)
		}
	}
	return nil
}
