package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RandomForest averages the leaf probabilities of bootstrap-trained decision
// trees. MaxFeatures <= 0 uses sqrt(n_features) candidates per split. Fitting
// is deterministic for a given Seed regardless of Workers.
type RandomForest struct {
	NTrees         int
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int
	Seed           int64
	Workers        int

	trees     []*DecisionTree
	nFeatures int
}

func NewRandomForest(nTrees int, seed int64) *RandomForest {
	return &RandomForest{NTrees: nTrees, MinSamplesLeaf: 1, Seed: seed}
}

func (rf *RandomForest) Type() string {
	return ModelRandomForest
}

func (rf *RandomForest) NumFeatures() int {
	return rf.nFeatures
}

func (rf *RandomForest) Fit(features [][]float64, labels []int) error {
	width, err := checkTrainingSet(features, labels)
	if err != nil {
		return err
	}
	if rf.NTrees <= 0 {
		rf.NTrees = 100
	}
	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(width)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	// Draw every bootstrap sample and tree seed up front so the result does
	// not depend on goroutine scheduling.
	rng := rand.New(rand.NewSource(rf.Seed))
	samples := make([][]int, rf.NTrees)
	seeds := make([]int64, rf.NTrees)
	for t := range samples {
		sample := make([]int, len(features))
		for i := range sample {
			sample[i] = rng.Intn(len(features))
		}
		samples[t] = sample
		seeds[t] = rng.Int63()
	}

	trees := make([]*DecisionTree, rf.NTrees)
	workers := rf.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for t := range trees {
		t := t
		g.Go(func() error {
			x := make([][]float64, len(samples[t]))
			y := make([]int, len(samples[t]))
			for i, row := range samples[t] {
				x[i] = features[row]
				y[i] = labels[row]
			}
			tree := &DecisionTree{
				MaxDepth:       rf.MaxDepth,
				MinSamplesLeaf: rf.MinSamplesLeaf,
				MaxFeatures:    maxFeatures,
				Seed:           seeds[t],
			}
			if err := tree.Fit(x, y); err != nil {
				return fmt.Errorf("tree %d: %w", t, err)
			}
			trees[t] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.MaxFeatures = maxFeatures
	rf.trees = trees
	rf.nFeatures = width
	return nil
}

func (rf *RandomForest) Predict(features []float64) (int, error) {
	probability, err := rf.PredictProbability(features)
	if err != nil {
		return 0, err
	}
	return labelFor(probability), nil
}

func (rf *RandomForest) PredictProbability(features []float64) (float64, error) {
	if len(rf.trees) == 0 {
		return 0, ErrNotTrained
	}
	sum := 0.0
	for _, tree := range rf.trees {
		p, err := tree.PredictProbability(features)
		if err != nil {
			return 0, err
		}
		sum += p
	}
	return sum / float64(len(rf.trees)), nil
}

type randomForestJSON struct {
	NTrees         int               `json:"n_trees"`
	MaxDepth       int               `json:"max_depth"`
	MinSamplesLeaf int               `json:"min_samples_leaf"`
	MaxFeatures    int               `json:"max_features"`
	Seed           int64             `json:"seed"`
	NumFeatures    int               `json:"n_features"`
	Trees          []json.RawMessage `json:"trees"`
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	if len(rf.trees) == 0 {
		return nil, ErrNotTrained
	}
	trees := make([]json.RawMessage, len(rf.trees))
	for i, tree := range rf.trees {
		payload, err := tree.MarshalJSON()
		if err != nil {
			return nil, err
		}
		trees[i] = payload
	}
	return json.Marshal(randomForestJSON{
		NTrees:         rf.NTrees,
		MaxDepth:       rf.MaxDepth,
		MinSamplesLeaf: rf.MinSamplesLeaf,
		MaxFeatures:    rf.MaxFeatures,
		Seed:           rf.Seed,
		NumFeatures:    rf.nFeatures,
		Trees:          trees,
	})
}

func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var raw randomForestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrArtifactCorrupt)
	}
	trees := make([]*DecisionTree, len(raw.Trees))
	for i, payload := range raw.Trees {
		tree := &DecisionTree{}
		if err := tree.UnmarshalJSON(payload); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		if tree.NumFeatures() != raw.NumFeatures {
			return fmt.Errorf("%w: tree %d expects %d features, forest %d", ErrArtifactCorrupt, i, tree.NumFeatures(), raw.NumFeatures)
		}
		trees[i] = tree
	}
	rf.NTrees = raw.NTrees
	rf.MaxDepth = raw.MaxDepth
	rf.MinSamplesLeaf = raw.MinSamplesLeaf
	rf.MaxFeatures = raw.MaxFeatures
	rf.Seed = raw.Seed
	rf.nFeatures = raw.NumFeatures
	rf.trees = trees
	return nil
}
