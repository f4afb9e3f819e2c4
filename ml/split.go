package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// SplitIndices partitions row indices into a train and a test part. With
// stratify set, each class contributes round(n_class*testRatio) rows to the
// test part so both parts keep the class balance. The result depends only on
// labels, testRatio and seed.
func SplitIndices(labels []int, testRatio float64, seed int64, stratify bool) (train, test []int, err error) {
	if len(labels) < 2 {
		return nil, nil, errors.New("need at least two rows to split")
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rng := rand.New(rand.NewSource(seed))

	groups := [][]int{make([]int, len(labels))}
	for i := range labels {
		groups[0][i] = i
	}
	if stratify {
		byLabel := make(map[int][]int)
		for i, label := range labels {
			byLabel[label] = append(byLabel[label], i)
		}
		keys := make([]int, 0, len(byLabel))
		for label := range byLabel {
			keys = append(keys, label)
		}
		sort.Ints(keys)
		groups = groups[:0]
		for _, label := range keys {
			groups = append(groups, byLabel[label])
		}
	}

	for _, group := range groups {
		perm := rng.Perm(len(group))
		nTest := int(math.Round(float64(len(group)) * testRatio))
		for i, p := range perm {
			if i < nTest {
				test = append(test, group[p])
			} else {
				train = append(train, group[p])
			}
		}
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, nil, errors.New("split produced an empty part")
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// Subset selects rows by index.
func Subset(features [][]float64, labels []int, indices []int) ([][]float64, []int) {
	x := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for i, idx := range indices {
		x[i] = features[idx]
		y[i] = labels[idx]
	}
	return x, y
}
