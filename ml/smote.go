package ml

import (
	"errors"
	"math/rand"
	"sort"
)

// SMOTE balances a binary training set by synthesising minority-class rows on
// the segment between a minority row and one of its K nearest minority
// neighbours. Only the training split should ever be resampled.
type SMOTE struct {
	K    int
	Seed int64
}

func NewSMOTE(seed int64) SMOTE {
	return SMOTE{K: 5, Seed: seed}
}

// Resample returns the original rows followed by the synthetic ones. The input
// slices are not modified.
func (s SMOTE) Resample(features [][]float64, labels []int) ([][]float64, []int, error) {
	if _, err := checkTrainingSet(features, labels); err != nil {
		return nil, nil, err
	}

	var byClass [2][]int
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}
	minority, majority := 0, 1
	if len(byClass[1]) < len(byClass[0]) {
		minority, majority = 1, 0
	}

	outX := append([][]float64(nil), features...)
	outY := append([]int(nil), labels...)

	need := len(byClass[majority]) - len(byClass[minority])
	if need == 0 {
		return outX, outY, nil
	}
	rows := byClass[minority]
	if len(rows) < 2 {
		return nil, nil, errors.New("smote needs at least two minority samples")
	}
	k := s.K
	if k <= 0 {
		k = 5
	}
	if k > len(rows)-1 {
		k = len(rows) - 1
	}

	neighbours := nearestNeighbours(features, rows, k)
	rng := rand.New(rand.NewSource(s.Seed))
	for n := 0; n < need; n++ {
		base := rng.Intn(len(rows))
		neighbour := neighbours[base][rng.Intn(k)]
		gap := rng.Float64()

		a := features[rows[base]]
		b := features[neighbour]
		synthetic := make([]float64, len(a))
		for j := range a {
			synthetic[j] = a[j] + gap*(b[j]-a[j])
		}
		outX = append(outX, synthetic)
		outY = append(outY, minority)
	}
	return outX, outY, nil
}

// nearestNeighbours returns, for each row in rows, the dataset indices of its
// k closest other rows (squared euclidean distance).
func nearestNeighbours(features [][]float64, rows []int, k int) [][]int {
	type candidate struct {
		row  int
		dist float64
	}
	out := make([][]int, len(rows))
	candidates := make([]candidate, 0, len(rows))
	for i, row := range rows {
		candidates = candidates[:0]
		for j, other := range rows {
			if i == j {
				continue
			}
			candidates = append(candidates, candidate{row: other, dist: squaredDistance(features[row], features[other])})
		}
		sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].dist < candidates[b].dist })
		nearest := make([]int, k)
		for n := 0; n < k; n++ {
			nearest[n] = candidates[n].row
		}
		out[i] = nearest
	}
	return out
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
