package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotTrained       = errors.New("model not trained")
	ErrFeatureLength    = errors.New("feature vector length mismatch")
	ErrUnsupportedModel = errors.New("unsupported model type")
)

// Classifier predicts the binary risk label (0 = no risk, 1 = risk) for one
// aligned feature vector. Implementations are immutable once trained and safe
// for concurrent use.
type Classifier interface {
	Predict(features []float64) (int, error)
	// NumFeatures is the vector length the model was fitted on.
	NumFeatures() int
}

// ProbabilityEstimator is implemented by classifiers that can report the
// probability of the positive class, in [0, 1].
type ProbabilityEstimator interface {
	PredictProbability(features []float64) (float64, error)
}

// Model is a classifier that can be fitted and persisted inside an Artifact.
type Model interface {
	Classifier
	json.Marshaler
	json.Unmarshaler
	Fit(features [][]float64, labels []int) error
	Type() string
}

const (
	ModelDecisionTree = "decision_tree"
	ModelRandomForest = "random_forest"
)

// NewModel returns an untrained model of the given type with default parameters.
func NewModel(modelType string) (Model, error) {
	switch modelType {
	case ModelDecisionTree:
		return NewDecisionTree(0), nil
	case ModelRandomForest:
		return NewRandomForest(100, 42), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
}

func checkTrainingSet(features [][]float64, labels []int) (int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return 0, errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return 0, errors.New("feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureLength, i, len(row), width)
		}
	}
	for i, label := range labels {
		if label != 0 && label != 1 {
			return 0, fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	return width, nil
}

func labelFor(probability float64) int {
	if probability > 0.5 {
		return 1
	}
	return 0
}
