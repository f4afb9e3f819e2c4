package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cardiopredict/clinical"
	"cardiopredict/ml"
)

// TrainOptions 训练参数
type TrainOptions struct {
	ModelType      string
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	TestRatio      float64
	Seed           int64
	Stratify       bool
	Oversample     bool
	Workers        int
	Dataset        string
	// Cleaning is applied to the rows before the split and recorded in the
	// artifact so that evaluation can recreate the same rows.
	Cleaning       CleaningPolicy
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		ModelType:      ml.ModelRandomForest,
		Trees:          100,
		MinSamplesLeaf: 1,
		TestRatio:      0.2,
		Seed:           42,
		Stratify:       true,
		Oversample:     true,
		Cleaning:       CleanKeep,
	}
}

// TrainResult 训练结果
type TrainResult struct {
	Artifact  *ml.Artifact
	Metrics   ml.Metrics
	TrainRows int
	TestRows  int
	Synthetic int
	Issues    []QualityIssue
	Cleaning  CleaningStats
}

// EncodeSamples runs every sample through the shared encoder aligned to schema.
func EncodeSamples(schema *ml.Schema, samples []Sample) ([][]float64, []int, error) {
	enc := ml.NewEncoder()
	features := make([][]float64, len(samples))
	labels := make([]int, len(samples))
	for i, s := range samples {
		vec, err := enc.EncodeFor(schema, s.Record)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", s.Line, err)
		}
		features[i] = vec
		labels[i] = s.Label
	}
	return features, labels, nil
}

func records(samples []Sample) []clinical.Record {
	out := make([]clinical.Record, len(samples))
	for i, s := range samples {
		out[i] = s.Record
	}
	return out
}

func newModel(opts TrainOptions) (ml.Model, error) {
	switch opts.ModelType {
	case ml.ModelRandomForest, "":
		rf := ml.NewRandomForest(opts.Trees, opts.Seed)
		rf.MaxDepth = opts.MaxDepth
		if opts.MinSamplesLeaf > 0 {
			rf.MinSamplesLeaf = opts.MinSamplesLeaf
		}
		rf.Workers = opts.Workers
		return rf, nil
	case ml.ModelDecisionTree:
		dt := ml.NewDecisionTree(opts.MaxDepth)
		if opts.MinSamplesLeaf > 0 {
			dt.MinSamplesLeaf = opts.MinSamplesLeaf
		}
		dt.Seed = opts.Seed
		return dt, nil
	}
	return ml.NewModel(opts.ModelType)
}

// Train cleans the dataset, builds the schema from the remaining rows, splits
// them, optionally oversamples the training part and fits a model. Metrics are
// computed on the held-out part only.
func Train(ctx context.Context, samples []Sample, opts TrainOptions, logger *zap.Logger) (*TrainResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := ParseCleaningPolicy(string(opts.Cleaning))
	if err != nil {
		return nil, err
	}
	cleaner := NewDataCleaner(policy)
	samples, issues := cleaner.Clean(samples)
	stats := cleaner.GetStats()
	logger.Info("dataset cleaned",
		zap.String("policy", string(policy)),
		zap.Int64("rows", stats.TotalProcessed),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("corrected", stats.Corrected),
		zap.Int64("flagged", stats.Flagged))
	if len(samples) == 0 {
		return nil, errors.New("no samples to train on")
	}

	schema, err := ml.BuildSchema(ml.NewEncoder(), records(samples))
	if err != nil {
		return nil, err
	}
	features, labels, err := EncodeSamples(schema, samples)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := ml.SplitIndices(labels, opts.TestRatio, opts.Seed, opts.Stratify)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	trainX, trainY := ml.Subset(features, labels, trainIdx)
	testX, testY := ml.Subset(features, labels, testIdx)
	logger.Info("dataset split",
		zap.Int("rows", len(samples)),
		zap.Int("train", len(trainX)),
		zap.Int("test", len(testX)),
		zap.Bool("stratified", opts.Stratify))

	synthetic := 0
	if opts.Oversample {
		resampledX, resampledY, err := ml.NewSMOTE(opts.Seed).Resample(trainX, trainY)
		if err != nil {
			return nil, fmt.Errorf("oversample: %w", err)
		}
		synthetic = len(resampledX) - len(trainX)
		trainX, trainY = resampledX, resampledY
		logger.Info("minority class oversampled", zap.Int("synthetic", synthetic))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := newModel(opts)
	if err != nil {
		return nil, err
	}
	if err := model.Fit(trainX, trainY); err != nil {
		return nil, fmt.Errorf("fit %s: %w", model.Type(), err)
	}

	metrics, err := ml.Evaluate(model, testX, testY)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	artifact, err := ml.NewArtifact(model, schema)
	if err != nil {
		return nil, err
	}
	artifact.Metrics = &metrics
	artifact.Training = ml.TrainingInfo{
		Dataset:       opts.Dataset,
		Cleaning:      string(policy),
		Rows:          len(samples),
		TrainRows:     len(trainIdx),
		TestRows:      len(testIdx),
		TestRatio:     opts.TestRatio,
		Seed:          opts.Seed,
		Stratified:    opts.Stratify,
		Oversampled:   opts.Oversample,
		SyntheticRows: synthetic,
	}

	logger.Info("model trained",
		zap.String("model_type", model.Type()),
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("f1", metrics.F1))

	return &TrainResult{
		Artifact:  artifact,
		Metrics:   metrics,
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
		Synthetic: synthetic,
		Issues:    issues,
		Cleaning:  stats,
	}, nil
}

// EvaluateArtifact scores artifact on samples aligned to its persisted schema.
// The rows first go through the cleaning policy recorded at training time.
// With holdout set, the split recorded in the artifact is recreated and only
// the test part is scored.
func EvaluateArtifact(artifact *ml.Artifact, samples []Sample, holdout bool) (ml.Metrics, int, error) {
	policy, err := ParseCleaningPolicy(artifact.Training.Cleaning)
	if err != nil {
		return ml.Metrics{}, 0, err
	}
	samples, _ = NewDataCleaner(policy).Clean(samples)
	features, labels, err := EncodeSamples(artifact.Schema, samples)
	if err != nil {
		return ml.Metrics{}, 0, err
	}
	if holdout {
		info := artifact.Training
		ratio := info.TestRatio
		if ratio <= 0 {
			ratio = 0.2
		}
		_, testIdx, err := ml.SplitIndices(labels, ratio, info.Seed, info.Stratified)
		if err != nil {
			return ml.Metrics{}, 0, err
		}
		features, labels = ml.Subset(features, labels, testIdx)
	}
	metrics, err := ml.Evaluate(artifact.Classifier(), features, labels)
	return metrics, len(labels), err
}
