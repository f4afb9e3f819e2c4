package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"cardiopredict/config"
	"cardiopredict/db"
	"cardiopredict/logging"
	"cardiopredict/ml"
	"cardiopredict/pipeline"
)

func main() {
	defaults := pipeline.DefaultTrainOptions()

	dataPath := flag.String("data", "data/heart.csv", "training dataset (csv)")
	encoding := flag.String("encoding", "utf-8", "dataset encoding: utf-8, latin1 or windows-1252")
	modelPath := flag.String("out", "models/heart_model.json", "artifact output path")
	modelType := flag.String("model", defaults.ModelType, "model type: random_forest or decision_tree")
	trees := flag.Int("trees", defaults.Trees, "number of trees (random_forest)")
	maxDepth := flag.Int("max_depth", 0, "max tree depth, 0 for unlimited")
	minLeaf := flag.Int("min_samples_leaf", defaults.MinSamplesLeaf, "minimum samples per leaf")
	testRatio := flag.Float64("test_ratio", defaults.TestRatio, "held-out share of the dataset")
	seed := flag.Int64("seed", defaults.Seed, "random seed for split, oversampling and bagging")
	stratify := flag.Bool("stratify", defaults.Stratify, "keep the class ratio in both splits")
	oversample := flag.Bool("oversample", defaults.Oversample, "SMOTE the minority class of the training split")
	workers := flag.Int("workers", 0, "parallel tree builders, 0 for GOMAXPROCS")
	clean := flag.String("clean", string(pipeline.CleanKeep), "rows failing quality rules: keep, drop or impute")
	dbPath := flag.String("db", "", "sqlite run log, empty to skip")
	logLevel := flag.String("log_level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(config.LogConfig{Level: *logLevel, Format: "console"})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	policy, err := pipeline.ParseCleaningPolicy(*clean)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	samples, err := pipeline.NewDatasetReader(*encoding).ReadFile(*dataPath)
	if err != nil {
		log.Fatalf("failed to read dataset: %v", err)
	}

	opts := pipeline.TrainOptions{
		ModelType:      *modelType,
		Trees:          *trees,
		MaxDepth:       *maxDepth,
		MinSamplesLeaf: *minLeaf,
		TestRatio:      *testRatio,
		Seed:           *seed,
		Stratify:       *stratify,
		Oversample:     *oversample,
		Workers:        *workers,
		Dataset:        filepath.Base(*dataPath),
		Cleaning:       policy,
	}
	result, err := pipeline.Train(ctx, samples, opts, logger.Logger)
	if err != nil {
		log.Fatalf("failed to train model: %v", err)
	}

	if err := ml.SaveArtifact(*modelPath, result.Artifact); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}

	if *dbPath != "" {
		if err := recordRun(ctx, *dbPath, *modelPath, result); err != nil {
			log.Fatalf("failed to record run: %v", err)
		}
	}

	fmt.Printf("rows: train=%d test=%d synthetic=%d rejected=%d\n",
		result.TrainRows, result.TestRows, result.Synthetic, result.Cleaning.Rejected)
	fmt.Printf("accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n",
		result.Metrics.Accuracy, result.Metrics.Precision, result.Metrics.Recall, result.Metrics.F1)
	fmt.Println(result.Metrics.ConfusionMatrix())
	fmt.Println(result.Metrics.Report())
	fmt.Printf("model saved to %s\n", *modelPath)
}

func recordRun(ctx context.Context, path, modelPath string, result *pipeline.TrainResult) error {
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	m := result.Metrics
	id, err := store.RecordRun(ctx, db.Run{
		ModelName:         strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)),
		ModelType:         result.Artifact.ModelType,
		SchemaFingerprint: result.Artifact.Schema.Fingerprint(),
		Kind:              db.KindTrain,
		Accuracy:          m.Accuracy,
		Precision:         m.Precision,
		Recall:            m.Recall,
		F1:                m.F1,
		DataPoints:        result.TrainRows + result.TestRows,
		TrainedAt:         result.Artifact.TrainedAt,
	})
	if err != nil {
		return err
	}

	rows := make([]db.Issue, len(result.Issues))
	for i, issue := range result.Issues {
		rows[i] = db.Issue{Line: issue.Line, Rule: issue.Rule, Severity: issue.Severity, Message: issue.Message}
	}
	return store.RecordIssues(ctx, id, rows)
}
