package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"cardiopredict/db"
	"cardiopredict/ml"
	"cardiopredict/pipeline"
)

func main() {
	dataPath := flag.String("data", "data/heart.csv", "dataset (csv)")
	encoding := flag.String("encoding", "utf-8", "dataset encoding: utf-8, latin1 or windows-1252")
	modelPath := flag.String("model", "models/heart_model.json", "artifact to evaluate")
	holdout := flag.Bool("holdout", true, "score only the split held out at training time")
	dbPath := flag.String("db", "", "sqlite run log, empty to skip")
	flag.Parse()

	artifact, err := ml.LoadArtifact(*modelPath)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}

	samples, err := pipeline.NewDatasetReader(*encoding).ReadFile(*dataPath)
	if err != nil {
		log.Fatalf("failed to read dataset: %v", err)
	}

	metrics, rows, err := pipeline.EvaluateArtifact(artifact, samples, *holdout)
	if err != nil {
		log.Fatalf("failed to evaluate model: %v", err)
	}

	fmt.Printf("model: %s (%s) schema %s\n", *modelPath, artifact.ModelType, artifact.Schema.Fingerprint())
	if artifact.Training.Cleaning != "" {
		fmt.Printf("cleaning: %s\n", artifact.Training.Cleaning)
	}
	fmt.Printf("rows scored: %d\n", rows)
	fmt.Printf("accuracy=%.4f\n", metrics.Accuracy)
	fmt.Println(metrics.ConfusionMatrix())
	fmt.Println(metrics.Report())

	if *dbPath == "" {
		return
	}
	store, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run log: %v", err)
	}
	defer store.Close()
	_, err = store.RecordRun(context.Background(), db.Run{
		ModelName:         strings.TrimSuffix(filepath.Base(*modelPath), filepath.Ext(*modelPath)),
		ModelType:         artifact.ModelType,
		SchemaFingerprint: artifact.Schema.Fingerprint(),
		Kind:              db.KindEvaluate,
		Accuracy:          metrics.Accuracy,
		Precision:         metrics.Precision,
		Recall:            metrics.Recall,
		F1:                metrics.F1,
		DataPoints:        rows,
	})
	if err != nil {
		log.Fatalf("failed to record run: %v", err)
	}
}
