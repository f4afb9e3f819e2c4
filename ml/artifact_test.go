package ml

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"cardiopredict/clinical"
)

func trainedArtifact(t *testing.T) *Artifact {
	t.Helper()
	enc := NewEncoder()

	var records []clinical.Record
	var labels []int
	for i := 0; i < 40; i++ {
		r := clinical.DefaultRecord()
		r.Age = 30 + i
		if i%2 == 0 {
			r.ChestPainType = clinical.ChestPainASY
			r.ExerciseAngina = clinical.Yes
			r.STSlope = clinical.SlopeFlat
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
		records = append(records, r)
	}
	schema, err := BuildSchema(enc, records)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	features := make([][]float64, len(records))
	for i, r := range records {
		vec, err := enc.EncodeFor(schema, r)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		features[i] = vec
	}

	forest := NewRandomForest(5, 42)
	if err := forest.Fit(features, labels); err != nil {
		t.Fatalf("fit: %v", err)
	}
	artifact, err := NewArtifact(forest, schema)
	if err != nil {
		t.Fatalf("new artifact: %v", err)
	}
	m, err := Evaluate(forest, features, labels)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	artifact.Metrics = &m
	artifact.Training = TrainingInfo{Rows: len(records), Seed: 42}
	return artifact
}

func TestArtifactSaveLoad(t *testing.T) {
	artifact := trainedArtifact(t)
	path := filepath.Join(t.TempDir(), "models", "model.json")
	if err := SaveArtifact(path, artifact); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ModelType != ModelRandomForest {
		t.Fatalf("expected %s, got %s", ModelRandomForest, loaded.ModelType)
	}
	if !loaded.Schema.Equal(artifact.Schema) {
		t.Fatalf("schema did not round-trip")
	}
	if !reflect.DeepEqual(loaded.Metrics, artifact.Metrics) {
		t.Fatalf("metrics did not round-trip")
	}
	if !loaded.TrainedAt.Equal(artifact.TrainedAt) {
		t.Fatalf("trained_at did not round-trip")
	}

	enc := NewEncoder()
	for _, r := range []clinical.Record{clinical.DefaultRecord()} {
		vec, _ := enc.EncodeFor(loaded.Schema, r)
		want, _ := artifact.Classifier().Predict(vec)
		got, err := loaded.Classifier().Predict(vec)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact in the directory, found %d entries", len(entries))
	}
}

func TestNewArtifactRejectsWidthMismatch(t *testing.T) {
	tree := NewDecisionTree(0)
	if err := tree.Fit([][]float64{{0, 1}, {1, 0}}, []int{0, 1}); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if _, err := NewArtifact(tree, NewEncoder().Schema()); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestReadArtifactCorrupt(t *testing.T) {
	artifact := trainedArtifact(t)
	var buf bytes.Buffer
	if err := EncodeArtifact(&buf, artifact); err != nil {
		t.Fatalf("encode: %v", err)
	}
	good := buf.String()

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"not json", "{", ErrArtifactCorrupt},
		{"wrong version", strings.Replace(good, `"format_version": 1`, `"format_version": 9`, 1), ErrArtifactCorrupt},
		{"tampered schema", strings.Replace(good, `"cp_NAP"`, `"cp_XXX"`, 1), ErrArtifactCorrupt},
		{"unknown model", strings.Replace(good, `"model_type": "random_forest"`, `"model_type": "svm"`, 1), ErrUnsupportedModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadArtifact(strings.NewReader(tt.payload)); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadArtifactMissingFile(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}
