package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

var ErrArtifactCorrupt = errors.New("model artifact corrupt")

const ArtifactFormatVersion = 1

// TrainingInfo records how an artifact's model was produced.
type TrainingInfo struct {
	Dataset       string  `json:"dataset,omitempty"`
	// Cleaning is the policy the dataset rows went through before the split.
	// Empty means every row was kept.
	Cleaning      string  `json:"cleaning,omitempty"`
	Rows          int     `json:"rows"`
	TrainRows     int     `json:"train_rows"`
	TestRows      int     `json:"test_rows"`
	TestRatio     float64 `json:"test_ratio"`
	Seed          int64   `json:"seed"`
	Stratified    bool    `json:"stratified"`
	Oversampled   bool    `json:"oversampled"`
	SyntheticRows int     `json:"synthetic_rows,omitempty"`
}

// Artifact binds a fitted model to the schema it was trained on. The two are
// only ever persisted and loaded together.
type Artifact struct {
	ModelType string       `json:"model_type"`
	Schema    *Schema      `json:"schema"`
	TrainedAt time.Time    `json:"trained_at"`
	Metrics   *Metrics     `json:"metrics,omitempty"`
	Training  TrainingInfo `json:"training"`

	model Model
}

func NewArtifact(model Model, schema *Schema) (*Artifact, error) {
	if model == nil || schema == nil {
		return nil, errors.New("artifact needs a model and a schema")
	}
	if model.NumFeatures() != schema.Len() {
		return nil, fmt.Errorf("%w: model expects %d features, schema has %d", ErrSchemaMismatch, model.NumFeatures(), schema.Len())
	}
	return &Artifact{
		ModelType: model.Type(),
		Schema:    schema,
		TrainedAt: time.Now().UTC(),
		model:     model,
	}, nil
}

// Classifier returns the fitted model.
func (a *Artifact) Classifier() Classifier {
	return a.model
}

type artifactJSON struct {
	FormatVersion int             `json:"format_version"`
	ModelType     string          `json:"model_type"`
	Schema        *Schema         `json:"schema"`
	TrainedAt     time.Time       `json:"trained_at"`
	Metrics       *Metrics        `json:"metrics,omitempty"`
	Training      TrainingInfo    `json:"training"`
	Model         json.RawMessage `json:"model"`
}

// EncodeArtifact writes a as indented JSON.
func EncodeArtifact(w io.Writer, a *Artifact) error {
	if a == nil || a.model == nil || a.Schema == nil {
		return errors.New("artifact is incomplete")
	}
	payload, err := a.model.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(artifactJSON{
		FormatVersion: ArtifactFormatVersion,
		ModelType:     a.ModelType,
		Schema:        a.Schema,
		TrainedAt:     a.TrainedAt,
		Metrics:       a.Metrics,
		Training:      a.Training,
		Model:         payload,
	})
}

// ReadArtifact decodes an artifact and checks that its model and schema agree.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	var raw artifactJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, ErrArtifactCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)
	}
	if raw.FormatVersion != ArtifactFormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrArtifactCorrupt, raw.FormatVersion, ArtifactFormatVersion)
	}
	if raw.Schema == nil {
		return nil, fmt.Errorf("%w: missing schema", ErrArtifactCorrupt)
	}
	if len(raw.Model) == 0 {
		return nil, fmt.Errorf("%w: missing model", ErrArtifactCorrupt)
	}

	model, err := NewModel(raw.ModelType)
	if err != nil {
		return nil, err
	}
	if err := model.UnmarshalJSON(raw.Model); err != nil {
		if errors.Is(err, ErrArtifactCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: model: %v", ErrArtifactCorrupt, err)
	}
	if model.NumFeatures() != raw.Schema.Len() {
		return nil, fmt.Errorf("%w: model expects %d features, schema has %d", ErrSchemaMismatch, model.NumFeatures(), raw.Schema.Len())
	}

	return &Artifact{
		ModelType: raw.ModelType,
		Schema:    raw.Schema,
		TrainedAt: raw.TrainedAt,
		Metrics:   raw.Metrics,
		Training:  raw.Training,
		model:     model,
	}, nil
}

// SaveArtifact writes a to path through a temporary file in the same
// directory, so readers never observe a partially written artifact.
func SaveArtifact(path string, a *Artifact) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*.json")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeArtifact(tmp, a); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadArtifact(f)
}
