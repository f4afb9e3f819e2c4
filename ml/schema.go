package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cardiopredict/clinical"
)

var (
	ErrSchemaMismatch  = errors.New("feature schema mismatch")
	ErrUnknownCategory = errors.New("unknown category")
)

// Schema is the frozen, ordered list of columns a trained model expects.
// A Schema is immutable once built.
type Schema struct {
	columns     []string
	index       map[string]int
	fingerprint string
}

func NewSchema(columns []string) (*Schema, error) {
	if len(columns) == 0 {
		return nil, errors.New("schema has no columns")
	}
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if name == "" {
			return nil, fmt.Errorf("schema column %d has no name", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate schema column %q", name)
		}
		index[name] = i
	}
	return &Schema{
		columns:     append([]string(nil), columns...),
		index:       index,
		fingerprint: fingerprint(columns),
	}, nil
}

// BuildSchema derives the training schema from the full dataset. Every record
// must carry only categories the encoder knows; an unknown category in the
// training data would silently collapse into the reference column.
func BuildSchema(enc *Encoder, records []clinical.Record) (*Schema, error) {
	if len(records) == 0 {
		return nil, errors.New("cannot build schema from an empty dataset")
	}
	for i, r := range records {
		if err := enc.CheckCategories(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return NewSchema(enc.Columns())
}

func fingerprint(columns []string) string {
	sum := sha256.Sum256([]byte(strings.Join(columns, "\x00")))
	return hex.EncodeToString(sum[:])
}

func (s *Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

func (s *Schema) Len() int {
	return len(s.columns)
}

func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s *Schema) Fingerprint() string {
	return s.fingerprint
}

func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.fingerprint == other.fingerprint && len(s.columns) == len(other.columns)
}

// Reindex places values at their schema positions. Schema columns missing from
// values are zero-filled, values whose column is not in the schema are dropped.
// The result always has Len() entries.
func (s *Schema) Reindex(values []NamedValue) FeatureVector {
	out := make(FeatureVector, len(s.columns))
	for _, v := range values {
		if i, ok := s.index[v.Name]; ok {
			out[i] = v.Value
		}
	}
	return out
}

// Align is Reindex that refuses to drop columns: an encoded column absent
// from the schema means the encoder and the model disagree.
func (s *Schema) Align(values []NamedValue) (FeatureVector, error) {
	var unknown []string
	for _, v := range values {
		if _, ok := s.index[v.Name]; !ok {
			unknown = append(unknown, v.Name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: columns not in schema: %s", ErrSchemaMismatch, strings.Join(unknown, ", "))
	}
	return s.Reindex(values), nil
}

type schemaJSON struct {
	Columns     []string `json:"columns"`
	Fingerprint string   `json:"fingerprint"`
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaJSON{Columns: s.columns, Fingerprint: s.fingerprint})
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw schemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewSchema(raw.Columns)
	if err != nil {
		return err
	}
	if raw.Fingerprint != "" && raw.Fingerprint != parsed.fingerprint {
		return fmt.Errorf("%w: schema fingerprint does not match its columns", ErrArtifactCorrupt)
	}
	*s = *parsed
	return nil
}
