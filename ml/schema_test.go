package ml

import (
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"cardiopredict/clinical"
)

func TestNewSchemaRejectsBadColumns(t *testing.T) {
	tests := [][]string{
		nil,
		{"age", ""},
		{"age", "sex", "age"},
	}
	for _, columns := range tests {
		if _, err := NewSchema(columns); err == nil {
			t.Fatalf("expected error for %v", columns)
		}
	}
}

func TestReindexLengthInvariance(t *testing.T) {
	enc := NewEncoder()
	schema := enc.Schema()
	named := enc.EncodeNamed(clinical.DefaultRecord())
	want := schema.Reindex(named)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := append([]NamedValue(nil), named...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		// drop a random suffix and add a foreign column
		shuffled = shuffled[:rng.Intn(len(shuffled)+1)]
		shuffled = append(shuffled, NamedValue{Name: "thal_fixed", Value: 1})

		got := schema.Reindex(shuffled)
		if len(got) != schema.Len() {
			t.Fatalf("expected length %d, got %d", schema.Len(), len(got))
		}
		for _, v := range shuffled {
			if idx, ok := schema.Index(v.Name); ok && got[idx] != want[idx] {
				t.Fatalf("column %s moved: expected %v, got %v", v.Name, want[idx], got[idx])
			}
		}
	}
}

func TestReindexZeroFillsMissingColumns(t *testing.T) {
	schema, err := NewSchema([]string{"age", "cp_ATA", "cp_XYZ"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := schema.Reindex([]NamedValue{{Name: "cp_ATA", Value: 1}, {Name: "age", Value: 50}, {Name: "chol", Value: 200}})
	want := FeatureVector{50, 1, 0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAlignRejectsUnknownColumn(t *testing.T) {
	schema, err := NewSchema([]string{"age", "sex"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = schema.Align([]NamedValue{{Name: "age", Value: 1}, {Name: "cp_ATA", Value: 1}})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "cp_ATA") {
		t.Fatalf("expected offending column in error, got %v", err)
	}

	vec, err := schema.Align([]NamedValue{{Name: "sex", Value: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(vec, FeatureVector{0, 1}) {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestBuildSchema(t *testing.T) {
	enc := NewEncoder()
	records := []clinical.Record{clinical.DefaultRecord(), clinical.DefaultRecord()}
	schema, err := BuildSchema(enc, records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(schema.Columns(), enc.Columns()) {
		t.Fatalf("schema columns differ from encoder columns")
	}

	bad := clinical.DefaultRecord()
	bad.STSlope = "Steep"
	if _, err := BuildSchema(enc, append(records, bad)); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := BuildSchema(enc, nil); err == nil {
		t.Fatalf("expected error for empty dataset")
	}
}

func TestSchemaJSON(t *testing.T) {
	schema := NewEncoder().Schema()
	payload, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var loaded Schema
	if err := json.Unmarshal(payload, &loaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !loaded.Equal(schema) || !reflect.DeepEqual(loaded.Columns(), schema.Columns()) {
		t.Fatalf("schema did not round-trip")
	}

	tampered := strings.Replace(string(payload), `"slope_Down"`, `"slope_Steep"`, 1)
	if err := json.Unmarshal([]byte(tampered), &loaded); !errors.Is(err, ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt, got %v", err)
	}
}

func TestSchemaColumnsIsCopy(t *testing.T) {
	schema := NewEncoder().Schema()
	cols := schema.Columns()
	cols[0] = "mutated"
	if schema.Columns()[0] != ColAge {
		t.Fatalf("schema was mutated through Columns()")
	}
}
