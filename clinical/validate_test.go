package clinical

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDefaultRecord(t *testing.T) {
	if err := NewValidator(PolicyStrict).ValidateRecord(DefaultRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
		message string
	}{
		{"age min", func(r *Record) { r.Age = 1 }, false, ""},
		{"age max", func(r *Record) { r.Age = 120 }, false, ""},
		{"age below", func(r *Record) { r.Age = 0 }, true, "Age must be between 1 and 120 years"},
		{"age above", func(r *Record) { r.Age = 121 }, true, "Age must be between 1 and 120 years"},
		{"bp min", func(r *Record) { r.RestingBP = 80 }, false, ""},
		{"bp max", func(r *Record) { r.RestingBP = 220 }, false, ""},
		{"bp below", func(r *Record) { r.RestingBP = 79 }, true, "Resting BP must be 80–220 mm Hg"},
		{"bp above", func(r *Record) { r.RestingBP = 221 }, true, "Resting BP must be 80–220 mm Hg"},
		{"chol min", func(r *Record) { r.Cholesterol = 100 }, false, ""},
		{"chol max", func(r *Record) { r.Cholesterol = 700 }, false, ""},
		{"chol below", func(r *Record) { r.Cholesterol = 99 }, true, "Cholesterol must be 100–700 mg/dl"},
		{"chol above", func(r *Record) { r.Cholesterol = 701 }, true, "Cholesterol must be 100–700 mg/dl"},
		{"hr min", func(r *Record) { r.MaxHeartRate = 60 }, false, ""},
		{"hr max", func(r *Record) { r.MaxHeartRate = 230 }, false, ""},
		{"hr below", func(r *Record) { r.MaxHeartRate = 59 }, true, "Max Heart Rate must be 60–230 bpm"},
		{"hr above", func(r *Record) { r.MaxHeartRate = 231 }, true, "Max Heart Rate must be 60–230 bpm"},
		{"oldpeak min", func(r *Record) { r.Oldpeak = 0.0 }, false, ""},
		{"oldpeak max", func(r *Record) { r.Oldpeak = 10.0 }, false, ""},
		{"oldpeak below", func(r *Record) { r.Oldpeak = -0.1 }, true, "Oldpeak must be 0.0–10.0"},
		{"oldpeak above", func(r *Record) { r.Oldpeak = 10.1 }, true, "Oldpeak must be 0.0–10.0"},
	}

	v := NewValidator(PolicyStrict)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRecord()
			tt.mutate(&r)
			err := v.ValidateRecord(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if len(verr.Violations) != 1 || verr.Violations[0].Message != tt.message {
				t.Fatalf("unexpected violations: %+v", verr.Violations)
			}
		})
	}
}

func TestValidateMissingFieldsAggregates(t *testing.T) {
	err := NewValidator(PolicyStrict).Validate(Draft{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Violations) != 11 {
		t.Fatalf("expected 11 violations, got %d: %v", len(verr.Violations), verr.Messages())
	}
	if got := verr.Violations[len(verr.Violations)-1].Message; got != "Please provide: slope" {
		t.Fatalf("unexpected last message: %q", got)
	}
}

func TestValidateEmptyEnum(t *testing.T) {
	d := DefaultRecord().Draft()
	empty := ChestPainType("")
	d.ChestPainType = &empty
	err := NewValidator(PolicyLenient).Validate(d)
	if err == nil || !strings.Contains(err.Error(), "Please provide: cp") {
		t.Fatalf("expected missing cp, got %v", err)
	}
}

func TestValidateGroups(t *testing.T) {
	r := DefaultRecord()
	r.Age = 0
	r.Cholesterol = 50
	d := r.Draft()
	v := NewValidator(PolicyStrict)

	err := v.ValidateGroup(d, GroupDemographic)
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Violations) != 1 || verr.Violations[0].Field != FieldAge {
		t.Fatalf("expected only age violation, got %v", err)
	}

	if err := v.ValidateGroup(d, GroupClinical); err != nil {
		t.Fatalf("clinical group should pass: %v", err)
	}

	err = v.Validate(d)
	if !errors.As(err, &verr) || len(verr.Violations) != 2 {
		t.Fatalf("expected two violations, got %v", err)
	}
	if len(verr.InGroup(GroupVitals)) != 1 {
		t.Fatalf("expected one vitals violation")
	}
}

func TestCategoryPolicy(t *testing.T) {
	r := DefaultRecord()
	r.ChestPainType = "atypical"
	r.Sex = "male"

	err := NewValidator(PolicyStrict).ValidateRecord(r)
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Violations) != 2 {
		t.Fatalf("strict policy should reject unknown categories, got %v", err)
	}
	if verr.Violations[0].Field != FieldSex || verr.Violations[1].Field != FieldChestPainType {
		t.Fatalf("unexpected order: %+v", verr.Violations)
	}

	if err := NewValidator(PolicyLenient).ValidateRecord(r); err != nil {
		t.Fatalf("lenient policy should accept unknown categories: %v", err)
	}

	if err := (Validator{}).ValidateRecord(r); err == nil {
		t.Fatal("zero validator should be strict")
	}
}

func TestParseCategoryPolicy(t *testing.T) {
	for in, want := range map[string]CategoryPolicy{"": PolicyStrict, "STRICT": PolicyStrict, " lenient ": PolicyLenient} {
		got, err := ParseCategoryPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseCategoryPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCategoryPolicy("loose"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDraftMerge(t *testing.T) {
	base := DefaultRecord().Draft()
	age := 70
	chol := 300
	merged := base.Merge(Draft{Age: &age, Cholesterol: &chol}, GroupDemographic)

	if *merged.Age != 70 {
		t.Fatalf("expected age 70, got %d", *merged.Age)
	}
	if *merged.Cholesterol != 200 {
		t.Fatalf("cholesterol is not in the demographic group and must be ignored, got %d", *merged.Cholesterol)
	}
	age = 10
	if *merged.Age != 70 {
		t.Fatal("merged draft must not alias the input")
	}
	if *base.Age != 45 {
		t.Fatal("merge must not modify the receiver")
	}
}
