package clinical

import (
	"fmt"
	"math"
	"strings"
)

// Field is the public (wire) name of a record field.
type Field string

const (
	FieldAge               Field = "age"
	FieldSex               Field = "sex"
	FieldRestingBP         Field = "trestbps"
	FieldCholesterol       Field = "chol"
	FieldMaxHeartRate      Field = "thalach"
	FieldOldpeak           Field = "oldpeak"
	FieldChestPainType     Field = "cp"
	FieldRestingECG        Field = "restecg"
	FieldFastingBloodSugar Field = "fbs"
	FieldExerciseAngina    Field = "exang"
	FieldSTSlope           Field = "slope"
)

// Group partitions the fields so a staged form can report one step at a time.
type Group string

const (
	GroupDemographic Group = "demographic"
	GroupVitals      Group = "vitals"
	GroupClinical    Group = "clinical"
)

// Groups returns every group in form order.
func Groups() []Group {
	return []Group{GroupDemographic, GroupVitals, GroupClinical}
}

func (f Field) Group() Group {
	switch f {
	case FieldAge, FieldSex:
		return GroupDemographic
	case FieldRestingBP, FieldCholesterol, FieldMaxHeartRate, FieldOldpeak:
		return GroupVitals
	default:
		return GroupClinical
	}
}

// CategoryPolicy decides what happens to a present but unrecognised enum value.
type CategoryPolicy string

const (
	// PolicyStrict rejects unknown category values with a violation.
	PolicyStrict CategoryPolicy = "strict"
	// PolicyLenient accepts them; the encoder then treats them as the
	// reference (all-zero) category.
	PolicyLenient CategoryPolicy = "lenient"
)

func ParseCategoryPolicy(s string) (CategoryPolicy, error) {
	switch CategoryPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	}
	return "", fmt.Errorf("unknown category policy %q", s)
}

// Violation is one reason a record was rejected.
type Violation struct {
	Field   Field  `json:"field"`
	Group   Group  `json:"group"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found in a record.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

func (e *ValidationError) Messages() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Message
	}
	return out
}

// InGroup returns the violations that belong to g.
func (e *ValidationError) InGroup(g Group) []Violation {
	var out []Violation
	for _, v := range e.Violations {
		if v.Group == g {
			out = append(out, v)
		}
	}
	return out
}

type intRange struct {
	field    Field
	min, max int
	message  string
	value    func(Draft) *int
}

var intRanges = []intRange{
	{FieldAge, 1, 120, "Age must be between 1 and 120 years", func(d Draft) *int { return d.Age }},
	{FieldRestingBP, 80, 220, "Resting BP must be 80–220 mm Hg", func(d Draft) *int { return d.RestingBP }},
	{FieldCholesterol, 100, 700, "Cholesterol must be 100–700 mg/dl", func(d Draft) *int { return d.Cholesterol }},
	{FieldMaxHeartRate, 60, 230, "Max Heart Rate must be 60–230 bpm", func(d Draft) *int { return d.MaxHeartRate }},
}

const (
	OldpeakMin     = 0.0
	OldpeakMax     = 10.0
	oldpeakMessage = "Oldpeak must be 0.0–10.0"
)

// enumField describes one required enum. value returns the raw string and
// whether it was provided; valid reports membership of the closed set.
type enumField struct {
	field Field
	value func(Draft) (string, bool)
	valid func(string) bool
}

var enumFields = []enumField{
	{FieldSex, func(d Draft) (string, bool) {
		if d.Sex == nil {
			return "", false
		}
		return string(*d.Sex), true
	}, func(s string) bool { return Sex(s).Valid() }},
	{FieldChestPainType, func(d Draft) (string, bool) {
		if d.ChestPainType == nil {
			return "", false
		}
		return string(*d.ChestPainType), true
	}, func(s string) bool { return ChestPainType(s).Valid() }},
	{FieldRestingECG, func(d Draft) (string, bool) {
		if d.RestingECG == nil {
			return "", false
		}
		return string(*d.RestingECG), true
	}, func(s string) bool { return RestingECG(s).Valid() }},
	{FieldFastingBloodSugar, func(d Draft) (string, bool) {
		if d.FastingBloodSugar == nil {
			return "", false
		}
		return string(*d.FastingBloodSugar), true
	}, func(s string) bool { return YesNo(s).Valid() }},
	{FieldExerciseAngina, func(d Draft) (string, bool) {
		if d.ExerciseAngina == nil {
			return "", false
		}
		return string(*d.ExerciseAngina), true
	}, func(s string) bool { return YesNo(s).Valid() }},
	{FieldSTSlope, func(d Draft) (string, bool) {
		if d.STSlope == nil {
			return "", false
		}
		return string(*d.STSlope), true
	}, func(s string) bool { return STSlope(s).Valid() }},
}

// Validator checks drafts against the plausible ranges and required fields.
// The zero value uses PolicyStrict.
type Validator struct {
	Policy CategoryPolicy
}

func NewValidator(policy CategoryPolicy) Validator {
	return Validator{Policy: policy}
}

// Validate checks the whole draft and returns a *ValidationError listing every
// violation, or nil.
func (v Validator) Validate(d Draft) error {
	return v.ValidateGroup(d, Groups()...)
}

// ValidateRecord validates a complete record.
func (v Validator) ValidateRecord(r Record) error {
	return v.Validate(r.Draft())
}

// ValidateGroup checks only the fields of the given groups.
func (v Validator) ValidateGroup(d Draft, groups ...Group) error {
	want := make(map[Group]bool, len(groups))
	for _, g := range groups {
		want[g] = true
	}
	var violations []Violation
	add := func(f Field, msg string) {
		if want[f.Group()] {
			violations = append(violations, Violation{Field: f, Group: f.Group(), Message: msg})
		}
	}

	for _, r := range intRanges {
		value := r.value(d)
		if value == nil || *value < r.min || *value > r.max {
			add(r.field, r.message)
		}
	}
	if d.Oldpeak == nil || math.IsNaN(*d.Oldpeak) || *d.Oldpeak < OldpeakMin || *d.Oldpeak > OldpeakMax {
		add(FieldOldpeak, oldpeakMessage)
	}

	for _, e := range enumFields {
		value, ok := e.value(d)
		if !ok || value == "" {
			add(e.field, fmt.Sprintf("Please provide: %s", e.field))
			continue
		}
		if v.Policy != PolicyLenient && !e.valid(value) {
			add(e.field, fmt.Sprintf("Unknown %s value: %q", e.field, value))
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}
