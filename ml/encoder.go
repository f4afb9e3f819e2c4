package ml

import (
	"fmt"

	"cardiopredict/clinical"
)

// Encoder maps a clinical.Record to its feature columns. Training, evaluation
// and every inference path share one Encoder so the column mapping exists in
// exactly one place.
//
// Binary fields encode 1 only for the exact positive token. Categorical fields
// use drop-first one-hot encoding: the first category of each field is the
// reference and has no column, and a value matching no category encodes
// exactly like the reference.
type Encoder struct {
	columns     []column
	categorical []categoricalField
}

type column struct {
	name  string
	value func(clinical.Record) float64
}

type categoricalField struct {
	prefix     string
	categories []string // reference first
	value      func(clinical.Record) string
}

// NewEncoder returns the encoder for the fifteen-column layout
// [age, sex, trestbps, chol, fbs, thalach, exang, oldpeak,
// cp_ATA, cp_NAP, cp_ASY, restecg_ST, restecg_LVH, slope_Flat, slope_Down].
func NewEncoder() *Encoder {
	e := &Encoder{}
	e.numeric(ColAge, func(r clinical.Record) float64 { return float64(r.Age) })
	e.binary(ColSex, func(r clinical.Record) bool { return r.Sex == clinical.SexMale })
	e.numeric(ColRestingBP, func(r clinical.Record) float64 { return float64(r.RestingBP) })
	e.numeric(ColCholesterol, func(r clinical.Record) float64 { return float64(r.Cholesterol) })
	e.binary(ColFastingBS, func(r clinical.Record) bool { return r.FastingBloodSugar == clinical.Yes })
	e.numeric(ColMaxHeartRate, func(r clinical.Record) float64 { return float64(r.MaxHeartRate) })
	e.binary(ColExang, func(r clinical.Record) bool { return r.ExerciseAngina == clinical.Yes })
	e.numeric(ColOldpeak, func(r clinical.Record) float64 { return r.Oldpeak })
	e.oneHot(PrefixChestPain, clinical.ChestPainTypes(), func(r clinical.Record) string { return string(r.ChestPainType) })
	e.oneHot(PrefixRestingECG, clinical.RestingECGs(), func(r clinical.Record) string { return string(r.RestingECG) })
	e.oneHot(PrefixSTSlope, clinical.STSlopes(), func(r clinical.Record) string { return string(r.STSlope) })
	return e
}

func (e *Encoder) numeric(name string, value func(clinical.Record) float64) {
	e.columns = append(e.columns, column{name: name, value: value})
}

func (e *Encoder) binary(name string, positive func(clinical.Record) bool) {
	e.columns = append(e.columns, column{name: name, value: func(r clinical.Record) float64 {
		if positive(r) {
			return 1
		}
		return 0
	}})
}

func (e *Encoder) oneHot(prefix string, categories []string, value func(clinical.Record) string) {
	e.categorical = append(e.categorical, categoricalField{prefix: prefix, categories: categories, value: value})
	for _, category := range categories[1:] {
		category := category
		e.columns = append(e.columns, column{
			name: OneHotColumn(prefix, category),
			value: func(r clinical.Record) float64 {
				if value(r) == category {
					return 1
				}
				return 0
			},
		})
	}
}

// Columns returns the column names in emission order.
func (e *Encoder) Columns() []string {
	names := make([]string, len(e.columns))
	for i, c := range e.columns {
		names[i] = c.name
	}
	return names
}

// Schema returns the encoder's own layout as a schema.
func (e *Encoder) Schema() *Schema {
	s, err := NewSchema(e.Columns())
	if err != nil {
		// column names are static and unique
		panic(err)
	}
	return s
}

// Encode returns the feature vector in the encoder's column order.
func (e *Encoder) Encode(r clinical.Record) FeatureVector {
	out := make(FeatureVector, len(e.columns))
	for i, c := range e.columns {
		out[i] = c.value(r)
	}
	return out
}

// EncodeNamed returns the encoded columns with their names.
func (e *Encoder) EncodeNamed(r clinical.Record) []NamedValue {
	out := make([]NamedValue, len(e.columns))
	for i, c := range e.columns {
		out[i] = NamedValue{Name: c.name, Value: c.value(r)}
	}
	return out
}

// EncodeFor encodes r and aligns the result to schema.
func (e *Encoder) EncodeFor(schema *Schema, r clinical.Record) (FeatureVector, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrSchemaMismatch)
	}
	return schema.Align(e.EncodeNamed(r))
}

// CheckCategories reports the first categorical value of r that is not one of
// the encoder's known categories. Such values would otherwise encode as the
// reference category without any signal.
func (e *Encoder) CheckCategories(r clinical.Record) error {
	for _, f := range e.categorical {
		value := f.value(r)
		known := false
		for _, c := range f.categories {
			if value == c {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: %s=%q", ErrUnknownCategory, f.prefix, value)
		}
	}
	return nil
}
