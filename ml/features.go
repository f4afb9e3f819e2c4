package ml

// FeatureVector is the numeric input of a classifier, ordered by a Schema.
type FeatureVector []float64

// NamedValue is one encoded column before it is aligned to a schema.
type NamedValue struct {
	Name  string
	Value float64
}

const (
	ColAge          = "age"
	ColSex          = "sex"
	ColRestingBP    = "trestbps"
	ColCholesterol  = "chol"
	ColFastingBS    = "fbs"
	ColMaxHeartRate = "thalach"
	ColExang        = "exang"
	ColOldpeak      = "oldpeak"

	PrefixChestPain  = "cp"
	PrefixRestingECG = "restecg"
	PrefixSTSlope    = "slope"
)

// FeatureNames returns the column order produced by the default encoder.
func FeatureNames() []string {
	return NewEncoder().Columns()
}

// OneHotColumn names the indicator column of category in a prefixed field.
func OneHotColumn(prefix, category string) string {
	return prefix + "_" + category
}

func (v FeatureVector) Clone() FeatureVector {
	return append(FeatureVector(nil), v...)
}
