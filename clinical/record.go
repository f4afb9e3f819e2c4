// Package clinical holds the raw clinical input record and its validation rules.
package clinical

// Sex of the patient.
type Sex string

const (
	SexMale   Sex = "Male"
	SexFemale Sex = "Female"
)

func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale:
		return true
	}
	return false
}

// ChestPainType is the reported chest pain category. TA is the reference category.
type ChestPainType string

const (
	ChestPainTA  ChestPainType = "TA"  // typical angina
	ChestPainATA ChestPainType = "ATA" // atypical angina
	ChestPainNAP ChestPainType = "NAP" // non-anginal pain
	ChestPainASY ChestPainType = "ASY" // asymptomatic
)

func (c ChestPainType) Valid() bool {
	switch c {
	case ChestPainTA, ChestPainATA, ChestPainNAP, ChestPainASY:
		return true
	}
	return false
}

// ChestPainTypes lists the categories, reference first.
func ChestPainTypes() []string {
	return []string{string(ChestPainTA), string(ChestPainATA), string(ChestPainNAP), string(ChestPainASY)}
}

// RestingECG is the resting electrocardiogram pattern. Normal is the reference category.
type RestingECG string

const (
	ECGNormal RestingECG = "Normal"
	ECGST     RestingECG = "ST"
	ECGLVH    RestingECG = "LVH"
)

func (e RestingECG) Valid() bool {
	switch e {
	case ECGNormal, ECGST, ECGLVH:
		return true
	}
	return false
}

// RestingECGs lists the categories, reference first.
func RestingECGs() []string {
	return []string{string(ECGNormal), string(ECGST), string(ECGLVH)}
}

// STSlope is the slope of the peak exercise ST segment. Up is the reference category.
type STSlope string

const (
	SlopeUp   STSlope = "Up"
	SlopeFlat STSlope = "Flat"
	SlopeDown STSlope = "Down"
)

func (s STSlope) Valid() bool {
	switch s {
	case SlopeUp, SlopeFlat, SlopeDown:
		return true
	}
	return false
}

// STSlopes lists the categories, reference first.
func STSlopes() []string {
	return []string{string(SlopeUp), string(SlopeFlat), string(SlopeDown)}
}

// YesNo is used for the boolean-like fields (fasting blood sugar, exercise angina).
type YesNo string

const (
	Yes YesNo = "Yes"
	No  YesNo = "No"
)

func (y YesNo) Valid() bool {
	switch y {
	case Yes, No:
		return true
	}
	return false
}

// Record is one complete set of clinical inputs. JSON names follow the public API.
type Record struct {
	Age               int           `json:"age"`
	Sex               Sex           `json:"sex"`
	RestingBP         int           `json:"trestbps"`
	Cholesterol       int           `json:"chol"`
	MaxHeartRate      int           `json:"thalach"`
	Oldpeak           float64       `json:"oldpeak"`
	ChestPainType     ChestPainType `json:"cp"`
	RestingECG        RestingECG    `json:"restecg"`
	FastingBloodSugar YesNo         `json:"fbs"`
	ExerciseAngina    YesNo         `json:"exang"`
	STSlope           STSlope       `json:"slope"`
}

// DefaultRecord returns the values the assessment form starts with.
func DefaultRecord() Record {
	return Record{
		Age:               45,
		Sex:               SexMale,
		RestingBP:         120,
		Cholesterol:       200,
		MaxHeartRate:      150,
		Oldpeak:           1.0,
		ChestPainType:     ChestPainATA,
		RestingECG:        ECGNormal,
		FastingBloodSugar: No,
		ExerciseAngina:    No,
		STSlope:           SlopeUp,
	}
}

// Draft returns the record as a fully populated draft.
func (r Record) Draft() Draft {
	return Draft{
		Age:               &r.Age,
		Sex:               &r.Sex,
		RestingBP:         &r.RestingBP,
		Cholesterol:       &r.Cholesterol,
		MaxHeartRate:      &r.MaxHeartRate,
		Oldpeak:           &r.Oldpeak,
		ChestPainType:     &r.ChestPainType,
		RestingECG:        &r.RestingECG,
		FastingBloodSugar: &r.FastingBloodSugar,
		ExerciseAngina:    &r.ExerciseAngina,
		STSlope:           &r.STSlope,
	}
}

// Draft is a possibly incomplete record as received from a client. A nil field
// was not provided.
type Draft struct {
	Age               *int           `json:"age,omitempty"`
	Sex               *Sex           `json:"sex,omitempty"`
	RestingBP         *int           `json:"trestbps,omitempty"`
	Cholesterol       *int           `json:"chol,omitempty"`
	MaxHeartRate      *int           `json:"thalach,omitempty"`
	Oldpeak           *float64       `json:"oldpeak,omitempty"`
	ChestPainType     *ChestPainType `json:"cp,omitempty"`
	RestingECG        *RestingECG    `json:"restecg,omitempty"`
	FastingBloodSugar *YesNo         `json:"fbs,omitempty"`
	ExerciseAngina    *YesNo         `json:"exang,omitempty"`
	STSlope           *STSlope       `json:"slope,omitempty"`
}

// Record converts the draft, leaving zero values for missing fields. Callers
// validate first.
func (d Draft) Record() Record {
	var r Record
	if d.Age != nil {
		r.Age = *d.Age
	}
	if d.Sex != nil {
		r.Sex = *d.Sex
	}
	if d.RestingBP != nil {
		r.RestingBP = *d.RestingBP
	}
	if d.Cholesterol != nil {
		r.Cholesterol = *d.Cholesterol
	}
	if d.MaxHeartRate != nil {
		r.MaxHeartRate = *d.MaxHeartRate
	}
	if d.Oldpeak != nil {
		r.Oldpeak = *d.Oldpeak
	}
	if d.ChestPainType != nil {
		r.ChestPainType = *d.ChestPainType
	}
	if d.RestingECG != nil {
		r.RestingECG = *d.RestingECG
	}
	if d.FastingBloodSugar != nil {
		r.FastingBloodSugar = *d.FastingBloodSugar
	}
	if d.ExerciseAngina != nil {
		r.ExerciseAngina = *d.ExerciseAngina
	}
	if d.STSlope != nil {
		r.STSlope = *d.STSlope
	}
	return r
}

// Merge returns a copy of d with every field set in other taking precedence.
// Only fields belonging to one of groups are taken from other; with no groups
// all fields are considered.
func (d Draft) Merge(other Draft, groups ...Group) Draft {
	take := func(f Field) bool {
		if len(groups) == 0 {
			return true
		}
		for _, g := range groups {
			if f.Group() == g {
				return true
			}
		}
		return false
	}
	out := d.clone()
	if other.Age != nil && take(FieldAge) {
		out.Age = ptr(*other.Age)
	}
	if other.Sex != nil && take(FieldSex) {
		out.Sex = ptr(*other.Sex)
	}
	if other.RestingBP != nil && take(FieldRestingBP) {
		out.RestingBP = ptr(*other.RestingBP)
	}
	if other.Cholesterol != nil && take(FieldCholesterol) {
		out.Cholesterol = ptr(*other.Cholesterol)
	}
	if other.MaxHeartRate != nil && take(FieldMaxHeartRate) {
		out.MaxHeartRate = ptr(*other.MaxHeartRate)
	}
	if other.Oldpeak != nil && take(FieldOldpeak) {
		out.Oldpeak = ptr(*other.Oldpeak)
	}
	if other.ChestPainType != nil && take(FieldChestPainType) {
		out.ChestPainType = ptr(*other.ChestPainType)
	}
	if other.RestingECG != nil && take(FieldRestingECG) {
		out.RestingECG = ptr(*other.RestingECG)
	}
	if other.FastingBloodSugar != nil && take(FieldFastingBloodSugar) {
		out.FastingBloodSugar = ptr(*other.FastingBloodSugar)
	}
	if other.ExerciseAngina != nil && take(FieldExerciseAngina) {
		out.ExerciseAngina = ptr(*other.ExerciseAngina)
	}
	if other.STSlope != nil && take(FieldSTSlope) {
		out.STSlope = ptr(*other.STSlope)
	}
	return out
}

// clone copies every pointer so drafts never share storage.
func (d Draft) clone() Draft {
	var out Draft
	if d.Age != nil {
		out.Age = ptr(*d.Age)
	}
	if d.Sex != nil {
		out.Sex = ptr(*d.Sex)
	}
	if d.RestingBP != nil {
		out.RestingBP = ptr(*d.RestingBP)
	}
	if d.Cholesterol != nil {
		out.Cholesterol = ptr(*d.Cholesterol)
	}
	if d.MaxHeartRate != nil {
		out.MaxHeartRate = ptr(*d.MaxHeartRate)
	}
	if d.Oldpeak != nil {
		out.Oldpeak = ptr(*d.Oldpeak)
	}
	if d.ChestPainType != nil {
		out.ChestPainType = ptr(*d.ChestPainType)
	}
	if d.RestingECG != nil {
		out.RestingECG = ptr(*d.RestingECG)
	}
	if d.FastingBloodSugar != nil {
		out.FastingBloodSugar = ptr(*d.FastingBloodSugar)
	}
	if d.ExerciseAngina != nil {
		out.ExerciseAngina = ptr(*d.ExerciseAngina)
	}
	if d.STSlope != nil {
		out.STSlope = ptr(*d.STSlope)
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
