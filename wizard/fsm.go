// Package wizard implements the staged risk assessment form as a finite state
// machine. Every transition returns a new State; a State is never modified in
// place, so sessions can be shared between goroutines without copying.
package wizard

import (
	"context"
	"errors"
	"fmt"

	"cardiopredict/clinical"
	"cardiopredict/predict"
)

// ErrInvalidTransition is returned when an action is not allowed from the
// current step.
var ErrInvalidTransition = errors.New("invalid wizard transition")

// Step is one page of the form.
type Step int

const (
	StepBasic Step = iota
	StepMetrics
	StepClinical
	StepReview
	StepDone
)

var stepNames = [...]string{"basic", "metrics", "clinical", "review", "done"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	for i, name := range stepNames {
		if name == string(text) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("unknown wizard step %q", text)
}

// Title is the heading shown for the step.
func (s Step) Title() string {
	switch s {
	case StepBasic:
		return "Basic Information"
	case StepMetrics:
		return "Health Metrics"
	case StepClinical:
		return "Clinical Details"
	case StepReview:
		return "Review"
	case StepDone:
		return "Result"
	}
	return s.String()
}

// Group is the field group collected on s. Review and Done collect nothing.
func (s Step) Group() (clinical.Group, bool) {
	switch s {
	case StepBasic:
		return clinical.GroupDemographic, true
	case StepMetrics:
		return clinical.GroupVitals, true
	case StepClinical:
		return clinical.GroupClinical, true
	}
	return "", false
}

// Predictor runs one prediction. *predict.Service implements it.
type Predictor interface {
	Predict(ctx context.Context, d clinical.Draft) (predict.Result, error)
}

// State is the position in the form plus everything entered so far.
type State struct {
	step   Step
	draft  clinical.Draft
	result *predict.Result
}

// New starts at the first step with the form defaults filled in.
func New() State {
	return State{step: StepBasic, draft: clinical.DefaultRecord().Draft()}
}

func (s State) Step() Step {
	return s.step
}

// Draft returns a copy of the entered values.
func (s State) Draft() clinical.Draft {
	return clinical.Draft{}.Merge(s.draft)
}

// Result is set only in StepDone.
func (s State) Result() (predict.Result, bool) {
	if s.result == nil {
		return predict.Result{}, false
	}
	return *s.result, true
}

// Submit merges the inputs belonging to the current step and advances when the
// step's fields are valid. On a validation failure the returned state is s and
// the error is a *clinical.ValidationError covering this step only. Inputs for
// fields of other steps are ignored.
func (s State) Submit(v clinical.Validator, inputs clinical.Draft) (State, error) {
	group, ok := s.step.Group()
	if !ok {
		return s, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, s.step)
	}
	draft := s.draft.Merge(inputs, group)
	if err := v.ValidateGroup(draft, group); err != nil {
		return s, err
	}
	return State{step: s.step + 1, draft: draft}, nil
}

// Back returns to the previous step, keeping every entered value. From Done it
// returns to Review so the inputs can be edited and predicted again.
func (s State) Back() (State, error) {
	switch s.step {
	case StepMetrics, StepClinical, StepReview:
		return State{step: s.step - 1, draft: s.draft}, nil
	case StepDone:
		return State{step: StepReview, draft: s.draft}, nil
	}
	return s, fmt.Errorf("%w: back from %s", ErrInvalidTransition, s.step)
}

// Predict runs the full validation and the prediction from Review. Errors from
// the predictor are returned unchanged with s.
func (s State) Predict(ctx context.Context, p Predictor) (State, error) {
	if s.step != StepReview {
		return s, fmt.Errorf("%w: predict from %s", ErrInvalidTransition, s.step)
	}
	result, err := p.Predict(ctx, s.draft)
	if err != nil {
		return s, err
	}
	return State{step: StepDone, draft: s.draft, result: &result}, nil
}

// Summary lists the entered values in form order for the review page.
func (s State) Summary() []Entry {
	r := s.draft.Record()
	return []Entry{
		entry(clinical.FieldAge, "Age", fmt.Sprintf("%d", r.Age)),
		entry(clinical.FieldSex, "Sex", string(r.Sex)),
		entry(clinical.FieldRestingBP, "Resting BP", fmt.Sprintf("%d mm Hg", r.RestingBP)),
		entry(clinical.FieldCholesterol, "Cholesterol", fmt.Sprintf("%d mg/dl", r.Cholesterol)),
		entry(clinical.FieldMaxHeartRate, "Max Heart Rate", fmt.Sprintf("%d bpm", r.MaxHeartRate)),
		entry(clinical.FieldOldpeak, "Oldpeak", fmt.Sprintf("%.1f", r.Oldpeak)),
		entry(clinical.FieldChestPainType, "Chest Pain Type", string(r.ChestPainType)),
		entry(clinical.FieldRestingECG, "Resting ECG", string(r.RestingECG)),
		entry(clinical.FieldFastingBloodSugar, "Fasting Blood Sugar > 120 mg/dl", string(r.FastingBloodSugar)),
		entry(clinical.FieldExerciseAngina, "Exercise Angina", string(r.ExerciseAngina)),
		entry(clinical.FieldSTSlope, "ST Slope", string(r.STSlope)),
	}
}

// Fields lists the entries the current step collects. Review and done collect
// nothing.
func (s State) Fields() []Entry {
	group, ok := s.step.Group()
	if !ok {
		return nil
	}
	var fields []Entry
	for _, e := range s.Summary() {
		if e.Field.Group() == group {
			fields = append(fields, e)
		}
	}
	return fields
}

func entry(field clinical.Field, label, value string) Entry {
	return Entry{Field: field, Label: label, Value: value, Help: Help(field)}
}

// Entry is one labelled value of the review summary.
type Entry struct {
	Field clinical.Field `json:"field"`
	Label string         `json:"label"`
	Value string         `json:"value"`
	Help  string         `json:"help,omitempty"`
}
