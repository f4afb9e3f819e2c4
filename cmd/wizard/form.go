package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cardiopredict/clinical"
	"cardiopredict/predict"
	"cardiopredict/wizard"
)

var errQuit = errors.New("quit")

// form drives one wizard.State from a line-oriented terminal.
type form struct {
	in        *bufio.Scanner
	out       io.Writer
	validator clinical.Validator
	predictor wizard.Predictor
}

func newForm(in io.Reader, out io.Writer, v clinical.Validator, p wizard.Predictor) *form {
	return &form{in: bufio.NewScanner(in), out: out, validator: v, predictor: p}
}

// Run loops until the user quits or the input ends. The final state is
// returned either way.
func (f *form) Run(ctx context.Context) (wizard.State, error) {
	state := wizard.New()
	for {
		var err error
		switch state.Step() {
		case wizard.StepReview:
			state, err = f.review(ctx, state)
		case wizard.StepDone:
			state, err = f.done(state)
		default:
			state, err = f.collect(state)
		}
		if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
			return state, nil
		}
		if err != nil {
			return state, err
		}
	}
}

func (f *form) header(step wizard.Step) {
	fmt.Fprintf(f.out, "\n== %s ==\n", step.Title())
}

// collect prompts for every field of the current step. An empty answer keeps
// the shown value, "?" explains the field and "back" returns to the previous
// step.
func (f *form) collect(state wizard.State) (wizard.State, error) {
	f.header(state.Step())

	var inputs clinical.Draft
	for _, entry := range state.Fields() {
		for {
			answer, err := f.ask(fmt.Sprintf("%s [%s]: ", entry.Label, entry.Value))
			if err != nil {
				return state, err
			}
			if answer == "back" {
				next, err := state.Back()
				if err != nil {
					fmt.Fprintln(f.out, "Already at the first step.")
					continue
				}
				return next, nil
			}
			if answer == "?" {
				fmt.Fprintf(f.out, "  %s\n", entry.Help)
				continue
			}
			if answer == "" {
				break
			}
			if err := setField(&inputs, entry.Field, answer); err != nil {
				fmt.Fprintln(f.out, err)
				continue
			}
			break
		}
	}

	next, err := state.Submit(f.validator, inputs)
	var verr *clinical.ValidationError
	if errors.As(err, &verr) {
		for _, v := range verr.Violations {
			fmt.Fprintf(f.out, "  %s\n", v.Message)
		}
		return state, nil
	}
	return next, err
}

func (f *form) review(ctx context.Context, state wizard.State) (wizard.State, error) {
	f.header(state.Step())
	for _, entry := range state.Summary() {
		fmt.Fprintf(f.out, "  %-32s %s\n", entry.Label, entry.Value)
	}
	answer, err := f.ask("[p]redict, [b]ack, [q]uit: ")
	if err != nil {
		return state, err
	}
	switch answer {
	case "p", "predict":
		next, err := state.Predict(ctx, f.predictor)
		switch {
		case errors.Is(err, predict.ErrModelUnavailable):
			fmt.Fprintln(f.out, "Model not loaded. Train a model first.")
			return state, nil
		case errors.Is(err, predict.ErrPrediction):
			fmt.Fprintln(f.out, "Prediction failed.")
			return state, nil
		}
		var verr *clinical.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				fmt.Fprintf(f.out, "  %s\n", v.Message)
			}
			return state, nil
		}
		return next, err
	case "b", "back":
		return state.Back()
	case "q", "quit":
		return state, errQuit
	}
	return state, nil
}

func (f *form) done(state wizard.State) (wizard.State, error) {
	f.header(state.Step())
	result, _ := state.Result()
	fmt.Fprintln(f.out, result.Message)
	if result.Probability != nil {
		fmt.Fprintf(f.out, "Risk probability: %.1f%%\n", *result.Probability)
	}
	answer, err := f.ask("[b]ack to edit, [q]uit: ")
	if err != nil {
		return state, err
	}
	if answer == "b" || answer == "back" {
		return state.Back()
	}
	return state, errQuit
}

func (f *form) ask(prompt string) (string, error) {
	fmt.Fprint(f.out, prompt)
	if !f.in.Scan() {
		if err := f.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(f.in.Text()), nil
}

// setField parses one answer. Range checks are left to the validator; only
// the syntax is checked here.
func setField(d *clinical.Draft, field clinical.Field, value string) error {
	switch field {
	case clinical.FieldOldpeak:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", value)
		}
		d.Oldpeak = &v
	case clinical.FieldAge, clinical.FieldRestingBP, clinical.FieldCholesterol, clinical.FieldMaxHeartRate:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%q is not a whole number", value)
		}
		switch field {
		case clinical.FieldAge:
			d.Age = &v
		case clinical.FieldRestingBP:
			d.RestingBP = &v
		case clinical.FieldCholesterol:
			d.Cholesterol = &v
		default:
			d.MaxHeartRate = &v
		}
	case clinical.FieldSex:
		v := clinical.Sex(value)
		d.Sex = &v
	case clinical.FieldChestPainType:
		v := clinical.ChestPainType(strings.ToUpper(value))
		d.ChestPainType = &v
	case clinical.FieldRestingECG:
		v := clinical.RestingECG(value)
		d.RestingECG = &v
	case clinical.FieldFastingBloodSugar:
		v := clinical.YesNo(value)
		d.FastingBloodSugar = &v
	case clinical.FieldExerciseAngina:
		v := clinical.YesNo(value)
		d.ExerciseAngina = &v
	case clinical.FieldSTSlope:
		v := clinical.STSlope(value)
		d.STSlope = &v
	default:
		return fmt.Errorf("unknown field %s", field)
	}
	return nil
}
