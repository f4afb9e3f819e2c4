// Package predict turns a clinical draft into a risk prediction using one
// loaded model artifact.
package predict

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cardiopredict/clinical"
	"cardiopredict/ml"
)

var (
	// ErrModelUnavailable is returned by every call when no artifact was loaded.
	ErrModelUnavailable = errors.New("model not loaded")
	// ErrPrediction wraps any failure inside encoding or the classifier.
	ErrPrediction = errors.New("prediction failed")
)

const (
	MessageHighRisk = "High Risk"
	MessageLowRisk  = "Low Risk"
)

// Outcome labels for Recorder.ObservePrediction.
const (
	OutcomeHighRisk    = "high_risk"
	OutcomeLowRisk     = "low_risk"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Recorder receives prediction outcomes. *metrics.Collector implements it.
type Recorder interface {
	ObservePrediction(outcome string)
	ObserveValidationFailure(group string)
}

type nopRecorder struct{}

func (nopRecorder) ObservePrediction(string)        {}
func (nopRecorder) ObserveValidationFailure(string) {}

// Result is the outcome of one prediction. Probability is the percent risk of
// the positive class and is nil when the model cannot estimate probabilities.
type Result struct {
	Label        int
	RiskDetected bool
	Probability  *float64
	Message      string
}

// Encoding is an aligned feature vector with its column names.
type Encoding struct {
	Columns []string
	Values  ml.FeatureVector
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service is safe for concurrent use. It holds no mutable state: the artifact
// is fixed at construction.
type Service struct {
	artifact  *ml.Artifact
	loadErr   error
	encoder   *ml.Encoder
	validator clinical.Validator
	logger    *zap.Logger
	recorder  Recorder
}

// NewService wraps artifact. A nil artifact (load failed with loadErr) yields a
// service whose every call fails with ErrModelUnavailable.
func NewService(artifact *ml.Artifact, loadErr error, validator clinical.Validator, opts ...Option) *Service {
	s := &Service{
		artifact:  artifact,
		loadErr:   loadErr,
		encoder:   ml.NewEncoder(),
		validator: validator,
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if artifact == nil && s.loadErr == nil {
		s.loadErr = errors.New("no artifact")
	}
	if artifact != nil && !s.SchemaCurrent() {
		s.logger.Warn("artifact columns differ from the current encoder layout, inputs are reindexed",
			zap.String("fingerprint", artifact.Schema.Fingerprint()),
			zap.String("encoder_fingerprint", s.encoder.Schema().Fingerprint()))
	}
	return s
}

// SchemaCurrent reports whether the artifact was trained on the column layout
// the encoder produces today. An artifact with an older layout still predicts:
// inputs are reindexed onto its columns.
func (s *Service) SchemaCurrent() bool {
	return s.artifact != nil && s.artifact.Schema.Equal(s.encoder.Schema())
}

func (s *Service) ModelLoaded() bool {
	return s.artifact != nil
}

// Artifact returns the loaded artifact, or ErrModelUnavailable.
func (s *Service) Artifact() (*ml.Artifact, error) {
	if s.artifact == nil {
		return nil, s.unavailable()
	}
	return s.artifact, nil
}

func (s *Service) Validator() clinical.Validator {
	return s.validator
}

func (s *Service) unavailable() error {
	return fmt.Errorf("%w: %v", ErrModelUnavailable, s.loadErr)
}

// Encode validates d and returns its feature vector aligned to the model's
// schema.
func (s *Service) Encode(ctx context.Context, d clinical.Draft) (Encoding, error) {
	if s.artifact == nil {
		return Encoding{}, s.unavailable()
	}
	record, err := s.validate(d)
	if err != nil {
		return Encoding{}, err
	}
	vec, err := s.encoder.EncodeFor(s.artifact.Schema, record)
	if err != nil {
		return Encoding{}, fmt.Errorf("%w: %v", ErrPrediction, err)
	}
	return Encoding{Columns: s.artifact.Schema.Columns(), Values: vec}, nil
}

// Predict validates d, encodes it against the artifact schema and runs the
// classifier. Validation failures are returned as *clinical.ValidationError
// before any encoding happens.
func (s *Service) Predict(ctx context.Context, d clinical.Draft) (Result, error) {
	if s.artifact == nil {
		s.recorder.ObservePrediction(OutcomeUnavailable)
		return Result{}, s.unavailable()
	}
	record, err := s.validate(d)
	if err != nil {
		s.recorder.ObservePrediction(OutcomeInvalid)
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result, err := s.run(record)
	if err != nil {
		s.recorder.ObservePrediction(OutcomeError)
		s.logger.Error("prediction failed", zap.Error(err))
		return Result{}, err
	}

	outcome := OutcomeLowRisk
	if result.RiskDetected {
		outcome = OutcomeHighRisk
	}
	s.recorder.ObservePrediction(outcome)
	fields := []zap.Field{zap.Int("label", result.Label)}
	if result.Probability != nil {
		fields = append(fields, zap.Float64("probability", *result.Probability))
	}
	s.logger.Debug("prediction served", fields...)
	return result, nil
}

func (s *Service) validate(d clinical.Draft) (clinical.Record, error) {
	if err := s.validator.Validate(d); err != nil {
		var verr *clinical.ValidationError
		if errors.As(err, &verr) {
			seen := make(map[clinical.Group]bool)
			for _, v := range verr.Violations {
				if !seen[v.Group] {
					seen[v.Group] = true
					s.recorder.ObserveValidationFailure(string(v.Group))
				}
			}
		}
		return clinical.Record{}, err
	}
	return d.Record(), nil
}

// run never lets a classifier panic escape.
func (s *Service) run(record clinical.Record) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrPrediction, r)
		}
	}()

	vec, err := s.encoder.EncodeFor(s.artifact.Schema, record)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPrediction, err)
	}
	model := s.artifact.Classifier()
	label, err := model.Predict(vec)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrPrediction, err)
	}

	result = Result{Label: label, RiskDetected: label == 1, Message: MessageLowRisk}
	if result.RiskDetected {
		result.Message = MessageHighRisk
	}
	if estimator, ok := model.(ml.ProbabilityEstimator); ok {
		p, err := estimator.PredictProbability(vec)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrPrediction, err)
		}
		percent := p * 100
		result.Probability = &percent
	}
	return result, nil
}
