package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cardiopredict/clinical"
	"cardiopredict/db"
	"cardiopredict/metrics"
	"cardiopredict/ml"
	"cardiopredict/predict"
	"cardiopredict/wizard"
)

// RunLister reads the training run log. *db.Store implements it.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]db.Run, error)
	ListIssues(ctx context.Context, runID int64) ([]db.Issue, error)
}

// API holds everything the handlers need. Predictions is required; the other
// dependencies switch their routes off when nil.
type API struct {
	Predictions *predict.Service
	Wizard      *wizard.Store
	Runs        RunLister
	Metrics     *metrics.Collector
	Logger      *zap.Logger
}

func (a *API) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// RegisterHandlers 注册所有路由
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	a.handle(mux, "GET /health", a.handleHealth)
	a.handle(mux, "POST /predict", a.handlePredict)
	a.handle(mux, "POST /encode", a.handleEncode)
	a.handle(mux, "GET /model", a.handleModel)
	if a.Runs != nil {
		a.handle(mux, "GET /runs", a.handleRuns)
		a.handle(mux, "GET /runs/{id}/issues", a.handleRunIssues)
	}
	if a.Metrics != nil {
		mux.Handle("GET /metrics", a.Metrics.Handler())
	}
	if a.Wizard != nil {
		a.registerWizardHandlers(mux)
	}
}

func (a *API) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, instrument(a.Metrics, pattern, h))
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok", ModelLoaded: a.Predictions.ModelLoaded()})
}

type predictResponse struct {
	RiskDetected         bool    `json:"risk_detected"`
	Probability          float64 `json:"probability"`
	ProbabilityAvailable bool    `json:"probability_available"`
	Message              string  `json:"message"`
}

func newPredictResponse(result predict.Result) predictResponse {
	resp := predictResponse{RiskDetected: result.RiskDetected, Message: result.Message}
	if result.Probability != nil {
		resp.Probability = *result.Probability
		resp.ProbabilityAvailable = true
	}
	return resp
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	// unavailability is reported before the body is even read
	if !a.Predictions.ModelLoaded() {
		a.respondServiceError(w, r, predict.ErrModelUnavailable)
		return
	}
	var draft clinical.Draft
	if err := decodeBody(r, &draft); err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	result, err := a.Predictions.Predict(r.Context(), draft)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newPredictResponse(result))
}

type encodeResponse struct {
	Columns     []string  `json:"columns"`
	Values      []float64 `json:"values"`
	Fingerprint string    `json:"fingerprint"`
}

func (a *API) handleEncode(w http.ResponseWriter, r *http.Request) {
	var draft clinical.Draft
	if err := decodeBody(r, &draft); err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	enc, err := a.Predictions.Encode(r.Context(), draft)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	artifact, _ := a.Predictions.Artifact()
	respondJSON(w, http.StatusOK, encodeResponse{
		Columns:     enc.Columns,
		Values:      enc.Values,
		Fingerprint: artifact.Schema.Fingerprint(),
	})
}

type modelResponse struct {
	ModelType   string          `json:"model_type"`
	Columns     []string        `json:"columns"`
	Fingerprint string          `json:"fingerprint"`
	TrainedAt   time.Time       `json:"trained_at"`
	Metrics     *ml.Metrics     `json:"metrics,omitempty"`
	Training    ml.TrainingInfo `json:"training"`
	Probability bool            `json:"probability"`
	// false for artifacts trained on an older column layout
	SchemaCurrent bool `json:"schema_current"`
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	artifact, err := a.Predictions.Artifact()
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	_, probability := artifact.Classifier().(ml.ProbabilityEstimator)
	respondJSON(w, http.StatusOK, modelResponse{
		ModelType:   artifact.ModelType,
		Columns:     artifact.Schema.Columns(),
		Fingerprint: artifact.Schema.Fingerprint(),
		TrainedAt:   artifact.TrainedAt,
		Metrics:     artifact.Metrics,
		Training:    artifact.Training,
		Probability: probability,

		SchemaCurrent: a.Predictions.SchemaCurrent(),
	})
}

func (a *API) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = l
	}
	runs, err := a.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleRunIssues lists the data quality findings of one training run. A run
// without findings, or an unknown one, yields an empty list.
func (a *API) handleRunIssues(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "run id must be a positive integer")
		return
	}
	issues, err := a.Runs.ListIssues(r.Context(), id)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"run_id": id, "issues": issues})
}

// errBadBody marks a request body that is not the expected JSON.
var errBadBody = errors.New("invalid request body")

const bodyField clinical.Field = "body"

// bodyError keeps the field a JSON type mismatch was found on.
type bodyError struct {
	field clinical.Field
	msg   string
	empty bool
}

func (e *bodyError) Error() string { return e.msg }
func (e *bodyError) Unwrap() error { return errBadBody }

// decodeBody reads exactly one JSON object into v. Unknown fields are
// rejected so a misspelled field is not silently treated as missing.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return &bodyError{field: clinical.Field(typeErr.Field), msg: fmt.Sprintf("%s has the wrong type, expected %s", typeErr.Field, typeErr.Type)}
		case errors.As(err, &maxErr):
			return &bodyError{field: bodyField, msg: "request body too large"}
		case errors.Is(err, io.EOF):
			return &bodyError{field: bodyField, msg: "request body is empty", empty: true}
		}
		return &bodyError{field: bodyField, msg: err.Error()}
	}
	if dec.More() {
		return &bodyError{field: bodyField, msg: "request body must hold a single JSON object"}
	}
	return nil
}

type errorResponse struct {
	Error  string               `json:"error"`
	Fields []clinical.Violation `json:"fields,omitempty"`
}

// respondServiceError maps service errors to status codes. Internal detail is
// logged, never returned.
func (a *API) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *clinical.ValidationError
	var berr *bodyError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Violations})
	case errors.As(err, &berr):
		violation := clinical.Violation{Field: berr.field, Message: berr.msg}
		if berr.field != bodyField {
			violation.Group = berr.field.Group()
		}
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: []clinical.Violation{violation}})
	case errors.Is(err, predict.ErrModelUnavailable):
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
	case errors.Is(err, wizard.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, wizard.ErrVersionConflict):
		respondError(w, http.StatusConflict, "session was modified, reload and retry")
	case errors.Is(err, wizard.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, predict.ErrPrediction):
		a.logger().Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "prediction failed")
	default:
		a.logger().Error("request failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
