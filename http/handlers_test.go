package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"cardiopredict/clinical"
	"cardiopredict/config"
	"cardiopredict/db"
	"cardiopredict/metrics"
	"cardiopredict/ml"
	"cardiopredict/predict"
	"cardiopredict/wizard"
)

type fakeModel struct {
	label  int
	err    error
	panics bool
	calls  int
}

func (f *fakeModel) Predict(features []float64) (int, error) {
	if f.panics {
		panic("corrupt tree")
	}
	f.calls++
	return f.label, f.err
}
func (f *fakeModel) NumFeatures() int { return len(ml.FeatureNames()) }
func (f *fakeModel) Fit([][]float64, []int) error { return nil }
func (f *fakeModel) Type() string { return "fake" }
func (f *fakeModel) MarshalJSON() ([]byte, error) { return []byte(`{}`), nil }
func (f *fakeModel) UnmarshalJSON([]byte) error { return nil }

type probModel struct {
	fakeModel
	p float64
}

func (p *probModel) PredictProbability([]float64) (float64, error) { return p.p, nil }

type fakeRuns struct {
	runs   []db.Run
	issues map[int64][]db.Issue
	limit  int
}

func (f *fakeRuns) ListRuns(_ context.Context, limit int) ([]db.Run, error) {
	f.limit = limit
	return f.runs, nil
}

func (f *fakeRuns) ListIssues(_ context.Context, runID int64) ([]db.Issue, error) {
	issues, ok := f.issues[runID]
	if !ok {
		return []db.Issue{}, nil
	}
	return issues, nil
}

const validBody = `{"age":54,"sex":"Male","trestbps":150,"chol":195,"thalach":122,"oldpeak":0,"cp":"NAP","restecg":"Normal","fbs":"No","exang":"No","slope":"Up"}`

func newAPI(t *testing.T, model ml.Model) *API {
	t.Helper()
	validator := clinical.NewValidator(clinical.PolicyStrict)
	var svc *predict.Service
	if model == nil {
		svc = predict.NewService(nil, errors.New("open models/heart_model.json: no such file or directory"), validator)
	} else {
		artifact, err := ml.NewArtifact(model, ml.NewEncoder().Schema())
		if err != nil {
			t.Fatalf("artifact: %v", err)
		}
		svc = predict.NewService(artifact, nil, validator)
	}
	return &API{Predictions: svc, Wizard: wizard.NewStore(8, 0), Logger: zap.NewNop()}
}

func newTestServer(api *API) http.Handler {
	cfg := config.Default().HTTP
	return NewServer(cfg, api).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		model  ml.Model
		loaded bool
	}{
		{"loaded", &fakeModel{}, true},
		{"missing model", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(newAPI(t, tt.model)), http.MethodGet, "/health", "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			var got healthResponse
			decode(t, w, &got)
			if got.Status != "ok" || got.ModelLoaded != tt.loaded {
				t.Fatalf("unexpected body %+v", got)
			}
		})
	}
}

func TestHandlePredict(t *testing.T) {
	model := &probModel{fakeModel: fakeModel{label: 1}, p: 0.75}
	w := do(t, newTestServer(newAPI(t, model)), http.MethodPost, "/predict", validBody)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got predictResponse
	decode(t, w, &got)
	if !got.RiskDetected || got.Probability != 75 || !got.ProbabilityAvailable || got.Message != "High Risk" {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestHandlePredictWithoutProbability(t *testing.T) {
	w := do(t, newTestServer(newAPI(t, &fakeModel{label: 0})), http.MethodPost, "/predict", validBody)

	var got predictResponse
	decode(t, w, &got)
	if got.RiskDetected || got.ProbabilityAvailable || got.Probability != 0 || got.Message != "Low Risk" {
		t.Fatalf("unexpected body %+v", got)
	}
}

// Age 0 is rejected before the classifier runs.
func TestHandlePredictValidation(t *testing.T) {
	model := &fakeModel{label: 1}
	body := strings.Replace(validBody, `"age":54`, `"age":0`, 1)
	w := do(t, newTestServer(newAPI(t, model)), http.MethodPost, "/predict", body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var got errorResponse
	decode(t, w, &got)
	if got.Error != "validation failed" || len(got.Fields) != 1 {
		t.Fatalf("unexpected body %+v", got)
	}
	if got.Fields[0].Field != clinical.FieldAge || got.Fields[0].Message != "Age must be between 1 and 120 years" {
		t.Fatalf("unexpected violation %+v", got.Fields[0])
	}
	if model.calls != 0 {
		t.Fatalf("classifier must not run on invalid input")
	}
}

// Without an artifact every prediction is a 503, whatever the body.
func TestHandlePredictModelUnavailable(t *testing.T) {
	h := newTestServer(newAPI(t, nil))

	for _, body := range []string{validBody, `{"age":0}`, `not json`} {
		w := do(t, h, http.MethodPost, "/predict", body)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("body %q: expected 503, got %d", body, w.Code)
		}
		var got errorResponse
		decode(t, w, &got)
		if got.Error != "model not loaded" {
			t.Fatalf("unexpected body %+v", got)
		}
	}

	if w := do(t, h, http.MethodGet, "/model", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from /model, got %d", w.Code)
	}
}

func TestHandlePredictBadBody(t *testing.T) {
	h := newTestServer(newAPI(t, &fakeModel{}))

	tests := []struct {
		name  string
		body  string
		field clinical.Field
	}{
		{"malformed", `{"age":`, "body"},
		{"empty", ``, "body"},
		{"wrong type", strings.Replace(validBody, `"age":54`, `"age":"old"`, 1), clinical.FieldAge},
		{"unknown field", `{"agee":54}`, "body"},
		{"two objects", validBody + validBody, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/predict", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var got errorResponse
			decode(t, w, &got)
			if len(got.Fields) != 1 || got.Fields[0].Field != tt.field {
				t.Fatalf("unexpected body %+v", got)
			}
		})
	}
}

func TestHandlePredictMissingFields(t *testing.T) {
	w := do(t, newTestServer(newAPI(t, &fakeModel{})), http.MethodPost, "/predict", `{"age":54}`)

	var got errorResponse
	decode(t, w, &got)
	if w.Code != http.StatusBadRequest || len(got.Fields) != 10 {
		t.Fatalf("expected ten violations, got %d: %+v", w.Code, got)
	}
}

func TestHandlePredictFailureIsGeneric(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"error", &fakeModel{err: errors.New("node 17 points outside the tree")}},
		{"panic", &fakeModel{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestServer(newAPI(t, tt.model)), http.MethodPost, "/predict", validBody)
			if w.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", w.Code)
			}
			if strings.TrimSpace(w.Body.String()) != `{"error":"prediction failed"}` {
				t.Fatalf("internal detail leaked: %s", w.Body.String())
			}
		})
	}
}

func TestHandleEncode(t *testing.T) {
	w := do(t, newTestServer(newAPI(t, &fakeModel{})), http.MethodPost, "/encode", validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got encodeResponse
	decode(t, w, &got)

	want := []float64{54, 1, 150, 195, 0, 122, 0, 0, 0, 1, 0, 0, 0, 0, 0}
	if len(got.Values) != len(want) || len(got.Columns) != len(want) {
		t.Fatalf("unexpected shape %+v", got)
	}
	for i := range want {
		if got.Values[i] != want[i] {
			t.Fatalf("values = %v, want %v", got.Values, want)
		}
	}
	if got.Fingerprint != ml.NewEncoder().Schema().Fingerprint() {
		t.Fatalf("unexpected fingerprint %q", got.Fingerprint)
	}
}

func TestHandleModel(t *testing.T) {
	w := do(t, newTestServer(newAPI(t, &probModel{p: 0.5})), http.MethodGet, "/model", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got modelResponse
	decode(t, w, &got)
	if got.ModelType != "fake" || len(got.Columns) != 15 || got.Columns[8] != "cp_ATA" || !got.Probability || !got.SchemaCurrent {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestHandleRuns(t *testing.T) {
	api := newAPI(t, &fakeModel{})
	runs := &fakeRuns{runs: []db.Run{{ID: 3, ModelName: "heart_model.json", Kind: db.KindTrain, Accuracy: 0.88}}}
	api.Runs = runs
	h := newTestServer(api)

	w := do(t, h, http.MethodGet, "/runs?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got struct {
		Runs []db.Run `json:"runs"`
	}
	decode(t, w, &got)
	if len(got.Runs) != 1 || got.Runs[0].Accuracy != 0.88 || runs.limit != 5 {
		t.Fatalf("unexpected body %+v (limit %d)", got, runs.limit)
	}

	if w := do(t, h, http.MethodGet, "/runs?limit=-1", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleRunIssues(t *testing.T) {
	api := newAPI(t, &fakeModel{})
	api.Runs = &fakeRuns{issues: map[int64][]db.Issue{
		3: {{Line: 12, Rule: "zero_cholesterol", Severity: "warning", Message: "cholesterol is 0"}},
	}}
	h := newTestServer(api)

	w := do(t, h, http.MethodGet, "/runs/3/issues", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got struct {
		RunID  int64      `json:"run_id"`
		Issues []db.Issue `json:"issues"`
	}
	decode(t, w, &got)
	if got.RunID != 3 || len(got.Issues) != 1 || got.Issues[0].Line != 12 || got.Issues[0].Rule != "zero_cholesterol" {
		t.Fatalf("unexpected body %+v", got)
	}

	w = do(t, h, http.MethodGet, "/runs/4/issues", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"issues":[]`) {
		t.Fatalf("expected an empty list, got %d: %s", w.Code, w.Body.String())
	}

	for _, id := range []string{"abc", "0", "-2"} {
		if w := do(t, h, http.MethodGet, "/runs/"+id+"/issues", ""); w.Code != http.StatusBadRequest {
			t.Fatalf("id %q: expected 400, got %d", id, w.Code)
		}
	}
}

func TestRunsRouteNeedsStore(t *testing.T) {
	w := do(t, newTestServer(newAPI(t, &fakeModel{})), http.MethodGet, "/runs", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a run log, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newAPI(t, &fakeModel{label: 1})
	api.Metrics = metrics.NewCollector("test")
	h := newTestServer(api)

	do(t, h, http.MethodPost, "/predict", validBody)

	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`test_http_requests_total{method="POST",route="POST /predict",status="200"} 1`,
		`test_http_request_duration_seconds_count{method="POST",route="POST /predict"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	h := newTestServer(newAPI(t, &fakeModel{}))

	w := do(t, h, http.MethodGet, "/health", "")
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected a request id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight response %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected the caller's request id to be kept")
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	handler := CORSMiddleware([]string{"https://clinic.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		origin string
		want   string
	}{
		{"https://clinic.example", "https://clinic.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: got %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	api := newAPI(t, &fakeModel{})
	cfg := config.Default().HTTP
	cfg.MaxBodyBytes = 16
	h := NewServer(cfg, api).Handler()

	w := do(t, h, http.MethodPost, "/predict", validBody)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := TimeoutMiddleware(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
		w.Header().Set("X-Late", "1")
		_, _ = w.Write([]byte("late"))
	}))

	w := httptest.NewRecorder()
	slow.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", nil))
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected a JSON timeout reply, got %q", ct)
	}
	var body errorResponse
	decode(t, w, &body)
	if body.Error != "request timeout" {
		t.Fatalf("unexpected body %+v", body)
	}

	fast := TimeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusServiceUnavailable, "model unavailable")
	}))
	w = httptest.NewRecorder()
	fast.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "model unavailable") {
		t.Fatalf("handler reply not passed through: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("handler headers not copied")
	}
}
