package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("test")
	c.ObservePrediction("high_risk")
	c.ObservePrediction("high_risk")
	c.ObserveValidationFailure("vitals")
	c.SetModelLoaded(true)
	c.TrackWizardSessions(func() int { return 3 })
	c.ObserveRequest(http.MethodPost, "/predict", http.StatusOK, 20*time.Millisecond)

	body := scrape(t, c)
	for _, want := range []string{
		`test_model_predictions_total{outcome="high_risk"} 2`,
		`test_model_validation_failures_total{group="vitals"} 1`,
		`test_model_loaded 1`,
		`test_wizard_sessions 3`,
		`test_http_requests_total{method="POST",route="/predict",status="200"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in output:\n%s", want, body)
		}
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")
	a.ObservePrediction("low_risk")

	if strings.Contains(scrape(t, b), `outcome="low_risk"`) {
		t.Fatalf("collectors share state")
	}
}

func TestWizardSessionsReadAtScrape(t *testing.T) {
	c := NewCollector("test")
	live := 2
	c.TrackWizardSessions(func() int { return live })

	if body := scrape(t, c); !strings.Contains(body, "test_wizard_sessions 2") {
		t.Fatalf("expected 2 sessions:\n%s", body)
	}
	live = 0
	if body := scrape(t, c); !strings.Contains(body, "test_wizard_sessions 0") {
		t.Fatalf("expected 0 sessions after they went away:\n%s", body)
	}
}
