package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape returned %d", rec.Code)
	}
	return rec.Body.String()
}

func TestInstrumentLabelsByRouteTemplate(t *testing.T) {
	Register()
	Register()

	r := mux.NewRouter()
	r.Use(Instrument)
	r.HandleFunc("/api/machines/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods("GET")

	for _, id := range []string{"M1", "M2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/machines/"+id, nil))
	}

	want := `oee_http_requests_total{method="GET",route="/api/machines/{id}",status="418"} 2`
	if body := scrape(t); !strings.Contains(body, want) {
		t.Errorf("expected %q in exposition", want)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	Register()
	IncDashboardRequest("completed")
	IncStoreMutation("defect", 7)
	IncJobRun("mart", "ok")

	body := scrape(t)
	for _, want := range []string{
		`oee_dashboard_requests_total{outcome="completed"}`,
		"oee_store_revision 7",
		`oee_scheduled_job_runs_total{job="mart",status="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}
