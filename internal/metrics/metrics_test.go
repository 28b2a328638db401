package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "POST /upload", "201"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/upload", nil))
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "POST /upload", "201")); got != before+1 {
		t.Errorf("expected counter %v, got %v", before+1, got)
	}

	before = testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path", nil))
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != before+1 {
		t.Errorf("unmatched paths should share one label, got %v", got)
	}
}

func TestRecordRun(t *testing.T) {
	ok := testutil.ToFloat64(filesUploadedTotal.WithLabelValues("success"))
	failed := testutil.ToFloat64(filesUploadedTotal.WithLabelValues("failure"))

	RecordRun(3, 1, time.Second, false)

	if got := testutil.ToFloat64(filesUploadedTotal.WithLabelValues("success")); got != ok+3 {
		t.Errorf("expected %v successes, got %v", ok+3, got)
	}
	if got := testutil.ToFloat64(filesUploadedTotal.WithLabelValues("failure")); got != failed+1 {
		t.Errorf("expected %v failures, got %v", failed+1, got)
	}
}

func TestSetRunActive(t *testing.T) {
	SetRunActive(true)
	if testutil.ToFloat64(runActive) != 1 {
		t.Error("expected gauge 1")
	}
	SetRunActive(false)
	if testutil.ToFloat64(runActive) != 0 {
		t.Error("expected gauge 0")
	}
}
