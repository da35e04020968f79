package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestAggregatesCounts(t *testing.T) {
	rec := New()
	rec.ObserveRequest("get", "/api/validate-token", 200, 5*time.Millisecond)
	rec.ObserveRequest("GET", "/api/validate-token", 200, 7*time.Millisecond)
	rec.ObserveRequest("GET", "/api/validate-token", 401, 2*time.Millisecond)

	var out strings.Builder
	rec.Write(&out)
	body := out.String()

	if !strings.Contains(body, `coursecast_http_requests_total{method="GET",path="/api/validate-token",status="200"} 2`) {
		t.Fatalf("missing aggregated 200 count:\n%s", body)
	}
	if !strings.Contains(body, `coursecast_http_requests_total{method="GET",path="/api/validate-token",status="401"} 1`) {
		t.Fatalf("missing 401 count:\n%s", body)
	}
}

func TestPipelineJobGaugeNeverNegative(t *testing.T) {
	rec := New()
	rec.PipelineJobFinished("segment", "skipped")
	if got := rec.ActiveSegmentationJobs(); got != 0 {
		t.Fatalf("gauge = %d, want 0", got)
	}

	rec.PipelineJobStarted("segment")
	rec.PipelineJobStarted("segment")
	rec.PipelineJobFinished("segment", "ok")
	if got := rec.ActiveSegmentationJobs(); got != 1 {
		t.Fatalf("gauge = %d, want 1", got)
	}

	events, _ := rec.PipelineJobCounts()
	if events[PipelineJobLabel{Step: "segment", Status: "start"}] != 2 {
		t.Fatalf("start events = %d, want 2", events[PipelineJobLabel{Step: "segment", Status: "start"}])
	}
	if events[PipelineJobLabel{Step: "segment", Status: "ok"}] != 1 {
		t.Fatalf("ok events = %d, want 1", events[PipelineJobLabel{Step: "segment", Status: "ok"}])
	}
}

func TestProbeStepDoesNotTouchSegmentGauge(t *testing.T) {
	rec := New()
	rec.PipelineJobStarted("probe")
	rec.PipelineJobFinished("probe", "failed")
	if got := rec.ActiveSegmentationJobs(); got != 0 {
		t.Fatalf("gauge = %d, want 0", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	rec := New()
	rec.ObserveTokenValidation("valid")
	rec.ObserveTokenValidation("invalid")
	rec.ObserveTokenValidation("invalid")
	rec.ObserveUpload("accepted")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	rec.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	body := resp.Body.String()
	if !strings.Contains(body, `coursecast_token_validations_total{outcome="invalid"} 2`) {
		t.Fatalf("missing token outcome counter:\n%s", body)
	}
	if !strings.Contains(body, `coursecast_uploads_total{outcome="accepted"} 1`) {
		t.Fatalf("missing upload counter:\n%s", body)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	rec := New()
	handler := HTTPMiddleware(rec, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/list", nil))

	var out strings.Builder
	rec.Write(&out)
	if !strings.Contains(out.String(), `status="418"`) {
		t.Fatalf("middleware did not record status:\n%s", out.String())
	}
}

func TestResetClearsState(t *testing.T) {
	rec := New()
	rec.ObserveRequest("GET", "/health", 200, time.Millisecond)
	rec.PipelineJobStarted("segment")
	rec.Reset()
	if got := rec.ActiveSegmentationJobs(); got != 0 {
		t.Fatalf("gauge after reset = %d, want 0", got)
	}
	if counts := rec.TokenValidationCounts(); len(counts) != 0 {
		t.Fatalf("token counts after reset = %v, want empty", counts)
	}
}
