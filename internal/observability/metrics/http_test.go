package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerRendersCounters(t *testing.T) {
	ObserveHTTPRequest("test_swaps", "GET", 200, 30*time.Millisecond)
	ObserveHTTPRequest("test_swaps", "GET", 500, 2*time.Second)
	ObserveSwapOutcome("succeeded")

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	if ct := recorder.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type 不符: %s", ct)
	}
	body := recorder.Body.String()

	for _, want := range []string{
		`nearintents_http_requests_total{handler="test_swaps",method="GET",code="200"} 1`,
		`nearintents_http_requests_total{handler="test_swaps",method="GET",code="500"} 1`,
		`nearintents_http_request_errors_total{handler="test_swaps",method="GET"} 1`,
		`nearintents_http_request_duration_seconds_count{handler="test_swaps",method="GET"} 2`,
		`nearintents_swap_jobs_total{outcome="succeeded"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("输出缺少 %q:\n%s", want, body)
		}
	}
}
