package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape returned %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	return string(body)
}

func TestCollectorsExported(t *testing.T) {
	m := New()
	m.TrackWorkspaces(func() int { return 3 })
	m.ObserveAnalysis(analysis.Result{Endpoint: analysis.EndpointSpeed, Status: analysis.StatusSucceeded}, 1500*time.Millisecond)
	m.ObserveAnalysis(analysis.Result{Endpoint: analysis.EndpointSpeed, Status: analysis.StatusFailed}, time.Second)
	m.RecordRejection(intake.ErrFileTooLarge)
	m.RecordRejection(&intake.RejectionError{Kind: intake.ErrUnsupportedType, Reason: "nope"})
	m.ObserveTask(jobs.NewTask(jobs.KindArchiveResult, func(context.Context) error { return nil }), nil)
	m.ObserveTask(jobs.NewTask(jobs.KindArchiveUpload, func(context.Context) error { return nil }), errors.New("disk full"))
	m.RecordHTTPRequest(http.MethodGet, "/api/workspaces/{id}", http.StatusNotFound, 5*time.Millisecond)
	m.SetWebSocketClients(2)

	out := scrape(t, m)
	for _, want := range []string{
		`trafficwatch_workspaces_open 3`,
		`trafficwatch_analysis_submissions_total{endpoint="speed",status="succeeded"} 1`,
		`trafficwatch_analysis_submissions_total{endpoint="speed",status="failed"} 1`,
		`trafficwatch_analysis_duration_seconds_count{endpoint="speed"} 2`,
		`trafficwatch_intake_rejections_total{reason="too_large"} 1`,
		`trafficwatch_intake_rejections_total{reason="unsupported_type"} 1`,
		`trafficwatch_archive_tasks_total{kind="archive-result",outcome="done"} 1`,
		`trafficwatch_archive_tasks_total{kind="archive-upload",outcome="failed"} 1`,
		`trafficwatch_http_requests_total{method="GET",route="/api/workspaces/{id}",status="4xx"} 1`,
		`trafficwatch_websocket_clients 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAnalysis(analysis.Result{}, time.Second)
	m.RecordRejection(intake.ErrFileTooLarge)
	m.RecordHTTPRequest(http.MethodGet, "/", http.StatusOK, 0)
	m.SetWebSocketClients(1)
	m.TrackWorkspaces(func() int { return 0 })

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("disabled metrics should not be served, got %d", rr.Code)
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 201: "2xx", 302: "3xx", 422: "4xx", 503: "5xx", 101: "101"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %s, want %s", code, got, want)
		}
	}
}
