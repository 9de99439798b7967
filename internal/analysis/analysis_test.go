package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/trafficwatch/internal/intake"
	"github.com/example/trafficwatch/internal/models"
)

func fileRequest(t *testing.T, name string) FileRequest {
	t.Helper()
	ep, ok := LookupEndpoint(name)
	if !ok {
		t.Fatalf("endpoint %s not found", name)
	}
	return FileRequest{
		Endpoint: ep,
		Upload: intake.Upload{
			Candidate: intake.Candidate{Name: "clip.mp4", SizeBytes: 11, MIMEType: "video/mp4"},
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(strings.NewReader("video-bytes")), nil
			},
		},
	}
}

func TestClientUploadsMultipartFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speed/run" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "video-bytes" || header.Filename != "clip.mp4" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary":{"total_violations":1,"total_vehicles":3}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	payload, err := client.Do(context.Background(), fileRequest(t, EndpointSpeed))
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	summary, ok := payload["summary"].(map[string]any)
	if !ok || summary["total_vehicles"] != float64(3) {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestClientPostsJSONForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["area_type"] != "urban" {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"most_fraudulent_vehicle":1}`))
	}))
	defer server.Close()

	ep, _ := LookupEndpoint(EndpointFraudForm)
	client := NewClient(server.URL)
	_, err := client.Do(context.Background(), FormRequest{Endpoint: ep, Payload: map[string]any{"area_type": "urban"}})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestClientPathOverride(t *testing.T) {
	client := NewClient("http://detector:8000/", WithPaths(map[string]string{EndpointSpeed: "v2/speed"}))
	ep, _ := LookupEndpoint(EndpointSpeed)
	if got := client.URL(ep); got != "http://detector:8000/v2/speed" {
		t.Errorf("unexpected URL %s", got)
	}
	ep, _ = LookupEndpoint(EndpointRoadSign)
	if got := client.URL(ep); got != "http://detector:8000/roadsign/run" {
		t.Errorf("unexpected URL %s", got)
	}
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		wantDomain bool
	}{
		{"detail on success", http.StatusOK, `{"detail":"Upload or processing failed."}`, "Upload or processing failed.", true},
		{"detail on error status", http.StatusUnprocessableEntity, `{"detail":"Unsupported codec"}`, "Unsupported codec", false},
		{"plain text error", http.StatusBadGateway, "upstream down", "upstream down", false},
		{"empty error body", http.StatusInternalServerError, "", GenericFailure, false},
		{"malformed json", http.StatusOK, "{not json", GenericFailure, false},
		{"array body", http.StatusOK, "[1,2]", GenericFailure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Do(context.Background(), fileRequest(t, EndpointLaneMarking))
			if err == nil {
				t.Fatal("expected an error")
			}
			var domain *DomainError
			if errors.As(err, &domain) != tt.wantDomain {
				t.Errorf("domain error = %v, want %v (%v)", !tt.wantDomain, tt.wantDomain, err)
			}
			if got := Detail(err); got != tt.wantDetail {
				t.Errorf("detail = %q, want %q", got, tt.wantDetail)
			}
		})
	}
}

func TestClientNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url).Do(context.Background(), fileRequest(t, EndpointSpeed))
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if Detail(err) != GenericFailure {
		t.Errorf("expected generic message, got %q", Detail(err))
	}
}

func TestValidateRejectsMismatchedRequests(t *testing.T) {
	form, _ := LookupEndpoint(EndpointFraudForm)
	req := fileRequest(t, EndpointSpeed)
	req.Endpoint = form

	var verr *ValidationError
	if err := Validate(req); !errors.As(err, &verr) {
		t.Errorf("expected validation error for file sent to form endpoint, got %v", err)
	}

	speed, _ := LookupEndpoint(EndpointSpeed)
	if err := Validate(FormRequest{Endpoint: speed, Payload: map[string]any{}}); !errors.As(err, &verr) {
		t.Errorf("expected validation error for form sent to file endpoint, got %v", err)
	}
}

func TestFileEndpointForCategory(t *testing.T) {
	tests := []struct {
		category models.Category
		mime     string
		want     string
	}{
		{models.CategoryAccident, "image/png", EndpointAccidentImage},
		{models.CategoryAccident, "video/mp4", EndpointAccidentVideo},
		{models.CategoryFraud, "video/mp4", EndpointFraudVideo},
		{models.CategoryLaneChange, "video/mp4", EndpointLaneChange},
		{models.CategoryUTurn, "video/mp4", EndpointUTurn},
	}
	for _, tt := range tests {
		ep, ok := FileEndpoint(tt.category, tt.mime)
		if !ok || ep.Name != tt.want {
			t.Errorf("FileEndpoint(%s, %s) = %s, want %s", tt.category, tt.mime, ep.Name, tt.want)
		}
	}
	if _, ok := FileEndpoint("unknown", "video/mp4"); ok {
		t.Error("unknown category should have no endpoint")
	}
}

// stubDoer resolves each call when its release channel is closed
type stubDoer struct {
	mu       sync.Mutex
	calls    int
	releases []chan struct{}
	results  []map[string]any
	errs     []error
}

func (s *stubDoer) Do(ctx context.Context, req Request) (map[string]any, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	release := s.releases[i]
	s.mu.Unlock()

	<-release
	return s.results[i], s.errs[i]
}

func TestSubmitterPendingThenSucceeded(t *testing.T) {
	release := make(chan struct{})
	doer := &stubDoer{
		releases: []chan struct{}{release},
		results:  []map[string]any{{"detections": []any{}}},
		errs:     []error{nil},
	}

	var seen []Status
	var mu sync.Mutex
	sub := NewSubmitter(doer, WithObserver(func(r Result) {
		mu.Lock()
		seen = append(seen, r.Status)
		mu.Unlock()
	}))

	res, err := sub.Submit(context.Background(), fileRequest(t, EndpointRoadSign))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Status != StatusPending {
		t.Errorf("expected pending result, got %s", res.Status)
	}
	if cur, _ := sub.Result(); cur.Status != StatusPending {
		t.Errorf("pending must be visible before the call resolves, got %s", cur.Status)
	}

	close(release)
	sub.Wait()

	cur, _ := sub.Result()
	if cur.Status != StatusSucceeded || cur.CompletedAt == nil {
		t.Errorf("expected succeeded result, got %+v", cur)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != StatusPending || seen[1] != StatusSucceeded {
		t.Errorf("unexpected status sequence %v", seen)
	}
}

func TestSubmitterMapsFailures(t *testing.T) {
	release := make(chan struct{})
	close(release)
	doer := &stubDoer{
		releases: []chan struct{}{release, release},
		results:  []map[string]any{{"detail": "Upload or processing failed."}, nil},
		errs:     []error{&DomainError{Detail: "Upload or processing failed."}, &TransportError{Err: errors.New("connection reset")}},
	}
	sub := NewSubmitter(doer)

	sub.Submit(context.Background(), fileRequest(t, EndpointSpeed))
	sub.Wait()
	cur, _ := sub.Result()
	if cur.Status != StatusFailed || cur.ErrorDetail != "Upload or processing failed." {
		t.Errorf("unexpected domain failure result %+v", cur)
	}
	if cur.Payload["detail"] != "Upload or processing failed." {
		t.Error("domain failure should keep the payload")
	}

	sub.Submit(context.Background(), fileRequest(t, EndpointSpeed))
	sub.Wait()
	cur, _ = sub.Result()
	if cur.Status != StatusFailed || cur.ErrorDetail != GenericFailure {
		t.Errorf("unexpected transport failure result %+v", cur)
	}
}

func TestSubmitterLastWriterWins(t *testing.T) {
	first, second := make(chan struct{}), make(chan struct{})
	doer := &stubDoer{
		releases: []chan struct{}{first, second},
		results:  []map[string]any{{"run": "first"}, {"run": "second"}},
		errs:     []error{nil, nil},
	}
	sub := NewSubmitter(doer)

	sub.Submit(context.Background(), fileRequest(t, EndpointSpeed))
	waitFor(t, func() bool {
		doer.mu.Lock()
		defer doer.mu.Unlock()
		return doer.calls == 1
	})
	sub.Submit(context.Background(), fileRequest(t, EndpointSpeed))

	close(second)
	waitFor(t, func() bool {
		cur, _ := sub.Result()
		return cur.Status == StatusSucceeded
	})
	close(first)
	sub.Wait()

	cur, _ := sub.Result()
	if cur.Payload["run"] != "first" {
		t.Errorf("the later resolution should be displayed, got %v", cur.Payload)
	}
}

func TestSubmitterDetachDropsLateResults(t *testing.T) {
	release := make(chan struct{})
	var completed int
	var mu sync.Mutex
	doer := &stubDoer{
		releases: []chan struct{}{release},
		results:  []map[string]any{{"ok": true}},
		errs:     []error{nil},
	}
	sub := NewSubmitter(doer, WithCompletionHook(func(Result, time.Duration) {
		mu.Lock()
		completed++
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	sub.Submit(ctx, fileRequest(t, EndpointSpeed))
	cancel()
	sub.Detach()
	close(release)
	sub.Wait()

	cur, _ := sub.Result()
	if cur.Status != StatusPending {
		t.Errorf("detached submitter should keep its last applied result, got %s", cur.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if completed != 1 {
		t.Errorf("the call should still run to completion, got %d", completed)
	}
}

func TestSubmitterRejectsInvalidRequest(t *testing.T) {
	sub := NewSubmitter(&stubDoer{})
	ep, _ := LookupEndpoint(EndpointSpeed)

	_, err := sub.Submit(context.Background(), FileRequest{Endpoint: ep})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := sub.Result(); ok {
		t.Error("invalid request must not create a result")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
