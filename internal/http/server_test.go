package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ricevute/internal/core"
	"ricevute/internal/drive"
	"ricevute/internal/services"
)

type fakeSingle struct {
	result  services.SingleResult
	err     error
	lastURL string
}

func (f *fakeSingle) Run(_ context.Context, fileURL string) (services.SingleResult, error) {
	f.lastURL = fileURL
	if f.err != nil {
		return services.SingleResult{}, f.err
	}
	return f.result, nil
}

type fakeBulk struct {
	report core.Report
	err    error
}

func (f *fakeBulk) Run(context.Context) (core.Report, error) {
	if f.err != nil {
		return core.Report{}, f.err
	}
	return f.report, nil
}

type fakeJournal struct {
	runs     []core.RunSummary
	recorded []string // modes, in call order
	err      error
}

func (f *fakeJournal) RecordRun(_ context.Context, mode string, _ core.Report) (int64, error) {
	f.recorded = append(f.recorded, mode)
	return int64(len(f.recorded)), f.err
}

func (f *fakeJournal) RecentRuns(context.Context, int) ([]core.RunSummary, error) {
	return f.runs, f.err
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) PublishReceiptSync(_ context.Context, fileURL string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, fileURL)
	return nil
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	srv := NewServer(":0", &fakeSingle{}, &fakeBulk{}, nil, nil)
	defer srv.rateLimiter.stop()

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != 200 {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestSyncFileSuccess(t *testing.T) {
	single := &fakeSingle{result: services.SingleResult{
		FileID:      "abc123",
		WebViewLink: "https://drive.google.com/file/d/abc123/view",
	}}
	journal := &fakeJournal{}
	srv := NewServer(":0", single, &fakeBulk{}, journal, nil)
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodPost, "/api/sync/file", `{"fileUrl":"https://host/receipt.jpg"}`)
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var resp singleSyncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.FileID != "abc123" || !strings.Contains(resp.WebViewLink, "abc123") {
		t.Fatalf("response = %+v", resp)
	}
	if single.lastURL != "https://host/receipt.jpg" {
		t.Fatalf("handler passed url %q", single.lastURL)
	}
	if len(journal.recorded) != 1 || journal.recorded[0] != "single" {
		t.Fatalf("journaled = %v, want one single run", journal.recorded)
	}
}

func TestSyncFileErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", services.ErrValidation, http.StatusBadRequest},
		{"too large", fmt.Errorf("%w: exceeds cap", services.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{"download", fmt.Errorf("%w: HTTP 404", services.ErrDownload), http.StatusBadGateway},
		{"auth", drive.ErrAuth, http.StatusBadGateway},
		{"upload", fmt.Errorf("upload x: %w", drive.ErrUpload), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(":0", &fakeSingle{err: tt.err}, &fakeBulk{}, nil, nil)
			defer srv.rateLimiter.stop()

			rr := do(t, srv, http.MethodPost, "/api/sync/file", `{"fileUrl":"https://host/a.jpg"}`)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}

			var resp errorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Error == "" {
				t.Fatal("error body missing error field")
			}
		})
	}
}

func TestSyncFileBadRequests(t *testing.T) {
	srv := NewServer(":0", &fakeSingle{err: services.ErrValidation}, &fakeBulk{}, nil, nil)
	defer srv.rateLimiter.stop()

	if rr := do(t, srv, http.MethodGet, "/api/sync/file", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/sync/file", `{not json`); rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/sync/file", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing url status = %d, want 400", rr.Code)
	}
}

func TestSyncAll(t *testing.T) {
	report := core.NewReport([]core.Outcome{
		{File: "receipt1.jpg", Status: core.StatusSuccess, Detail: "https://drive.google.com/file/d/a/view"},
		{File: "user-a/receipt3.jpg", Status: core.StatusSkipped, Detail: "already synced"},
		{File: "user-b/broken.jpg", Status: core.StatusError, Detail: "download failed"},
	}, time.Second, "Sync completed")
	journal := &fakeJournal{}
	srv := NewServer(":0", &fakeSingle{}, &fakeBulk{report: report}, journal, nil)
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodPost, "/api/sync/all", "")
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var resp bulkSyncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Message != "Sync completed" {
		t.Fatalf("message = %q", resp.Message)
	}
	if resp.Stats.Success != 1 || resp.Stats.Skipped != 1 || resp.Stats.Errors != 1 {
		t.Fatalf("stats = %+v", resp.Stats)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	if resp.Results[0].WebViewLink == "" || resp.Results[0].Error != "" {
		t.Fatalf("success result = %+v", resp.Results[0])
	}
	if resp.Results[2].Error != "download failed" || resp.Results[2].WebViewLink != "" {
		t.Fatalf("error result = %+v", resp.Results[2])
	}
	if len(journal.recorded) != 1 || journal.recorded[0] != "bulk" {
		t.Fatalf("journaled = %v, want one bulk run", journal.recorded)
	}
}

func TestSyncAllFailure(t *testing.T) {
	srv := NewServer(":0", &fakeSingle{}, &fakeBulk{err: errors.New("enumerate storage: bucket down")}, nil, nil)
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodPost, "/api/sync/all", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestEnqueue(t *testing.T) {
	pub := &fakePublisher{}
	srv := NewServer(":0", &fakeSingle{}, &fakeBulk{}, nil, pub)
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodPost, "/api/sync/enqueue", `{"fileUrl":"https://host/a.jpg"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if len(pub.published) != 1 || pub.published[0] != "https://host/a.jpg" {
		t.Fatalf("published = %v", pub.published)
	}

	if rr := do(t, srv, http.MethodPost, "/api/sync/enqueue", `{"fileUrl":"  "}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("blank url status = %d, want 400", rr.Code)
	}
}

func TestEnqueueWithoutPublisher(t *testing.T) {
	srv := NewServer(":0", &fakeSingle{}, &fakeBulk{}, nil, nil)
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodPost, "/api/sync/enqueue", `{"fileUrl":"https://host/a.jpg"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestRuns(t *testing.T) {
	journal := &fakeJournal{runs: []core.RunSummary{
		{ID: 2, Mode: "bulk", Message: "Sync completed", Success: 4, Skipped: 2, Errors: 1, ElapsedMS: 900, StartedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{ID: 1, Mode: "single", Message: "Single sync completed", Success: 1},
	}}
	srv := NewServer(":0", &fakeSingle{}, &fakeBulk{}, journal, nil)
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodGet, "/api/sync/runs?limit=5", "")
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var resp runsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(resp.Runs))
	}
	if resp.Runs[0].Mode != "bulk" || resp.Runs[0].Success != 4 {
		t.Fatalf("first run = %+v", resp.Runs[0])
	}
	if resp.Runs[0].StartedAt != "2025-06-01T10:00:00Z" {
		t.Fatalf("startedAt = %q", resp.Runs[0].StartedAt)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(":0", &fakeSingle{}, &fakeBulk{}, nil, nil)
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodOptions, "/api/sync/file", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing Access-Control-Allow-Origin header")
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatal("missing POST in Access-Control-Allow-Methods")
	}
}

func TestRateLimit(t *testing.T) {
	srv := NewServer(":0", &fakeSingle{result: services.SingleResult{FileID: "x"}}, &fakeBulk{}, nil, nil)
	defer srv.rateLimiter.stop()

	var limited bool
	for i := 0; i < rateLimitPerMin+1; i++ {
		rr := do(t, srv, http.MethodPost, "/api/sync/file", `{"fileUrl":"https://host/a.jpg"}`)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			if rr.Header().Get("Retry-After") != "60" {
				t.Fatal("missing Retry-After header")
			}
			break
		}
	}
	if !limited {
		t.Fatal("rate limiter never tripped")
	}
}

func TestJournalFailureDoesNotFailRequest(t *testing.T) {
	journal := &fakeJournal{err: errors.New("journal down")}
	single := &fakeSingle{result: services.SingleResult{FileID: "abc"}}
	srv := NewServer(":0", single, &fakeBulk{}, journal, nil)
	defer srv.rateLimiter.stop()

	rr := do(t, srv, http.MethodPost, "/api/sync/file", `{"fileUrl":"https://host/a.jpg"}`)
	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200 despite journal failure", rr.Code)
	}
}
