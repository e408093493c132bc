// Package http exposes the sync API: trigger a single-file relay, run a
// bulk reconciliation, enqueue an async sync, and inspect journaled runs.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"ricevute/internal/core"
	"ricevute/internal/drive"
	"ricevute/internal/services"
	"ricevute/internal/transport"
)

// Ports for the operations the server fronts. Services and storage provide
// the real implementations; tests use fakes.
type (
	// SingleSyncer relays one file by URL.
	SingleSyncer interface {
		Run(ctx context.Context, fileURL string) (services.SingleResult, error)
	}

	// BulkSyncer reconciles the whole store.
	BulkSyncer interface {
		Run(ctx context.Context) (core.Report, error)
	}

	// RunJournal records and reads back sync runs.
	RunJournal interface {
		RecordRun(ctx context.Context, mode string, report core.Report) (int64, error)
		RecentRuns(ctx context.Context, limit int) ([]core.RunSummary, error)
	}

	// SyncPublisher enqueues an async single-file sync.
	SyncPublisher interface {
		PublishReceiptSync(ctx context.Context, fileURL string) error
	}
)

const (
	maxRequestBody  = 16 << 10
	rateLimitPerMin = 30
	bulkRunTimeout  = 10 * time.Minute
)

type Server struct {
	http.Server

	single    SingleSyncer
	bulk      BulkSyncer
	journal   RunJournal
	publisher SyncPublisher

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
// journal and publisher may be nil; the matching endpoints then degrade.
func NewServer(addr string, single SingleSyncer, bulk BulkSyncer, journal RunJournal, publisher SyncPublisher) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		single:      single,
		bulk:        bulk,
		journal:     journal,
		publisher:   publisher,
		rateLimiter: newRateLimiter(rateLimitPerMin),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/api/sync/file", s.withMiddleware(s.handleSyncFile))
	mux.HandleFunc("/api/sync/all", s.withMiddleware(s.handleSyncAll))
	mux.HandleFunc("/api/sync/enqueue", s.withMiddleware(s.handleEnqueue))
	mux.HandleFunc("/api/sync/runs", s.withMiddleware(s.handleRuns))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type syncFileRequest struct {
	FileURL string `json:"fileUrl"`
}

func (s *Server) handleSyncFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req syncFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := s.single.Run(r.Context(), req.FileURL)
	if err != nil {
		s.journalSingle(r.Context(), req.FileURL, core.Outcome{
			File:   req.FileURL,
			Status: core.StatusError,
			Detail: err.Error(),
		})
		slog.ErrorContext(r.Context(), "Single-file sync failed", "url", req.FileURL, "error", err)
		writeError(w, statusForError(err), "sync failed", err.Error())
		return
	}

	s.journalSingle(r.Context(), req.FileURL, core.Outcome{
		File:   req.FileURL,
		Status: core.StatusSuccess,
		Detail: result.WebViewLink,
	})

	writeJSON(w, http.StatusOK, singleSyncResponse{
		Success:     true,
		FileID:      result.FileID,
		WebViewLink: result.WebViewLink,
	})
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bulkRunTimeout)
	defer cancel()

	report, err := s.bulk.Run(ctx)
	if err != nil {
		slog.ErrorContext(r.Context(), "Bulk reconciliation failed", "error", err)
		writeError(w, statusForError(err), "bulk sync failed", err.Error())
		return
	}

	s.journalRun(r.Context(), "bulk", report)

	writeJSON(w, http.StatusOK, newBulkResponse(report))
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	if s.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "queue not configured", "")
		return
	}

	var req syncFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.FileURL) == "" {
		writeError(w, http.StatusBadRequest, "no file URL provided", "")
		return
	}

	if err := s.publisher.PublishReceiptSync(r.Context(), req.FileURL); err != nil {
		slog.ErrorContext(r.Context(), "Failed to enqueue sync", "url", req.FileURL, "error", err)
		writeError(w, http.StatusBadGateway, "enqueue failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, enqueueResponse{Queued: true, FileURL: req.FileURL})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured", "")
		return
	}

	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	runs, err := s.journal.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read sync runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read runs", err.Error())
		return
	}

	resp := runsResponse{Runs: make([]runSummary, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runSummary{
			ID:        run.ID,
			Mode:      run.Mode,
			Message:   run.Message,
			Success:   run.Success,
			Skipped:   run.Skipped,
			Errors:    run.Errors,
			ElapsedMS: run.ElapsedMS,
			StartedAt: run.StartedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	body := io.LimitReader(r.Body, maxRequestBody)
	return json.NewDecoder(body).Decode(v)
}

// journalSingle records a one-outcome run. Journaling is best effort; a
// journal failure never fails the request.
func (s *Server) journalSingle(ctx context.Context, fileURL string, outcome core.Outcome) {
	message := "Single sync completed"
	if outcome.Status == core.StatusError {
		message = "Single sync failed"
	}
	s.journalRun(ctx, "single", core.NewReport([]core.Outcome{outcome}, 0, message))
}

func (s *Server) journalRun(ctx context.Context, mode string, report core.Report) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.RecordRun(ctx, mode, report); err != nil {
		slog.WarnContext(ctx, "Failed to journal sync run", "mode", mode, "error", err)
	}
}

// statusForError maps the error taxonomy to HTTP statuses: bad input is the
// caller's fault, upstream failures are a bad gateway, the rest is on us.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrDownload),
		errors.Is(err, drive.ErrAuth),
		errors.Is(err, drive.ErrUpload),
		errors.Is(err, transport.ErrExhausted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
