package http

import (
	"encoding/json"
	"net/http"

	"ricevute/internal/core"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type singleSyncResponse struct {
	Success     bool   `json:"success"`
	FileID      string `json:"fileId"`
	WebViewLink string `json:"webViewLink"`
}

type bulkResult struct {
	File        string `json:"file"`
	Status      string `json:"status"`
	WebViewLink string `json:"webViewLink,omitempty"`
	Error       string `json:"error,omitempty"`
}

type bulkStats struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

type bulkSyncResponse struct {
	Message string       `json:"message"`
	Results []bulkResult `json:"results"`
	Stats   bulkStats    `json:"stats"`
}

type enqueueResponse struct {
	Queued  bool   `json:"queued"`
	FileURL string `json:"fileUrl"`
}

type runsResponse struct {
	Runs []runSummary `json:"runs"`
}

type runSummary struct {
	ID        int64  `json:"id"`
	Mode      string `json:"mode"`
	Message   string `json:"message"`
	Success   int    `json:"success"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
	ElapsedMS int64  `json:"elapsedMs"`
	StartedAt string `json:"startedAt"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// newBulkResponse shapes a report for the wire. The success detail is a
// view link; an error detail travels in the error field instead.
func newBulkResponse(report core.Report) bulkSyncResponse {
	resp := bulkSyncResponse{
		Message: report.Message,
		Results: make([]bulkResult, 0, len(report.Outcomes)),
		Stats: bulkStats{
			Success: report.Success,
			Skipped: report.Skipped,
			Errors:  report.Errors,
		},
	}
	for _, o := range report.Outcomes {
		r := bulkResult{File: o.File, Status: string(o.Status)}
		switch o.Status {
		case core.StatusSuccess:
			r.WebViewLink = o.Detail
		case core.StatusError:
			r.Error = o.Detail
		}
		resp.Results = append(resp.Results, r)
	}
	return resp
}
