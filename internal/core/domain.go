package core

import (
	"errors"
	"time"
)

// EntryKind distinguishes the two shapes a storage listing row can take.
// The storage API reports folders as entries without file metadata; making
// the distinction explicit keeps a legitimate zero-byte file from being
// mistaken for a folder.
type EntryKind int

const (
	EntryFolder EntryKind = iota
	EntryFile
)

type (
	// Entry is a single row returned by the storage listing API.
	Entry struct {
		Name string
		Kind EntryKind
		// Size is meaningful only for EntryFile. A zero-byte file is
		// still a file.
		Size int64
	}

	// ReceiptFile is a stored receipt discovered during enumeration.
	// Path is storage-relative and may carry an owning-user prefix
	// segment; Name is the bare filename used for deduplication.
	ReceiptFile struct {
		Path string
		Name string
		Size int64
	}

	// Outcome is the per-file result of a sync attempt. Detail carries
	// the view link on success, the skip reason on skip, or the error
	// message on failure.
	Outcome struct {
		File   string
		Status SyncStatus
		Detail string
	}

	// Report aggregates the outcomes of one sync run.
	Report struct {
		Outcomes []Outcome
		Success  int
		Skipped  int
		Errors   int
		Elapsed  time.Duration
		Message  string
	}

	// RunSummary is a journaled sync run as read back from storage.
	RunSummary struct {
		ID        int64
		Mode      string
		Message   string
		Success   int
		Skipped   int
		Errors    int
		ElapsedMS int64
		StartedAt time.Time
	}
)

// SyncStatus is the closed set of per-file sync states.
type SyncStatus string

const (
	StatusSuccess SyncStatus = "success"
	StatusSkipped SyncStatus = "skipped"
	StatusError   SyncStatus = "error"
)

var ErrInvalidStatus = errors.New("invalid sync status")

// Valid reports whether the status is one of the three enumerated values.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusSkipped, StatusError:
		return true
	}
	return false
}

// NewReport builds a report from outcomes, tallying the status counts.
func NewReport(outcomes []Outcome, elapsed time.Duration, message string) Report {
	r := Report{
		Outcomes: outcomes,
		Elapsed:  elapsed,
		Message:  message,
	}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			r.Success++
		case StatusSkipped:
			r.Skipped++
		case StatusError:
			r.Errors++
		}
	}
	return r
}
