// Package export renders board minutes to PDF and DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// MinutesDocument is the fully loaded minutes content handed to the
// renderer. The caller resolves which revision to export.
type MinutesDocument struct {
	IssueID    string
	Title      string
	Status     string
	Rationale  string
	RecordedBy string
	RecordedAt time.Time
	Tally      []TallyRow
	History    []HistoryEntry
}

// TallyRow is one vote bucket in the exported tally table.
type TallyRow struct {
	VoteType      string
	Count         int
	WeightedCount int
	Directors     []string
}

// HistoryEntry is one revision in the exported minutes history.
type HistoryEntry struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
