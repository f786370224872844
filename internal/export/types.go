// Package export renders an objective's alignment hierarchy as a PDF, DOCX or
// CSV report.
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
	FormatCSV  Format = "csv"
)

func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case FormatPDF, FormatDOCX, FormatCSV:
		return Format(value), true
	default:
		return "", false
	}
}

// Row is one objective in the report, in breadth-first hierarchy order.
type Row struct {
	ObjectiveID string
	Level       int
	Title       string
	Owner       string
	Status      string
	Progress    float64
	Visibility  string
	ParentID    string
	Aligned     bool
	Current     bool
	KeyResults  []KeyResultRow
}

type KeyResultRow struct {
	Title    string
	Current  float64
	Target   float64
	Unit     string
	Progress float64
	Status   string
}

// Report is everything needed to render an export.
type Report struct {
	Title       string
	CycleID     string
	RootID      string
	FocusID     string
	GeneratedAt time.Time
	Truncated   bool
	Degraded    bool
	Rows        []Row
}

// Result contains the export output. URL is set when the artifact was
// uploaded to object storage.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	URL      string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
