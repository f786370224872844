package export

import (
	"context"
	"fmt"

	"okrhub/api/internal/logger"
)

type artifactUploader interface {
	Put(ctx context.Context, objectiveID string, result *Result) (string, error)
}

type renderFunc func(ctx context.Context, html, title string) (*Result, error)

// Service renders reports and, when object storage is configured, uploads
// them.
type Service struct {
	artifacts artifactUploader
	pdf       renderFunc
	docx      renderFunc
	log       *logger.Logger
}

// NewService creates an export service. artifacts may be nil to always
// return exports inline.
func NewService(artifacts *ArtifactStore, log *logger.Logger) *Service {
	s := &Service{pdf: exportPDF, docx: exportDOCX, log: log}
	if artifacts != nil {
		s.artifacts = artifacts
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With("component", "export")
	return s
}

// Export renders report in format. A failed upload still returns the inline
// result.
func (s *Service) Export(ctx context.Context, report Report, format Format) (*Result, error) {
	var (
		result *Result
		err    error
	)
	switch format {
	case FormatCSV:
		result, err = exportCSV(report)
	case FormatPDF, FormatDOCX:
		html, renderErr := RenderReportHTML(report)
		if renderErr != nil {
			return nil, fmt.Errorf("render template: %w", renderErr)
		}
		if format == FormatPDF {
			result, err = s.pdf(ctx, html, report.Title)
		} else {
			result, err = s.docx(ctx, html, report.Title)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	if s.artifacts != nil {
		url, err := s.artifacts.Put(ctx, report.FocusID, result)
		if err != nil {
			s.log.Warn("export upload failed, returning inline", "objective_id", report.FocusID, "error", err)
		} else {
			result.URL = url
		}
	}
	return result, nil
}
