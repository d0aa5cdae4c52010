package export

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/CSci-153-Web-Systems-and-Technologies/batch-2025-v-fsb-web/internal/analytics"
)

type Service struct {
	archiver Archiver
	pdf      func(ctx context.Context, html string) ([]byte, error)
}

// NewService builds the report exporter. archiver may be nil.
func NewService(archiver Archiver) *Service {
	return &Service{archiver: archiver, pdf: printPDF}
}

// Report renders snapshot in format. PDFs are also archived when an
// archiver is configured; an archive failure is logged, not returned.
func (s *Service) Report(ctx context.Context, snapshot analytics.Snapshot, format Format, generatedAt time.Time) (*Result, error) {
	html, err := RenderReportHTML(NewReportData(snapshot, generatedAt))
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: reportFilename(generatedAt, FormatHTML),
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		result := &Result{
			Data:     data,
			Filename: reportFilename(generatedAt, FormatPDF),
			MimeType: "application/pdf",
		}
		if s.archiver != nil {
			key := "reports/" + result.Filename
			if err := s.archiver.Put(ctx, key, data, result.MimeType); err != nil {
				log.Printf("export: %v", err)
			} else {
				result.ArchiveKey = key
			}
		}
		return result, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
