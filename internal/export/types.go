// Package export renders the analytics report as HTML or PDF and archives
// rendered reports to object storage.
package export

import "errors"

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Result is a rendered report. ArchiveKey is set when a copy was stored.
type Result struct {
	Data       []byte
	Filename   string
	MimeType   string
	ArchiveKey string
}

var (
	ErrUnsupportedFormat    = errors.New("export format must be html or pdf")
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
