package export

import (
	"fmt"
)

// Service renders minutes documents to downloadable formats.
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export generates an export of the minutes in the requested format.
func (s *Service) Export(doc MinutesDocument, format Format) (*Result, error) {
	html, err := RenderMinutesHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render minutes: %w", err)
	}

	switch format {
	case FormatPDF:
		return exportPDF(html, doc.Title)
	case FormatDOCX:
		return exportDOCX(html, doc.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
