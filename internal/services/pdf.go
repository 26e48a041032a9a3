package services

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFService pulls the text layer out of uploaded PDFs so the pipeline can
// chunk it like pasted notes.
type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// ExtractText returns the document's plain text with pages separated by
// blank lines, preserving paragraph boundaries for the chunker.
func (s *PDFService) ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract text from page %d: %w", pageNum, err)
		}
		text = strings.TrimSpace(text)
		if text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdf has no extractable text layer")
	}
	return strings.Join(pages, "\n\n"), nil
}
