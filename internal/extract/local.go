package extract

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// localParser extracts embedded text directly from the PDF. It handles
// digitally-born textbooks; scanned books need the OCR parser.
type localParser struct{}

func NewLocalParser() Parser {
	return localParser{}
}

func (localParser) Name() string {
	return "local"
}

func (localParser) ParsePages(_ context.Context, pdfPath string, first, last int) ([]PageMarkup, error) {
	file, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	total := reader.NumPage()
	if first < 1 || last > total || first > last {
		return nil, fmt.Errorf("page range %d-%d outside document (1-%d)", first, last, total)
	}
	pages := make([]PageMarkup, 0, last-first+1)
	for n := first; n <= last; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", n, err)
		}
		pages = append(pages, PageMarkup{Page: n, Markdown: content})
	}
	return pages, nil
}

// PageCount reads the page count without extracting any content.
func PageCount(pdfPath string) (int, error) {
	file, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	return reader.NumPage(), nil
}
