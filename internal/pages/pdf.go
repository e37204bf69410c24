package pages

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

// Counter reports the number of pages in a document.
type Counter interface {
	Count(document []byte) (int, error)
}

// Trimmer restricts a document to a page window.
type Trimmer interface {
	Trim(document []byte, window domain.PageWindow) ([]byte, error)
}

// PDF implements Counter and Trimmer with pdfcpu.
type PDF struct {
	conf *model.Configuration
}

// NewPDF creates a PDF helper with pdfcpu's default configuration.
func NewPDF() *PDF {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDF{conf: conf}
}

// Count returns the number of pages in document.
func (p *PDF) Count(document []byte) (int, error) {
	if len(document) == 0 {
		return 0, domain.ValidationError("document is empty", nil)
	}
	n, err := api.PageCount(bytes.NewReader(document), p.conf)
	if err != nil {
		return 0, domain.ValidationError("read pdf page count", err)
	}
	return n, nil
}

// Trim returns a new PDF holding only the pages of window.
// Window pages are zero-based; pdfcpu selections are one-based.
func (p *PDF) Trim(document []byte, window domain.PageWindow) ([]byte, error) {
	total, err := p.Count(document)
	if err != nil {
		return nil, err
	}
	if window.Count < 1 || window.Start < 0 || window.End() >= total {
		return nil, domain.ValidationError(
			fmt.Sprintf("page window %s out of range for %d-page document", window, total), nil)
	}

	selected := make([]string, 0, window.Count)
	for _, page := range window.Pages() {
		selected = append(selected, strconv.Itoa(page+1))
	}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(document), &out, selected, p.conf); err != nil {
		return nil, domain.ValidationError(fmt.Sprintf("trim pdf to %s", window), err)
	}
	return out.Bytes(), nil
}
