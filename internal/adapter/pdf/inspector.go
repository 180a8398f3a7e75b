// Package pdf checks uploaded PDF documents locally before they are sent upstream.
package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// MediaType is the media type this package inspects.
const MediaType = "application/pdf"

// ErrNoPages is returned for a structurally valid PDF without pages.
var ErrNoPages = errors.New("pdf has no pages")

func init() {
	// Keep pdfcpu from creating its config directory under the user's home.
	api.DisableConfigDir()
}

// Inspector validates PDF structure.
type Inspector struct {
	maxPages int
}

// NewInspector creates an inspector. maxPages <= 0 means no page limit.
func NewInspector(maxPages int) *Inspector {
	return &Inspector{maxPages: maxPages}
}

// PageCount parses data and returns its page count. Malformed documents,
// empty documents and documents over the page limit are errors.
func (i *Inspector) PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read pdf: %w", err)
	}
	if n == 0 {
		return 0, ErrNoPages
	}
	if i.maxPages > 0 && n > i.maxPages {
		return n, fmt.Errorf("pdf has %d pages, limit is %d", n, i.maxPages)
	}
	return n, nil
}
