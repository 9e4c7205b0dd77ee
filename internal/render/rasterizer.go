// Package render turns PDF documents into page rasters.
//
// Page geometry is read with pdfcpu. Rasterization shells out to pdftoppm
// (poppler-utils), which must be on PATH:
//
//	apt-get install poppler-utils
//	brew install poppler
package render

import (
	"context"
	"fmt"
	"image"
)

// RenderedPage is one rasterized page and its zero-based index in the document.
type RenderedPage struct {
	Index int
	Image image.Image
}

// Rasterizer reports page geometry and renders pages to images.
type Rasterizer interface {
	// PageGeometry returns the native size of every page, in document order.
	PageGeometry(ctx context.Context, path string) ([]PageGeometry, error)

	// Rasterize renders every page at dpi, in document order.
	Rasterize(ctx context.Context, path string, dpi int) ([]RenderedPage, error)
}

// DocumentReadError means a document could not be opened, parsed, or rendered.
type DocumentReadError struct {
	Path string
	Err  error
}

func (e *DocumentReadError) Error() string {
	return fmt.Sprintf("read document %s: %v", e.Path, e.Err)
}

func (e *DocumentReadError) Unwrap() error {
	return e.Err
}
