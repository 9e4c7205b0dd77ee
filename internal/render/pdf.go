package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/draw"
)

// DefaultPdftoppm is the rasterizer binary looked up on PATH.
const DefaultPdftoppm = "pdftoppm"

// PDFConfig configures a PDFRasterizer.
type PDFConfig struct {
	Binary  string // pdftoppm binary (default: pdftoppm)
	TempDir string // Scratch directory parent (default: os.TempDir())
	Logger  *slog.Logger
}

// PDFRasterizer reads geometry with pdfcpu and renders pages with pdftoppm.
type PDFRasterizer struct {
	binary  string
	tempDir string
	logger  *slog.Logger
}

// NewPDFRasterizer creates a PDF rasterizer.
func NewPDFRasterizer(cfg PDFConfig) *PDFRasterizer {
	if cfg.Binary == "" {
		cfg.Binary = DefaultPdftoppm
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PDFRasterizer{
		binary:  cfg.Binary,
		tempDir: cfg.TempDir,
		logger:  cfg.Logger,
	}
}

// Available reports whether the pdftoppm binary can be found.
func (r *PDFRasterizer) Available() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("%s not found (install poppler-utils): %w", r.binary, err)
	}
	return nil
}

// PageGeometry returns the size of every page in points.
func (r *PDFRasterizer) PageGeometry(ctx context.Context, path string) ([]PageGeometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &DocumentReadError{Path: path, Err: err}
	}
	defer f.Close()

	dims, err := api.PageDims(f, nil)
	if err != nil {
		return nil, &DocumentReadError{Path: path, Err: fmt.Errorf("failed to read page dimensions: %w", err)}
	}
	if len(dims) == 0 {
		return nil, &DocumentReadError{Path: path, Err: errors.New("document has no pages")}
	}

	geoms := make([]PageGeometry, len(dims))
	for i, d := range dims {
		geoms[i] = PageGeometry{Width: d.Width, Height: d.Height}
	}
	return geoms, nil
}

// Rasterize renders all pages of the PDF at dpi into RGBA images.
func (r *PDFRasterizer) Rasterize(ctx context.Context, path string, dpi int) ([]RenderedPage, error) {
	if dpi <= 0 {
		return nil, fmt.Errorf("dpi must be positive, got %d", dpi)
	}

	workDir, err := os.MkdirTemp(r.tempDir, "pdfocr-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// -png: output PNG format
	// -r N: resolution in DPI
	prefix := filepath.Join(workDir, "page")
	cmd := exec.CommandContext(ctx, r.binary, "-png", "-r", strconv.Itoa(dpi), path, prefix)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DocumentReadError{
			Path: path,
			Err:  fmt.Errorf("%s failed: %w (output: %s)", r.binary, err, strings.TrimSpace(string(output))),
		}
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, &DocumentReadError{Path: path, Err: errors.New("no rendered pages found")}
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageIndexFromName(matches[i]) < pageIndexFromName(matches[j])
	})

	pages := make([]RenderedPage, 0, len(matches))
	for i, m := range matches {
		img, err := decodePNG(m)
		if err != nil {
			return nil, &DocumentReadError{Path: path, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		pages = append(pages, RenderedPage{Index: i, Image: img})
	}

	r.logger.Debug("rasterized document", "document", path, "dpi", dpi, "pages", len(pages))
	return pages, nil
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered page: %w", err)
	}
	return ToRGBA(img), nil
}

// ToRGBA converts img to an *image.RGBA anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// pageIndexFromName parses the 1-based page suffix pdftoppm writes ("page-07.png").
func pageIndexFromName(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndex(base, "-")
	if idx >= 0 {
		if v, err := strconv.Atoi(base[idx+1:]); err == nil {
			return v
		}
	}
	return 0
}
