package render

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultTargetLongestSide is the pixel length the longest page edge is scaled to.
	DefaultTargetLongestSide = 1800

	// PointsPerInch is the PDF user-space unit density.
	PointsPerInch = 72.0
)

// ErrInvalidGeometry is returned when a page has no usable size.
var ErrInvalidGeometry = errors.New("invalid page geometry")

// PageGeometry is the native size of a page in points.
type PageGeometry struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// LongestSide returns the larger of width and height.
func (g PageGeometry) LongestSide() float64 {
	return math.Max(g.Width, g.Height)
}

// ResolveDPI picks the DPI that maps the longest side of g to targetLongestSide pixels.
func ResolveDPI(g PageGeometry, targetLongestSide int) (int, error) {
	if g.Width <= 0 || g.Height <= 0 {
		return 0, fmt.Errorf("%w: %.2fx%.2fpt", ErrInvalidGeometry, g.Width, g.Height)
	}
	if targetLongestSide <= 0 {
		return 0, fmt.Errorf("target longest side must be positive, got %d", targetLongestSide)
	}

	dpi := int(math.Round(float64(targetLongestSide) / g.LongestSide() * PointsPerInch))
	if dpi < 1 {
		dpi = 1
	}
	return dpi, nil
}

// Scale returns the zoom factor applied to native page size at dpi.
func Scale(dpi int) float64 {
	return float64(dpi) / PointsPerInch
}
