package frame

import (
	"fmt"
	"image"
	"math"
)

// DefaultTargetSize is the side length of the square output frame.
const DefaultTargetSize = 1040

// FitInfo maps source pixels into the target frame.
type FitInfo struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// ComputeFit returns the uniform scale that makes the limiting dimension of
// src touch the target edge, and the offsets that center the other one.
// Sources smaller than the target are scaled up.
func ComputeFit(src, target image.Point) (FitInfo, error) {
	if src.X <= 0 || src.Y <= 0 {
		return FitInfo{}, fmt.Errorf("%w: source %dx%d", ErrInvalidDimensions, src.X, src.Y)
	}
	if target.X <= 0 || target.Y <= 0 {
		return FitInfo{}, fmt.Errorf("%w: target %dx%d", ErrInvalidDimensions, target.X, target.Y)
	}

	scale := math.Min(float64(target.X)/float64(src.X), float64(target.Y)/float64(src.Y))
	return FitInfo{
		Scale:   scale,
		OffsetX: (float64(target.X) - float64(src.X)*scale) / 2,
		OffsetY: (float64(target.Y) - float64(src.Y)*scale) / 2,
	}, nil
}

// ScaledSize returns the size of src in frame pixels at the given zoom.
func (f FitInfo) ScaledSize(src image.Point, zoom float64) (w, h float64) {
	s := f.Scale * zoom
	return float64(src.X) * s, float64(src.Y) * s
}
