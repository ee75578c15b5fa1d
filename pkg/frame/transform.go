package frame

import (
	"image"
	"math"
)

const (
	// MinZoom is the smallest zoom factor; 1 is the plain fit.
	MinZoom = 1.0
	// MaxZoom is the largest zoom factor.
	MaxZoom = 10.0
)

// Geometry is the fixed part of the frame math for one loaded image.
type Geometry struct {
	Source image.Point
	Target image.Point
	Fit    FitInfo
}

// NewGeometry computes the fit of a source into a target frame.
func NewGeometry(src, target image.Point) (Geometry, error) {
	fit, err := ComputeFit(src, target)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{Source: src, Target: target, Fit: fit}, nil
}

// MaxPan returns how far the image can be panned on each axis at zoom before
// an edge of the scaled image would move inside the frame. It is zero on an
// axis where the scaled image does not exceed the frame.
func (g Geometry) MaxPan(zoom float64) (x, y float64) {
	w, h := g.Fit.ScaledSize(g.Source, zoom)
	return panLimit(w, g.Target.X), panLimit(h, g.Target.Y)
}

// Transform is the user-controlled zoom and pan. Pan is in frame pixels.
type Transform struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"panX"`
	PanY float64 `json:"panY"`
}

// IdentityTransform is the state after a fresh load.
func IdentityTransform() Transform {
	return Transform{Zoom: MinZoom}
}

// ClampZoom limits v to [MinZoom, MaxZoom].
func ClampZoom(v float64) float64 {
	return clampf(v, MinZoom, MaxZoom)
}

// Clamp returns t with zoom in range and pan limited to what g allows at
// that zoom. Clamp is idempotent.
func (t Transform) Clamp(g Geometry) Transform {
	if math.IsNaN(t.Zoom) {
		t.Zoom = MinZoom
	}
	t.Zoom = ClampZoom(t.Zoom)
	if math.IsNaN(t.PanX) {
		t.PanX = 0
	}
	if math.IsNaN(t.PanY) {
		t.PanY = 0
	}
	mx, my := g.MaxPan(t.Zoom)
	t.PanX = clampPan(t.PanX, mx)
	t.PanY = clampPan(t.PanY, my)
	return t
}

// WithZoom sets the zoom and re-clamps the pan, since the pan range depends
// on the zoom. NaN leaves t unchanged.
func (t Transform) WithZoom(v float64, g Geometry) Transform {
	if math.IsNaN(v) {
		return t
	}
	t.Zoom = v
	return t.Clamp(g)
}

// WithPanDelta adds (dx, dy) to the pan and clamps it.
func (t Transform) WithPanDelta(dx, dy float64, g Geometry) Transform {
	if math.IsNaN(dx) || math.IsNaN(dy) {
		return t
	}
	t.PanX += dx
	t.PanY += dy
	return t.Clamp(g)
}

// WithPan replaces the pan and clamps it.
func (t Transform) WithPan(x, y float64, g Geometry) Transform {
	if math.IsNaN(x) || math.IsNaN(y) {
		return t
	}
	t.PanX, t.PanY = x, y
	return t.Clamp(g)
}

// panLimit is half the overflow of scaled over target, with rounding noise
// below a billionth of a pixel treated as no overflow.
func panLimit(scaled float64, target int) float64 {
	over := (scaled - float64(target)) / 2
	if over < 1e-9 {
		return 0
	}
	return over
}

// clampPan never returns negative zero, which would leak into JSON as "-0".
func clampPan(v, limit float64) float64 {
	if limit == 0 {
		return 0
	}
	return clampf(v, -limit, limit)
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
