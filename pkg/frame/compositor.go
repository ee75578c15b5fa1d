package frame

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Interpolation names accepted by InterpolatorByName.
const (
	InterpNearest        = "nearest"
	InterpApproxBiLinear = "approx-bilinear"
	InterpBiLinear       = "bilinear"
	InterpCatmullRom     = "catmull-rom"
)

// InterpolationNames lists the supported kernels, fastest first.
var InterpolationNames = []string{InterpNearest, InterpApproxBiLinear, InterpBiLinear, InterpCatmullRom}

// InterpolatorByName maps a kernel name to its x/image/draw interpolator.
func InterpolatorByName(name string) (draw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case InterpNearest:
		return draw.NearestNeighbor, nil
	case InterpApproxBiLinear:
		return draw.ApproxBiLinear, nil
	case InterpBiLinear, "":
		return draw.BiLinear, nil
	case InterpCatmullRom:
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("unknown interpolation %q", name)
	}
}

// Compositor renders a source image into the square frame. The preview and
// the export both go through Render, so the same state gives the same pixels.
type Compositor struct {
	interp draw.Interpolator
}

// NewCompositor creates a compositor using interp, or bilinear when nil.
func NewCompositor(interp draw.Interpolator) *Compositor {
	if interp == nil {
		interp = draw.BiLinear
	}
	return &Compositor{interp: interp}
}

// Render fills a target-sized buffer with bg and draws src on top with one
// scale+translate blit. The transform is clamped against g first.
func (c *Compositor) Render(src image.Image, g Geometry, t Transform, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, g.Target.X, g.Target.Y))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	if src == nil {
		return dst
	}

	t = t.Clamp(g)
	scale, x0, y0 := placement(g, t)
	sr := src.Bounds()

	// Unit scale on whole pixels is a straight copy; kernels could blur it.
	if scale == 1 && x0 == math.Trunc(x0) && y0 == math.Trunc(y0) {
		at := image.Pt(int(x0), int(y0))
		draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(sr.Size())}, src, sr.Min, draw.Over)
		return dst
	}

	s2d := f64.Aff3{
		scale, 0, x0 - scale*float64(sr.Min.X),
		0, scale, y0 - scale*float64(sr.Min.Y),
	}
	c.interp.Transform(dst, s2d, src, sr, draw.Over, nil)
	return dst
}

// placement returns the effective scale and the top-left corner of the
// scaled image in frame pixels. Zoom grows the image around the frame center;
// pan is applied after that.
func placement(g Geometry, t Transform) (scale, x, y float64) {
	scale = g.Fit.Scale * t.Zoom
	fitW, fitH := g.Fit.ScaledSize(g.Source, 1)
	w, h := g.Fit.ScaledSize(g.Source, t.Zoom)
	x = g.Fit.OffsetX - (w-fitW)/2 + t.PanX
	y = g.Fit.OffsetY - (h-fitH)/2 + t.PanY
	return scale, x, y
}
