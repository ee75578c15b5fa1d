package frame

import (
	"errors"
	"fmt"
	"image"
	"sort"

	pigo "github.com/esimov/pigo/core"
)

// Face detection tuning.
const (
	faceScaleFactor      = 1.1
	faceDetectShift      = 0.1
	faceDetectConfidence = 10.0
	faceIoUThreshold     = 0.2
	faceMinSizePct       = 1
	faceMinSizeFloor     = 20
)

// FaceFinder locates faces in an image. Rectangles are relative to the
// image's bounds origin, largest first.
type FaceFinder interface {
	FindFaces(img image.Image) []image.Rectangle
}

// PigoFaceFinder detects faces with a pigo cascade.
type PigoFaceFinder struct {
	classifier *pigo.Pigo
}

// NewPigoFaceFinder unpacks a pigo facefinder cascade.
func NewPigoFaceFinder(cascade []byte) (f *PigoFaceFinder, err error) {
	if len(cascade) == 0 {
		return nil, errors.New("empty face cascade")
	}
	// Unpack indexes into the packet without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("unpacking face cascade: %v", r)
		}
	}()

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpacking face cascade: %w", err)
	}
	return &PigoFaceFinder{classifier: classifier}, nil
}

// FindFaces runs the cascade over a grayscale copy of img.
func (f *PigoFaceFinder) FindFaces(img image.Image) []image.Rectangle {
	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()
	minDim := cols
	if rows < minDim {
		minDim = rows
	}
	minSize := minDim * faceMinSizePct / 100
	if minSize < faceMinSizeFloor {
		minSize = faceMinSizeFloor
	}
	if minDim < minSize {
		return nil
	}

	params := pigo.CascadeParams{
		MinSize:     minSize,
		MaxSize:     minDim,
		ShiftFactor: faceDetectShift,
		ScaleFactor: faceScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: grayscale(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := f.classifier.RunCascade(params, 0)
	dets = f.classifier.ClusterDetections(dets, faceIoUThreshold)

	var faces []image.Rectangle
	for _, d := range dets {
		if d.Q < faceDetectConfidence {
			continue
		}
		half := d.Scale / 2
		r := image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half)
		r = r.Intersect(image.Rect(0, 0, cols, rows))
		if !r.Empty() {
			faces = append(faces, r)
		}
	}
	sortLargestFirst(faces)
	return faces
}

// grayscale packs img into the row-major luma buffer pigo expects.
func grayscale(img image.Image) []uint8 {
	b := img.Bounds()
	pixels := make([]uint8, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pixels = append(pixels, uint8((299*r+587*g+114*bl)/1000>>8))
		}
	}
	return pixels
}

func sortLargestFirst(rs []image.Rectangle) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Dx()*rs[i].Dy() > rs[j].Dx()*rs[j].Dy()
	})
}

// hintCrop moves crop, keeping its size, so it holds the detected faces.
// When all faces do not fit it holds the largest one, and when even that
// does not fit it is centered on it. The result stays inside bounds.
func hintCrop(crop image.Rectangle, faces []image.Rectangle, bounds image.Rectangle) image.Rectangle {
	if len(faces) == 0 || crop.Empty() {
		return crop
	}

	var union image.Rectangle
	for _, f := range faces {
		union = union.Union(f)
	}
	target := union
	if target.Dx() > crop.Dx() || target.Dy() > crop.Dy() {
		target = faces[0]
	}

	moved := crop.Add(image.Pt(
		shiftToContain(crop.Min.X, crop.Max.X, target.Min.X, target.Max.X),
		shiftToContain(crop.Min.Y, crop.Max.Y, target.Min.Y, target.Max.Y),
	))
	return keepInside(moved, bounds)
}

// shiftToContain returns the smallest shift of [lo, hi) that covers
// [tlo, thi), or the shift that centers it when it is too wide.
func shiftToContain(lo, hi, tlo, thi int) int {
	if thi-tlo > hi-lo {
		return (tlo+thi)/2 - (lo+hi)/2
	}
	switch {
	case tlo < lo:
		return tlo - lo
	case thi > hi:
		return thi - hi
	default:
		return 0
	}
}

func keepInside(r, bounds image.Rectangle) image.Rectangle {
	var d image.Point
	if r.Max.X > bounds.Max.X {
		d.X = bounds.Max.X - r.Max.X
	}
	if r.Min.X+d.X < bounds.Min.X {
		d.X = bounds.Min.X - r.Min.X
	}
	if r.Max.Y > bounds.Max.Y {
		d.Y = bounds.Max.Y - r.Max.Y
	}
	if r.Min.Y+d.Y < bounds.Min.Y {
		d.Y = bounds.Min.Y - r.Min.Y
	}
	return r.Add(d)
}
