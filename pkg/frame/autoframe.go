package frame

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"
)

// SuggestTransform finds the most interesting region of img with the frame's
// aspect ratio and returns the zoom and pan that make it fill the frame.
// A non-nil faces moves that region so it keeps the detected faces in view.
func SuggestTransform(ctx context.Context, img image.Image, g Geometry, faces FaceFinder) (Transform, error) {
	if err := checkContext(ctx); err != nil {
		return Transform{}, err
	}

	analyzer := smartcrop.NewAnalyzer(&resizer{resampler: imaging.Linear})

	// FindBestCrop has no context support, so race it against ctx.
	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)

	go func() {
		crop, err := analyzer.FindBestCrop(img, g.Target.X, g.Target.Y)
		if err == nil {
			crop = crop.Sub(img.Bounds().Min)
			if faces != nil {
				bounds := image.Rectangle{Max: g.Source}
				crop = hintCrop(crop, faces.FindFaces(img), bounds)
			}
		}
		resultChan <- cropResult{crop: crop, err: err}
	}()

	select {
	case <-ctx.Done():
		return Transform{}, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return Transform{}, fmt.Errorf("finding best crop: %w", result.err)
		}
		return transformForCrop(result.crop, g), nil
	}
}

// transformForCrop zooms so the crop's wider side spans the frame and pans so
// the crop's center sits at the frame center. crop is relative to the source
// origin.
func transformForCrop(crop image.Rectangle, g Geometry) Transform {
	if crop.Empty() {
		return IdentityTransform()
	}
	zx := float64(g.Target.X) / (float64(crop.Dx()) * g.Fit.Scale)
	zy := float64(g.Target.Y) / (float64(crop.Dy()) * g.Fit.Scale)
	zoom := zx
	if zy < zoom {
		zoom = zy
	}

	t := IdentityTransform().WithZoom(zoom, g)
	s := g.Fit.Scale * t.Zoom
	cx := float64(crop.Min.X+crop.Max.X) / 2
	cy := float64(crop.Min.Y+crop.Max.Y) / 2
	return t.WithPan((float64(g.Source.X)/2-cx)*s, (float64(g.Source.Y)/2-cy)*s, g)
}

// resizer implements the smartcrop resizer interface.
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}
