package frame

import (
	"fmt"
	"image"
	"image/color"
)

var black = color.RGBA{0, 0, 0, 255}

// SampleBorderColor averages the perimeter pixels of img into a single opaque
// background color. The top and bottom rows are sampled in full; the left and
// right columns skip the corners those rows already counted, giving
// 2W + 2(H-2) samples. Channels are read non-premultiplied and floored.
//
// A failure while reading pixels yields black together with ErrSampleFailed.
// Callers treat that error as a warning.
func SampleBorderColor(img image.Image) (c color.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = black
			err = fmt.Errorf("%w: %v", ErrSampleFailed, r)
		}
	}()

	if img == nil {
		return black, nil
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return black, nil
	}

	var sumR, sumG, sumB, count uint64
	add := func(x, y int) {
		p := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
		sumR += uint64(p.R)
		sumG += uint64(p.G)
		sumB += uint64(p.B)
		count++
	}

	if h == 1 {
		for x := b.Min.X; x < b.Max.X; x++ {
			add(x, b.Min.Y)
		}
	} else {
		for x := b.Min.X; x < b.Max.X; x++ {
			add(x, b.Min.Y)
			add(x, b.Max.Y-1)
		}
		for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
			add(b.Min.X, y)
			add(b.Max.X-1, y)
		}
	}

	if count == 0 {
		p := color.NRGBAModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.NRGBA)
		return color.RGBA{p.R, p.G, p.B, 255}, nil
	}

	return color.RGBA{
		R: uint8(sumR / count),
		G: uint8(sumG / count),
		B: uint8(sumB / count),
		A: 255,
	}, nil
}
