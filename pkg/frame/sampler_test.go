package frame

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// panicImage fails on every pixel read, like a tainted canvas.
type panicImage struct{ image.Rectangle }

func (p panicImage) ColorModel() color.Model { return color.RGBAModel }
func (p panicImage) Bounds() image.Rectangle { return p.Rectangle }
func (p panicImage) At(x, y int) color.Color { panic("pixel access denied") }

func TestSampleBorderColor_UniformBorder(t *testing.T) {
	img := createTestImage(20, 10, color.RGBA{10, 20, 30, 255})
	// Interior pixels must not influence the result.
	draw.Draw(img, image.Rect(1, 1, 19, 9), &image.Uniform{color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	c, err := SampleBorderColor(img)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, c)
}

func TestSampleBorderColor_MeanOverPerimeter(t *testing.T) {
	const w, h = 7, 5
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	// Give every pixel a distinct red value so the expected mean is exact.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(y*w + x), 100, uint8(x), 255})
		}
	}

	var sumR, sumB, n int
	for x := 0; x < w; x++ {
		sumR += x + (h-1)*w + x
		sumB += 2 * x
		n += 2
	}
	for y := 1; y < h-1; y++ {
		sumR += y*w + (y*w + w - 1)
		sumB += 0 + (w - 1)
		n += 2
	}
	require.Equal(t, 2*w+2*(h-2), n)

	c, err := SampleBorderColor(img)
	require.NoError(t, err)
	assert.Equal(t, uint8(sumR/n), c.R)
	assert.Equal(t, uint8(100), c.G)
	assert.Equal(t, uint8(sumB/n), c.B)
	assert.Equal(t, uint8(255), c.A)
}

func TestSampleBorderColor_FloorsAverage(t *testing.T) {
	// 2x2: all four pixels are border, count = 2*2 + 2*0 = 4.
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{0, 0, 0, 255})
	img.Set(1, 0, color.RGBA{1, 1, 1, 255})
	img.Set(0, 1, color.RGBA{1, 1, 1, 255})
	img.Set(1, 1, color.RGBA{1, 1, 1, 255})

	c, err := SampleBorderColor(img)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, c) // 3/4 floors to 0
}

func TestSampleBorderColor_EdgeCases(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		c, err := SampleBorderColor(image.NewRGBA(image.Rect(0, 0, 0, 5)))
		require.NoError(t, err)
		assert.Equal(t, black, c)
	})

	t.Run("Nil", func(t *testing.T) {
		c, err := SampleBorderColor(nil)
		require.NoError(t, err)
		assert.Equal(t, black, c)
	})

	t.Run("SinglePixel", func(t *testing.T) {
		c, err := SampleBorderColor(createTestImage(1, 1, color.RGBA{9, 8, 7, 255}))
		require.NoError(t, err)
		assert.Equal(t, color.RGBA{9, 8, 7, 255}, c)
	})

	t.Run("SingleRow", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 4, 1))
		img.Set(0, 0, color.RGBA{40, 0, 0, 255})
		img.Set(3, 0, color.RGBA{40, 0, 0, 255})
		c, err := SampleBorderColor(img)
		require.NoError(t, err)
		assert.Equal(t, uint8(20), c.R)
	})

	// The middle pixel of a one-pixel-wide column is both the left and the
	// right edge, so it is counted twice.
	t.Run("Width1", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 1, 3))
		img.Set(0, 0, color.RGBA{255, 0, 0, 255})
		img.Set(0, 1, color.RGBA{0, 255, 0, 255})
		img.Set(0, 2, color.RGBA{0, 0, 255, 255})
		c, err := SampleBorderColor(img)
		require.NoError(t, err)
		assert.Equal(t, color.RGBA{63, 127, 63, 255}, c)
	})

	t.Run("OffsetBounds", func(t *testing.T) {
		img := createTestImage(30, 30, color.RGBA{50, 60, 70, 255}).SubImage(image.Rect(10, 10, 20, 20))
		c, err := SampleBorderColor(img)
		require.NoError(t, err)
		assert.Equal(t, color.RGBA{50, 60, 70, 255}, c)
	})

	t.Run("ReadFailure", func(t *testing.T) {
		c, err := SampleBorderColor(panicImage{image.Rect(0, 0, 3, 3)})
		assert.ErrorIs(t, err, ErrSampleFailed)
		assert.Equal(t, black, c)
	})
}

func TestSampleBorderColor_NonPremultiplied(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.SetNRGBA(x, y, color.NRGBA{200, 100, 50, 128})
		}
	}

	c, err := SampleBorderColor(img)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{200, 100, 50, 255}, c)
}
