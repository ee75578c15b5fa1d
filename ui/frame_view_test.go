package ui

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dixieflatline76/squareframe/pkg/frame"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func loadWide(t *testing.T, s *frame.Session) {
	t.Helper()
	require.NoError(t, s.Load(context.Background(), "wide.png", bytes.NewReader(pngBytes(t, 2000, 1000, color.White))))
}

func newLoadedView(t *testing.T) (*FrameView, *frame.Session) {
	t.Helper()
	test.NewTempApp(t)
	s := frame.NewSession(frame.DefaultOptions())
	loadWide(t, s)
	v := NewFrameView(s)
	v.Resize(fyne.NewSize(520, 520))
	return v, s
}

func primary(x, y float32) *desktop.MouseEvent {
	return &desktop.MouseEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)},
		Button:     desktop.MouseButtonPrimary,
	}
}

func TestFrameView_ToFrame(t *testing.T) {
	test.NewTempApp(t)
	v := NewFrameView(frame.NewSession(frame.DefaultOptions()))

	// 600x520 shows a 520x520 frame with 40px bars left and right.
	v.Resize(fyne.NewSize(600, 520))

	x, y := v.toFrame(fyne.NewPos(40, 0))
	assert.InDelta(t, 0, x, 1e-3)
	assert.InDelta(t, 0, y, 1e-3)

	x, y = v.toFrame(fyne.NewPos(300, 260))
	assert.InDelta(t, 520, x, 1e-3)
	assert.InDelta(t, 520, y, 1e-3)

	v.Resize(fyne.NewSize(0, 0))
	x, y = v.toFrame(fyne.NewPos(10, 10))
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)
}

func TestFrameView_Sync(t *testing.T) {
	v, s := newLoadedView(t)

	v.Sync()
	require.NotNil(t, v.image.Image)
	assert.Equal(t, image.Pt(1040, 1040), v.image.Image.Bounds().Size())

	s.Clear()
	v.Sync()
	assert.Nil(t, v.image.Image)
}

func TestFrameView_ScrollZooms(t *testing.T) {
	v, s := newLoadedView(t)
	changes := 0
	v.OnChanged = func() { changes++ }

	v.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(0, 10)})
	assert.InDelta(t, 2, s.Snapshot().Transform.Zoom, 1e-9)

	v.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(0, -5)})
	assert.InDelta(t, 1.5, s.Snapshot().Transform.Zoom, 1e-9)
	assert.Equal(t, 2, changes)
}

func TestFrameView_DragPans(t *testing.T) {
	v, s := newLoadedView(t)
	_, err := s.SetZoom(2)
	require.NoError(t, err)

	v.MouseDown(primary(100, 100))
	assert.True(t, s.Snapshot().Dragging)
	assert.Equal(t, desktop.CrosshairCursor, v.Cursor())

	// 30 widget pixels are 60 frame pixels at half scale.
	v.Dragged(&fyne.DragEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(130, 100)},
		Dragged:    fyne.NewDelta(30, 0),
	})
	assert.InDelta(t, 60, s.Snapshot().Transform.PanX, 1e-3)

	v.DragEnd()
	assert.False(t, s.Snapshot().Dragging)
	assert.Equal(t, desktop.DefaultCursor, v.Cursor())

	// Hovering without a button does not pan.
	v.MouseMoved(primary(400, 400))
	assert.InDelta(t, 60, s.Snapshot().Transform.PanX, 1e-3)
}

func TestFrameView_MouseOutEndsDrag(t *testing.T) {
	v, s := newLoadedView(t)
	_, err := s.SetZoom(4)
	require.NoError(t, err)

	v.MouseDown(primary(10, 10))
	v.MouseMoved(primary(20, 30))
	pan := s.Snapshot().Transform
	assert.InDelta(t, 20, pan.PanX, 1e-3)
	assert.InDelta(t, 40, pan.PanY, 1e-3)

	v.MouseOut()
	assert.False(t, s.Snapshot().Dragging)
	v.MouseMoved(primary(200, 200))
	assert.Equal(t, pan, s.Snapshot().Transform)
}

func TestFrameView_SecondaryButtonIgnored(t *testing.T) {
	v, s := newLoadedView(t)

	v.MouseDown(&desktop.MouseEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(10, 10)},
		Button:     desktop.MouseButtonSecondary,
	})
	assert.False(t, s.Snapshot().Dragging)

	v.MouseUp(primary(10, 10))
	assert.False(t, s.Snapshot().Dragging)
}

func TestFrameView_NoImage(t *testing.T) {
	test.NewTempApp(t)
	s := frame.NewSession(frame.DefaultOptions())
	v := NewFrameView(s)
	v.Resize(fyne.NewSize(520, 520))
	called := false
	v.OnChanged = func() { called = true }

	v.MouseDown(primary(10, 10))
	v.Scrolled(&fyne.ScrollEvent{Scrolled: fyne.NewDelta(0, 10)})
	assert.False(t, called)
	assert.Equal(t, frame.StatusEmpty, s.Snapshot().Status)
}
