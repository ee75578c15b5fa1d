package frame

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadPNG(t *testing.T, s *Session, name string, img image.Image) {
	t.Helper()
	require.NoError(t, s.Load(context.Background(), name, bytes.NewReader(encodePNG(t, img))))
}

func TestSession_EmptyState(t *testing.T) {
	s := NewSession(DefaultOptions())

	snap := s.Snapshot()
	assert.Equal(t, StatusEmpty, snap.Status)
	assert.Equal(t, DefaultTargetSize, snap.TargetWidth)
	assert.Equal(t, IdentityTransform(), snap.Transform)

	_, err := s.SetZoom(2)
	assert.ErrorIs(t, err, ErrNoImage)
	_, err = s.AdjustPan(1, 1)
	assert.ErrorIs(t, err, ErrNoImage)
	assert.ErrorIs(t, s.PointerDown(0, 0), ErrNoImage)
	prevent, err := s.Wheel(10)
	assert.True(t, prevent)
	assert.ErrorIs(t, err, ErrNoImage)
	_, _, err = s.Preview()
	assert.ErrorIs(t, err, ErrNoImage)
	_, err = s.Export(&bytes.Buffer{})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestSession_EndToEndWhiteImage(t *testing.T) {
	s := NewSession(DefaultOptions())
	loadPNG(t, s, "snow.png", createTestImage(2000, 1000, color.White))

	snap := s.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.NotEmpty(t, snap.ImageID)
	assert.Equal(t, "png", snap.Format)
	assert.Equal(t, 2000, snap.Width)
	assert.Equal(t, 1000, snap.Height)
	assert.Equal(t, "#ffffff", snap.Background)
	assert.InDelta(t, 0.52, snap.Fit.Scale, 1e-9)
	assert.InDelta(t, 260, snap.Fit.OffsetY, 1e-9)
	assert.Equal(t, "snow_1040x1040.jpg", snap.ExportName)

	bg, err := s.Background()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, bg)

	var buf bytes.Buffer
	name, err := s.Export(&buf)
	require.NoError(t, err)
	assert.Equal(t, "snow_1040x1040.jpg", name)

	out, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1040, 1040), out.Bounds())
}

func TestSession_PreviewMatchesCompositor(t *testing.T) {
	src := splitImage(300, 120)
	s := NewSession(DefaultOptions())
	loadPNG(t, s, "split.png", src)

	_, err := s.SetZoom(3)
	require.NoError(t, err)
	_, err = s.AdjustPan(-200, 40)
	require.NoError(t, err)

	preview, snap, err := s.Preview()
	require.NoError(t, err)

	g, err := NewGeometry(src.Bounds().Size(), s.Target())
	require.NoError(t, err)
	bg, _ := SampleBorderColor(src)
	expected := NewCompositor(nil).Render(src, g, snap.Transform, bg)
	assert.Equal(t, expected.Pix, preview.Pix)
}

func TestSession_InteractionUpdatesState(t *testing.T) {
	s := NewSession(DefaultOptions())
	loadPNG(t, s, "split.png", splitImage(2000, 1000))

	updates := s.Updates()
	prevent, err := s.Wheel(-100)
	require.NoError(t, err)
	assert.True(t, prevent)
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("wheel did not signal an update")
	}
	assert.InDelta(t, 2, s.Snapshot().Transform.Zoom, 1e-9)

	require.NoError(t, s.PointerDown(100, 100))
	assert.True(t, s.Snapshot().Dragging)

	moved, err := s.PointerMove(150, 300)
	require.NoError(t, err)
	assert.True(t, moved)
	tr := s.Snapshot().Transform
	assert.InDelta(t, 50, tr.PanX, 1e-9)
	assert.Equal(t, 0.0, tr.PanY, "no vertical room at zoom 2")

	s.PointerLeave()
	assert.False(t, s.Snapshot().Dragging)
	moved, err = s.PointerMove(500, 500)
	require.NoError(t, err)
	assert.False(t, moved)

	tr, err = s.ResetView()
	require.NoError(t, err)
	assert.Equal(t, IdentityTransform(), tr)
}

func TestSession_NewLoadResetsState(t *testing.T) {
	s := NewSession(DefaultOptions())
	loadPNG(t, s, "a.png", splitImage(2000, 1000))
	first := s.Snapshot()

	_, err := s.SetZoom(5)
	require.NoError(t, err)
	require.NoError(t, s.PointerDown(1, 1))

	loadPNG(t, s, "b.png", createTestImage(300, 300, color.Black))
	snap := s.Snapshot()
	assert.Equal(t, IdentityTransform(), snap.Transform)
	assert.False(t, snap.Dragging)
	assert.Equal(t, "#000000", snap.Background)
	assert.NotEqual(t, first.ImageID, snap.ImageID)
	assert.Greater(t, snap.Revision, first.Revision)
}

func TestSession_FailureAndRetry(t *testing.T) {
	s := NewSession(DefaultOptions())
	loadPNG(t, s, "ok.png", createTestImage(10, 10, color.White))

	err := s.Load(context.Background(), "broken.png", bytes.NewReader([]byte("nope")))
	le := requireLoadError(t, err, KindDecode)

	snap := s.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "decode", snap.ErrorKind)
	assert.Equal(t, le.Message(), snap.Error)
	assert.Empty(t, snap.ImageID, "no partial output after a failure")
	assert.Equal(t, le, s.Err())

	_, _, err = s.Preview()
	assert.ErrorIs(t, err, ErrNoImage)

	s.Retry()
	snap = s.Snapshot()
	assert.Equal(t, StatusEmpty, snap.Status)
	assert.Empty(t, snap.Error)
	assert.Nil(t, s.Err())
}

func TestSession_RetryOnlyLeavesFailed(t *testing.T) {
	s := NewSession(DefaultOptions())
	loadPNG(t, s, "ok.png", createTestImage(10, 10, color.White))
	s.Retry()
	assert.Equal(t, StatusReady, s.Snapshot().Status)

	s.Clear()
	assert.Equal(t, StatusEmpty, s.Snapshot().Status)
}

func TestSession_StaleLoadIsDropped(t *testing.T) {
	s := NewSession(DefaultOptions())
	img := createTestImage(20, 20, color.White)

	older := s.begin("older.png")
	newer := s.begin("newer.png")

	err := s.finish(context.Background(), older, "older.png", img, "png", nil)
	assert.ErrorIs(t, err, ErrSuperseded)
	snap := s.Snapshot()
	assert.Equal(t, StatusLoading, snap.Status)
	assert.Equal(t, "newer.png", snap.Name)

	require.NoError(t, s.finish(context.Background(), newer, "newer.png", img, "png", nil))
	assert.Equal(t, StatusReady, s.Snapshot().Status)

	// Clear also invalidates a load in flight.
	pending := s.begin("late.png")
	s.Clear()
	assert.ErrorIs(t, s.finish(context.Background(), pending, "late.png", img, "png", nil), ErrSuperseded)
	assert.Equal(t, StatusEmpty, s.Snapshot().Status)
}

func TestSession_UnreadablePixelsFallBackToBlack(t *testing.T) {
	s := NewSession(DefaultOptions())

	gen := s.begin("tainted.png")
	require.NoError(t, s.finish(context.Background(), gen, "tainted.png", panicImage{image.Rect(0, 0, 8, 4)}, "png", nil))

	snap := s.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.Equal(t, "#000000", snap.Background)
	assert.Empty(t, snap.Error)
	assert.Equal(t, (&LoadError{Kind: KindSample}).Message(), snap.Warning)

	// A readable image clears the warning.
	gen = s.begin("fine.png")
	require.NoError(t, s.finish(context.Background(), gen, "fine.png", createTestImage(8, 4, color.White), "png", nil))
	snap = s.Snapshot()
	assert.Equal(t, "#ffffff", snap.Background)
	assert.Empty(t, snap.Warning)
}

func TestSession_LoadAsync(t *testing.T) {
	s := NewSession(DefaultOptions())
	done := make(chan error, 1)

	s.LoadAsync("async.png", bytes.NewReader(encodePNG(t, createTestImage(64, 32, color.White))), func(err error) {
		done <- err
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("async load did not complete")
	}
	snap := s.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.Equal(t, 64, snap.Width)
}

func TestSession_AutoFrameOption(t *testing.T) {
	opts := DefaultOptions()
	opts.Target = image.Pt(100, 100)
	opts.AutoFrame = true
	s := NewSession(opts)
	loadPNG(t, s, "wide.png", splitImage(400, 200))

	tr := s.Snapshot().Transform
	assert.GreaterOrEqual(t, tr.Zoom, MinZoom)

	again, err := s.AutoFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tr, again)
}

type countingFaces struct {
	calls atomic.Int32
	faces []image.Rectangle
}

func (f *countingFaces) FindFaces(image.Image) []image.Rectangle {
	f.calls.Add(1)
	return f.faces
}

func TestSession_FaceBoost(t *testing.T) {
	finder := &countingFaces{faces: []image.Rectangle{image.Rect(0, 90, 20, 110)}}
	opts := DefaultOptions()
	opts.AutoFrame = true
	opts.Faces = finder
	s := NewSession(opts)

	// Off by default.
	loadPNG(t, s, "wide.png", splitImage(400, 200))
	assert.Equal(t, int32(0), finder.calls.Load())

	s.SetFaceBoost(true)
	tr, err := s.AutoFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), finder.calls.Load())

	g, err := NewGeometry(image.Pt(400, 200), s.Target())
	require.NoError(t, err)
	maxX, _ := g.MaxPan(tr.Zoom)
	assert.InDelta(t, maxX, tr.PanX, 1e-6)

	loadPNG(t, s, "wide.png", splitImage(400, 200))
	assert.Equal(t, int32(2), finder.calls.Load())
	assert.Equal(t, tr, s.Snapshot().Transform)

	s.SetFaceBoost(false)
	_, err = s.AutoFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), finder.calls.Load())
}

func TestSession_LoadAsyncReadError(t *testing.T) {
	s := NewSession(DefaultOptions())
	done := make(chan error, 1)

	s.LoadAsync("gone.png", iotest.ErrReader(errors.New("unplugged")), func(err error) {
		done <- err
	})

	select {
	case err := <-done:
		requireLoadError(t, err, KindRead)
	case <-time.After(5 * time.Second):
		t.Fatal("async load did not complete")
	}
	assert.Equal(t, "read", s.Snapshot().ErrorKind)
}

func TestSession_RuntimeOptions(t *testing.T) {
	s := NewSession(DefaultOptions())
	gradient := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			gradient.SetRGBA(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), uint8((x * y) % 256), 255})
		}
	}
	loadPNG(t, s, "gradient.png", gradient)

	s.SetJPEGQuality(1)
	var low bytes.Buffer
	_, err := s.Export(&low)
	require.NoError(t, err)

	s.SetJPEGQuality(500)
	var high bytes.Buffer
	_, err = s.Export(&high)
	require.NoError(t, err)
	assert.Greater(t, high.Len(), low.Len())

	rev := s.Snapshot().Revision
	s.SetInterpolator(nil)
	assert.Greater(t, s.Snapshot().Revision, rev, "a kernel change invalidates previews")
}

func TestLoadStatus_Text(t *testing.T) {
	for _, st := range []LoadStatus{StatusEmpty, StatusLoading, StatusReady, StatusFailed} {
		text, err := st.MarshalText()
		require.NoError(t, err)
		var back LoadStatus
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, st, back)
	}
	var st LoadStatus
	assert.Error(t, st.UnmarshalText([]byte("sideways")))
}
