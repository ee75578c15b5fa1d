package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/dixieflatline76/squareframe/pkg/frame"
	"github.com/dixieflatline76/squareframe/util/log"
)

// scrollZoomScale converts fyne scroll steps (about 10 per notch) to the
// browser wheel units the controller expects (about 100 per notch).
const scrollZoomScale = 10

// minViewSize is the smallest edge of the preview in device independent pixels.
const minViewSize = 320

// FrameView shows the composited frame and turns pointer input on it into
// session events.
type FrameView struct {
	widget.BaseWidget

	session  *frame.Session
	image    *canvas.Image
	backdrop *canvas.Rectangle

	renderedRev uint64

	// OnChanged is called after user input changed the session.
	OnChanged func()
}

var (
	_ fyne.Draggable     = (*FrameView)(nil)
	_ fyne.Scrollable    = (*FrameView)(nil)
	_ desktop.Mouseable  = (*FrameView)(nil)
	_ desktop.Hoverable  = (*FrameView)(nil)
	_ desktop.Cursorable = (*FrameView)(nil)
)

// NewFrameView creates a preview bound to session.
func NewFrameView(session *frame.Session) *FrameView {
	v := &FrameView{session: session}
	v.image = canvas.NewImageFromImage(nil)
	v.image.FillMode = canvas.ImageFillContain
	v.image.ScaleMode = canvas.ImageScaleSmooth
	v.image.SetMinSize(fyne.NewSize(minViewSize, minViewSize))
	v.backdrop = canvas.NewRectangle(theme.Color(theme.ColorNameInputBackground))
	v.ExtendBaseWidget(v)
	return v
}

// CreateRenderer implements fyne.Widget.
func (v *FrameView) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewStack(v.backdrop, v.image))
}

// Sync re-renders the preview if the session changed since the last call.
func (v *FrameView) Sync() {
	snap := v.session.Snapshot()
	if snap.Revision == v.renderedRev {
		return
	}
	v.renderedRev = snap.Revision

	if snap.Status != frame.StatusReady {
		v.image.Image = nil
		v.image.Refresh()
		return
	}

	img, rendered, err := v.session.Preview()
	if err != nil {
		log.Debugf("Preview skipped: %v", err)
		return
	}
	v.renderedRev = rendered.Revision
	v.image.Image = img
	v.image.Refresh()
}

// toFrame maps a widget position to frame pixels. The frame is drawn as
// large as fits and centered, like canvas.ImageFillContain.
func (v *FrameView) toFrame(pos fyne.Position) (float64, float64) {
	size := v.Size()
	target := v.session.Target()
	scale := fyne.Min(size.Width/float32(target.X), size.Height/float32(target.Y))
	if scale <= 0 {
		return 0, 0
	}
	ox := (size.Width - float32(target.X)*scale) / 2
	oy := (size.Height - float32(target.Y)*scale) / 2
	return float64((pos.X - ox) / scale), float64((pos.Y - oy) / scale)
}

func (v *FrameView) changed() {
	v.Sync()
	if v.OnChanged != nil {
		v.OnChanged()
	}
}

func (v *FrameView) pointerMove(pos fyne.Position) {
	x, y := v.toFrame(pos)
	moved, err := v.session.PointerMove(x, y)
	if err != nil || !moved {
		return
	}
	v.changed()
}

// MouseDown starts a drag on the primary button.
func (v *FrameView) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	x, y := v.toFrame(ev.Position)
	if err := v.session.PointerDown(x, y); err != nil {
		return
	}
	v.changed()
}

// MouseUp ends a drag.
func (v *FrameView) MouseUp(*desktop.MouseEvent) {
	v.session.PointerUp()
	v.changed()
}

// Dragged pans while the button is held.
func (v *FrameView) Dragged(ev *fyne.DragEvent) {
	v.pointerMove(ev.Position)
}

// DragEnd ends a drag.
func (v *FrameView) DragEnd() {
	v.session.PointerUp()
	v.changed()
}

// MouseIn implements desktop.Hoverable.
func (v *FrameView) MouseIn(*desktop.MouseEvent) {}

// MouseMoved pans if a drag is in progress.
func (v *FrameView) MouseMoved(ev *desktop.MouseEvent) {
	v.pointerMove(ev.Position)
}

// MouseOut ends a drag when the pointer leaves the preview.
func (v *FrameView) MouseOut() {
	v.session.PointerLeave()
	v.changed()
}

// Scrolled zooms. fyne reports scrolling up as a positive DY, browsers as a
// negative delta.
func (v *FrameView) Scrolled(ev *fyne.ScrollEvent) {
	if _, err := v.session.Wheel(-float64(ev.Scrolled.DY) * scrollZoomScale); err != nil {
		return
	}
	v.changed()
}

// Cursor implements desktop.Cursorable.
func (v *FrameView) Cursor() desktop.Cursor {
	if v.session.Snapshot().Dragging {
		return desktop.CrosshairCursor
	}
	return desktop.DefaultCursor
}
