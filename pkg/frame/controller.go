package frame

import "math"

// WheelZoomFactor converts a wheel delta into a zoom delta. Scrolling down
// (positive delta) zooms out.
const WheelZoomFactor = -0.01

// DragState is the state of the pointer interaction.
type DragState int

const (
	// Idle means no drag is in progress.
	Idle DragState = iota
	// Dragging means a pointer is down and moves pan the image.
	Dragging
)

func (s DragState) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Controller turns pointer and wheel events into Transform updates.
// Coordinates are in frame pixels.
type Controller struct {
	state          DragState
	startX, startY float64
	basePanX       float64
	basePanY       float64
}

// State reports whether a drag is in progress.
func (c *Controller) State() DragState {
	return c.state
}

// PointerDown starts a drag, remembering the pointer and the current pan.
func (c *Controller) PointerDown(x, y float64, t Transform) {
	c.state = Dragging
	c.startX, c.startY = x, y
	c.basePanX, c.basePanY = t.PanX, t.PanY
}

// PointerMove pans relative to where the drag started. It returns t unchanged
// and false when no drag is in progress.
func (c *Controller) PointerMove(x, y float64, t Transform, g Geometry) (Transform, bool) {
	if c.state != Dragging {
		return t, false
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return t, false
	}
	return t.WithPan(c.basePanX+(x-c.startX), c.basePanY+(y-c.startY), g), true
}

// PointerUp ends a drag.
func (c *Controller) PointerUp() {
	c.state = Idle
}

// PointerLeave ends a drag when the pointer leaves the frame.
func (c *Controller) PointerLeave() {
	c.state = Idle
}

// Wheel applies a wheel delta to the zoom. The second result is always true:
// the host must suppress its default scroll handling.
func (c *Controller) Wheel(delta float64, t Transform, g Geometry) (Transform, bool) {
	if math.IsNaN(delta) {
		return t, true
	}
	return t.WithZoom(t.Zoom+delta*WheelZoomFactor, g), true
}

// Reset drops any drag in progress.
func (c *Controller) Reset() {
	*c = Controller{}
}
