package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/dixieflatline76/squareframe/util"
	"github.com/dixieflatline76/squareframe/util/log"
)

// ErrSuperseded is returned for a load that finished after a newer load or a
// clear. Its result has been dropped.
var ErrSuperseded = errors.New("load superseded")

// LoadStatus is the load state of a Session.
type LoadStatus int

const (
	// StatusEmpty means no image is loaded; the file intake is shown.
	StatusEmpty LoadStatus = iota
	// StatusLoading means a decode is in flight.
	StatusLoading
	// StatusReady means an image is loaded and can be previewed.
	StatusReady
	// StatusFailed means the last load failed; see Snapshot.Error.
	StatusFailed
)

func (s LoadStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s LoadStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *LoadStatus) UnmarshalText(text []byte) error {
	for _, st := range []LoadStatus{StatusEmpty, StatusLoading, StatusReady, StatusFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown load status %q", text)
}

// Options configures a Session.
type Options struct {
	Target       image.Point
	Interpolator draw.Interpolator
	JPEGQuality  int
	AutoFrame    bool

	// Faces, when set and FaceBoost is on, keeps detected faces inside the
	// auto-frame suggestion.
	Faces     FaceFinder
	FaceBoost bool
}

// DefaultOptions returns the build-time frame size with bilinear sampling.
func DefaultOptions() Options {
	return Options{
		Target:       image.Pt(DefaultTargetSize, DefaultTargetSize),
		Interpolator: draw.BiLinear,
		JPEGQuality:  DefaultJPEGQuality,
	}
}

// Snapshot is a copy of the session state safe to hand to other goroutines.
type Snapshot struct {
	Status       LoadStatus `json:"status"`
	ImageID      string     `json:"imageId,omitempty"`
	Name         string     `json:"name,omitempty"`
	Format       string     `json:"format,omitempty"`
	Width        int        `json:"width,omitempty"`
	Height       int        `json:"height,omitempty"`
	TargetWidth  int        `json:"targetWidth"`
	TargetHeight int        `json:"targetHeight"`
	Fit          FitInfo    `json:"fit"`
	Transform    Transform  `json:"transform"`
	Background   string     `json:"background,omitempty"`
	Dragging     bool       `json:"dragging"`
	Revision     uint64     `json:"revision"`
	ExportName   string     `json:"exportName,omitempty"`
	ErrorKind    string     `json:"errorKind,omitempty"`
	Error        string     `json:"error,omitempty"`
	Warning      string     `json:"warning,omitempty"`
}

// Session owns the currently loaded image and everything derived from it.
// All methods are safe for concurrent use; mutations are serialized so the
// model stays that of a single event loop.
type Session struct {
	mu         sync.RWMutex
	opts       Options
	compositor *Compositor
	generation *util.SafeCounter

	status     LoadStatus
	id         string
	name       string
	format     string
	src        image.Image
	geom       Geometry
	transform  Transform
	background color.RGBA
	controller Controller
	loadErr    *LoadError
	warning    *LoadError
	revision   uint64

	updateCh chan struct{}
}

// NewSession creates an empty session.
func NewSession(opts Options) *Session {
	def := DefaultOptions()
	if opts.Target.X <= 0 || opts.Target.Y <= 0 {
		opts.Target = def.Target
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = def.JPEGQuality
	}
	return &Session{
		opts:       opts,
		compositor: NewCompositor(opts.Interpolator),
		generation: util.NewSafeInt(),
		transform:  IdentityTransform(),
		updateCh:   make(chan struct{}),
	}
}

// Target returns the frame size.
func (s *Session) Target() image.Point {
	return s.opts.Target
}

// SetInterpolator swaps the resampling kernel used for preview and export.
func (s *Session) SetInterpolator(interp draw.Interpolator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compositor = NewCompositor(interp)
	s.revision++
	s.notifyUpdateLocked()
}

// SetJPEGQuality sets the export quality, clamped to [1, 100].
func (s *Session) SetJPEGQuality(q int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.JPEGQuality = clampQuality(q)
}

// SetAutoFrame turns the smartcrop suggestion for new loads on or off.
func (s *Session) SetAutoFrame(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.AutoFrame = enabled
}

// SetFaceBoost turns face hinting of auto-frame suggestions on or off. It has
// no effect without a FaceFinder.
func (s *Session) SetFaceBoost(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.FaceBoost = enabled
}

// faceFinderLocked returns the finder to use, or nil.
// CALLER MUST HOLD s.mu
func (s *Session) faceFinderLocked() FaceFinder {
	if !s.opts.FaceBoost {
		return nil
	}
	return s.opts.Faces
}

// Load decodes r and makes it the current image. On failure the session is
// left in StatusFailed and the returned error is a *LoadError.
func (s *Session) Load(ctx context.Context, name string, r io.Reader) error {
	gen := s.begin(name)
	img, format, err := Decode(ctx, name, r)
	return s.finish(ctx, gen, name, img, format, err)
}

// LoadAsync reads and decodes r on its own goroutine and calls done with the
// outcome. A later Load, LoadAsync or Clear turns this load's completion into
// ErrSuperseded without touching the session.
func (s *Session) LoadAsync(name string, r io.Reader, done func(error)) {
	gen := s.begin(name)
	go func() {
		ctx := context.Background()
		img, format, err := Decode(ctx, name, r)
		err = s.finish(ctx, gen, name, img, format, err)
		if done != nil {
			done(err)
		}
	}()
}

// begin resets the session for a new load and returns its generation.
func (s *Session) begin(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.generation.Increment()
	s.resetLocked()
	s.status = StatusLoading
	s.name = name
	s.notifyUpdateLocked()
	return gen
}

// finish commits a decode result if gen is still the latest load.
func (s *Session) finish(ctx context.Context, gen int, name string, img image.Image, format string, err error) error {
	var (
		geom    Geometry
		bg      color.RGBA
		warning *LoadError
		t       = IdentityTransform()
	)
	s.mu.RLock()
	autoFrame := s.opts.AutoFrame
	faces := s.faceFinderLocked()
	s.mu.RUnlock()

	if err == nil {
		geom, err = NewGeometry(img.Bounds().Size(), s.opts.Target)
		if err != nil {
			err = newLoadError(KindDecode, name, err)
		}
	}
	if err == nil {
		var sampleErr error
		bg, sampleErr = SampleBorderColor(img)
		if sampleErr != nil {
			warning = newLoadError(KindSample, name, sampleErr)
			log.Printf("Using black background: %v", warning)
		}
		if autoFrame {
			suggested, ferr := SuggestTransform(ctx, img, geom, faces)
			if ferr != nil {
				log.Printf("Auto-frame failed for %q: %v", name, ferr)
			} else {
				t = suggested
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation.Value() {
		log.Debugf("Dropping stale load of %q (generation %d)", name, gen)
		return ErrSuperseded
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.resetLocked()
			s.notifyUpdateLocked()
			return err
		}
		le := newLoadError(KindDecode, name, err)
		s.resetLocked()
		s.status = StatusFailed
		s.name = name
		s.loadErr = le
		s.notifyUpdateLocked()
		log.Printf("Loading %q failed: %v", name, le)
		return le
	}

	s.status = StatusReady
	s.id = uuid.NewString()
	s.name = name
	s.format = format
	s.src = img
	s.geom = geom
	s.background = bg
	s.warning = warning
	s.transform = t.Clamp(geom)
	s.controller.Reset()
	s.revision++
	s.notifyUpdateLocked()
	log.Printf("Loaded %q (%s, %dx%d) as %s", name, format, geom.Source.X, geom.Source.Y, s.id)
	return nil
}

// Clear discards the current image, any error, and interest in a load that
// is still in flight.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation.Increment()
	s.resetLocked()
	s.notifyUpdateLocked()
}

// Retry leaves the failed state and returns to the empty intake state. It is
// a no-op unless the last load failed.
func (s *Session) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusFailed {
		return
	}
	s.resetLocked()
	s.notifyUpdateLocked()
}

func (s *Session) resetLocked() {
	s.status = StatusEmpty
	s.id = ""
	s.name = ""
	s.format = ""
	s.src = nil
	s.geom = Geometry{}
	s.transform = IdentityTransform()
	s.background = color.RGBA{}
	s.controller.Reset()
	s.loadErr = nil
	s.warning = nil
	s.revision++
}

// SetZoom sets the zoom, clamped to [MinZoom, MaxZoom].
func (s *Session) SetZoom(v float64) (Transform, error) {
	return s.update(func(t Transform, g Geometry) Transform {
		return t.WithZoom(v, g)
	})
}

// AdjustPan moves the image by (dx, dy) frame pixels.
func (s *Session) AdjustPan(dx, dy float64) (Transform, error) {
	return s.update(func(t Transform, g Geometry) Transform {
		return t.WithPanDelta(dx, dy, g)
	})
}

// ResetView returns to the plain fit.
func (s *Session) ResetView() (Transform, error) {
	return s.update(func(Transform, Geometry) Transform {
		return IdentityTransform()
	})
}

// AutoFrame applies the smartcrop suggestion to the current image.
func (s *Session) AutoFrame(ctx context.Context) (Transform, error) {
	s.mu.RLock()
	src, geom, id := s.src, s.geom, s.id
	ready := s.status == StatusReady
	faces := s.faceFinderLocked()
	s.mu.RUnlock()
	if !ready {
		return Transform{}, ErrNoImage
	}

	suggested, err := SuggestTransform(ctx, src, geom, faces)
	if err != nil {
		return Transform{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != id {
		return Transform{}, ErrSuperseded
	}
	s.setTransformLocked(suggested)
	return s.transform, nil
}

// PointerDown starts a drag at frame coordinates (x, y).
func (s *Session) PointerDown(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return ErrNoImage
	}
	s.controller.PointerDown(x, y, s.transform)
	s.notifyUpdateLocked()
	return nil
}

// PointerMove pans while a drag is in progress. It reports whether the
// event was consumed.
func (s *Session) PointerMove(x, y float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return false, ErrNoImage
	}
	t, ok := s.controller.PointerMove(x, y, s.transform, s.geom)
	if ok {
		s.setTransformLocked(t)
	}
	return ok, nil
}

// PointerUp ends a drag.
func (s *Session) PointerUp() {
	s.endDrag()
}

// PointerLeave ends a drag because the pointer left the frame.
func (s *Session) PointerLeave() {
	s.endDrag()
}

func (s *Session) endDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller.State() == Idle {
		return
	}
	s.controller.PointerUp()
	s.notifyUpdateLocked()
}

// Wheel zooms by a wheel delta. The returned flag tells the host to suppress
// its default scrolling; it is true even when no image is loaded.
func (s *Session) Wheel(delta float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return true, ErrNoImage
	}
	t, prevent := s.controller.Wheel(delta, s.transform, s.geom)
	s.setTransformLocked(t)
	return prevent, nil
}

func (s *Session) update(fn func(Transform, Geometry) Transform) (Transform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady {
		return Transform{}, ErrNoImage
	}
	s.setTransformLocked(fn(s.transform, s.geom))
	return s.transform, nil
}

func (s *Session) setTransformLocked(t Transform) {
	t = t.Clamp(s.geom)
	if t == s.transform {
		return
	}
	s.transform = t
	s.revision++
	s.notifyUpdateLocked()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:       s.status,
		ImageID:      s.id,
		Name:         s.name,
		Format:       s.format,
		TargetWidth:  s.opts.Target.X,
		TargetHeight: s.opts.Target.Y,
		Transform:    s.transform,
		Dragging:     s.controller.State() == Dragging,
		Revision:     s.revision,
	}
	if s.status == StatusReady {
		snap.Width = s.geom.Source.X
		snap.Height = s.geom.Source.Y
		snap.Fit = s.geom.Fit
		snap.Background = fmt.Sprintf("#%02x%02x%02x", s.background.R, s.background.G, s.background.B)
		snap.ExportName = ExportFilename(s.name, s.opts.Target.X, s.opts.Target.Y)
	}
	if s.loadErr != nil {
		snap.ErrorKind = s.loadErr.Kind.String()
		snap.Error = s.loadErr.Message()
	}
	if s.warning != nil {
		snap.Warning = s.warning.Message()
	}
	return snap
}

// Err returns the last load failure, or nil.
func (s *Session) Err() *LoadError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Background returns the border color of the current image.
func (s *Session) Background() (color.RGBA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusReady {
		return color.RGBA{}, ErrNoImage
	}
	return s.background, nil
}

// Preview composites the current state into a frame-sized buffer.
func (s *Session) Preview() (*image.RGBA, Snapshot, error) {
	s.mu.RLock()
	snap := s.snapshotLocked()
	src, geom, t, bg, comp := s.src, s.geom, s.transform, s.background, s.compositor
	s.mu.RUnlock()

	if snap.Status != StatusReady {
		return nil, snap, ErrNoImage
	}
	return comp.Render(src, geom, t, bg), snap, nil
}

// Export composites the current state exactly as Preview does and writes it
// to w as a JPEG. It returns the download file name.
func (s *Session) Export(w io.Writer) (string, error) {
	img, snap, err := s.Preview()
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	quality := s.opts.JPEGQuality
	s.mu.RUnlock()
	if err := EncodeJPEG(w, img, quality); err != nil {
		return "", err
	}
	log.Printf("Exported %s (revision %d)", snap.ExportName, snap.Revision)
	return snap.ExportName, nil
}

// notifyUpdateLocked wakes everyone waiting on the current update channel.
// CALLER MUST HOLD s.mu.Lock()
func (s *Session) notifyUpdateLocked() {
	close(s.updateCh)
	s.updateCh = make(chan struct{})
}

// Updates returns a channel that is closed on the next state change.
func (s *Session) Updates() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updateCh
}
