package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/dixieflatline76/squareframe/asset"
	"github.com/dixieflatline76/squareframe/config"
	"github.com/dixieflatline76/squareframe/pkg/frame"
	"github.com/dixieflatline76/squareframe/util/log"
)

const intakeText = "Open or drop a PNG, JPEG or WEBP image."

// Viewer is the desktop window: a square preview with open, export, fit and
// retry controls.
type Viewer struct {
	app      fyne.App
	window   fyne.Window
	session  *frame.Session
	cfg      *config.AppConfig
	assetMgr *asset.Manager

	view      *FrameView
	status    *widget.Label
	errorText *widget.Label
	errorBox  *fyne.Container
	zoom      *widget.Slider
	openBtn   *widget.Button
	exportBtn *widget.Button
	fitBtn    *widget.Button
	autoBtn   *widget.Button
	retryBtn  *widget.Button

	syncing  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewViewer builds the main window for session.
func NewViewer(a fyne.App, session *frame.Session, cfg *config.AppConfig) *Viewer {
	v := &Viewer{
		app:      a,
		session:  session,
		cfg:      cfg,
		assetMgr: asset.NewManager(),
		stopCh:   make(chan struct{}),
	}
	v.window = a.NewWindow(config.AppName)
	if icon, err := v.assetMgr.GetIcon("app.svg"); err == nil {
		a.SetIcon(icon)
		v.window.SetIcon(icon)
	}
	v.build()
	v.sync()
	return v
}

func (v *Viewer) build() {
	v.view = NewFrameView(v.session)
	v.view.OnChanged = v.sync

	v.status = widget.NewLabel(intakeText)
	v.status.Truncation = fyne.TextTruncateEllipsis

	v.errorText = widget.NewLabel("")
	v.errorText.Importance = widget.DangerImportance
	v.errorText.Wrapping = fyne.TextWrapWord
	v.retryBtn = widget.NewButtonWithIcon("Try again", theme.ViewRefreshIcon(), v.retry)
	v.errorBox = container.NewBorder(nil, nil, nil, v.retryBtn, v.errorText)

	v.zoom = widget.NewSlider(frame.MinZoom, frame.MaxZoom)
	v.zoom.Step = 0.01
	v.zoom.OnChanged = func(z float64) {
		if v.syncing {
			return
		}
		if _, err := v.session.SetZoom(z); err == nil {
			v.sync()
		}
	}

	v.openBtn = widget.NewButtonWithIcon("Open", theme.FolderOpenIcon(), v.showOpenDialog)
	v.exportBtn = widget.NewButtonWithIcon("Export", theme.DocumentSaveIcon(), v.showExportDialog)
	v.exportBtn.Importance = widget.HighImportance
	v.fitBtn = widget.NewButtonWithIcon("Fit", theme.ZoomFitIcon(), v.resetView)
	v.autoBtn = widget.NewButtonWithIcon("Auto", theme.VisibilityIcon(), v.autoFrame)
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), v.showSettings)

	toolbar := container.NewHBox(v.openBtn, v.fitBtn, v.autoBtn, v.exportBtn, settingsBtn)
	zoomRow := container.NewBorder(nil, nil, widget.NewLabel("Zoom"), nil, v.zoom)
	top := container.NewVBox(toolbar, v.errorBox)
	bottom := container.NewVBox(zoomRow, v.status)

	v.window.SetContent(container.NewBorder(top, bottom, nil, nil, v.view))
	v.window.Resize(fyne.NewSize(600, 720))
	v.window.SetOnDropped(func(_ fyne.Position, uris []fyne.URI) {
		if len(uris) > 0 {
			v.openURI(uris[0])
		}
	})
	v.window.SetOnClosed(v.Stop)
}

// Window returns the main window.
func (v *Viewer) Window() fyne.Window {
	return v.window
}

// ShowAndRun shows the window and runs the application until it quits.
func (v *Viewer) ShowAndRun() {
	go v.watchSession()
	v.window.ShowAndRun()
}

// Stop ends the session watcher.
func (v *Viewer) Stop() {
	v.stopOnce.Do(func() {
		close(v.stopCh)
	})
}

// watchSession refreshes the window after changes made off the UI goroutine,
// such as an asynchronous load completing.
func (v *Viewer) watchSession() {
	updates := v.session.Updates()
	fyne.Do(v.sync)
	for {
		select {
		case <-v.stopCh:
			return
		case <-updates:
			updates = v.session.Updates()
			fyne.Do(v.sync)
		}
	}
}

// sync brings the preview and controls in line with the session.
func (v *Viewer) sync() {
	v.view.Sync()
	snap := v.session.Snapshot()
	ready := snap.Status == frame.StatusReady

	v.syncing = true
	v.zoom.SetValue(snap.Transform.Zoom)
	v.syncing = false

	for _, b := range []*widget.Button{v.exportBtn, v.fitBtn, v.autoBtn} {
		if ready {
			b.Enable()
		} else {
			b.Disable()
		}
	}
	if ready {
		v.zoom.Enable()
	} else {
		v.zoom.Disable()
	}

	if snap.Status == frame.StatusFailed {
		v.errorText.SetText(snap.Error)
		v.errorBox.Show()
	} else {
		v.errorText.SetText("")
		v.errorBox.Hide()
	}

	v.status.SetText(statusText(snap))
}

func statusText(snap frame.Snapshot) string {
	switch snap.Status {
	case frame.StatusLoading:
		return fmt.Sprintf("Loading %s...", snap.Name)
	case frame.StatusReady:
		text := fmt.Sprintf("%s  %dx%d  zoom %.2fx  ->  %s", snap.Name, snap.Width, snap.Height, snap.Transform.Zoom, snap.ExportName)
		if snap.Warning != "" {
			text += "  (" + snap.Warning + ")"
		}
		return text
	case frame.StatusFailed:
		return snap.Name
	default:
		return intakeText
	}
}

func (v *Viewer) showOpenDialog() {
	d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, v.window)
			return
		}
		if reader == nil {
			return
		}
		v.openReader(reader.URI(), reader)
	}, v.window)
	d.SetFilter(storage.NewExtensionFileFilter(frame.SupportedExtensions()))
	if dir := v.cfg.GetLastOpenDir(); dir != "" {
		if lister, err := storage.ListerForURI(storage.NewFileURI(dir)); err == nil {
			d.SetLocation(lister)
		}
	}
	d.Show()
}

// openURI loads a file dropped on the window.
func (v *Viewer) openURI(uri fyne.URI) {
	reader, err := storage.Reader(uri)
	if err != nil {
		log.Printf("Opening %s failed: %v", uri, err)
		v.session.LoadAsync(uri.Name(), failingReader{err}, nil)
		return
	}
	v.openReader(uri, reader)
}

// openReader decodes r in the background. The window follows through the
// session watcher.
func (v *Viewer) openReader(uri fyne.URI, r io.ReadCloser) {
	v.session.LoadAsync(uri.Name(), r, func(err error) {
		if cerr := r.Close(); cerr != nil {
			log.Debugf("Closing %s: %v", uri, cerr)
		}
		if err != nil {
			return
		}
		if uri.Scheme() == "file" {
			v.cfg.SetLastOpenDir(filepath.Dir(uri.Path()))
		}
	})
	v.sync()
}

func (v *Viewer) showExportDialog() {
	snap := v.session.Snapshot()
	if snap.Status != frame.StatusReady {
		return
	}
	d := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, v.window)
			return
		}
		if writer == nil {
			return
		}
		defer writer.Close()
		if err := v.exportTo(writer); err != nil {
			dialog.ShowError(err, v.window)
		}
	}, v.window)
	d.SetFileName(snap.ExportName)
	d.SetFilter(storage.NewExtensionFileFilter([]string{".jpg"}))
	d.Show()
}

// exportTo writes the current composite as JPEG.
func (v *Viewer) exportTo(w io.Writer) error {
	name, err := v.session.Export(w)
	if err != nil {
		if errors.Is(err, frame.ErrNoImage) {
			return errors.New("load an image before exporting")
		}
		return err
	}
	log.Printf("Saved %s", name)
	return nil
}

func (v *Viewer) resetView() {
	if _, err := v.session.ResetView(); err == nil {
		v.sync()
	}
}

func (v *Viewer) autoFrame() {
	if _, err := v.session.AutoFrame(context.Background()); err != nil {
		log.Printf("Auto-frame failed: %v", err)
		return
	}
	v.sync()
}

func (v *Viewer) retry() {
	v.session.Retry()
	v.sync()
}

// failingReader reports err on the first read so an unopenable file shows
// up as a read failure.
type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) {
	return 0, r.err
}
