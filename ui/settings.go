package ui

import (
	"fmt"
	"net"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/validation"
	"fyne.io/fyne/v2/widget"

	"github.com/dixieflatline76/squareframe/pkg/frame"
	"github.com/dixieflatline76/squareframe/util/log"
)

// settingsPanel collects preference edits and applies them together when
// "Apply Changes" is pressed.
type settingsPanel struct {
	pending map[string]func()
	apply   *widget.Button
	rows    *fyne.Container
}

func newSettingsPanel() *settingsPanel {
	p := &settingsPanel{
		pending: make(map[string]func()),
		rows:    container.NewVBox(),
	}
	p.apply = widget.NewButton("Apply Changes", p.applyAll)
	p.apply.Disable()
	return p
}

// track records fn as the pending change for name, or drops it when the
// value is back to its initial state.
func (p *settingsPanel) track(name string, changed bool, fn func()) {
	if changed {
		p.pending[name] = fn
	} else {
		delete(p.pending, name)
	}
	if len(p.pending) > 0 {
		p.apply.Enable()
	} else {
		p.apply.Disable()
	}
}

func (p *settingsPanel) applyAll() {
	for name, fn := range p.pending {
		log.Debugf("Applying setting %s", name)
		fn()
	}
	p.pending = make(map[string]func())
	p.apply.Disable()
}

func (p *settingsPanel) addRow(title, help string, input fyne.CanvasObject) {
	p.rows.Add(newSplitRow(settingTitleLabel(title), input))
	if help != "" {
		p.rows.Add(settingDescriptionLabel(help))
	}
}

func (p *settingsPanel) addSelect(name, title, help string, options []string, initial string, apply func(string)) *widget.Select {
	sel := widget.NewSelect(options, nil)
	sel.SetSelected(initial)
	sel.OnChanged = func(s string) {
		p.track(name, s != initial, func() {
			apply(s)
			initial = s
		})
	}
	p.addRow(title, help, sel)
	return sel
}

func (p *settingsPanel) addBool(name, title, help string, initial bool, apply func(bool)) *widget.Check {
	check := widget.NewCheck("", nil)
	check.SetChecked(initial)
	check.OnChanged = func(b bool) {
		p.track(name, b != initial, func() {
			apply(b)
			initial = b
		})
	}
	p.addRow(title, help, check)
	return check
}

func (p *settingsPanel) addEntry(name, title, help, initial string, validator fyne.StringValidator, apply func(string)) *widget.Entry {
	entry := widget.NewEntry()
	entry.SetText(initial)
	entry.Validator = validator
	entry.OnChanged = func(s string) {
		if validator != nil && validator(s) != nil {
			p.track(name, false, nil)
			return
		}
		p.track(name, s != initial, func() {
			apply(s)
			initial = s
		})
	}
	p.addRow(title, help, entry)
	return entry
}

// content returns the panel with its apply button.
func (p *settingsPanel) content() fyne.CanvasObject {
	return container.NewBorder(nil, container.NewHBox(p.apply), nil, nil, container.NewVScroll(p.rows))
}

var qualityValidator = validation.NewRegexp(`^([1-9][0-9]?|100)$`, "Enter a number from 1 to 100")

func addrValidator(s string) error {
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("expected host:port: %w", err)
	}
	return nil
}

// buildSettings lays out the viewer preferences.
func (v *Viewer) buildSettings() *settingsPanel {
	p := newSettingsPanel()
	p.rows.Add(sectionTitleLabel("Rendering"))

	p.addSelect("interpolation", "Resampling", "Kernel used to scale the image for preview and export.",
		frame.InterpolationNames, v.cfg.GetInterpolation(), func(name string) {
			interp, err := frame.InterpolatorByName(name)
			if err != nil {
				log.Printf("Ignoring resampling %q: %v", name, err)
				return
			}
			v.cfg.SetInterpolation(name)
			v.session.SetInterpolator(interp)
		})

	p.addEntry("jpeg_quality", "JPEG quality", "Quality of exported files, 1 to 100.",
		strconv.Itoa(v.cfg.GetJPEGQuality()), qualityValidator, func(s string) {
			q, err := strconv.Atoi(s)
			if err != nil {
				return
			}
			v.cfg.SetJPEGQuality(q)
			v.session.SetJPEGQuality(q)
		})

	p.addBool("auto_frame", "Auto-frame new images", "Start from a zoom and pan centered on the most interesting region.",
		v.cfg.GetAutoFrame(), func(b bool) {
			v.cfg.SetAutoFrame(b)
			v.session.SetAutoFrame(b)
		})

	p.addBool("face_boost", "Face boost", "Keep detected faces inside the auto-frame suggestion.",
		v.cfg.GetFaceBoost(), func(b bool) {
			v.cfg.SetFaceBoost(b)
			v.session.SetFaceBoost(b)
		})

	p.rows.Add(sectionTitleLabel("Browser access"))
	p.addEntry("server_addr", "Listen address", "Used by \"serve\". Takes effect the next time it starts.",
		v.cfg.GetServerAddr(), addrValidator, v.cfg.SetServerAddr)

	return p
}

// showSettings opens the preferences window.
func (v *Viewer) showSettings() {
	w := v.app.NewWindow("Preferences")
	w.SetContent(v.buildSettings().content())
	w.Resize(fyne.NewSize(520, 380))
	w.Show()
}

func sectionTitleLabel(desc string) *widget.Label {
	label := widget.NewLabel(desc)
	label.Wrapping = fyne.TextWrapWord
	label.Importance = widget.HighImportance
	label.TextStyle = fyne.TextStyle{Bold: true}
	return label
}

func settingTitleLabel(desc string) *widget.Label {
	label := widget.NewLabel(desc)
	label.Wrapping = fyne.TextWrapWord
	label.TextStyle = fyne.TextStyle{Bold: true}
	return label
}

func settingDescriptionLabel(desc string) *widget.Label {
	label := widget.NewLabel(desc)
	label.Wrapping = fyne.TextWrapWord
	label.Importance = widget.LowImportance
	label.TextStyle = fyne.TextStyle{Italic: true}
	return label
}

// splitLayout gives the first object a third of the row and the second the rest.
type splitLayout struct{}

func (splitLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	w1, w2 := objects[0].MinSize(), objects[1].MinSize()
	return fyne.NewSize(w1.Width+w2.Width, fyne.Max(w1.Height, w2.Height))
}

func (splitLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	first := size.Width / 3
	objects[0].Resize(fyne.NewSize(first, objects[0].MinSize().Height))
	objects[0].Move(fyne.NewPos(0, 0))
	objects[1].Resize(fyne.NewSize(size.Width-first, objects[1].MinSize().Height))
	objects[1].Move(fyne.NewPos(first, 0))
}

func newSplitRow(first, second fyne.CanvasObject) *fyne.Container {
	return container.New(splitLayout{}, first, second)
}
