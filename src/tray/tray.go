// Package tray puts LuxSelect in the system tray with pause and quit entries.
package tray

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"go.uber.org/zap"
)

// Controls are the actions the tray menu drives.
type Controls struct {
	Paused    func() bool
	SetPaused func(bool)
	// Explain, when set, adds an entry that explains the current selection.
	Explain func()
}

type tray struct {
	controls Controls
	menu     *fyne.Menu
	toggle   *fyne.MenuItem
	// apply pushes a changed menu and icon to the platform tray.
	apply func(menu *fyne.Menu, icon fyne.Resource)
}

// Install adds the tray icon and menu. It reports false on drivers without
// a system tray; fyne appends its own Quit entry.
func Install(a fyne.App, c Controls) bool {
	desk, ok := a.(desktop.App)
	if !ok {
		zap.S().Warn("system tray not supported by this driver")
		return false
	}
	t := newTray(c, func(menu *fyne.Menu, icon fyne.Resource) {
		desk.SetSystemTrayMenu(menu)
		desk.SetSystemTrayIcon(icon)
	})
	t.refresh()
	return true
}

func newTray(c Controls, apply func(*fyne.Menu, fyne.Resource)) *tray {
	t := &tray{controls: c, apply: apply}
	t.toggle = fyne.NewMenuItem("", t.togglePause)
	items := []*fyne.MenuItem{t.toggle}
	if c.Explain != nil {
		items = append(items, fyne.NewMenuItem("Explain selection", c.Explain))
	}
	t.menu = fyne.NewMenu("LuxSelect", items...)
	return t
}

func (t *tray) togglePause() {
	paused := !t.controls.Paused()
	t.controls.SetPaused(paused)
	t.refresh()
}

func (t *tray) refresh() {
	icon := fyne.Resource(activeIcon)
	t.toggle.Label = "Pause"
	if t.controls.Paused() {
		icon = pausedIcon
		t.toggle.Label = "Resume"
	}
	t.apply(t.menu, icon)
}
