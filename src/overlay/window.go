package overlay

import (
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"luxselect/src/failure"
	"luxselect/src/privacy"
)

const windowTitle = "LuxSelect"

// Window is the floating answer panel. Every widget update is marshalled onto
// the fyne main goroutine with fyne.Do, so notifications may come from any goroutine.
// fyne cannot place windows at screen coordinates, so the panel is centred.
type Window struct {
	transcript Transcript

	win       fyne.Window
	status    *widget.Label
	body      *widget.RichText
	followBox *fyne.Container
	scroll    *container.Scroll

	timeout time.Duration

	mu    sync.Mutex
	timer *time.Timer

	// OnAsk is called when the user picks a follow-up question.
	OnAsk func(question string, a Anchor)
}

// NewWindow builds the panel. It must be called on the main goroutine before
// the fyne app runs. A zero timeout keeps the panel open until dismissed.
func NewWindow(app fyne.App, timeout time.Duration) *Window {
	w := &Window{
		win:       app.NewWindow(windowTitle),
		status:    widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		body:      widget.NewRichTextFromMarkdown(""),
		followBox: container.NewVBox(),
		timeout:   timeout,
	}
	w.body.Wrapping = fyne.TextWrapWord
	w.scroll = container.NewVScroll(container.NewVBox(w.body, w.followBox))

	closeBtn := widget.NewButton("Close", w.hide)
	w.win.SetContent(container.NewBorder(
		container.NewBorder(nil, nil, nil, closeBtn, w.status),
		nil, nil, nil,
		w.scroll,
	))
	w.win.Resize(fyne.NewSize(460, 320))
	w.win.CenterOnScreen()
	w.win.SetCloseIntercept(w.hide)
	w.win.Canvas().SetOnTypedKey(func(k *fyne.KeyEvent) {
		if k.Name == fyne.KeyEscape {
			w.hide()
		}
	})
	return w
}

func (w *Window) OnChunk(a Anchor, fragment string) {
	w.transcript.OnChunk(a, fragment)
	w.stopTimer()
	w.render()
}

func (w *Window) OnComplete(a Anchor) {
	w.transcript.OnComplete(a)
	w.render()
	w.armTimer()
}

func (w *Window) OnError(a Anchor, kind failure.Kind, message string) {
	w.transcript.OnError(a, kind, message)
	w.render()
	w.armTimer()
}

func (w *Window) OnBlocked(a Anchor, category privacy.Category) {
	w.transcript.OnBlocked(a, category)
	w.render()
	w.armTimer()
}

func (w *Window) OnFollowUps(a Anchor, questions []string) {
	w.transcript.OnFollowUps(a, questions)
	w.render()
}

func (w *Window) render() {
	view := w.transcript.View()
	fyne.Do(func() {
		w.status.SetText(string(view.Status))

		body := view
		body.FollowUps = nil
		w.body.ParseMarkdown(body.Markdown())

		w.followBox.RemoveAll()
		for _, q := range view.FollowUps {
			w.followBox.Add(widget.NewButton(q, func() {
				if w.OnAsk != nil {
					w.OnAsk(q, view.Anchor)
				}
			}))
		}
		w.scroll.ScrollToBottom()
		w.win.Show()
	})
}

func (w *Window) armTimer() {
	if w.timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, w.hide)
}

func (w *Window) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Window) hide() {
	fyne.Do(w.win.Hide)
}
