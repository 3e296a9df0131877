package overlay

import (
	"slices"
	"strings"
	"sync"

	"luxselect/src/failure"
	"luxselect/src/privacy"
)

type Status string

const (
	StatusIdle      Status = ""
	StatusStreaming Status = "LuxSelect AI"
	StatusDone      Status = "Done"
	StatusBlocked   Status = "Blocked"
	StatusError     Status = "Error"
)

// View is what an overlay displays for its current run.
type View struct {
	Anchor    Anchor
	Status    Status
	Body      string
	Notice    string
	FollowUps []string
}

// Markdown renders the view as one document.
func (v View) Markdown() string {
	var parts []string
	if v.Body != "" {
		parts = append(parts, v.Body)
	}
	if v.Notice != "" {
		parts = append(parts, v.Notice)
	}
	if len(v.FollowUps) > 0 {
		var b strings.Builder
		b.WriteString("**Follow-up questions**\n")
		for _, q := range v.FollowUps {
			b.WriteString("\n- " + q)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Transcript accumulates notifications for the most recent run. Notifications
// for an older run than the one shown are ignored. It is safe for concurrent use.
type Transcript struct {
	mu   sync.Mutex
	view View
	body strings.Builder
}

// accept switches to a's run if it is newer and reports whether a is current.
func (t *Transcript) accept(a Anchor) bool {
	switch {
	case a.Run < t.view.Anchor.Run:
		return false
	case a.Run > t.view.Anchor.Run || t.view.Status == StatusIdle:
		t.view = View{Anchor: a}
		t.body.Reset()
	}
	return true
}

func (t *Transcript) OnChunk(a Anchor, fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.accept(a) {
		return
	}
	t.body.WriteString(fragment)
	t.view.Body = t.body.String()
	t.view.Status = StatusStreaming
}

func (t *Transcript) OnComplete(a Anchor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accept(a) {
		t.view.Status = StatusDone
	}
}

func (t *Transcript) OnError(a Anchor, kind failure.Kind, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accept(a) {
		t.view.Status = StatusError
		t.view.Notice = ErrorMessage(kind, message)
	}
}

func (t *Transcript) OnBlocked(a Anchor, c privacy.Category) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accept(a) {
		t.view.Status = StatusBlocked
		t.view.Notice = BlockedMessage(c)
	}
}

// OnFollowUps attaches questions to the run if it is still the one shown.
func (t *Transcript) OnFollowUps(a Anchor, questions []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a.Run == t.view.Anchor.Run && t.view.Status == StatusDone {
		t.view.FollowUps = slices.Clone(questions)
	}
}

// View returns a copy of the current state.
func (t *Transcript) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.view
	v.FollowUps = slices.Clone(v.FollowUps)
	return v
}
