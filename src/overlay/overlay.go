// Package overlay presents pipeline results to the user. The pipeline only
// talks to the Overlay interface; Console and Window are its renderings.
package overlay

import (
	"luxselect/src/failure"
	"luxselect/src/privacy"
)

// Anchor identifies the run a notification belongs to and where the
// selection ended on screen.
type Anchor struct {
	Run  uint64
	X, Y int
}

// Overlay receives the terminal notifications of each run. Calls for one run
// arrive in order: zero or more OnChunk, then at most one of OnComplete,
// OnError or OnBlocked.
type Overlay interface {
	OnBlocked(a Anchor, category privacy.Category)
	OnChunk(a Anchor, fragment string)
	OnComplete(a Anchor)
	OnError(a Anchor, kind failure.Kind, message string)
}

// FollowUpSink is implemented by overlays that can offer follow-up questions
// after a run completes.
type FollowUpSink interface {
	OnFollowUps(a Anchor, questions []string)
}

// Multi fans notifications out to several overlays.
type Multi []Overlay

func (m Multi) OnBlocked(a Anchor, c privacy.Category) {
	for _, o := range m {
		o.OnBlocked(a, c)
	}
}

func (m Multi) OnChunk(a Anchor, fragment string) {
	for _, o := range m {
		o.OnChunk(a, fragment)
	}
}

func (m Multi) OnComplete(a Anchor) {
	for _, o := range m {
		o.OnComplete(a)
	}
}

func (m Multi) OnError(a Anchor, kind failure.Kind, message string) {
	for _, o := range m {
		o.OnError(a, kind, message)
	}
}

func (m Multi) OnFollowUps(a Anchor, questions []string) {
	for _, o := range m {
		if s, ok := o.(FollowUpSink); ok {
			s.OnFollowUps(a, questions)
		}
	}
}

var categoryNames = map[privacy.Category]string{
	privacy.CreditCard:  "a card number",
	privacy.APIKey:      "an API key or token",
	privacy.Password:    "a password",
	privacy.OtherSecret: "personal or secret data",
}

// BlockedMessage is the Markdown shown instead of an answer when the privacy
// filter stops a selection.
func BlockedMessage(c privacy.Category) string {
	what, ok := categoryNames[c]
	if !ok {
		what = "sensitive data"
	}
	return "⚠️ **Sensitive content detected**\n\nThe selection looks like it contains " + what +
		", so it was not sent to the AI service."
}

// ErrorMessage renders a failure for the user.
func ErrorMessage(kind failure.Kind, detail string) string {
	var head, hint string
	switch kind {
	case failure.TransientNetwork:
		head, hint = "Could not reach the AI service", "Check your network connection and try again."
	case failure.RequestRejected:
		head, hint = "The AI service rejected the request", "Check OPENAI_API_KEY, OPENAI_BASE_URL and AI_MODEL."
	case failure.PermissionDenied:
		head, hint = "Permission denied", "Allow clipboard and accessibility access for LuxSelect."
	default:
		head = "Something went wrong"
	}
	msg := "❌ **" + head + "**"
	if hint != "" {
		msg += "\n\n" + hint
	}
	if detail != "" {
		msg += "\n\n`" + detail + "`"
	}
	return msg
}
