// Package failure defines the error taxonomy shared by the selection pipeline.
// Components convert their own errors into one of these kinds at their boundary
// so the coordinator can map every terminal outcome to a single notification.
package failure

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	PermissionDenied
	TransientNetwork
	RequestRejected
	SelectionTooShort
	PrivacyBlocked
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case TransientNetwork:
		return "transient_network"
	case RequestRejected:
		return "request_rejected"
	case SelectionTooShort:
		return "selection_too_short"
	case PrivacyBlocked:
		return "privacy_blocked"
	case Cancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Silent reports whether errors of this kind are dropped without telling the user.
func (k Kind) Silent() bool {
	return k == Cancelled || k == SelectionTooShort
}

// Error carries a Kind plus whatever context the failing component had.
type Error struct {
	Kind Kind
	Op   string
	// Status is the HTTP status code for network failures, 0 otherwise.
	Status int
	// Partial holds response text produced before a mid-stream failure.
	Partial string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, failure.New(Cancelled, "", nil)) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Op == "" && t.Err == nil
	}
	return false
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrPermissionDenied  = &Error{Kind: PermissionDenied}
	ErrTransientNetwork  = &Error{Kind: TransientNetwork}
	ErrRequestRejected   = &Error{Kind: RequestRejected}
	ErrSelectionTooShort = &Error{Kind: SelectionTooShort}
	ErrPrivacyBlocked    = &Error{Kind: PrivacyBlocked}
	ErrCancelled         = &Error{Kind: Cancelled}
)

// KindOf classifies any error. Context cancellation is Cancelled; unknown errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	return Internal
}

// PartialText returns the partial response carried by err, if any.
func PartialText(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Partial
	}
	return ""
}
