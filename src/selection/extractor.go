// Package selection reads the text the user has selected in whatever
// application has focus, by synthesizing a copy inside a clipboard.Guard section.
package selection

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"luxselect/src/clipboard"
	"luxselect/src/failure"
)

var (
	ErrNoSelection = errors.New("clipboard unchanged, nothing selected")
	ErrTooShort    = errors.New("selection too short")
	errEmptyRead   = errors.New("clipboard changed but holds no text yet")
)

const truncationMarker = "\n...(truncated)"

// Result is the outcome of one extraction. Err is a *failure.Error when Succeeded is false.
type Result struct {
	Text      string
	Succeeded bool
	Err       error
}

// Copier triggers the platform copy command in the focused application.
type Copier interface {
	Copy() error
}

type Options struct {
	// MinLength: selections of this many runes or fewer are too short.
	MinLength int
	// MaxChars truncates longer selections. Zero disables truncation.
	MaxChars   int
	RetryDelay time.Duration
}

type Extractor struct {
	guard  *clipboard.Guard
	copier Copier
	opts   Options
}

func New(guard *clipboard.Guard, copier Copier, opts Options) *Extractor {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	return &Extractor{guard: guard, copier: copier, opts: opts}
}

// Extract copies the current selection and returns it. The clipboard is left as
// it was found. An empty read right after the copy is retried once, since the
// source application may take a moment to publish the data.
func (e *Extractor) Extract(ctx context.Context) Result {
	var text string
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			zap.S().Debugw("selection: empty read, retrying copy", "delay", e.opts.RetryDelay)
			select {
			case <-ctx.Done():
				return fail(failure.New(failure.Cancelled, "selection.extract", ctx.Err()))
			case <-time.After(e.opts.RetryDelay):
			}
		}

		text, err = clipboard.WithBackup(ctx, e.guard, e.copier.Copy, collect)
		if errors.Is(err, clipboard.ErrRestore) {
			// Clipboard fidelity is best effort under OS permission limits; the
			// selection flow carries on.
			zap.S().Warnw("selection: clipboard could not be restored", "error", err)
			err = withoutRestore(err)
		}
		if !errors.Is(err, errEmptyRead) {
			break
		}
	}

	switch {
	case errors.Is(err, errEmptyRead), errors.Is(err, ErrNoSelection):
		return fail(&failure.Error{Kind: failure.SelectionTooShort, Op: "selection.extract", Err: ErrNoSelection})
	case err != nil:
		if failure.KindOf(err) == failure.Internal {
			err = failure.New(failure.Internal, "selection.copy", err)
		}
		return fail(err)
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= e.opts.MinLength {
		return fail(&failure.Error{Kind: failure.SelectionTooShort, Op: "selection.extract", Err: ErrTooShort})
	}
	if e.opts.MaxChars > 0 && utf8.RuneCountInString(text) > e.opts.MaxChars {
		zap.S().Warnw("selection: truncating large selection", "chars", utf8.RuneCountInString(text), "max", e.opts.MaxChars)
		text = string([]rune(text)[:e.opts.MaxChars]) + truncationMarker
	}
	return Result{Text: text, Succeeded: true}
}

func collect(obs clipboard.Observation) (string, error) {
	if !obs.Changed {
		return "", ErrNoSelection
	}
	text := obs.After.Text()
	if strings.TrimSpace(text) == "" {
		return "", errEmptyRead
	}
	return text, nil
}

// withoutRestore drops restore failures from a joined error, keeping the rest.
func withoutRestore(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		if errors.Is(err, clipboard.ErrRestore) {
			return nil
		}
		return err
	}
	var rest []error
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, clipboard.ErrRestore) {
			rest = append(rest, e)
		}
	}
	return errors.Join(rest...)
}

func fail(err error) Result {
	return Result{Err: err}
}
