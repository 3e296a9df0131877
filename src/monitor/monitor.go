// Package monitor turns raw desktop input into selection-complete events.
package monitor

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"luxselect/src/hotkey"
)

type Kind uint8

const (
	Press Kind = iota + 1
	Release
	Move
	Drag
	KeyPress
	KeyRelease
)

const LeftButton uint16 = 1

// InputEvent is one low-level pointer or key event from a Source.
type InputEvent struct {
	Kind    Kind
	X, Y    int
	Button  uint16
	Rawcode uint16
	At      time.Time
}

// Source delivers input events until ctx ends or the channel is closed.
// Start must fail rather than return a silent channel when the OS refuses the hook.
type Source interface {
	Start(ctx context.Context) (<-chan InputEvent, error)
}

type Origin string

const (
	OriginDrag   Origin = "drag"
	OriginHotkey Origin = "hotkey"
	OriginRemote Origin = "remote"
)

// SelectionEvent signals that the user finished selecting text at X, Y.
type SelectionEvent struct {
	X, Y   int
	At     time.Time
	Origin Origin
}

type Options struct {
	DragThreshold   int
	MaxDragDistance int
	Debounce        time.Duration
	// Excluded window title fragments, matched case-insensitively.
	Excluded []string
	// Title returns the focused window's title. Nil disables exclusion.
	Title func() string
	// Hotkey, when non-nil, emits an event at the last pointer position.
	Hotkey *hotkey.Combo
	// Cursor is asked for the pointer position when none has been observed yet.
	Cursor func() (int, int)
	Buffer int
}

type Monitor struct {
	src     Source
	opts    Options
	out     chan SelectionEvent
	matcher *hotkey.Matcher

	// gesture state, owned by the Run goroutine
	pressed      bool
	moved        bool
	pressX       int
	pressY       int
	lastX, lastY int
	seenPointer  bool

	mu       sync.Mutex
	lastEmit time.Time
	dropped  int
}

func New(src Source, opts Options) *Monitor {
	if opts.Buffer <= 0 {
		opts.Buffer = 4
	}
	m := &Monitor{src: src, opts: opts, out: make(chan SelectionEvent, opts.Buffer)}
	if opts.Hotkey != nil {
		m.matcher = hotkey.NewMatcher(*opts.Hotkey)
	}
	return m
}

// Events is the bounded queue consumed by the pipeline. When it is full the
// oldest queued event is dropped so the newest selection always gets through.
func (m *Monitor) Events() <-chan SelectionEvent { return m.out }

// Run installs the source and processes events until ctx ends or the source
// closes. A source that cannot start is returned as an error immediately.
func (m *Monitor) Run(ctx context.Context) error {
	in, err := m.src.Start(ctx)
	if err != nil {
		return err
	}
	zap.S().Infow("selection monitor started", "dragThreshold", m.opts.DragThreshold, "debounce", m.opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in:
			if !ok {
				zap.S().Warn("input source closed")
				return nil
			}
			m.handle(ev)
		}
	}
}

// Inject emits an event that did not come from the input source, such as a
// remote trigger. Debounce still applies.
func (m *Monitor) Inject(x, y int, origin Origin) bool {
	return m.emit(SelectionEvent{X: x, Y: y, At: time.Now(), Origin: origin})
}

func (m *Monitor) handle(ev InputEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	switch ev.Kind {
	case Press:
		m.track(ev)
		if ev.Button == LeftButton {
			m.pressed, m.moved = true, false
			m.pressX, m.pressY = ev.X, ev.Y
		}
	case Move, Drag:
		m.track(ev)
		if m.pressed {
			m.moved = true
		}
	case Release:
		m.track(ev)
		if ev.Button != LeftButton || !m.pressed {
			return
		}
		m.pressed = false
		if !m.moved {
			return
		}
		m.release(ev)
	case KeyPress:
		if m.matcher != nil && m.matcher.Down(ev.Rawcode) {
			x, y := m.position()
			zap.S().Debugw("hotkey trigger", "combo", m.opts.Hotkey.Name)
			m.emit(SelectionEvent{X: x, Y: y, At: ev.At, Origin: OriginHotkey})
		}
	case KeyRelease:
		if m.matcher != nil {
			m.matcher.Up(ev.Rawcode)
		}
	}
}

func (m *Monitor) release(ev InputEvent) {
	dist := math.Hypot(float64(ev.X-m.pressX), float64(ev.Y-m.pressY))
	if dist < float64(m.opts.DragThreshold) {
		return
	}
	if m.opts.MaxDragDistance > 0 && dist > float64(m.opts.MaxDragDistance) {
		zap.S().Debugw("drag too long for a text selection", "distance", dist)
		return
	}
	if title, ok := m.excluded(); ok {
		zap.S().Debugw("selection ignored in excluded window", "window", title)
		return
	}
	m.emit(SelectionEvent{X: ev.X, Y: ev.Y, At: ev.At, Origin: OriginDrag})
}

func (m *Monitor) excluded() (string, bool) {
	if m.opts.Title == nil || len(m.opts.Excluded) == 0 {
		return "", false
	}
	title := strings.ToLower(m.opts.Title())
	if title == "" {
		return "", false
	}
	for _, frag := range m.opts.Excluded {
		if frag != "" && strings.Contains(title, strings.ToLower(frag)) {
			return title, true
		}
	}
	return "", false
}

func (m *Monitor) track(ev InputEvent) {
	m.lastX, m.lastY = ev.X, ev.Y
	m.seenPointer = true
}

func (m *Monitor) position() (int, int) {
	if !m.seenPointer && m.opts.Cursor != nil {
		return m.opts.Cursor()
	}
	return m.lastX, m.lastY
}

func (m *Monitor) emit(ev SelectionEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastEmit.IsZero() && ev.At.Sub(m.lastEmit) < m.opts.Debounce {
		zap.S().Debugw("selection debounced", "sinceLast", ev.At.Sub(m.lastEmit))
		return false
	}
	m.lastEmit = ev.At
	for {
		select {
		case m.out <- ev:
			return true
		default:
		}
		select {
		case <-m.out:
			m.dropped++
			zap.S().Debugw("selection queue full, dropped oldest", "dropped", m.dropped)
		default:
		}
	}
}
