package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	gohook "github.com/robotn/gohook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luxselect/src/failure"
	"luxselect/src/hotkey"
)

type chanSource struct {
	ch  chan InputEvent
	err error
}

func (s *chanSource) Start(context.Context) (<-chan InputEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func drag(startMs, x0, y0, x1, y1 int) []InputEvent {
	return []InputEvent{
		{Kind: Press, X: x0, Y: y0, Button: LeftButton, At: at(startMs)},
		{Kind: Drag, X: (x0 + x1) / 2, Y: (y0 + y1) / 2, At: at(startMs + 20)},
		{Kind: Release, X: x1, Y: y1, Button: LeftButton, At: at(startMs + 40)},
	}
}

func concat(parts ...[]InputEvent) []InputEvent {
	var out []InputEvent
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// runEvents feeds events through a monitor and returns what it queued.
func runEvents(t *testing.T, opts Options, events []InputEvent) []SelectionEvent {
	t.Helper()
	src := &chanSource{ch: make(chan InputEvent, len(events))}
	for _, ev := range events {
		src.ch <- ev
	}
	close(src.ch)

	m := New(src, opts)
	require.NoError(t, m.Run(context.Background()))

	var got []SelectionEvent
	for {
		select {
		case ev := <-m.Events():
			got = append(got, ev)
		default:
			return got
		}
	}
}

func defaults() Options {
	return Options{DragThreshold: 5, MaxDragDistance: 1000, Debounce: 150 * time.Millisecond, Buffer: 8}
}

func TestMonitorGestures(t *testing.T) {
	tests := []struct {
		name   string
		events []InputEvent
		want   []SelectionEvent
	}{
		{
			name:   "drag emits at release point",
			events: drag(0, 100, 100, 300, 110),
			want:   []SelectionEvent{{X: 300, Y: 110, At: at(40), Origin: OriginDrag}},
		},
		{
			name:   "drag below threshold",
			events: drag(0, 100, 100, 103, 101),
		},
		{
			name:   "exactly at threshold",
			events: drag(0, 100, 100, 105, 100),
			want:   []SelectionEvent{{X: 105, Y: 100, At: at(40), Origin: OriginDrag}},
		},
		{
			name:   "drag beyond max distance",
			events: drag(0, 0, 0, 1200, 0),
		},
		{
			name: "click without movement",
			events: []InputEvent{
				{Kind: Press, X: 10, Y: 10, Button: LeftButton, At: at(0)},
				{Kind: Release, X: 40, Y: 10, Button: LeftButton, At: at(10)},
			},
		},
		{
			name: "right button drag",
			events: []InputEvent{
				{Kind: Press, X: 10, Y: 10, Button: 2, At: at(0)},
				{Kind: Drag, X: 60, Y: 10, At: at(10)},
				{Kind: Release, X: 100, Y: 10, Button: 2, At: at(20)},
			},
		},
		{
			name: "release without press",
			events: []InputEvent{
				{Kind: Move, X: 10, Y: 10, At: at(0)},
				{Kind: Release, X: 100, Y: 10, Button: LeftButton, At: at(20)},
			},
		},
		{
			name:   "second drag inside debounce window",
			events: concat(drag(0, 0, 0, 50, 0), drag(60, 0, 0, 80, 0)),
			want:   []SelectionEvent{{X: 50, Y: 0, At: at(40), Origin: OriginDrag}},
		},
		{
			name:   "second drag after debounce window",
			events: concat(drag(0, 0, 0, 50, 0), drag(200, 0, 0, 80, 0)),
			want: []SelectionEvent{
				{X: 50, Y: 0, At: at(40), Origin: OriginDrag},
				{X: 80, Y: 0, At: at(240), Origin: OriginDrag},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runEvents(t, defaults(), tt.events))
		})
	}
}

func TestMonitorExcludedWindow(t *testing.T) {
	opts := defaults()
	opts.Excluded = []string{"KeePass", "1Password"}
	title := "Database.kdbx - KeePassXC"
	opts.Title = func() string { return title }

	assert.Empty(t, runEvents(t, opts, drag(0, 0, 0, 100, 0)))

	title = "notes.txt - Editor"
	assert.Len(t, runEvents(t, opts, drag(0, 0, 0, 100, 0)), 1)
}

func TestMonitorHotkey(t *testing.T) {
	combo, err := hotkey.Parse("Ctrl+Alt+E")
	require.NoError(t, err)
	opts := defaults()
	opts.Hotkey = &combo

	got := runEvents(t, opts, []InputEvent{
		{Kind: Move, X: 640, Y: 480, At: at(0)},
		{Kind: KeyPress, Rawcode: 162, At: at(10)},
		{Kind: KeyPress, Rawcode: 164, At: at(20)},
		{Kind: KeyPress, Rawcode: 69, At: at(30)},
		{Kind: KeyRelease, Rawcode: 69, At: at(40)},
	})
	assert.Equal(t, []SelectionEvent{{X: 640, Y: 480, At: at(30), Origin: OriginHotkey}}, got)
}

func TestMonitorHotkeyUsesCursorBeforeAnyPointerEvent(t *testing.T) {
	combo, err := hotkey.Parse("F9")
	require.NoError(t, err)
	opts := defaults()
	opts.Hotkey = &combo
	opts.Cursor = func() (int, int) { return 7, 8 }

	got := runEvents(t, opts, []InputEvent{{Kind: KeyPress, Rawcode: 120, At: at(0)}})
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].X)
	assert.Equal(t, 8, got[0].Y)
}

func TestMonitorDropsOldestWhenFull(t *testing.T) {
	opts := defaults()
	opts.Buffer = 2
	events := concat(
		drag(0, 0, 0, 10, 0),
		drag(1000, 0, 0, 20, 0),
		drag(2000, 0, 0, 30, 0),
	)

	got := runEvents(t, opts, events)
	require.Len(t, got, 2)
	assert.Equal(t, 20, got[0].X)
	assert.Equal(t, 30, got[1].X)
}

func TestMonitorStartupFailure(t *testing.T) {
	denied := failure.New(failure.PermissionDenied, "monitor.hook", ErrHookUnavailable)
	m := New(&chanSource{err: denied}, defaults())

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.PermissionDenied, failure.KindOf(err))
	assert.True(t, errors.Is(err, ErrHookUnavailable))
}

func TestMonitorStopsOnContext(t *testing.T) {
	m := New(&chanSource{ch: make(chan InputEvent)}, defaults())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestInject(t *testing.T) {
	m := New(&chanSource{ch: make(chan InputEvent)}, defaults())

	assert.True(t, m.Inject(5, 6, OriginRemote))
	assert.False(t, m.Inject(5, 6, OriginRemote), "debounced")

	ev := <-m.Events()
	assert.Equal(t, OriginRemote, ev.Origin)
	assert.Equal(t, 5, ev.X)
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		kind uint8
		want Kind
		ok   bool
	}{
		{gohook.MouseHold, Press, true},
		{gohook.MouseDown, Release, true},
		{gohook.MouseMove, Move, true},
		{gohook.MouseDrag, Drag, true},
		{gohook.KeyHold, KeyPress, true},
		{gohook.KeyUp, KeyRelease, true},
		{gohook.MouseUp, 0, false},
		{gohook.HookEnabled, 0, false},
	}
	for _, tt := range tests {
		got, ok := translate(gohook.Event{Kind: tt.kind, X: 3, Y: -4, Button: 1})
		assert.Equal(t, tt.ok, ok, "kind %d", tt.kind)
		if ok {
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, 3, got.X)
			assert.Equal(t, -4, got.Y)
		}
	}
}
