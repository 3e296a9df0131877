package monitor

import (
	"context"
	"errors"
	"runtime"
	"time"

	gohook "github.com/robotn/gohook"
	"go.uber.org/zap"

	"luxselect/src/failure"
)

var ErrHookUnavailable = errors.New("global input hook could not be installed")

// HookSource reads the global input hook through gohook. Only one HookSource
// may run per process.
type HookSource struct {
	// StartupTimeout bounds the wait for the hook to report itself enabled.
	StartupTimeout time.Duration
}

func (h HookSource) Start(ctx context.Context) (<-chan InputEvent, error) {
	timeout := h.StartupTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	raw := gohook.Start()
	if raw == nil {
		return nil, failure.New(failure.PermissionDenied, "monitor.hook", ErrHookUnavailable)
	}

	select {
	case ev, ok := <-raw:
		if !ok {
			return nil, failure.New(failure.PermissionDenied, "monitor.hook", ErrHookUnavailable)
		}
		if ev.Kind != gohook.HookEnabled {
			zap.S().Debugw("input hook delivered an event before the enabled notice", "kind", ev.Kind)
		}
	case <-time.After(timeout):
		// macOS withholds every event until Accessibility access is granted.
		if runtime.GOOS == "darwin" {
			gohook.End()
			return nil, failure.New(failure.PermissionDenied, "monitor.hook",
				errors.New("no input events received; grant Accessibility permission in System Settings > Privacy & Security"))
		}
		zap.S().Warnw("input hook did not confirm startup, continuing", "timeout", timeout)
	case <-ctx.Done():
		gohook.End()
		return nil, ctx.Err()
	}

	out := make(chan InputEvent, 256)
	go func() {
		defer close(out)
		defer gohook.End()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-raw:
				if !ok {
					return
				}
				in, ok := translate(ev)
				if !ok {
					continue
				}
				// Never block the hook; a stalled consumer loses input, not the OS callback.
				select {
				case out <- in:
				default:
					zap.S().Debugw("input event dropped", "kind", in.Kind)
				}
			}
		}
	}()
	return out, nil
}

// translate maps libuiohook's kinds: MouseHold is a press, MouseDown a release.
func translate(ev gohook.Event) (InputEvent, bool) {
	in := InputEvent{X: int(ev.X), Y: int(ev.Y), Button: ev.Button, Rawcode: ev.Rawcode, At: ev.When}
	switch ev.Kind {
	case gohook.MouseHold:
		in.Kind = Press
	case gohook.MouseDown:
		in.Kind = Release
	case gohook.MouseMove:
		in.Kind = Move
	case gohook.MouseDrag:
		in.Kind = Drag
	case gohook.KeyDown, gohook.KeyHold:
		in.Kind = KeyPress
	case gohook.KeyUp:
		in.Kind = KeyRelease
	default:
		return InputEvent{}, false
	}
	return in, true
}
