package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/go-vgo/robotgo"
	"go.uber.org/zap"

	"luxselect/src/clipboard"
	"luxselect/src/config"
	"luxselect/src/eventloop"
	"luxselect/src/hotkey"
	"luxselect/src/monitor"
	"luxselect/src/overlay"
	"luxselect/src/privacy"
	"luxselect/src/runtimeinit"
	"luxselect/src/selection"
	"luxselect/src/singleinstance"
	"luxselect/src/tray"
)

const appID = "io.github.luxselect"

// resident is the wired pipeline: hook -> monitor -> loop -> overlays.
type resident struct {
	monitor *monitor.Monitor
	loop    *eventloop.Loop
	guard   *singleinstance.Guard
}

func runResident(opts mainOptions) error {
	enableDPIAwareness()

	// Load .env early so SINGLEINSTANCE_PORT_* are applied before claiming a port.
	if _, err := config.LoadWithOptions(opts.loadOptions()); err != nil {
		return err
	}
	guard := singleinstance.NewGuard()
	if !guard.Acquire() {
		start, end := singleinstance.PortRange()
		return fmt.Errorf("another instance is already running (ports %d-%d)", start, end)
	}
	defer guard.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{LoadOptions: opts.loadOptions()})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config
	var fyneApp fyne.App
	var window *overlay.Window
	sinks := overlay.Multi{}
	if opts.console {
		sinks = append(sinks, overlay.NewConsole(os.Stdout))
	} else {
		fyneApp = app.NewWithID(appID)
		window = overlay.NewWindow(fyneApp, cfg.OverlayTimeout)
		sinks = append(sinks, window)
	}

	r, err := newResident(cfg, rt, guard, sinks)
	if err != nil {
		return err
	}
	if window != nil {
		window.OnAsk = r.loop.Ask
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	var wg sync.WaitGroup
	r.start(ctx, cancel, &wg, errc)

	zap.S().Infow("LuxSelect running", "model", cfg.Model, "hotkey", cfg.Hotkey, "console", opts.console)

	if fyneApp != nil {
		tray.Install(fyneApp, tray.Controls{
			Paused:    r.loop.Paused,
			SetPaused: r.loop.SetPaused,
			Explain:   func() { _ = r.trigger() },
		})
		go func() {
			<-ctx.Done()
			fyne.Do(fyneApp.Quit)
		}()
		fyneApp.Run()
		cancel()
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	select {
	case err := <-errc:
		return err
	default:
		zap.S().Info("LuxSelect stopped")
		return nil
	}
}

func newResident(cfg *config.Config, rt *runtimeinit.Runtime, guard *singleinstance.Guard, sink overlay.Overlay) (*resident, error) {
	monOpts := monitor.Options{
		DragThreshold:   cfg.DragThreshold,
		MaxDragDistance: cfg.MaxDragDistance,
		Debounce:        cfg.DebounceInterval,
		Excluded:        cfg.ExcludedWindows,
		Title:           func() string { return robotgo.GetTitle() },
		Cursor:          robotgo.Location,
	}
	if cfg.Hotkey != "" {
		combo, err := hotkey.Parse(cfg.Hotkey)
		if err != nil {
			return nil, fmt.Errorf("HOTKEY: %w", err)
		}
		monOpts.Hotkey = &combo
	}

	extractor := selection.New(
		clipboard.NewGuard(clipboard.SystemBoard{}, cfg.SelectionDelay),
		selection.KeyCopier{},
		selection.Options{MinLength: cfg.MinSelectionLength, MaxChars: cfg.MaxSelectionChars},
	)

	ai := eventloop.LLM{Client: rt.LLM}
	deps := eventloop.Deps{
		Extractor: extractor,
		Screen:    privacy.New(cfg.PrivacyStrict),
		LLM:       ai,
		Overlay:   sink,
	}
	if cfg.EnableFollowUps {
		deps.FollowUps = ai
	}

	return &resident{
		monitor: monitor.New(monitor.HookSource{}, monOpts),
		loop: eventloop.New(deps, eventloop.Options{
			Screening: cfg.EnablePrivacyFilter,
			FollowUps: cfg.EnableFollowUps,
		}),
		guard: guard,
	}, nil
}

// start launches the monitor, the loop and the single-instance server. The
// first fatal error is sent on errc and stops the rest through cancel.
func (r *resident) start(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, errc chan<- error) {
	fail := func(err error) {
		select {
		case errc <- err:
		default:
		}
		cancel()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := r.monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fail(fmt.Errorf("selection monitor: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		if err := r.loop.Run(ctx, r.monitor.Events()); err != nil && !errors.Is(err, context.Canceled) {
			fail(fmt.Errorf("event loop: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := r.guard.Serve(ctx, r.trigger); err != nil {
			zap.S().Warnw("single-instance server stopped", "error", err)
		}
	}()
}

// trigger explains the selection at the current pointer position.
func (r *resident) trigger() error {
	if r.loop.Paused() {
		return errors.New("paused")
	}
	x, y := robotgo.Location()
	if !r.monitor.Inject(x, y, monitor.OriginRemote) {
		return errors.New("trigger debounced")
	}
	return nil
}
