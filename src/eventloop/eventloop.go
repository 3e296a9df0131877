// Package eventloop is the pipeline coordinator. A single goroutine owns all
// run state; extraction and streaming run on worker goroutines that post
// tagged results back into the loop, where stale results are dropped.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"luxselect/src/failure"
	"luxselect/src/llm"
	"luxselect/src/logutil"
	"luxselect/src/monitor"
	"luxselect/src/overlay"
	"luxselect/src/privacy"
	"luxselect/src/selection"
)

type Extractor interface {
	Extract(ctx context.Context) selection.Result
}

// Screen classifies and redacts selected text.
type Screen interface {
	Classify(text string) privacy.Verdict
	Redact(text string) string
}

// Stream is the consumer side of a streaming response.
type Stream interface {
	Next() (llm.Chunk, bool)
	Cancel()
	Err() error
	Text() string
}

type Streamer interface {
	Start(ctx context.Context, prompt string) Stream
}

type FollowUpper interface {
	FollowUps(ctx context.Context, text, explanation string) ([]string, error)
}

// LLM adapts *llm.Client to Streamer and FollowUpper.
type LLM struct{ *llm.Client }

func (l LLM) Start(ctx context.Context, prompt string) Stream { return l.Client.Start(ctx, prompt) }

type Deps struct {
	Extractor Extractor
	Screen    Screen
	LLM       Streamer
	// FollowUps may be nil.
	FollowUps FollowUpper
	Overlay   overlay.Overlay
}

type Options struct {
	// Screening enables blocking; Screen is still used to redact logs when off.
	Screening bool
	FollowUps bool
	// FollowUpTimeout bounds the follow-up request.
	FollowUpTimeout time.Duration
}

type RunState int32

const (
	Idle RunState = iota
	Extracting
	Screening
	Streaming
)

func (s RunState) String() string {
	switch s {
	case Extracting:
		return "extracting"
	case Screening:
		return "screening"
	case Streaming:
		return "streaming"
	default:
		return "idle"
	}
}

// Run is one pass through the pipeline for one selection event.
type Run struct {
	ID     uint64
	Trace  string
	Event  monitor.SelectionEvent
	State  RunState
	prompt string
	ctx    context.Context
	cancel context.CancelFunc
	stream Stream
}

func (r *Run) anchor() overlay.Anchor {
	return overlay.Anchor{Run: r.ID, X: r.Event.X, Y: r.Event.Y}
}

type extracted struct {
	id  uint64
	res selection.Result
}

type chunkMsg struct {
	id    uint64
	chunk llm.Chunk
}

type streamEnded struct {
	id   uint64
	err  error
	text string
}

type followUps struct {
	anchor    overlay.Anchor
	questions []string
}

type ask struct {
	question string
	anchor   overlay.Anchor
}

// Loop coordinates selection events into at most one live pipeline run.
type Loop struct {
	deps Deps
	opts Options

	msgs  chan any
	state atomic.Int32
	pause atomic.Bool

	// owned by the loop goroutine
	ctx          context.Context
	lastID       uint64
	active       *Run
	extracting   bool
	pending      *monitor.SelectionEvent
	followCancel context.CancelFunc

	wg sync.WaitGroup
}

func New(deps Deps, opts Options) *Loop {
	if opts.FollowUpTimeout <= 0 {
		opts.FollowUpTimeout = 20 * time.Second
	}
	return &Loop{deps: deps, opts: opts, msgs: make(chan any, 64)}
}

// State returns the coordinator state. Safe from any goroutine.
func (l *Loop) State() RunState { return RunState(l.state.Load()) }

// SetPaused makes the loop ignore selection events until resumed.
func (l *Loop) SetPaused(p bool) {
	l.pause.Store(p)
	zap.S().Infow("selection pipeline paused", "paused", p)
}

func (l *Loop) Paused() bool { return l.pause.Load() }

// Ask explains question directly, skipping extraction. It is used for
// follow-up questions picked in the overlay. Safe from any goroutine.
func (l *Loop) Ask(question string, a overlay.Anchor) {
	select {
	case l.msgs <- ask{question: question, anchor: a}:
	default:
		zap.S().Warn("eventloop busy, follow-up question dropped")
	}
}

// Run processes events until ctx ends or events is closed. On return any
// active run is cancelled and in-flight workers have finished, so the
// clipboard is back in its original state.
func (l *Loop) Run(ctx context.Context, events <-chan monitor.SelectionEvent) error {
	ctx, cancel := context.WithCancel(ctx)
	l.ctx = ctx
	defer func() {
		cancel()
		l.wg.Wait()
		l.setState(Idle)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			l.onEvent(ev)
		case m := <-l.msgs:
			l.handle(m)
		}
	}
}

func (l *Loop) handle(m any) {
	switch m := m.(type) {
	case extracted:
		l.onExtracted(m)
	case chunkMsg:
		l.onChunk(m)
	case streamEnded:
		l.onStreamEnded(m)
	case followUps:
		l.onFollowUps(m)
	case ask:
		l.onAsk(m)
	}
}

func (l *Loop) onEvent(ev monitor.SelectionEvent) {
	if l.Paused() {
		zap.S().Debugw("paused, selection ignored", "origin", ev.Origin)
		return
	}
	l.supersede()
	if l.extracting {
		// The clipboard is still borrowed by the previous extraction; start
		// once it has been restored.
		l.pending = &ev
		return
	}
	l.startExtraction(ev)
}

// supersede cancels the active run and any follow-up request.
func (l *Loop) supersede() {
	if l.followCancel != nil {
		l.followCancel()
		l.followCancel = nil
	}
	if l.active == nil {
		return
	}
	zap.S().Infow("run superseded", "run", l.active.ID, "trace", l.active.Trace, "state", l.active.State.String())
	if l.active.stream != nil {
		l.active.stream.Cancel()
	}
	l.active.cancel()
	l.active = nil
	if !l.extracting {
		l.state.Store(int32(Idle))
	}
}

func (l *Loop) newRun(ev monitor.SelectionEvent) *Run {
	l.lastID++
	ctx, cancel := context.WithCancel(l.ctx)
	run := &Run{ID: l.lastID, Trace: uuid.NewString(), Event: ev, ctx: ctx, cancel: cancel}
	l.active = run
	return run
}

func (l *Loop) setState(s RunState) {
	l.state.Store(int32(s))
	if l.active != nil {
		l.active.State = s
	}
}

// post hands a worker result to the loop, giving up once the loop has stopped.
func (l *Loop) post(m any) {
	select {
	case l.msgs <- m:
	case <-l.ctx.Done():
	}
}

func (l *Loop) startExtraction(ev monitor.SelectionEvent) {
	run := l.newRun(ev)
	l.setState(Extracting)
	l.extracting = true
	zap.S().Infow("run started", "run", run.ID, "trace", run.Trace, "origin", ev.Origin, "x", ev.X, "y", ev.Y)

	id := run.ID
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		// Not the run's context: a superseded extraction still finishes and
		// restores the clipboard, and its result is discarded on arrival.
		res := l.deps.Extractor.Extract(l.ctx)
		l.post(extracted{id: id, res: res})
	}()
}

func (l *Loop) onExtracted(m extracted) {
	l.extracting = false
	if l.pending != nil {
		ev := *l.pending
		l.pending = nil
		zap.S().Debugw("discarding superseded extraction", "run", m.id)
		l.startExtraction(ev)
		return
	}
	run := l.current(m.id)
	if run == nil {
		zap.S().Debugw("discarding stale extraction", "run", m.id)
		if l.active == nil {
			l.setState(Idle)
		}
		return
	}

	if !m.res.Succeeded {
		kind := failure.KindOf(m.res.Err)
		switch {
		case kind.Silent():
			zap.S().Debugw("no usable selection", "run", run.ID, "reason", m.res.Err)
		case kind == failure.PermissionDenied:
			zap.S().Warnw("clipboard access denied", "run", run.ID, "error", m.res.Err)
			l.deps.Overlay.OnError(run.anchor(), kind, "")
		default:
			zap.S().Warnw("selection extraction failed", "run", run.ID, "error", m.res.Err)
		}
		l.finish(run)
		return
	}

	l.screen(run, m.res.Text)
}

// screen runs the privacy check and, if allowed, starts streaming.
func (l *Loop) screen(run *Run, text string) {
	l.setState(Screening)
	zap.S().Infow("selection captured", "run", run.ID, "chars", len([]rune(text)),
		"text", logutil.SanitizeForLog(l.deps.Screen.Redact(text)))

	if l.opts.Screening {
		if v := l.deps.Screen.Classify(text); !v.Allowed {
			zap.S().Warnw("selection blocked by privacy filter", "run", run.ID, "category", v.Category, "rule", v.Label)
			l.deps.Overlay.OnBlocked(run.anchor(), v.Category)
			l.finish(run)
			return
		}
	}

	l.setState(Streaming)
	run.prompt = text
	run.stream = l.deps.LLM.Start(run.ctx, text)
	id, stream := run.ID, run.stream
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			c, ok := stream.Next()
			if !ok {
				break
			}
			l.post(chunkMsg{id: id, chunk: c})
		}
		l.post(streamEnded{id: id, err: stream.Err(), text: stream.Text()})
	}()
}

func (l *Loop) current(id uint64) *Run {
	if l.active == nil || l.active.ID != id {
		return nil
	}
	return l.active
}

func (l *Loop) onChunk(m chunkMsg) {
	run := l.current(m.id)
	if run == nil || m.chunk.Final || m.chunk.Content == "" {
		return
	}
	l.deps.Overlay.OnChunk(run.anchor(), m.chunk.Content)
}

func (l *Loop) onStreamEnded(m streamEnded) {
	run := l.current(m.id)
	if run == nil {
		return
	}
	if m.err != nil {
		kind := failure.KindOf(m.err)
		if kind == failure.Cancelled {
			zap.S().Debugw("stream cancelled", "run", run.ID)
		} else {
			zap.S().Errorw("stream failed", "run", run.ID, "trace", run.Trace, "kind", kind.String(),
				"partialChars", len([]rune(failure.PartialText(m.err))), "error", m.err)
			l.deps.Overlay.OnError(run.anchor(), kind, errorDetail(m.err))
		}
		l.finish(run)
		return
	}

	l.deps.Overlay.OnComplete(run.anchor())
	zap.S().Infow("run completed", "run", run.ID, "trace", run.Trace, "chars", len([]rune(m.text)))
	prompt, anchor := run.prompt, run.anchor()
	l.finish(run)

	if l.opts.FollowUps && l.deps.FollowUps != nil {
		l.requestFollowUps(anchor, prompt, m.text)
	}
}

func (l *Loop) requestFollowUps(a overlay.Anchor, prompt, answer string) {
	ctx, cancel := context.WithTimeout(l.ctx, l.opts.FollowUpTimeout)
	l.followCancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()
		qs, err := l.deps.FollowUps.FollowUps(ctx, prompt, answer)
		if err != nil {
			if failure.KindOf(err) != failure.Cancelled {
				zap.S().Warnw("follow-up questions failed", "run", a.Run, "error", err)
			}
			return
		}
		l.post(followUps{anchor: a, questions: qs})
	}()
}

func (l *Loop) onFollowUps(m followUps) {
	// Only the latest run may receive follow-ups, and only while nothing newer started.
	if m.anchor.Run != l.lastID || l.active != nil || len(m.questions) == 0 {
		return
	}
	l.followCancel = nil
	if sink, ok := l.deps.Overlay.(overlay.FollowUpSink); ok {
		sink.OnFollowUps(m.anchor, m.questions)
	}
}

func (l *Loop) onAsk(m ask) {
	if l.Paused() {
		return
	}
	if l.extracting {
		zap.S().Debug("extraction in flight, follow-up question dropped")
		return
	}
	l.supersede()
	ev := monitor.SelectionEvent{X: m.anchor.X, Y: m.anchor.Y, At: time.Now(), Origin: monitor.OriginRemote}
	run := l.newRun(ev)
	zap.S().Infow("follow-up question asked", "run", run.ID, "trace", run.Trace)
	l.screen(run, m.question)
}

func (l *Loop) finish(run *Run) {
	run.cancel()
	if l.active == run {
		l.active = nil
	}
	if l.extracting {
		l.setState(Extracting)
		return
	}
	l.setState(Idle)
}

// errorDetail keeps the innermost message, which is what the user can act on.
func errorDetail(err error) string {
	var fe *failure.Error
	if errors.As(err, &fe) && fe.Err != nil {
		return fe.Err.Error()
	}
	return err.Error()
}
