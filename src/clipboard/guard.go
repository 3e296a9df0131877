package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"luxselect/src/failure"
)

// ErrRestore marks errors raised while putting the original content back.
var ErrRestore = errors.New("clipboard restore failed")

const (
	defaultSettle = 300 * time.Millisecond
	pollInterval  = 10 * time.Millisecond
)

// Guard serializes borrowed clipboard sections. At most one section runs at a time.
type Guard struct {
	board  Board
	settle time.Duration
	poll   time.Duration
	mu     sync.Mutex
}

// NewGuard returns a guard that waits up to settle for a foreign write to land.
func NewGuard(board Board, settle time.Duration) *Guard {
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Guard{board: board, settle: settle, poll: pollInterval}
}

// Observation describes what the clipboard looked like around the action.
type Observation struct {
	Before  Snapshot
	After   Snapshot
	Changed bool
}

// WithBackup snapshots the clipboard, runs action, waits until the content
// changes (or the settle timeout elapses), and hands the observation to collect.
// The snapshot is restored on every exit path, panics included. A restore
// failure is joined into the returned error and wraps ErrRestore; the result
// of collect is still returned alongside it.
func WithBackup[T any](ctx context.Context, g *Guard, action func() error, collect func(Observation) (T, error)) (result T, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	before, err := g.board.Read()
	if err != nil {
		// Nothing has been touched yet, so there is nothing to restore.
		return result, failure.New(failure.PermissionDenied, "clipboard.snapshot", err)
	}

	defer func() {
		if rerr := g.restore(before); rerr != nil {
			zap.S().Errorw("clipboard restore failed", "format", before.Format.String(), "error", rerr)
			err = errors.Join(err, rerr)
		}
	}()

	if err := action(); err != nil {
		return result, err
	}

	obs := g.await(ctx, before)
	return collect(obs)
}

// await polls until the board differs from before and holds data, or until the
// settle timeout or ctx ends. A board that went empty is reported as changed.
func (g *Guard) await(ctx context.Context, before Snapshot) Observation {
	obs := Observation{Before: before, After: before}
	deadline := time.NewTimer(g.settle)
	defer deadline.Stop()
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		if cur, err := g.board.Read(); err == nil && !cur.Equal(before) {
			obs.After = cur
			obs.Changed = true
			if !cur.Empty() {
				return obs
			}
		}
		select {
		case <-ctx.Done():
			return obs
		case <-deadline.C:
			return obs
		case <-ticker.C:
		}
	}
}

func (g *Guard) restore(s Snapshot) error {
	if cur, err := g.board.Read(); err == nil && cur.Equal(s) {
		return nil
	}
	if err := g.board.Write(s); err != nil {
		return fmt.Errorf("%w: %w", ErrRestore, failure.New(failure.PermissionDenied, "clipboard.restore", err))
	}
	cur, err := g.board.Read()
	if err != nil {
		return fmt.Errorf("%w: verify: %w", ErrRestore, err)
	}
	if !restored(cur, s) {
		return fmt.Errorf("%w: clipboard holds %s after restoring %s", ErrRestore, cur.Format, s.Format)
	}
	return nil
}

// restored compares text byte for byte. Images are re-encoded by the platform,
// so only their presence is checked.
func restored(cur, want Snapshot) bool {
	if want.Format == FormatImage {
		return cur.Format == FormatImage && !cur.Empty()
	}
	return cur.Equal(want)
}
