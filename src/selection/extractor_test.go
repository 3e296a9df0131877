package selection

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luxselect/src/clipboard"
	"luxselect/src/failure"
)

// scriptedCopier plays one clipboard effect per Copy call.
type scriptedCopier struct {
	board   *clipboard.MemoryBoard
	effects []func(*clipboard.MemoryBoard)
	err     error
	calls   atomic.Int32
}

func (c *scriptedCopier) Copy() error {
	n := int(c.calls.Add(1)) - 1
	if c.err != nil {
		return c.err
	}
	if n < len(c.effects) && c.effects[n] != nil {
		c.effects[n](c.board)
	}
	return nil
}

func setText(s string) func(*clipboard.MemoryBoard) {
	return func(b *clipboard.MemoryBoard) { b.Set(clipboard.TextSnapshot(s)) }
}

func newExtractor(board *clipboard.MemoryBoard, copier Copier, opts Options) *Extractor {
	opts.RetryDelay = 5 * time.Millisecond
	return New(clipboard.NewGuard(board, 30*time.Millisecond), copier, opts)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		initial  clipboard.Snapshot
		effects  []func(*clipboard.MemoryBoard)
		opts     Options
		wantText string
		wantErr  error
	}{
		{
			name:     "new selection",
			initial:  clipboard.TextSnapshot("previous"),
			effects:  []func(*clipboard.MemoryBoard){setText("  quantum entanglement \n")},
			opts:     Options{MinLength: 2},
			wantText: "quantum entanglement",
		},
		{
			name:    "unchanged clipboard",
			initial: clipboard.TextSnapshot("previous"),
			effects: []func(*clipboard.MemoryBoard){nil},
			opts:    Options{MinLength: 2},
			wantErr: ErrNoSelection,
		},
		{
			name:    "at minimum length",
			initial: clipboard.Snapshot{},
			effects: []func(*clipboard.MemoryBoard){setText("ab")},
			opts:    Options{MinLength: 2},
			wantErr: ErrTooShort,
		},
		{
			name:     "one past minimum",
			initial:  clipboard.Snapshot{},
			effects:  []func(*clipboard.MemoryBoard){setText("abc")},
			opts:     Options{MinLength: 2},
			wantText: "abc",
		},
		{
			name:    "whitespace only",
			initial: clipboard.TextSnapshot("previous"),
			effects: []func(*clipboard.MemoryBoard){setText("   "), setText("\t")},
			opts:    Options{MinLength: 2},
			wantErr: ErrNoSelection,
		},
		{
			name:     "multibyte length counted in runes",
			initial:  clipboard.Snapshot{},
			effects:  []func(*clipboard.MemoryBoard){setText("量子态")},
			opts:     Options{MinLength: 2},
			wantText: "量子态",
		},
		{
			name:     "truncated",
			initial:  clipboard.Snapshot{},
			effects:  []func(*clipboard.MemoryBoard){setText(strings.Repeat("x", 20))},
			opts:     Options{MinLength: 2, MaxChars: 8},
			wantText: "xxxxxxxx" + truncationMarker,
		},
		{
			name:    "image copied",
			initial: clipboard.TextSnapshot("previous"),
			effects: []func(*clipboard.MemoryBoard){
				func(b *clipboard.MemoryBoard) {
					b.Set(clipboard.Snapshot{Format: clipboard.FormatImage, Data: []byte{1, 2}})
				},
				nil,
			},
			opts:    Options{MinLength: 2},
			wantErr: ErrNoSelection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := clipboard.NewMemoryBoard(tt.initial)
			copier := &scriptedCopier{board: board, effects: tt.effects}
			res := newExtractor(board, copier, tt.opts).Extract(context.Background())

			if tt.wantErr != nil {
				assert.False(t, res.Succeeded)
				assert.ErrorIs(t, res.Err, tt.wantErr)
				assert.Equal(t, failure.SelectionTooShort, failure.KindOf(res.Err))
			} else {
				require.True(t, res.Succeeded, "err: %v", res.Err)
				assert.NoError(t, res.Err)
				assert.Equal(t, tt.wantText, res.Text)
			}
			assert.True(t, board.Content().Equal(tt.initial), "clipboard not restored: %q", board.Content().Data)
		})
	}
}

func TestExtractRetriesEmptyRead(t *testing.T) {
	board := clipboard.NewMemoryBoard(clipboard.TextSnapshot("previous"))
	copier := &scriptedCopier{board: board, effects: []func(*clipboard.MemoryBoard){
		func(b *clipboard.MemoryBoard) { b.Set(clipboard.Snapshot{}) },
		setText("second try"),
	}}

	res := newExtractor(board, copier, Options{MinLength: 2}).Extract(context.Background())

	require.True(t, res.Succeeded, "err: %v", res.Err)
	assert.Equal(t, "second try", res.Text)
	assert.Equal(t, int32(2), copier.calls.Load())
	assert.Equal(t, "previous", board.Content().Text())
}

func TestExtractCopyFailure(t *testing.T) {
	board := clipboard.NewMemoryBoard(clipboard.TextSnapshot("previous"))
	copier := &scriptedCopier{board: board, err: errors.New("no display")}

	res := newExtractor(board, copier, Options{MinLength: 2}).Extract(context.Background())

	assert.False(t, res.Succeeded)
	assert.Equal(t, failure.Internal, failure.KindOf(res.Err))
	assert.Equal(t, int32(1), copier.calls.Load())
	assert.Equal(t, "previous", board.Content().Text())
}

func TestExtractKeepsResultWhenRestoreFails(t *testing.T) {
	board := clipboard.NewMemoryBoard(clipboard.TextSnapshot("previous"))
	copier := &scriptedCopier{board: board, effects: []func(*clipboard.MemoryBoard){
		func(b *clipboard.MemoryBoard) {
			b.Set(clipboard.TextSnapshot("selected text"))
			b.SetFaults(nil, errors.New("denied"))
		},
	}}

	res := newExtractor(board, copier, Options{MinLength: 2}).Extract(context.Background())

	require.True(t, res.Succeeded, "err: %v", res.Err)
	assert.Equal(t, "selected text", res.Text)
}

func TestExtractSnapshotDenied(t *testing.T) {
	board := clipboard.NewMemoryBoard(clipboard.TextSnapshot("previous"))
	board.SetFaults(errors.New("denied"), nil)
	copier := &scriptedCopier{board: board}

	res := newExtractor(board, copier, Options{MinLength: 2}).Extract(context.Background())

	assert.False(t, res.Succeeded)
	assert.Equal(t, failure.PermissionDenied, failure.KindOf(res.Err))
	assert.Zero(t, copier.calls.Load())
}
