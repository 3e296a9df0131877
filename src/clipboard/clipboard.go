// Package clipboard owns every access to the system clipboard. Callers borrow it
// through Guard, which snapshots the content first and restores it on exit.
package clipboard

import (
	"bytes"
	"errors"
	"sync"

	"golang.design/x/clipboard"

	"luxselect/src/failure"
)

type Format int

const (
	FormatNone Format = iota
	FormatText
	FormatImage
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatImage:
		return "image"
	default:
		return "empty"
	}
}

// Snapshot is the clipboard content at one instant. The zero value is an empty clipboard.
type Snapshot struct {
	Format Format
	Data   []byte
}

func TextSnapshot(s string) Snapshot {
	if s == "" {
		return Snapshot{}
	}
	return Snapshot{Format: FormatText, Data: []byte(s)}
}

func (s Snapshot) Empty() bool { return s.Format == FormatNone || len(s.Data) == 0 }

func (s Snapshot) Text() string {
	if s.Format != FormatText {
		return ""
	}
	return string(s.Data)
}

func (s Snapshot) Equal(o Snapshot) bool {
	if s.Empty() || o.Empty() {
		return s.Empty() == o.Empty()
	}
	return s.Format == o.Format && bytes.Equal(s.Data, o.Data)
}

// Board is a readable, writable clipboard. Writing an empty Snapshot clears it.
type Board interface {
	Read() (Snapshot, error)
	Write(s Snapshot) error
}

var (
	initOnce sync.Once
	initErr  error
)

var ErrNotInitialized = errors.New("clipboard not initialized")

// Init prepares the platform clipboard. A failure means the OS refused access.
func Init() error {
	initOnce.Do(func() {
		if err := clipboard.Init(); err != nil {
			initErr = failure.New(failure.PermissionDenied, "clipboard.init", err)
		}
	})
	return initErr
}

// SystemBoard is the OS clipboard. Only text and image payloads are visible to it.
type SystemBoard struct{}

func (SystemBoard) Read() (Snapshot, error) {
	if err := ready(); err != nil {
		return Snapshot{}, err
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		return Snapshot{Format: FormatText, Data: text}, nil
	}
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		return Snapshot{Format: FormatImage, Data: img}, nil
	}
	return Snapshot{}, nil
}

func (SystemBoard) Write(s Snapshot) error {
	if err := ready(); err != nil {
		return err
	}
	switch {
	case s.Empty():
		clipboard.Write(clipboard.FmtText, []byte{})
	case s.Format == FormatImage:
		clipboard.Write(clipboard.FmtImage, s.Data)
	default:
		clipboard.Write(clipboard.FmtText, s.Data)
	}
	return nil
}

func ready() error {
	if err := Init(); err != nil {
		return err
	}
	return nil
}

// MemoryBoard is an in-process Board with fault injection, used where no
// desktop clipboard exists.
type MemoryBoard struct {
	mu      sync.Mutex
	content Snapshot
	writes  int

	readErr  error
	writeErr error
}

func NewMemoryBoard(initial Snapshot) *MemoryBoard {
	return &MemoryBoard{content: initial}
}

func (m *MemoryBoard) Read() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return Snapshot{}, m.readErr
	}
	return Snapshot{Format: m.content.Format, Data: bytes.Clone(m.content.Data)}, nil
}

func (m *MemoryBoard) Write(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	if s.Empty() {
		m.content = Snapshot{}
		return nil
	}
	m.content = Snapshot{Format: s.Format, Data: bytes.Clone(s.Data)}
	return nil
}

// Set replaces the content without counting as a write, the way another
// application would.
func (m *MemoryBoard) Set(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = s
}

func (m *MemoryBoard) Content() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content
}

func (m *MemoryBoard) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// SetFaults makes every subsequent Read and Write fail with the given errors. Nil clears a fault.
func (m *MemoryBoard) SetFaults(readErr, writeErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = readErr
	m.writeErr = writeErr
}
