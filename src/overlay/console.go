package overlay

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"luxselect/src/failure"
	"luxselect/src/privacy"
)

var (
	colorAccent  = lipgloss.Color("#89b4fa")
	colorSubtext = lipgloss.Color("#7f849c")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorPeach   = lipgloss.Color("#fab387")
	colorRed     = lipgloss.Color("#f38ba8")

	headerStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	metaStyle   = lipgloss.NewStyle().Foreground(colorSubtext)
	doneStyle   = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(colorPeach)
	errorStyle  = lipgloss.NewStyle().Foreground(colorRed)
)

// Console streams answers to a terminal. It is the overlay used by
// --console and on machines without a graphical session.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	run uint64
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// begin prints the run header once per run and reports whether a is not stale.
func (c *Console) begin(a Anchor) bool {
	if a.Run < c.run {
		return false
	}
	if a.Run > c.run {
		c.run = a.Run
		fmt.Fprintf(c.out, "\n%s %s\n", headerStyle.Render("LuxSelect AI"),
			metaStyle.Render(fmt.Sprintf("#%d at (%d, %d)", a.Run, a.X, a.Y)))
	}
	return true
}

func (c *Console) OnChunk(a Anchor, fragment string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.begin(a) {
		io.WriteString(c.out, fragment)
	}
}

func (c *Console) OnComplete(a Anchor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.begin(a) {
		fmt.Fprintf(c.out, "\n%s\n", doneStyle.Render("Done"))
	}
}

func (c *Console) OnError(a Anchor, kind failure.Kind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.begin(a) {
		fmt.Fprintf(c.out, "\n%s\n", errorStyle.Render(plain(ErrorMessage(kind, message))))
	}
}

func (c *Console) OnBlocked(a Anchor, category privacy.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.begin(a) {
		fmt.Fprintf(c.out, "%s\n", warnStyle.Render(plain(BlockedMessage(category))))
	}
}

func (c *Console) OnFollowUps(a Anchor, questions []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.Run != c.run || len(questions) == 0 {
		return
	}
	fmt.Fprintln(c.out, metaStyle.Render("Follow-up questions:"))
	for _, q := range questions {
		fmt.Fprintf(c.out, "  %s %s\n", metaStyle.Render("-"), q)
	}
}

// plain strips the Markdown emphasis used by the graphical overlay.
func plain(md string) string {
	r := strings.NewReplacer("**", "", "`", "", "\n\n", "\n")
	return r.Replace(md)
}
