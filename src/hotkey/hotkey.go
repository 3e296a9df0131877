// Package hotkey parses key combinations such as "Ctrl+Alt+E" and recognizes
// them in a stream of raw key events.
package hotkey

import (
	"fmt"
	"strings"
)

// Combo is a parsed key combination. Each key lists the rawcodes (Windows
// virtual-key codes) that satisfy it, so left and right modifiers both count.
type Combo struct {
	Name string
	keys []key
}

type key struct {
	name     string
	rawcodes []uint16
}

// Keys returns the normalized key names, modifiers first as written.
func (c Combo) Keys() []string {
	names := make([]string, len(c.keys))
	for i, k := range c.keys {
		names[i] = k.name
	}
	return names
}

// Parse normalizes and validates a combination like "Ctrl+Shift+F13".
// "win" and "super" are aliases for "cmd".
func Parse(combo string) (Combo, error) {
	if strings.TrimSpace(combo) == "" {
		return Combo{}, fmt.Errorf("empty hotkey")
	}
	c := Combo{Name: combo}
	seen := map[string]bool{}
	for _, name := range normalize(combo) {
		if name == "" {
			return Combo{}, fmt.Errorf("hotkey %q: empty key", combo)
		}
		codes := rawcodes(name)
		if codes == nil {
			return Combo{}, fmt.Errorf("hotkey %q: unknown key %q", combo, name)
		}
		if seen[name] {
			return Combo{}, fmt.Errorf("hotkey %q: key %q repeated", combo, name)
		}
		seen[name] = true
		c.keys = append(c.keys, key{name: name, rawcodes: codes})
	}
	return c, nil
}

func normalize(combo string) []string {
	parts := strings.Split(strings.ToLower(combo), "+")
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "control":
			part = "ctrl"
		case "win", "super", "meta":
			part = "cmd"
		case "option":
			part = "alt"
		}
		keys = append(keys, part)
	}
	return keys
}

var namedKeys = map[string][]uint16{
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

func rawcodes(name string) []uint16 {
	if codes, ok := namedKeys[name]; ok {
		return codes
	}
	if len(name) == 1 {
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48}
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && fmt.Sprintf("f%d", n) == name && n >= 1 && n <= 24 {
		return []uint16{uint16(111 + n)} // VK_F1 is 112
	}
	return nil
}

// Matcher tracks which keys of a combo are held. It is not safe for
// concurrent use; feed it from the goroutine that drains the input hook.
type Matcher struct {
	combo   Combo
	pressed []bool
}

func NewMatcher(c Combo) *Matcher {
	return &Matcher{combo: c, pressed: make([]bool, len(c.keys))}
}

// Down records a key press and reports whether it completed the combo. The
// held state is reset after a match so auto-repeat does not fire again.
func (m *Matcher) Down(rawcode uint16) bool {
	if len(m.pressed) == 0 {
		return false
	}
	m.set(rawcode, true)
	for _, p := range m.pressed {
		if !p {
			return false
		}
	}
	clear(m.pressed)
	return true
}

func (m *Matcher) Up(rawcode uint16) {
	m.set(rawcode, false)
}

func (m *Matcher) set(rawcode uint16, down bool) {
	for i, k := range m.combo.keys {
		for _, rc := range k.rawcodes {
			if rc == rawcode {
				m.pressed[i] = down
				break
			}
		}
	}
}
