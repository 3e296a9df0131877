package selection

import (
	"fmt"
	"runtime"

	"github.com/go-vgo/robotgo"
)

// KeyCopier sends Ctrl+C (Cmd+C on macOS) to the focused window.
type KeyCopier struct{}

func (KeyCopier) Copy() error {
	modifier := "ctrl"
	if runtime.GOOS == "darwin" {
		modifier = "cmd"
	}
	if err := robotgo.KeyTap("c", modifier); err != nil {
		return fmt.Errorf("send %s+c: %w", modifier, err)
	}
	return nil
}
