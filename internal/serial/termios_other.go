//go:build !linux

package serial

import (
	"fmt"

	"github.com/kstaniek/go-serialterm/internal/settings"
)

func openDefault(s settings.Settings) (Port, error) { return openTarm(s) }

// Placeholder so non-linux builds compile; termios2 is linux specific.
func openTermios(s settings.Settings) (Port, error) {
	return nil, fmt.Errorf("%w: termios driver on this platform", ErrUnsupported)
}
