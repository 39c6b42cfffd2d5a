package serial

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kstaniek/go-serialterm/internal/settings"
)

// Port abstracts the serial drivers for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Drainer is implemented by ports that can block until queued output has
// left the UART.
type Drainer interface {
	Drain() error
}

// Driver selects the device backend.
type Driver string

const (
	DriverAuto    Driver = "auto"    // termios on linux, tarm elsewhere
	DriverTermios Driver = "termios" // x/sys/unix termios2 (linux only)
	DriverTarm    Driver = "tarm"    // github.com/tarm/serial
)

// readTimeout bounds every Read so the RX loop can observe shutdown.
const readTimeout = 100 * time.Millisecond

func ParseDriver(v string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(v))); d {
	case DriverAuto, DriverTermios, DriverTarm:
		return d, nil
	case "":
		return DriverAuto, nil
	}
	return "", fmt.Errorf("invalid driver %q (use auto|termios|tarm)", v)
}

// Open applies every field of s and acquires the device for reading and writing.
func Open(s settings.Settings, d Driver) (Port, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.Name = DevicePath(s.Name)
	switch d {
	case DriverTarm:
		return openTarm(s)
	case DriverTermios:
		return openTermios(s)
	default:
		return openDefault(s)
	}
}

// DevicePath resolves a bare tty name such as "ttyUSB0" under /dev.
// Paths and Windows COM names are returned unchanged.
func DevicePath(name string) string {
	if runtime.GOOS == "windows" || name == "" || strings.ContainsRune(name, '/') {
		return name
	}
	return filepath.Join("/dev", name)
}
