package transport

import (
	"context"

	"github.com/kstaniek/go-serialterm/internal/serial"
	"github.com/kstaniek/go-serialterm/internal/session"
)

// Handler receives device notifications on the control goroutine.
type Handler interface {
	OnReadable()
	OnBytesConfirmed(n int)
	OnDeviceError(kind serial.ErrorKind)
}

// Poster queues a closure onto the control goroutine.
type Poster interface {
	Post(ctx context.Context, fn func()) bool
}

// Compile-time assertions that the device and the session fit together.
var (
	_ session.Transport = (*Device)(nil)
	_ Handler           = (*session.Session)(nil)
)
