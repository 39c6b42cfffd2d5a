package serial

import (
	"fmt"

	"github.com/tarm/serial"

	"github.com/kstaniek/go-serialterm/internal/settings"
)

// openTarm opens the port through tarm/serial, which leaves flow control off.
func openTarm(s settings.Settings) (Port, error) {
	if s.FlowControl != settings.FlowNone {
		return nil, fmt.Errorf("%w: flow control %s with tarm driver", ErrUnsupported, s.FlowControl)
	}
	cfg := &serial.Config{
		Name:        s.Name,
		Baud:        s.BaudRate,
		ReadTimeout: readTimeout,
		Size:        byte(s.DataBits),
		Parity:      serial.Parity(s.Parity),
		StopBits:    serial.StopBits(s.StopBits),
	}
	return serial.OpenPort(cfg)
}
