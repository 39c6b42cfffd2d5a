//go:build linux

package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-serialterm/internal/settings"
)

func openDefault(s settings.Settings) (Port, error) { return openTermios(s) }

type termiosPort struct {
	f  *os.File
	fd int
}

// openTermios configures the tty with termios2 so any baud rate can be set
// through BOTHER, then takes exclusive access with TIOCEXCL.
func openTermios(s settings.Settings) (Port, error) {
	t, err := buildTermios(s)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(s.Name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())
	fail := func(op string, err error) (Port, error) {
		_ = f.Close()
		return nil, &os.PathError{Op: op, Path: s.Name, Err: err}
	}
	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		return fail("exclusive", err)
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS2, t); err != nil {
		return fail("configure", err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		return fail("set blocking", err)
	}
	return &termiosPort{f: f, fd: fd}, nil
}

// buildTermios translates s into a raw-mode termios2 structure.
func buildTermios(s settings.Settings) (*unix.Termios, error) {
	t := &unix.Termios{}
	t.Cflag = unix.CREAD | unix.CLOCAL | unix.BOTHER
	switch s.DataBits {
	case settings.Data5:
		t.Cflag |= unix.CS5
	case settings.Data6:
		t.Cflag |= unix.CS6
	case settings.Data7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}
	switch s.Parity {
	case settings.ParityEven:
		t.Cflag |= unix.PARENB
	case settings.ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	case settings.ParityMark:
		t.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
	case settings.ParitySpace:
		t.Cflag |= unix.PARENB | unix.CMSPAR
	}
	if s.Parity != settings.ParityNone {
		t.Iflag |= unix.INPCK
	}
	switch s.StopBits {
	case settings.Stop2:
		t.Cflag |= unix.CSTOPB
	case settings.Stop1Half:
		return nil, fmt.Errorf("%w: 1.5 stop bits on linux", ErrUnsupported)
	}
	switch s.FlowControl {
	case settings.FlowHardware:
		t.Cflag |= unix.CRTSCTS
	case settings.FlowSoftware:
		t.Iflag |= unix.IXON | unix.IXOFF
	}
	// VMIN=0 VTIME=1: reads return after 100ms without data.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = uint8(readTimeout.Milliseconds() / 100)
	t.Ispeed = uint32(s.BaudRate)
	t.Ospeed = uint32(s.BaudRate)
	return t, nil
}

func (p *termiosPort) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *termiosPort) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *termiosPort) Close() error                { return p.f.Close() }

// Drain blocks until the kernel has transmitted everything written so far (tcdrain).
func (p *termiosPort) Drain() error {
	if err := unix.IoctlSetInt(p.fd, unix.TCSBRK, 1); err != nil {
		return &os.PathError{Op: "drain", Path: p.f.Name(), Err: err}
	}
	return nil
}
