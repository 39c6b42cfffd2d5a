package session

import (
	"errors"
	"fmt"

	"github.com/kstaniek/go-serialterm/internal/serial"
)

// Sentinel errors. ErrNotOpen, ErrConfirmOverflow and ErrNoPoster are only
// raised as panics: they mean a caller or transport broke the session contract.
var (
	ErrNotOpen         = errors.New("session not open")
	ErrAlreadyOpen     = errors.New("session already open")
	ErrConfirmOverflow = errors.New("transport confirmed more bytes than pending")
	ErrNoPoster        = errors.New("session needs WithPoster when using the real clock")
)

const unknownReason = "Unknown error"

func reason(s string) string {
	if s == "" {
		return unknownReason
	}
	return s
}

// OpenError reports that the device could not be acquired. Error returns the
// device diagnostic verbatim.
type OpenError struct {
	Port   string
	Reason string
	Err    error
}

func (e *OpenError) Error() string { return reason(e.Reason) }
func (e *OpenError) Unwrap() error { return e.Err }

// WriteError reports a write the transport rejected or only partly accepted.
type WriteError struct {
	Port      string
	Reason    string
	Submitted int
	Accepted  int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("Failed to write all data to port %s.\nError: %s", e.Port, reason(e.Reason))
}
func (e *WriteError) Unwrap() error { return e.Err }

// WriteTimeoutError reports that written bytes were not confirmed in time.
type WriteTimeoutError struct {
	Port    string
	Reason  string
	Pending int64
}

func (e *WriteTimeoutError) Error() string {
	return fmt.Sprintf("Write operation timed out for port %s.\nError: %s", e.Port, reason(e.Reason))
}

// DeviceFatalError reports loss of the device; the session closes after it.
type DeviceFatalError struct {
	Port   string
	Reason string
	Kind   serial.ErrorKind
}

func (e *DeviceFatalError) Error() string { return reason(e.Reason) }
