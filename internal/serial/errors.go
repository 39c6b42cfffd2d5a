package serial

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
	"unicode"
	"unicode/utf8"
)

// ErrorKind classifies device-level failures.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindDeviceNotFound
	KindPermission
	KindOpen
	KindNotOpen
	KindWrite
	KindRead
	// KindResource means the device is gone (unplugged, handle invalidated).
	KindResource
	KindUnsupported
	KindTimeout
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDeviceNotFound:
		return "device_not_found"
	case KindPermission:
		return "permission"
	case KindOpen:
		return "open"
	case KindNotOpen:
		return "not_open"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindResource:
		return "resource"
	case KindUnsupported:
		return "unsupported"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var (
	ErrNotOpen     = errors.New("device not open")
	ErrUnsupported = errors.New("unsupported operation")
)

// Classify maps err to a kind; errors that say nothing about the device
// itself get fallback.
func Classify(err error, fallback ErrorKind) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrNotOpen):
		return KindNotOpen
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, fs.ErrNotExist):
		return KindDeviceNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EBUSY):
		return KindPermission
	case errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	case errors.Is(err, os.ErrClosed),
		errors.Is(err, syscall.EIO),
		errors.Is(err, syscall.ENXIO),
		errors.Is(err, syscall.ENODEV),
		errors.Is(err, syscall.EBADF):
		return KindResource
	}
	return fallback
}

// Describe returns the diagnostic shown to the user: the OS message without
// the operation/path prefix, capitalized.
func Describe(err error) string {
	if err == nil {
		return "No error"
	}
	var perr *fs.PathError
	msg := err.Error()
	if errors.As(err, &perr) && perr.Err != nil {
		msg = perr.Err.Error()
	}
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
