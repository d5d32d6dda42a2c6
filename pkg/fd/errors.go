package fd

import (
	"errors"
	"strconv"
	"syscall"
)

// Operation names carried by [OsError.Op].
const (
	OpOpen  = "open"
	OpClose = "close"
	OpSize  = "size"
)

// OsError is the single error kind returned by this package.
//
// It records which operation failed and wraps the platform error, so
// errors.Is(err, fs.ErrNotExist) and similar checks keep working:
//
//	f, err := fd.Open(path, os.O_RDONLY, 0)
//	if errors.Is(err, fs.ErrNotExist) {
//	    // create it
//	}
type OsError struct {
	// Op is one of [OpOpen], [OpClose] or [OpSize].
	Op string
	// Path is the attempted path. Only set for [OpOpen].
	Path string
	// Err is the underlying platform error.
	Err error
}

func (e *OsError) Error() string {
	var msg string

	switch e.Op {
	case OpOpen:
		msg = "error opening file " + strconv.Quote(e.Path)
	case OpClose:
		msg = "error closing file"
	case OpSize:
		msg = "could not get file size"
	default:
		msg = e.Op
	}

	if e.Err == nil {
		return msg
	}

	return msg + ": " + e.Err.Error()
}

func (e *OsError) Unwrap() error {
	return e.Err
}

// Code returns the platform error code, or 0 if the underlying error does
// not carry one.
func (e *OsError) Code() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}

	return 0
}
