package transport

import (
	"errors"

	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
)

var (
	// ErrTimeout is returned by ReadLine when no line arrived in time and by Write when
	// the daemon stopped taking input. It is recoverable.
	ErrTimeout error = ferrors.TimeoutError("transport: timed out").Build()
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("transport: closed")
	// ErrBrokenPipe is returned by Write once the daemon has exited.
	ErrBrokenPipe = errors.New("transport: broken pipe")
)

// IsTimeout reports whether err is a timeout the caller may retry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
