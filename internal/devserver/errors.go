package devserver

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrInvalidPort indicates PORT is outside 1..65535.
var ErrInvalidPort = errors.New("port must be between 1 and 65535")

// BindError reports that the server could not listen on its address. The
// server never retries on another port.
type BindError struct {
	Addr string
	Port int
	Err  error
}

func (e *BindError) Error() string {
	switch {
	case errors.Is(e.Err, ErrInvalidPort):
		return fmt.Sprintf("cannot listen on %s: %v", e.Addr, e.Err)
	case errors.Is(e.Err, syscall.EADDRINUSE):
		return fmt.Sprintf("something is already running on port %d", e.Port)
	case errors.Is(e.Err, syscall.EACCES):
		return fmt.Sprintf("permission denied binding to %s", e.Addr)
	default:
		return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
	}
}

func (e *BindError) Unwrap() error {
	return e.Err
}
