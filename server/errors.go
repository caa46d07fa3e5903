package server

import (
	"errors"
	"fmt"
)

var (
	// ErrServerClosed is returned by Run after Stop or Close.
	ErrServerClosed = errors.New("server: closed")

	// ErrDispatcherStopped is returned when a job is submitted to a stopped dispatcher.
	ErrDispatcherStopped = errors.New("server: dispatcher stopped")

	// ErrRoutesFrozen is returned when a route is added after serving started.
	ErrRoutesFrozen = errors.New("server: route table is frozen")

	// ErrInvalidPattern indicates a route pattern that does not start with "/"
	// or has a malformed placeholder segment.
	ErrInvalidPattern = errors.New("server: invalid route pattern")
)

// HandlerPanicError carries a value recovered from a panicking handler.
type HandlerPanicError struct {
	Method Method
	Path   string
	Value  any
	Stack  []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("server: handler for %s %s panicked: %v", e.Method, e.Path, e.Value)
}
