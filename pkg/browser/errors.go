package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnavailable    = errors.New("browser unavailable")
	ErrHandleStale    = errors.New("browser handle is stale")
	ErrCaptureStopped = errors.New("capture stopped")
	ErrStarted        = errors.New("supervisor already started")
)

// EngineError wraps a failure reported by the automation engine.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// WrapEngineError tags err with the operation that produced it.
func WrapEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}

// closedTargetMarkers are the messages CDP returns once a target or its
// session has gone away.
var closedTargetMarkers = []string{
	"target closed",
	"session closed",
	"no target with given id",
	"cannot find context with specified id",
	"use of closed network connection",
	"websocket: close",
	"context canceled",
}

// IsClosedError reports whether err only says the resource is already gone.
// Teardown paths treat these as success.
func IsClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrHandleStale) || errors.Is(err, ErrCaptureStopped) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range closedTargetMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsRetryableError returns true if the operation may succeed on a fresh handle.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrHandleStale) || errors.Is(err, ErrUnavailable)
}
