// Package errors carries coded errors from the browser and session layers up
// to the HTTP and websocket surfaces.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"slices"
	"strings"
)

// ErrorCode identifies a failure class. Codes are part of the HTTP error body.
type ErrorCode string

const (
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigParse   ErrorCode = "CONFIG_PARSE"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	ErrCodePlatformNotAllowed ErrorCode = "PLATFORM_NOT_ALLOWED"
	ErrCodeNavigationFailed   ErrorCode = "NAVIGATION_FAILED"
	ErrCodeInvalidSession     ErrorCode = "INVALID_SESSION"

	ErrCodeHandleStale       ErrorCode = "HANDLE_STALE"
	ErrCodeBrowserLaunch     ErrorCode = "BROWSER_LAUNCH"
	ErrCodeStreamStartFailed ErrorCode = "STREAM_START_FAILED"
	ErrCodeInjectionFailed   ErrorCode = "INJECTION_FAILED"

	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeBodyTooLarge   ErrorCode = "BODY_TOO_LARGE"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCodeInternal       ErrorCode = "INTERNAL"
)

var statusByCode = map[ErrorCode]int{
	ErrCodePlatformNotAllowed: http.StatusBadRequest,
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeBodyTooLarge:       http.StatusRequestEntityTooLarge,
	ErrCodeInvalidSession:     http.StatusNotFound,
	ErrCodeRateLimited:        http.StatusTooManyRequests,
	ErrCodeHandleStale:        http.StatusServiceUnavailable,
}

// Error is a coded error with optional client-facing text.
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Stack       []Frame
	Retryable   bool
	UserMessage string
	Remediation []string
}

// Frame is one captured call site.
type Frame struct {
	Function string
	File     string
	Line     int
}

// New creates an error with the caller's stack.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Stack: callers(3)}
}

// Wrap attaches a code to err. It returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Underlying: err, Stack: callers(3)}
}

func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, 1)
	}
	e.Context[key] = value
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithUserMessage sets the message returned to clients.
func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

// WithRemediation replaces the remediation tips. No tips keeps the old ones.
func (e *Error) WithRemediation(tips ...string) *Error {
	if len(tips) > 0 {
		e.Remediation = slices.Clone(tips)
	}
	return e
}

// Error renders "[CODE] message {k: v, ...}: underlying" with context keys
// sorted.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)
	if len(e.Context) > 0 {
		pairs := make([]string, 0, len(e.Context))
		for _, k := range slices.Sorted(maps.Keys(e.Context)) {
			pairs = append(pairs, fmt.Sprintf("%s: %v", k, e.Context[k]))
		}
		sb.WriteString(" {" + strings.Join(pairs, ", ") + "}")
	}
	if e.Underlying != nil {
		fmt.Fprintf(&sb, ": %v", e.Underlying)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Underlying }

func (e *Error) IsRetryable() bool { return e.Retryable }

// PublicMessage is the text safe to show a client. It falls back to Message.
func (e *Error) PublicMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// HTTPStatus maps the code onto a response status. Unknown codes are 500.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StackTrace formats the captured stack, one frame per line.
func (e *Error) StackTrace() string {
	var sb strings.Builder
	sb.WriteString("Stack trace:\n")
	for i, f := range e.Stack {
		fmt.Fprintf(&sb, "  %d. %s\n     %s:%d\n", i+1, f.Function, f.File, f.Line)
	}
	return sb.String()
}

func (f Frame) String() string {
	return f.Function
}

func callers(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]Frame, 0, n)
	for {
		fr, more := frames.Next()
		if fr.Function != "" {
			out = append(out, Frame{Function: fr.Function, File: fr.File, Line: fr.Line})
		}
		if !more {
			return out
		}
	}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if err == nil || !stderrors.As(err, &target) {
		return nil, false
	}
	return target, true
}

// IsCode reports whether err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// GetCode returns err's code, ErrCodeInternal for uncoded errors and "" for
// nil.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return ErrCodeInternal
}

func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}
