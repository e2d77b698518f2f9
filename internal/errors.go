package internal

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// Configuration and binding errors.
var (
	ErrServerAlreadyBuilt    = errors.New("kiln: server already initialised")
	ErrServerNotBuilt        = errors.New("kiln: server not initialised")
	ErrMissingControllerMeta = errors.New("kiln: controller has no route metadata")
	ErrInvalidRoute          = errors.New("kiln: invalid route")
	ErrInvalidHook           = errors.New("kiln: invalid hook")
	ErrContextNotBound       = errors.New("kiln: no request context bound")
	ErrAlreadyAuthorised     = errors.New("kiln: request already authorised")
)

// Exception is an error that carries the exact HTTP response it should
// produce. The default error handler sends Code and Body verbatim.
type Exception struct {
	Code int
	Body any

	// Err is the underlying cause. It is logged, never sent.
	Err error
}

// NewException creates an Exception with a custom body.
func NewException(code int, body any) *Exception {
	return &Exception{Code: code, Body: body}
}

func (e *Exception) Error() string {
	switch b := e.Body.(type) {
	case string:
		return b
	case map[string]any:
		if msg, ok := b["message"].(string); ok {
			return msg
		}
	case error:
		return b.Error()
	}
	return http.StatusText(e.Code)
}

func (e *Exception) Unwrap() error { return e.Err }

// StatusCode returns Code.
func (e *Exception) StatusCode() int { return e.Code }

// WithCause attaches the underlying error and returns e.
func (e *Exception) WithCause(err error) *Exception {
	e.Err = err
	return e
}

func messageException(code int, message string) *Exception {
	if message == "" {
		message = http.StatusText(code)
	}
	return &Exception{Code: code, Body: map[string]any{"message": message, "code": code}}
}

func BadRequest(message string) *Exception {
	return messageException(http.StatusBadRequest, message)
}

func Unauthorised(message string) *Exception {
	return messageException(http.StatusUnauthorized, message)
}

func Forbidden(message string) *Exception {
	return messageException(http.StatusForbidden, message)
}

func NotFound(message string) *Exception {
	return messageException(http.StatusNotFound, message)
}

func MethodNotAllowed(message string) *Exception {
	return messageException(http.StatusMethodNotAllowed, message)
}

func PayloadTooLarge(message string) *Exception {
	return messageException(http.StatusRequestEntityTooLarge, message)
}

func Internal(message string) *Exception {
	return messageException(http.StatusInternalServerError, message)
}

// AsException finds an Exception in err's chain.
func AsException(err error) (*Exception, bool) {
	var ex *Exception
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// PanicError is a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// HookError reports which hook failed.
type HookError struct {
	Hook  string
	Point Point
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %q: %v", e.Point, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
