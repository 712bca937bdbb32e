package batch

import (
	"fmt"

	"github.com/go-faster/errors"

	"fanout/pkg/request"
)

var (
	// ErrNoContent is returned by Response.JSON when the body was not captured.
	ErrNoContent = errors.New("response content was not captured")
	// ErrBodyConflict fails a request that carries both a raw and a JSON body.
	ErrBodyConflict = errors.New("data and json bodies cannot be used at the same time")
	// ErrInvalidSize is a batch setup error.
	ErrInvalidSize = errors.New("batch size must be greater than zero")
	// ErrInvalidTimeout is a batch setup error.
	ErrInvalidTimeout = errors.New("batch timeout must not be negative")
)

// RequestError is the failure detail passed to the OnFailure target.
type RequestError struct {
	Request *request.Request
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf(`request %s "%s" failed: %s`, e.Request.Method(), e.Request.URL(), e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// panicError converts a recovered value to an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return errors.Wrap(err, "panic")
	}
	return errors.Errorf("panic: %v", r)
}
