package canonical

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported = errors.New("unsupported value")
	ErrTooLarge    = errors.New("value exceeds size limit")
	ErrTooDeep     = errors.New("nesting exceeds depth limit")
	ErrInvalidText = errors.New("string is not valid UTF-8")
)

// Error reports where canonicalization failed. It names the field path and
// the failure class only; content never appears in the message.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("canonicalize: %v", e.Err)
	}
	return fmt.Sprintf("canonicalize %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(path string, err error) error {
	return &Error{Path: path, Err: err}
}
