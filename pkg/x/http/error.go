package http

import (
	"errors"
	"net/http"
)

// BizError carries the status code a handler failure maps to.
type BizError interface {
	error

	Code() int
	Unwrap() error
}

type bizError struct {
	code int
	err  error
}

// NewBizError wraps err with an HTTP status code. A nil err is replaced by
// the status text.
func NewBizError(code int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(code))
	}
	return &bizError{code: code, err: err}
}

func (e *bizError) Error() string {
	return e.err.Error()
}

func (e *bizError) Code() int {
	return e.code
}

func (e *bizError) Unwrap() error {
	return e.err
}

// ParseBizError finds a BizError in err's chain.
func ParseBizError(err error) (BizError, bool) {
	var e *bizError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
