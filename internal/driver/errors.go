package driver

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// TransientError is a failure that may succeed if the call is repeated.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }

func (e *TransientError) Unwrap() error { return e.err }

func NewTransientError(err error) error {
	return &TransientError{err: err}
}

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// maxDetail bounds how much of a response body ends up in an error.
const maxDetail = 200

// classifyStatus maps a non-2xx driver response to an error.
func classifyStatus(status int, body []byte) error {
	msg := string(body)
	if len(msg) > maxDetail {
		cut := maxDetail
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	err := fmt.Errorf("driver error (status %d): %s", status, msg)
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return NewTransientError(err)
	default:
		return err
	}
}
