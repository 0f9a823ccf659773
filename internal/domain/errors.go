package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRemote is matched by every *RemoteError.
	ErrRemote         = errors.New("remote authority error")
	ErrSlotConflict   = errors.New("slot already taken")
	ErrNotFound       = errors.New("appointment not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
)

// RemoteError is a failed call to the RemoteAuthority. StatusCode is zero
// when the request never got a response.
type RemoteError struct {
	Op         string
	ID         int64
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("authority %s", e.Op)
	if e.ID != 0 {
		msg += fmt.Sprintf(" appointment %d", e.ID)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": http %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// Retryable reports transport failures, throttling and server errors.
func (e *RemoteError) Retryable() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether err carries a retryable *RemoteError.
func IsRetryable(err error) bool {
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return rerr.Retryable()
	}
	return false
}

// StatusError maps an HTTP status to the matching sentinel.
func StatusError(code int) error {
	switch {
	case code == http.StatusConflict:
		return ErrSlotConflict
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return ErrInvalidRequest
	default:
		return nil
	}
}
