package timetracker

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig reports a client built without a base URL or credentials.
	ErrConfig = errors.New("timetracker: incomplete configuration")
	// ErrAuth reports rejected credentials or an expired token.
	ErrAuth = errors.New("timetracker: authentication failed")
	// ErrRequest reports a failed or non-2xx request.
	ErrRequest = errors.New("timetracker: request failed")
	// ErrInvalidTask reports a task that fails validation before sending.
	ErrInvalidTask = errors.New("timetracker: invalid task")
)

// RequestError is a non-2xx answer from the time tracker.
type RequestError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: StatusCode: %d, Message: %s", e.Op, e.StatusCode, e.Message)
}

func (e *RequestError) Is(target error) bool {
	if target == ErrRequest {
		return true
	}
	return target == ErrAuth && e.StatusCode == 401
}

// IsAuthError reports whether err means the session must be re-established.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
