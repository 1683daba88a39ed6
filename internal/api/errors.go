package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized marks errors caused by a 401 that survived the refresh
// protocol. errors.Is friendly.
var ErrUnauthorized = errors.New("api: unauthorized")

// StatusError is a non-2xx response surfaced to the caller. Message carries
// the server's text body when one was readable.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// IsStatus reports whether err is a StatusError with the given status code.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
