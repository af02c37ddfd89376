package kiva

import (
	"errors"
	"fmt"
)

var TooManyRetriesError = errors.New("too many retries")
var UnauthorizedError = errors.New("unauthorized")
var UnableToDecodeResponseError = errors.New("unable to decode response")
var MaintenanceModeError = errors.New("server is in maintenance mode")
var MissingIdsError = errors.New("at least one id is required")

// APIError is returned when the kiva api answers with a non retryable error status
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("A kiva api error occurred. Status: %d, Message: %s, Code: %s", e.StatusCode, e.Message, e.Code)
}
