package backend

import (
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-200 backend response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, body)
}

// StatusCode exposes the HTTP status for retry classification.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// IsRetryable reports whether the status is transient: 408, 429 and 5xx.
func (e *StatusError) IsRetryable() bool {
	return e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests ||
		e.Code >= http.StatusInternalServerError
}
