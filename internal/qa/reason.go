package qa

import (
	"context"
	"errors"
	"net"
)

// ErrInternal marks failures raised inside the client process rather than by the service.
var ErrInternal = errors.New("internal error")

// Reason turns a client error into text fit for the transcript.
func Reason(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	if errors.Is(err, ErrMalformedResponse) {
		return "the server returned an unexpected response"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "the request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "the request was cancelled"
	}
	if errors.Is(err, ErrInternal) {
		return "an internal error occurred"
	}
	return "the service could not be reached"
}
