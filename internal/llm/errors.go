package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/sashabaranov/go-openai"
)

// FailureReason identifies why a request against a backend failed.
type FailureReason string

const (
	FailureConnection FailureReason = "connection_error"
	FailureTimeout    FailureReason = "timeout"
	FailureHTTPStatus FailureReason = "http_status"
	FailureMalformed  FailureReason = "malformed_response"
	FailureEmpty      FailureReason = "empty_completion"
	// FailureCancelled marks operator-initiated cancellation, which is not
	// a fault of the backend under test.
	FailureCancelled FailureReason = "cancelled"
)

// RequestError is a classified transport or protocol failure.
type RequestError struct {
	Reason FailureReason
	// Status is the HTTP status code when Reason is FailureHTTPStatus.
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Reason, e.Status, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by a Client into a RequestError.
// Already-classified errors pass through unchanged.
func Classify(err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &RequestError{Reason: FailureHTTPStatus, Status: apiErr.HTTPStatusCode, Err: err}
	}

	var httpErr *openai.RequestError
	if errors.As(err, &httpErr) {
		return &RequestError{Reason: FailureHTTPStatus, Status: httpErr.HTTPStatusCode, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestError{Reason: FailureTimeout, Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return &RequestError{Reason: FailureCancelled, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &RequestError{Reason: FailureTimeout, Err: err}
		}
		return &RequestError{Reason: FailureConnection, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &RequestError{Reason: FailureMalformed, Err: err}
	}

	return &RequestError{Reason: FailureConnection, Err: err}
}
