package types

import "fmt"

// ErrorCode represents a unified error code across the module.
type ErrorCode string

const (
	// ErrStoreUnavailable: the persistent store cannot be reached. This is
	// the one failure that aborts a pipeline call, since losing the memory
	// write-back breaks knowledge accumulation.
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrProviderUnavailable: the embedding or LLM provider failed. Callers
	// degrade locally instead of aborting.
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"

	// ErrInvalidRequest: malformed content or unknown agent id.
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrRoutingAmbiguous: the router used its non-deterministic default
	// fallback. Logged, never fatal.
	ErrRoutingAmbiguous ErrorCode = "ROUTING_AMBIGUOUS"

	// ErrPartialFailure: some fan-out participants failed.
	ErrPartialFailure ErrorCode = "PARTIAL_FAILURE"

	// ErrInternal covers unexpected conditions.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewStoreUnavailableError wraps a store reachability failure.
func NewStoreUnavailableError(cause error) *Error {
	return NewError(ErrStoreUnavailable, "persistent store unavailable").
		WithCause(cause).WithRetryable(true).WithHTTPStatus(503)
}

// NewProviderUnavailableError wraps an embedding or LLM provider failure.
func NewProviderUnavailableError(provider string, cause error) *Error {
	return NewError(ErrProviderUnavailable, fmt.Sprintf("provider %s unavailable", provider)).
		WithCause(cause).WithRetryable(true).WithHTTPStatus(503)
}

// NewInvalidRequestError reports a malformed request.
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(400)
}
