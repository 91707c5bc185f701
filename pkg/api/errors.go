package api

import "fmt"

// ErrorType is the coarse category carried in every error body. Transports
// derive their status codes from it.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeAuthentication  ErrorType = "authentication_error"
	ErrorTypeSandboxError    ErrorType = "sandbox_error"
	ErrorTypeTimeout         ErrorType = "timeout"
)

// APIError is the error value returned across package boundaries and
// serialized to clients. Param names the offending request field, if any.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
}

// ErrorResponse is the top-level JSON body of a failed request.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newError(t ErrorType, msg string) *APIError {
	return &APIError{Type: t, Message: msg}
}

// NewInvalidRequestError reports a malformed request; param names the field.
func NewInvalidRequestError(param, message string) *APIError {
	e := newError(ErrorTypeInvalidRequest, message)
	e.Param = param
	return e
}

func NewNotFoundError(message string) *APIError { return newError(ErrorTypeNotFound, message) }

func NewServerError(message string) *APIError { return newError(ErrorTypeServerError, message) }

// NewModelError reports a failed or unusable chat-completion call.
func NewModelError(message string) *APIError { return newError(ErrorTypeModelError, message) }

func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, message)
}

// NewAuthenticationError covers rejected credentials, either the caller's
// or the ones tabula presents to the model backend.
func NewAuthenticationError(message string) *APIError {
	return newError(ErrorTypeAuthentication, message)
}

// NewSandboxError reports an execution environment that could not be set up.
// Failures of the executed code itself are results, not errors.
func NewSandboxError(message string) *APIError { return newError(ErrorTypeSandboxError, message) }

// NewTimeoutError reports an expired round or analysis watchdog.
func NewTimeoutError(message string) *APIError { return newError(ErrorTypeTimeout, message) }
