package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error type for chat operations.
type ErrorCode string

const (
	// ErrCodeValidationFailed indicates empty, oversized or unsafe input, or a malformed identifier.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeRateLimitExceeded indicates the user or origin window is full.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeSuspiciousActivity indicates the origin is blocked or the request scored as abusive.
	ErrCodeSuspiciousActivity ErrorCode = "SUSPICIOUS_ACTIVITY"
	// ErrCodeSessionNotFound indicates the session does not exist or is inactive.
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	// ErrCodeForbidden indicates the caller may not act on the resource, e.g. another user's session.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeToolExecutionFailed indicates a tool failed. Never surfaced to clients.
	ErrCodeToolExecutionFailed ErrorCode = "TOOL_EXECUTION_FAILED"
	// ErrCodeModelUnavailable indicates the model provider failed or timed out.
	ErrCodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	// ErrCodePersistenceFailed indicates the session store failed.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
)

// ChatError represents a structured error for chat operations.
type ChatError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *ChatError) WithContext(key string, value any) *ChatError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *ChatError) GetCode() ErrorCode {
	return e.Code
}

// HTTPStatus maps the code to the status the REST surface answers with.
func (e *ChatError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeSuspiciousActivity:
		if blocked, _ := e.Context["blocked"].(bool); blocked {
			return http.StatusForbidden
		}
		return http.StatusBadRequest
	case ErrCodeSessionNotFound:
		return http.StatusNotFound
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors for common error types.

// Validation creates a validation error.
func Validation(msg string) *ChatError {
	return &ChatError{Code: ErrCodeValidationFailed, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *ChatError {
	return &ChatError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// SuspiciousActivity creates a suspicious activity error. blocked reports
// whether the origin is now on the block list.
func SuspiciousActivity(msg string, blocked bool) *ChatError {
	return (&ChatError{Code: ErrCodeSuspiciousActivity, Message: msg}).WithContext("blocked", blocked)
}

// SessionNotFound creates a session not found error.
func SessionNotFound(sessionID string) *ChatError {
	return (&ChatError{Code: ErrCodeSessionNotFound, Message: "session not found"}).WithContext("session_id", sessionID)
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *ChatError {
	return &ChatError{Code: ErrCodeForbidden, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *ChatError {
	return &ChatError{Code: ErrCodeUnauthorized, Message: msg}
}

// ToolExecutionFailed creates a tool execution error.
func ToolExecutionFailed(tool string, cause error) *ChatError {
	return (&ChatError{Code: ErrCodeToolExecutionFailed, Message: "tool execution failed", Cause: cause}).WithContext("tool", tool)
}

// ModelUnavailable creates a model unavailable error.
func ModelUnavailable(cause error) *ChatError {
	return &ChatError{Code: ErrCodeModelUnavailable, Message: "model provider unavailable", Cause: cause}
}

// PersistenceFailed creates a persistence error.
func PersistenceFailed(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodePersistenceFailed, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *ChatError {
	return &ChatError{Code: code, Message: msg, Cause: cause}
}

// As returns the first ChatError in err's chain.
func As(err error) (*ChatError, bool) {
	var chatErr *ChatError
	if stderrors.As(err, &chatErr) {
		return chatErr, true
	}
	return nil, false
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if chatErr, ok := As(err); ok {
		return chatErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a ChatError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if chatErr, ok := As(err); ok {
		return chatErr.Code
	}
	return defaultCode
}
