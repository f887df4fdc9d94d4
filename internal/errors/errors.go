package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies ingest failures.
type ErrorType string

const (
	ErrorTypePacketMalformed  ErrorType = "PACKET_MALFORMED"
	ErrorTypeTrackUnresolved  ErrorType = "TRACK_UNRESOLVED"
	ErrorTypeFetchFailed      ErrorType = "FETCH_FAILED"
	ErrorTypeKeyframeNotFound ErrorType = "KEYFRAME_NOT_FOUND"
	ErrorTypeShortRead        ErrorType = "SHORT_READ"
	ErrorTypePersistFailed    ErrorType = "PERSIST_FAILED"
	ErrorTypeValidation       ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeInternal         ErrorType = "INTERNAL_ERROR"
)

// httpStatus maps each type onto the status server's response code.
var httpStatus = map[ErrorType]int{
	ErrorTypePacketMalformed:  http.StatusUnprocessableEntity,
	ErrorTypeTrackUnresolved:  http.StatusServiceUnavailable,
	ErrorTypeFetchFailed:      http.StatusBadGateway,
	ErrorTypeKeyframeNotFound: http.StatusNotFound,
	ErrorTypeShortRead:        http.StatusOK,
	ErrorTypePersistFailed:    http.StatusInternalServerError,
	ErrorTypeValidation:       http.StatusBadRequest,
	ErrorTypeNotFound:         http.StatusNotFound,
	ErrorTypeInternal:         http.StatusInternalServerError,
}

// AppError represents an ingest error with additional context.
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code used when this error reaches the
// status server.
func (e *AppError) HTTPStatus() int {
	if status, ok := httpStatus[e.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithOffset records the byte offset the error refers to.
func (e *AppError) WithOffset(offset int64) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, 1)
	}
	e.Details["offset"] = offset
	return e
}

// New creates a new AppError.
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
	}
}

// Wrap wraps an existing error.
func Wrap(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// NewTrackUnresolvedError reports that no video PID could be found.
func NewTrackUnresolvedError(message string) *AppError {
	return New(ErrorTypeTrackUnresolved, message)
}

// WrapFetchError reports a range fetch that exhausted its attempts.
func WrapFetchError(err error, offset int64) *AppError {
	return Wrap(err, ErrorTypeFetchFailed, "range fetch failed").WithOffset(offset)
}

// NewKeyframeNotFoundError reports an alignment probe without an IDR frame.
func NewKeyframeNotFoundError(offset int64) *AppError {
	return New(ErrorTypeKeyframeNotFound, "no IDR frame found near offset").WithOffset(offset)
}

// WrapPersistError reports a sink write failure.
func WrapPersistError(err error, offset int64) *AppError {
	return Wrap(err, ErrorTypePersistFailed, "failed to persist chunk").WithOffset(offset)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

// WrapInternalError wraps an error as an internal error.
func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message)
}

// GetAppError extracts an AppError anywhere in the error chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Type == errType
}
