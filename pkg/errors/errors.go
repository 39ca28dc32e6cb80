package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors identifying each failure kind of the review pipeline.
// AppError values wrap exactly one of these so callers can branch with errors.Is.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidationFailed   = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidToken       = errors.New("invalid verification token")
	ErrTokenExpired       = errors.New("verification token expired")
	ErrTokenAlreadyUsed   = errors.New("verification token already used")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrAlreadyVoted       = errors.New("already voted")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Outward messages that deliberately hide internal detail.
const (
	msgRateLimited = "too many requests, try again later"
	msgBadToken    = "verification link is invalid or expired"
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Status  int                 `json:"-"`
	Err     error               `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// ValidationFailed creates a 422 error carrying every failing field and its messages.
func ValidationFailed(fields map[string][]string) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Message: "request validation failed",
		Fields:  fields,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrValidationFailed,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// RateLimited creates a 429 error. The message never reveals the policy.
func RateLimited() *AppError {
	return &AppError{
		Code:    "RATE_LIMITED",
		Message: msgRateLimited,
		Status:  http.StatusTooManyRequests,
		Err:     ErrRateLimited,
	}
}

// InvalidToken creates a 400 error for an unknown verification token.
func InvalidToken() *AppError {
	return &AppError{
		Code:    "INVALID_TOKEN",
		Message: msgBadToken,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidToken,
	}
}

// TokenExpired shares the outward code of InvalidToken; only the wrapped
// sentinel tells the two apart.
func TokenExpired() *AppError {
	return &AppError{
		Code:    "INVALID_TOKEN",
		Message: msgBadToken,
		Status:  http.StatusBadRequest,
		Err:     ErrTokenExpired,
	}
}

// TokenAlreadyUsed creates a 409 error so clients can tell "already verified"
// apart from a first successful verification.
func TokenAlreadyUsed() *AppError {
	return &AppError{
		Code:    "TOKEN_ALREADY_USED",
		Message: msgBadToken,
		Status:  http.StatusConflict,
		Err:     ErrTokenAlreadyUsed,
	}
}

// InvalidState creates a 409 error for an illegal lifecycle transition.
func InvalidState(from, action string) *AppError {
	return &AppError{
		Code:    "INVALID_STATE",
		Message: fmt.Sprintf("cannot %s a review in status %s", action, from),
		Status:  http.StatusConflict,
		Err:     ErrInvalidState,
	}
}

// AlreadyVoted creates a 409 error for a duplicate helpful vote.
func AlreadyVoted() *AppError {
	return &AppError{
		Code:    "ALREADY_VOTED",
		Message: "you have already marked this review as helpful",
		Status:  http.StatusConflict,
		Err:     ErrAlreadyVoted,
	}
}

// StorageUnavailable creates a 503 error around a persistence failure.
func StorageUnavailable(err error) *AppError {
	return &AppError{
		Code:    "STORAGE_UNAVAILABLE",
		Message: "the service is temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     errors.Join(ErrStorageUnavailable, err),
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// IsDomain reports whether err already carries one of the pipeline's kinds,
// meaning it must be surfaced as-is rather than treated as a storage failure.
func IsDomain(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return true
	}
	for _, kind := range []error{
		ErrNotFound, ErrInvalidToken, ErrTokenExpired, ErrTokenAlreadyUsed,
		ErrInvalidState, ErrAlreadyVoted, ErrRateLimited, ErrValidationFailed,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusBadRequest
	case errors.Is(err, ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrAlreadyVoted), errors.Is(err, ErrTokenAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
