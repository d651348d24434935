package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"taskchat/internal/domain"
	"taskchat/internal/token"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError(message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(http.StatusBadRequest))
	}
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewConflictError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusConflict,
		Message:    lower(http.StatusText(http.StatusConflict)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError(code string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Code:       code,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError(message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(http.StatusForbidden))
	}
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    message,
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// fromError is the single translation boundary from domain and token errors
// to HTTP status codes.
func fromError(err error) *ApiError {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var authErr *domain.AuthorizationError
	var vErr *domain.ValidationError

	switch {
	case errors.As(err, &authErr):
		return NewForbiddenError(authErr.Reason)
	case errors.As(err, &vErr):
		return NewBadRequestError(vErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		return NewNotFoundError()
	case errors.Is(err, domain.ErrConflict):
		return NewConflictError()
	case errors.Is(err, token.ErrTokenExpired):
		return NewUnauthorizedError(tokenExpiredCode)
	case errors.Is(err, token.ErrTokenInvalid):
		return NewUnauthorizedError(tokenInvalidCode)
	default:
		return NewInternalServerError(err)
	}
}
