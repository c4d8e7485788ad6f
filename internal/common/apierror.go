package common

import (
	"errors"
	"net/http"
)

// ErrorCode identifies an authentication failure reported by the auth
// service. Codes are wire-visible and stable.
type ErrorCode string

const (
	CodeEmailNotVerified       ErrorCode = "EMAIL_NOT_VERIFIED"
	CodeUserAlreadyExists      ErrorCode = "USER_ALREADY_EXISTS_USE_ANOTHER_EMAIL"
	CodeInvalidEmailOrPassword ErrorCode = "INVALID_EMAIL_OR_PASSWORD"
	CodeInvalidPassword        ErrorCode = "INVALID_PASSWORD"
	CodePasswordTooShort       ErrorCode = "PASSWORD_TOO_SHORT"
	CodeInvalidEmailDomain     ErrorCode = "INVALID_EMAIL_DOMAIN"
	CodeInvalidToken           ErrorCode = "INVALID_TOKEN"
	CodeTokenExpired           ErrorCode = "TOKEN_EXPIRED"
	CodeAccountNotLinked       ErrorCode = "ACCOUNT_NOT_LINKED"
	CodeInvalidEmail           ErrorCode = "INVALID_EMAIL"
	CodeInvalidName            ErrorCode = "INVALID_NAME"
	CodeUserNotFound           ErrorCode = "USER_NOT_FOUND"
	CodeProviderNotFound       ErrorCode = "PROVIDER_NOT_FOUND"
	CodeUnknown                ErrorCode = "UNKNOWN"
)

// APIError is the structured error returned by the auth service for
// authentication failures. Message is safe to show to the end user.
type APIError struct {
	Code    ErrorCode
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewAPIError builds an APIError with the given status.
func NewAPIError(status int, code ErrorCode, message string) *APIError {
	return &APIError{Code: code, Message: message, Status: status}
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

var (
	ErrEmailNotVerified = NewAPIError(http.StatusForbidden, CodeEmailNotVerified, "Email not verified")
	ErrUserExists       = NewAPIError(http.StatusUnprocessableEntity, CodeUserAlreadyExists, "User already exists. Use another email.")
	ErrInvalidLogin     = NewAPIError(http.StatusUnauthorized, CodeInvalidEmailOrPassword, "Invalid email or password")
	ErrInvalidPassword  = NewAPIError(http.StatusBadRequest, CodeInvalidPassword, "Invalid password")
	ErrPasswordTooShort = NewAPIError(http.StatusBadRequest, CodePasswordTooShort, "Password too short")
	ErrInvalidDomain    = NewAPIError(http.StatusBadRequest, CodeInvalidEmailDomain, "Invalid domain. Please use a valid email.")
	ErrAPIInvalidToken  = NewAPIError(http.StatusBadRequest, CodeInvalidToken, "Invalid token")
	ErrAPITokenExpired  = NewAPIError(http.StatusBadRequest, CodeTokenExpired, "Token expired")
	ErrAccountNotLinked = NewAPIError(http.StatusConflict, CodeAccountNotLinked, "Account not linked")
	ErrInvalidEmail     = NewAPIError(http.StatusBadRequest, CodeInvalidEmail, "Invalid email")
	ErrInvalidName      = NewAPIError(http.StatusBadRequest, CodeInvalidName, "Invalid name")
	ErrUserNotFound     = NewAPIError(http.StatusNotFound, CodeUserNotFound, "User not found")
	ErrProviderNotFound = NewAPIError(http.StatusNotFound, CodeProviderNotFound, "Provider not found")
)
