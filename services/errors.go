package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeStaleSession ErrorType = "stale_session"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrTokenExpired = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)

	ErrForbidden = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)

	// ErrStaleSession is returned when a sign-in finished after a newer attempt
	// or a sign-out; its result was not stored.
	ErrStaleSession = NewDomainError(ErrorTypeStaleSession, "superseded by a newer session change", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// MaxErrorBodyLength bounds raw response text copied into error messages
const MaxErrorBodyLength = 300

// AuthReason distinguishes rejected credentials from API failures
type AuthReason string

const (
	AuthInvalidCredentials AuthReason = "invalid_credentials"
	AuthServerError        AuthReason = "server_error"
)

// AuthError is a sign-in or sign-up rejected by the API
type AuthError struct {
	Reason  AuthReason
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s (status %d): %s", e.Reason, e.Status, e.Message)
}

// NewAuthError classifies a failed auth response. Client-side statuses mean the
// credentials were rejected; anything else is a server error.
func NewAuthError(status int, raw []byte) *AuthError {
	reason := AuthServerError
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		reason = AuthInvalidCredentials
	}

	msg := MessageFromBody(status, raw)
	if msg == "" {
		if reason == AuthInvalidCredentials {
			msg = "Invalid email or password"
		} else {
			msg = "The server could not complete the request"
		}
	}
	return &AuthError{Reason: reason, Status: status, Message: msg}
}

// NetworkError is a transport failure where no response was received
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is an authorized call answered with a failing status
type HTTPError struct {
	Status  int
	Body    map[string]interface{}
	RawBody string
}

// NewHTTPError keeps the parsed JSON object when the body is one, else the raw text
func NewHTTPError(status int, raw []byte) *HTTPError {
	e := &HTTPError{Status: status, RawBody: string(raw)}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Body = body
	}
	return e
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message())
}

// Message extracts a human message: JSON message or error field, then the
// raw body truncated, then the status alone.
func (e *HTTPError) Message() string {
	if msg := messageField(e.Body); msg != "" {
		return msg
	}
	if text := truncate(strings.TrimSpace(e.RawBody)); text != "" {
		return text
	}
	return fmt.Sprintf("Request failed with status %d", e.Status)
}

// MessageFromBody applies the message extraction order to a raw body. It
// returns "" when the body carries nothing usable.
func MessageFromBody(status int, raw []byte) string {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := messageField(body); msg != "" {
			return msg
		}
		// a JSON object without a message is not useful text
		return ""
	}
	return truncate(strings.TrimSpace(string(raw)))
}

func messageField(body map[string]interface{}) string {
	for _, key := range []string{"message", "error"} {
		if s, ok := body[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// truncate cuts s to at most MaxErrorBodyLength bytes on a rune boundary
func truncate(s string) string {
	if len(s) <= MaxErrorBodyLength {
		return s
	}
	n := MaxErrorBodyLength
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsStaleSessionError checks if a session write was superseded
func IsStaleSessionError(err error) bool {
	return GetErrorType(err) == ErrorTypeStaleSession
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsAuthError checks if an error is an auth rejection
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsNetworkError checks if an error is a transport failure
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsHTTPError checks if an error is a failing API response
func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an upstream failure
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
