// Package errors holds the console's sentinel errors and the typed errors
// returned by the backend client, the plan workflow and input validation.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyTicker          = errors.New("ticker is required")
	ErrConfirmationDeclined = errors.New("confirmation declined")
	ErrActionNotOffered     = errors.New("action not offered for plan status")
	ErrPlanNotFound         = errors.New("trade plan not found")
	ErrInvalidMode          = errors.New("invalid trading mode")
	ErrInputValidation      = errors.New("input validation failed")
	ErrReadOnlyMode         = errors.New("operation blocked: read-only mode enabled")
	ErrConfigInvalid        = errors.New("invalid configuration")

	ErrConnectionFailed   = errors.New("connection failed")
	ErrTimeout            = errors.New("operation timed out")
	ErrRelayNotConnected  = errors.New("relay not connected")
	ErrReconnectExhausted = errors.New("max reconnection attempts reached")

	ErrDataNotFound  = errors.New("data not found")
	ErrDatabaseError = errors.New("database error")
)

// APIError is a failure reported by the backend: a non-2xx status, or a
// 2xx body carrying {"error": "..."}.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
}

// NewAPIError creates a new APIError.
func NewAPIError(method, endpoint string, status int, message string) *APIError {
	return &APIError{Method: method, Endpoint: endpoint, StatusCode: status, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error [%d] %s %s: %s", e.StatusCode, e.Method, e.Endpoint, e.ServerMessage())
}

// Retryable reports whether the backend failed on its side (5xx).
func (e *APIError) Retryable() bool { return e.StatusCode >= 500 }

// ServerMessage is the backend's message, or the status text without one.
func (e *APIError) ServerMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.StatusCode > 0:
		return http.StatusText(e.StatusCode)
	default:
		return "unknown error"
	}
}

// NetworkError is a transport failure before any response arrived.
type NetworkError struct {
	Endpoint string
	Err      error
}

// NewNetworkError creates a new NetworkError.
func NewNetworkError(endpoint string, err error) *NetworkError {
	return &NetworkError{Endpoint: endpoint, Err: err}
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error [%s]: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a network failure or a 5xx response.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// UserMessage is the text shown to the user for err. Backend failures show
// the backend's own message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ServerMessage()
	}
	return err.Error()
}

// PlanError is a plan action that failed. Status is the plan's status at the
// time, when known.
type PlanError struct {
	PlanID string
	Action string
	Status string
	Err    error
}

// NewPlanError creates a new PlanError.
func NewPlanError(planID, action, status string, err error) *PlanError {
	return &PlanError{PlanID: planID, Action: action, Status: status, Err: err}
}

func (e *PlanError) Error() string {
	subject := e.PlanID
	if e.Status != "" {
		subject += " (" + e.Status + ")"
	}
	return fmt.Sprintf("cannot %s plan %s: %v", e.Action, subject, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// ValidationError rejects a single input field. It matches ErrInputValidation.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, fmt.Sprint(e.Value), e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInputValidation }

// Wrap prefixes err with message. It returns nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted prefix.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
