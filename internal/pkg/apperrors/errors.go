package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	// ErrValidation is bad input that never went over the network.
	ErrValidation ErrorType = "VALIDATION_ERROR"
	// ErrAuthRejected means the upstream explicitly denied credentials, OTP or PIN.
	ErrAuthRejected ErrorType = "AUTH_REJECTED"
	// ErrTransient covers timeouts, 5xx and connection resets. Retryable.
	ErrTransient ErrorType = "TRANSIENT"
	// ErrFatal is a malformed or unexpected upstream response. Not retryable.
	ErrFatal ErrorType = "FATAL"
	// ErrUnknown means the request may have been delivered. Never treat as success or clean failure.
	ErrUnknown ErrorType = "UNKNOWN_OUTCOME"

	ErrInvalidSecret ErrorType = "INVALID_SECRET"
	ErrNotFound      ErrorType = "NOT_FOUND"
	ErrRateLimited   ErrorType = "RATE_LIMITED"
	ErrUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrForbidden     ErrorType = "FORBIDDEN"
	ErrReadOnly      ErrorType = "READ_ONLY"
	ErrConflict      ErrorType = "CONFLICT"
	ErrRiskRejected  ErrorType = "RISK_REJECTED"
	ErrInternal      ErrorType = "INTERNAL_ERROR"
)

// Phases name the step of the flow an error came from.
const (
	PhaseConfig      = "config"
	PhaseCredentials = "credentials"
	PhaseOTP         = "otp"
	PhaseLogin       = "login"
	PhaseValidate    = "validate"
	PhasePlaceOrder  = "place_order"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type           ErrorType `json:"code"`
	Message        string    `json:"message"`
	Phase          string    `json:"phase,omitempty"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Body           string    `json:"upstream_body,omitempty"`
	Suggestion     string    `json:"suggestion,omitempty"`
	HTTPStatus     int       `json:"-"`
	Cause          error     `json:"-"`
}

func (e *AppError) Error() string {
	var b strings.Builder
	if e.Phase != "" {
		b.WriteString(e.Phase)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.UpstreamStatus != 0 {
		fmt.Fprintf(&b, " (http %d)", e.UpstreamStatus)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, "; body: %s", e.Body)
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewValidation(msg string) *AppError {
	return New(ErrValidation, msg, nil)
}

// WithPhase records which step of the flow failed.
func (e *AppError) WithPhase(phase string) *AppError {
	e.Phase = phase
	return e
}

// WithUpstream attaches the upstream HTTP status and raw body.
func (e *AppError) WithUpstream(status int, body []byte) *AppError {
	e.UpstreamStatus = status
	e.Body = truncate(string(body), 2048)
	return e
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

func Retryable(err error) bool {
	return IsType(err, ErrTransient)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation, ErrInvalidSecret:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden, ErrReadOnly:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrRiskRejected:
		return http.StatusUnprocessableEntity
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAuthRejected, ErrFatal:
		return http.StatusBadGateway
	case ErrTransient:
		return http.StatusServiceUnavailable
	case ErrUnknown:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrValidation:
		return "Fix the order fields; nothing was sent."
	case ErrAuthRejected:
		return "Check consumer key, mobile number, UCC, MPIN and TOTP secret."
	case ErrRiskRejected:
		return "The order breaches a configured pre-trade limit; nothing was sent."
	case ErrInvalidSecret:
		return "The TOTP secret must be base32."
	case ErrTransient:
		return "Retry later; the upstream was unavailable."
	case ErrUnknown:
		return "Check the order book before retrying; the order may have been placed."
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
