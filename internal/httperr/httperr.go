// Package httperr defines the JSON error envelope the gateway writes at the
// HTTP boundary. Governance denials never surface as bare status codes; every
// blocked request gets a structured body the client can act on.
package httperr

import (
	"encoding/json"
	"net/http"
	"time"
)

// Code identifies the class of error in a response envelope.
type Code string

const (
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeMaintenanceMode    Code = "MAINTENANCE_MODE"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error is a user-facing error carried to the response envelope.
type Error struct {
	Code      Code       `json:"code"`
	Message   string     `json:"message"`
	Retryable bool       `json:"retryable"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// RateLimited builds the quota-exceeded error. The caller retries after resetAt.
func RateLimited(message string, resetAt time.Time) *Error {
	return &Error{
		Code:      CodeRateLimitExceeded,
		Message:   message,
		Retryable: true,
		ResetAt:   &resetAt,
	}
}

// Maintenance builds the maintenance-mode error.
func Maintenance(message string) *Error {
	return &Error{Code: CodeMaintenanceMode, Message: message, Retryable: true}
}

// Forbidden builds the cross-origin rejection error.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message, Retryable: false}
}

// Internal builds a generic server-side error.
func Internal(message string) *Error {
	return &Error{Code: CodeInternalError, Message: message, Retryable: false}
}

// NotFound builds the unmatched-route error.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Retryable: false}
}

// Unavailable builds a retryable service-unavailable error.
func Unavailable(message string) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: message, Retryable: true}
}

type envelope struct {
	Error *Error `json:"error"`
}

// Respond writes err as the standard envelope with the given status. The
// request ID is threaded in by the caller so this package stays free of
// middleware context keys.
func Respond(w http.ResponseWriter, status int, err *Error, requestID string) {
	if err == nil {
		err = Internal("unknown error")
	}
	if requestID != "" {
		err.RequestID = requestID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: err})
}
