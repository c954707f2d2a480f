package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
)

// Submission workflow error codes.
const (
	ErrPreconditionFailed = "PRECONDITION_FAILED"
	ErrNetworkError       = "NETWORK_ERROR"
	ErrServerRejection    = "SERVER_REJECTION"
	ErrUploadStepError    = "UPLOAD_STEP_ERROR"
	ErrPhaseNotCommitted  = "PHASE_NOT_COMMITTED"
	ErrDraftExpired       = "DRAFT_EXPIRED"
	ErrSubmitInFlight     = "SUBMIT_IN_FLIGHT"
)

// genericRejectionMessage is surfaced when the backend rejects a request
// without a usable message of its own.
const genericRejectionMessage = "The request could not be processed. Please try again."

// ErrorEnvelope is the standard error response envelope returned by the
// service. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
// Validation failures are purely local: the request never reached the backend.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewPreconditionError returns a PRECONDITION_FAILED error. A missing draft
// identifier in phases 2-4 is fatal: the workflow must restart from phase 1.
func NewPreconditionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrPreconditionFailed, Message: msg}
}

// NewNetworkError returns a NETWORK_ERROR. Retryable; no draft state changed.
func NewNetworkError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNetworkError, Message: msg}
}

// NewServerRejectionError returns a SERVER_REJECTION carrying the backend's
// own message verbatim when present, or a generic fallback otherwise.
func NewServerRejectionError(msg string) *ErrorEnvelope {
	if msg == "" {
		msg = genericRejectionMessage
	}
	return &ErrorEnvelope{Code: ErrServerRejection, Message: msg}
}

// NewUploadStepError returns an UPLOAD_STEP_ERROR scoped to a single asset.
func NewUploadStepError(localID, msg string) *ErrorEnvelope {
	if msg == "" {
		msg = genericRejectionMessage
	}
	return &ErrorEnvelope{
		Code:    ErrUploadStepError,
		Message: msg,
		Details: []FieldError{{Field: localID, Code: ErrUploadStepError, Message: msg}},
	}
}

// NewPhaseNotCommittedError returns a PHASE_NOT_COMMITTED error. Advancing
// past a step whose commit has not succeeded is rejected.
func NewPhaseNotCommittedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrPhaseNotCommitted, Message: msg}
}

// NewSubmitInFlightError returns a SUBMIT_IN_FLIGHT error, the guard against
// double submission of the same phase.
func NewSubmitInFlightError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrSubmitInFlight, Message: msg}
}

// NewDraftExpiredError returns a DRAFT_EXPIRED error.
func NewDraftExpiredError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrDraftExpired, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The backend service is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The backend service did not respond in time",
	}
}
