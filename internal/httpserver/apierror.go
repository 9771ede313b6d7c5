package httpserver

import "net/http"

// Code is one of the stable error identifiers surfaced to clients (spec §7).
type Code string

const (
	CodeValidationError      Code = "VALIDATION_ERROR"
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeIdempotencyConflict  Code = "IDEMPOTENCY_CONFLICT"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeQuotaExceeded        Code = "QUOTA_EXCEEDED"
	CodeConcurrencyLimit     Code = "CONCURRENCY_LIMIT"
	CodeInternalError        Code = "INTERNAL_ERROR"
)

var codeStatus = map[Code]int{
	CodeValidationError:     http.StatusBadRequest,
	CodeInvalidRequest:      http.StatusBadRequest,
	CodeUnauthorized:        http.StatusUnauthorized,
	CodeForbidden:           http.StatusForbidden,
	CodeNotFound:            http.StatusNotFound,
	CodeIdempotencyConflict: http.StatusConflict,
	CodeRateLimited:         http.StatusTooManyRequests,
	CodeQuotaExceeded:       http.StatusForbidden,
	CodeConcurrencyLimit:    http.StatusTooManyRequests,
	CodeInternalError:       http.StatusInternalServerError,
}

// FieldError is one entry in a validation error's Details.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is the union-shaped error value every admission/worker
// service-layer function returns on a client-visible failure (Design Notes,
// "Union-shaped error values"). Exactly one function, WriteHTTP, maps it to
// an HTTP response.
type APIError struct {
	Code    Code         `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewAPIError builds an APIError for a stable code and message.
func NewAPIError(code Code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// NewValidationError builds a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *APIError {
	return &APIError{
		Code:    CodeValidationError,
		Message: "one or more fields failed validation",
		Details: details,
	}
}

// StatusFor returns the HTTP status for an APIError's code, defaulting to 500.
func (e *APIError) StatusFor() int {
	if status, ok := codeStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorEnvelope is the wire shape for every error response (spec §6.1):
// {success:false, error:{code, message, details?}}.
type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// WriteHTTP maps an APIError to an HTTP response at the boundary. Internal
// errors never leak their original message to the client; validation
// details are the one category of internal detail the spec says to surface.
func WriteHTTP(w http.ResponseWriter, err *APIError) {
	public := err
	if err.Code == CodeInternalError {
		public = &APIError{Code: CodeInternalError, Message: "an internal error occurred"}
	}
	Respond(w, err.StatusFor(), errorEnvelope{Success: false, Error: public})
}
