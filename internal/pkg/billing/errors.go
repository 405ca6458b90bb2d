package billing

import (
	"errors"
	"fmt"
)

// Code classifies billing failures so handlers can map them to HTTP statuses
// and callers can branch without inspecting error text.
type Code string

const (
	CodeInvalidPlan              Code = "invalid_plan"
	CodeAmountMismatch           Code = "amount_mismatch"
	CodeAmountRequired           Code = "amount_required"
	CodeIdempotencyKeyReuse      Code = "idempotency_key_reuse"
	CodeAmountValidationFailed   Code = "amount_validation_failed"
	CodeProviderAmountMismatch   Code = "provider_amount_mismatch"
	CodeProviderCurrencyMismatch Code = "provider_currency_mismatch"
	CodePlanTypeMissing          Code = "plan_type_missing"
	CodeIntegrityViolation       Code = "integrity_violation"
	CodeComplianceDenied         Code = "compliance_denied"
	CodeNotFound                 Code = "not_found"
	CodeGatewayFailure           Code = "gateway_failure"
	CodeConflict                 Code = "conflict"
	CodeInternal                 Code = "internal"
)

// Error is a coded billing failure. It wraps an optional cause so sentinel
// checks through errors.Is still work.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// E creates a coded error.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Ef creates a coded error with a formatted message.
func Ef(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the billing code from an error chain, CodeInternal when
// the error carries none.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given billing code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
