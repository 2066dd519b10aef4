package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAlreadyCaptured        = errors.New("transaction already captured")
	ErrOrderNotCapturable     = errors.New("order is not in a capturable state")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidCurrency        = errors.New("invalid currency")

	// Checkout errors
	ErrTokenMismatch   = errors.New("result token does not match stored success token")
	ErrNoPendingStepUp = errors.New("no step-up authentication pending for order")
	ErrStepUpPending   = errors.New("step-up authentication already pending for order")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// ClientError is a 4xx gateway response: the request was malformed or rejected
// upstream. Never retried.
type ClientError struct {
	Status      int
	Cause       string
	Explanation string
}

func (e *ClientError) Error() string {
	if e.Explanation != "" {
		return fmt.Sprintf("gateway rejected request (%d %s): %s", e.Status, e.Cause, e.Explanation)
	}
	return fmt.Sprintf("gateway rejected request (%d %s)", e.Status, e.Cause)
}

// ServerError is a 5xx gateway response or an unparsable body. Eligible for the
// client-level retry policy.
type ServerError struct {
	Status int
	Cause  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gateway server error (%d): %s", e.Status, e.Cause)
}

// ResponseShapeError is a well-formed transport response missing a required
// field. Fatal for that call.
type ResponseShapeError struct {
	Operation string
	Field     string
}

func (e *ResponseShapeError) Error() string {
	return fmt.Sprintf("%s response missing required field %q", e.Operation, e.Field)
}

// BusinessDecline is a transport-level success whose result is not SUCCESS, or
// a step-up recommendation other than proceed. An expected outcome, not a fault.
type BusinessDecline struct {
	Operation      string
	Result         string
	Recommendation string
}

func (e *BusinessDecline) Error() string {
	if e.Recommendation != "" {
		return fmt.Sprintf("%s declined: recommendation %s", e.Operation, e.Recommendation)
	}
	return fmt.Sprintf("%s declined: result %s", e.Operation, e.Result)
}

// ValidationMismatch is an amount or currency disagreement between the local
// order and the gateway's record. Fatal; may indicate tampering or a
// configuration bug.
type ValidationMismatch struct {
	Field  string
	Local  string
	Remote string
}

func (e *ValidationMismatch) Error() string {
	return fmt.Sprintf("reconciliation mismatch on %s: local %q, gateway %q", e.Field, e.Local, e.Remote)
}

// Retryable reports whether the error may be retried with the same reference.
func Retryable(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents an input validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
