package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application.
var (
	ErrNotFound              = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists         = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation            = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation      = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied      = new(ErrCodePermissionDenied, "permission denied")
	ErrInsufficientCredit    = new(ErrCodeInsufficientCredit, "insufficient credit")
	ErrQuotaExceeded         = new(ErrCodeQuotaExceeded, "plan quota exceeded")
	ErrInvalidTransition     = new(ErrCodeInvalidTransition, "illegal state transition")
	ErrOrchestratorTransient = new(ErrCodeOrchestratorTransient, "orchestrator temporarily unavailable")
	ErrOrchestratorPermanent = new(ErrCodeOrchestratorPermanent, "orchestrator rejected the request")
	ErrReadyTimeout          = new(ErrCodeReadyTimeout, "workload did not become ready in time")
	ErrLedgerConflict        = new(ErrCodeLedgerConflict, "ledger serialization conflict")
	ErrDatabase              = new(ErrCodeDatabase, "database error")
	ErrSystem                = new(ErrCodeSystemError, "system error")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:              http.StatusNotFound,
		ErrAlreadyExists:         http.StatusConflict,
		ErrValidation:            http.StatusBadRequest,
		ErrInvalidOperation:      http.StatusBadRequest,
		ErrPermissionDenied:      http.StatusForbidden,
		ErrInsufficientCredit:    http.StatusBadRequest,
		ErrQuotaExceeded:         http.StatusServiceUnavailable,
		ErrInvalidTransition:     http.StatusBadRequest,
		ErrOrchestratorTransient: http.StatusServiceUnavailable,
		ErrOrchestratorPermanent: http.StatusBadGateway,
		ErrReadyTimeout:          http.StatusGatewayTimeout,
		ErrLedgerConflict:        http.StatusConflict,
		ErrDatabase:              http.StatusInternalServerError,
		ErrSystem:                http.StatusInternalServerError,
	}
)

const (
	ErrCodeNotFound              = "not_found"
	ErrCodeAlreadyExists         = "already_exists"
	ErrCodeValidation            = "validation_error"
	ErrCodeInvalidOperation      = "invalid_operation"
	ErrCodePermissionDenied      = "permission_denied"
	ErrCodeInsufficientCredit    = "insufficient_credit"
	ErrCodeQuotaExceeded         = "quota_exceeded"
	ErrCodeInvalidTransition     = "invalid_transition"
	ErrCodeOrchestratorTransient = "orchestrator_transient"
	ErrCodeOrchestratorPermanent = "orchestrator_permanent"
	ErrCodeReadyTimeout          = "timeout_ready"
	ErrCodeLedgerConflict        = "ledger_conflict"
	ErrCodeDatabase              = "database_error"
	ErrCodeSystemError           = "system_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsInsufficientCredit checks if an error is an insufficient credit error
func IsInsufficientCredit(err error) bool {
	return errors.Is(err, ErrInsufficientCredit)
}

// IsQuotaExceeded checks if an error is a quota exhaustion error
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsInvalidTransition checks if an error is an illegal state transition
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsOrchestratorTransient checks if an error is retryable at the orchestrator
func IsOrchestratorTransient(err error) bool {
	return errors.Is(err, ErrOrchestratorTransient)
}

// IsLedgerConflict checks if an error is a serialization conflict
func IsLedgerConflict(err error) bool {
	return errors.Is(err, ErrLedgerConflict)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
