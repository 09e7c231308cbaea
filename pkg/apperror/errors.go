package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDuplicateKey is returned by repositories when a unique constraint is
// violated (wallet already provisioned, request key already recorded).
var ErrDuplicateKey = errors.New("duplicate key")

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Wallet Business Logic (WAL) ----

func ErrCustomerNotFound(customerID int64) *AppError {
	return New("WAL_001", fmt.Sprintf("customer %d does not exist", customerID), http.StatusNotFound)
}

func ErrInsufficientBalance() *AppError {
	return New("WAL_002", "insufficient balance", http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("WAL_003", "amount must be a positive value", http.StatusBadRequest)
}

// ---- Event Pipeline (EVT) ----

// ErrEventSerialization marks a permanently malformed event payload.
// Never retried: a payload that cannot be serialized cannot be delivered.
func ErrEventSerialization(err error) *AppError {
	return Wrap("EVT_001", "event serialization failed", http.StatusInternalServerError, err)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("WAL_003", message, http.StatusBadRequest)
}
