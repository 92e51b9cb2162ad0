package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the registry, ingestion and query layers.
// Callers wrap them with fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDuplicateName      = errors.New("duplicate case name")
	ErrNamespaceCollision = errors.New("namespace collision")
	ErrMalformedInput     = errors.New("malformed input")
	ErrEmptyPayload       = errors.New("empty payload")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrFieldCoercion      = errors.New("field coercion failure")
	ErrStorageFailure     = errors.New("storage failure")
	ErrForbiddenQuery     = errors.New("forbidden query")
	ErrRunNotRetryable    = errors.New("ingestion run not retryable")
)

// CustomError carries an HTTP status and an error type through fiber's error handler.
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// CoercionError describes why one field of one record could not be converted
// to its column type. It unwraps to ErrFieldCoercion.
type CoercionError struct {
	Column string
	Value  any
	Reason string
}

func (e *CoercionError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("column %q: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("column %q: %s (got %v)", e.Column, e.Reason, e.Value)
}

func (e *CoercionError) Unwrap() error {
	return ErrFieldCoercion
}
