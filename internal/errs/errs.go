// Package errs defines the error kinds shared by the tracking, scoring and
// ingestion layers. Every kind works with errors.As and unwraps to its cause.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// NotFoundError reports a missing visitor, fingerprint, category or content record.
type NotFoundError struct {
	Entity string
	Key    interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.Key)
}

// PersistenceError wraps a storage failure. It is always propagated to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError rejects a single malformed event or request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ConflictError signals a lost unique-constraint race. Callers retry it internally.
type ConflictError struct {
	Entity string
	Key    interface{}
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting %s: %v", e.Entity, e.Key)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func NotFound(entity string, key interface{}) error {
	return &NotFoundError{Entity: entity, Key: key}
}

func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func Conflict(entity string, key interface{}, err error) error {
	return &ConflictError{Entity: entity, Key: key, Err: err}
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsUniqueViolation detects SQLite unique constraint failures. The driver does not
// expose a typed error for them, so the message is matched.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

// FromStore translates a gorm error into the matching kind.
func FromStore(op, entity string, key interface{}, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(entity, key)
	case IsUniqueViolation(err):
		return Conflict(entity, key, err)
	default:
		return Persistence(op, err)
	}
}
