package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// ValidationError is a bad input shape or a business rule violation.
type ValidationError struct {
	Reason string
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string        { return e.Reason }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string        { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError is a validation error carrying what is still available.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: only %d left", e.ProductName, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrValidation }

type ConflictError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type AuthorizationError struct {
	Operation Operation
	Role      string
}

func (e *AuthorizationError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("%s requires authentication", e.Operation)
	}
	return fmt.Sprintf("role %q may not perform %s", e.Role, e.Operation)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

func notFound(entity string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String()}
}
