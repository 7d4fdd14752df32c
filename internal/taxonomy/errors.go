// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package taxonomy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"taxonomy/internal/tree"
)

// Sentinel errors. Stores return ErrNotFound, ErrDuplicateSlug and
// ErrConflict; the service adds the rest.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("category not found")
	ErrParentNotFound    = fmt.Errorf("parent %w", ErrNotFound)
	ErrDuplicateSlug     = errors.New("slug already in use")
	ErrCycleDetected     = errors.New("move would create a cycle")
	ErrHasActiveChildren = errors.New("category has children")
	ErrConflict          = errors.New("concurrent modification conflict")
	ErrTooDeep           = tree.ErrTooDeep
)

// Error carries the failing operation and category alongside a sentinel.
type Error struct {
	Op     string
	ID     uuid.UUID
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if e.ID != uuid.Nil {
		msg += " (" + e.ID.String() + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func opError(op string, id uuid.UUID, err error, detail string) *Error {
	return &Error{Op: op, ID: id, Err: err, Detail: detail}
}

func validationError(op, detail string) *Error {
	return &Error{Op: op, Err: ErrValidation, Detail: detail}
}

// Error codes exposed to API clients and used as metric labels.
const (
	CodeOK                = "OK"
	CodeValidation        = "VALIDATION"
	CodeNotFound          = "NOT_FOUND"
	CodeParentNotFound    = "PARENT_NOT_FOUND"
	CodeDuplicateSlug     = "DUPLICATE_SLUG"
	CodeCycleDetected     = "CYCLE_DETECTED"
	CodeHasActiveChildren = "HAS_ACTIVE_CHILDREN"
	CodeConflict          = "CONFLICT"
	CodeTooDeep           = "TOO_DEEP"
	CodeInternal          = "INTERNAL"
)

// Code classifies err. ErrParentNotFound is checked before ErrNotFound
// because it wraps it.
func Code(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrParentNotFound):
		return CodeParentNotFound
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicateSlug):
		return CodeDuplicateSlug
	case errors.Is(err, ErrCycleDetected):
		return CodeCycleDetected
	case errors.Is(err, ErrHasActiveChildren):
		return CodeHasActiveChildren
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrTooDeep):
		return CodeTooDeep
	default:
		return CodeInternal
	}
}
