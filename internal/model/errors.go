package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched by every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a missing round, application, match amount or match
// token. It is fatal for the operation that hit it; callers never substitute
// a default.
type NotFoundError struct {
	Entity string
	Key    string
}

// NewNotFound builds a NotFoundError whose key is the parts joined by "/".
func NewNotFound(entity string, keyParts ...any) *NotFoundError {
	parts := make([]string, len(keyParts))
	for i, p := range keyParts {
		parts[i] = fmt.Sprint(p)
	}
	return &NotFoundError{Entity: entity, Key: strings.Join(parts, "/")}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// Is makes errors.Is(err, ErrNotFound) succeed.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is or wraps a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UnknownChangeKindError means a change carried a kind this build does not
// know. It indicates a producer/schema mismatch and is never swallowed.
type UnknownChangeKindError struct {
	Kind string
}

func (e *UnknownChangeKindError) Error() string {
	return fmt.Sprintf("unknown change kind %q", e.Kind)
}

// IsUnknownChangeKind reports whether err is or wraps an UnknownChangeKindError.
func IsUnknownChangeKind(err error) bool {
	var uk *UnknownChangeKindError
	return errors.As(err, &uk)
}
